package events

const (
	// SubjectDeviceEvent is the default NATS subject for nats:// targets.
	SubjectDeviceEvent = "tuya.events"
)

// DeviceEvent is the body delivered to the forward target. Event carries the
// decrypted message queue data verbatim.
type DeviceEvent struct {
	Event string `json:"event"`
}
