package pulsar

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BriceLerendu/TuyaRealtimeVB/internal/cryptox"
)

// Frame is one message of the Pulsar websocket consumer API.
type Frame struct {
	MessageID       string            `json:"messageId"`
	Payload         string            `json:"payload"`
	Properties      map[string]string `json:"properties,omitempty"`
	PublishTime     string            `json:"publishTime,omitempty"`
	RedeliveryCount int               `json:"redeliveryCount,omitempty"`
	Key             string            `json:"key,omitempty"`
}

type ack struct {
	MessageID string `json:"messageId"`
}

// envelope is the base64-decoded Frame.Payload.
type envelope struct {
	Protocol     int    `json:"protocol"`
	PV           string `json:"pv"`
	Sign         string `json:"sign"`
	T            int64  `json:"t"`
	Data         string `json:"data"`
	EncryptModel string `json:"encryptModel"`
}

const encryptModelGCM = "aes_gcm"

// DecodePayload turns a frame into the plaintext event data.
func DecodePayload(f Frame, key []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(f.Payload)
	if err != nil {
		return "", fmt.Errorf("decode frame payload: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if env.Data == "" {
		return "", fmt.Errorf("envelope has no data")
	}

	ct, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return "", fmt.Errorf("decode data: %w", err)
	}

	model := env.EncryptModel
	if model == "" {
		model = f.Properties["em"]
	}

	var plain []byte
	if strings.EqualFold(model, encryptModelGCM) {
		plain, err = cryptox.DecryptAESGCM(key, ct)
	} else {
		plain, err = cryptox.DecryptAESECB(key, ct)
	}
	if err != nil {
		return "", fmt.Errorf("decrypt data (%s): %w", modelName(model), err)
	}
	return string(plain), nil
}

func modelName(m string) string {
	if m == "" {
		return "aes_ecb"
	}
	return m
}
