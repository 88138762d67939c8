package forward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BriceLerendu/TuyaRealtimeVB/internal/bus"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/events"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/logging"
)

// BusForwarder publishes the same body as HTTPForwarder to a bus subject,
// for listeners that consume from NATS instead of exposing an endpoint.
type BusForwarder struct {
	Bus     bus.Bus
	Subject string

	log *slog.Logger
}

func NewBus(b bus.Bus, subject string, log *slog.Logger) *BusForwarder {
	return &BusForwarder{Bus: b, Subject: subject, log: logging.Tag(log, logging.TagNATS)}
}

func (f *BusForwarder) Forward(ctx context.Context, payload string) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeError
			res.Err = fmt.Errorf("panic: %v", r)
			f.log.Error("publish failed", "error", res.Err, "subject", f.Subject)
		}
		res.Took = time.Since(start)
	}()

	data, err := json.Marshal(events.DeviceEvent{Event: payload})
	if err != nil {
		res.Outcome, res.Err = OutcomeError, err
		f.log.Error("publish failed", "error", err, "subject", f.Subject)
		return res
	}

	if err := f.Bus.Publish(ctx, f.Subject, data); err != nil {
		res.Err = err
		if errors.Is(err, bus.ErrUnavailable) {
			res.Outcome = OutcomeRefused
			f.log.Warn("bus not available", "subject", f.Subject, "error", err)
			return res
		}
		res.Outcome = OutcomeError
		f.log.Error("publish failed", "error", err, "subject", f.Subject)
		return res
	}

	res.Outcome = OutcomeSuccess
	f.log.Info("event published", "subject", f.Subject)
	return res
}
