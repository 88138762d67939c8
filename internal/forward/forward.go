// Package forward relays event payloads to the configured target. Every
// failure is logged and swallowed: delivery from the message queue must
// continue whether or not the target is up. Nothing is retried.
package forward

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/BriceLerendu/TuyaRealtimeVB/internal/logging"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/metrics"
)

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeBadStatus Outcome = "bad_status"
	OutcomeRefused   Outcome = "refused"
	OutcomeError     Outcome = "error"
)

type Result struct {
	Outcome    Outcome
	StatusCode int
	Err        error
	RequestID  string
	Took       time.Duration
}

type Forwarder interface {
	Forward(ctx context.Context, payload string) Result
}

// Relay returns the message listener used by the subscription: log the
// payload, forward it with timeout, record the outcome.
func Relay(f Forwarder, timeout time.Duration, log *slog.Logger, m *metrics.Prom) func(payload string) {
	plog := logging.Tag(log, logging.TagPulsar)
	return func(payload string) {
		plog.Info("message received", "bytes", len(payload))
		plog.Info(payload)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res := f.Forward(ctx, payload)
		m.ForwardDone(string(res.Outcome), res.Took)
	}
}

// isRefused reports whether err means nobody is listening at the target.
func isRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	// Windows reports WSAECONNREFUSED, which does not match ECONNREFUSED.
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" && !opErr.Timeout() {
		return true
	}
	return false
}
