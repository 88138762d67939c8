package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/BriceLerendu/TuyaRealtimeVB/internal/events"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/logging"
)

type HTTPForwarder struct {
	HTTP      *http.Client
	URL       string
	UserAgent string

	log *slog.Logger
}

func NewHTTP(url string, timeout time.Duration, log *slog.Logger) *HTTPForwarder {
	return &HTTPForwarder{
		HTTP:      &http.Client{Timeout: timeout},
		URL:       url,
		UserAgent: "tuya-bridge",
		log:       logging.Tag(log, logging.TagHTTP),
	}
}

// Forward POSTs {"event": payload}. Only a 200 counts as delivered.
func (f *HTTPForwarder) Forward(ctx context.Context, payload string) (res Result) {
	start := time.Now()
	res.RequestID = uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeError
			res.Err = fmt.Errorf("panic: %v", r)
			f.log.Error("forward failed", "error", res.Err, "request_id", res.RequestID)
		}
		res.Took = time.Since(start)
	}()

	body, err := json.Marshal(events.DeviceEvent{Event: payload})
	if err != nil {
		return f.failed(res, fmt.Errorf("marshal body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.URL, bytes.NewReader(body))
	if err != nil {
		return f.failed(res, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", res.RequestID)
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.HTTP.Do(req)
	if err != nil {
		if isRefused(err) {
			res.Outcome = OutcomeRefused
			res.Err = err
			f.log.Warn("listener not available (connection refused)", "url", f.URL)
			return res
		}
		return f.failed(res, err)
	}
	defer resp.Body.Close()
	// Drain so the keep-alive connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	res.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		res.Outcome = OutcomeBadStatus
		f.log.Error("forward rejected", "status", resp.StatusCode, "request_id", res.RequestID)
		return res
	}

	res.Outcome = OutcomeSuccess
	f.log.Info("event forwarded", "status", resp.StatusCode, "request_id", res.RequestID)
	return res
}

func (f *HTTPForwarder) failed(res Result, err error) Result {
	res.Outcome = OutcomeError
	res.Err = err
	f.log.Error("forward failed", "error", err, "request_id", res.RequestID)
	return res
}
