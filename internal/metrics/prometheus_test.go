package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProm_Counters(t *testing.T) {
	p := NewProm()

	p.EventReceived()
	p.EventReceived()
	p.ForwardDone("success", 10*time.Millisecond)
	p.ForwardDone("refused", time.Millisecond)
	p.ForwardDone("refused", time.Millisecond)
	p.SetSubscriptionActive(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.EventsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Forwards.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.Forwards.WithLabelValues("refused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.SubscriptionActive))

	p.SetSubscriptionActive(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(p.SubscriptionActive))
}

func TestProm_NilIsNoop(t *testing.T) {
	var p *Prom
	assert.NotPanics(t, func() {
		p.EventReceived()
		p.EventUndecodable()
		p.ForwardDone("success", time.Second)
		p.Reconnected()
		p.SetSubscriptionActive(true)
	})
}

func TestProm_Handler(t *testing.T) {
	p := NewProm()
	p.Reconnected()

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tuya_bridge_reconnects_total 1")
}
