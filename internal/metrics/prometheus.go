package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prom is the bridge's metric set. All methods are safe on a nil *Prom so
// components can run without metrics in tests.
type Prom struct {
	reg *prometheus.Registry

	EventsReceived     prometheus.Counter
	EventsUndecodable  prometheus.Counter
	Forwards           *prometheus.CounterVec
	ForwardLatency     prometheus.Histogram
	Reconnects         prometheus.Counter
	SubscriptionActive prometheus.Gauge
}

func NewProm() *Prom {
	reg := prometheus.NewRegistry()
	p := &Prom{
		reg: reg,
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tuya_bridge_events_received_total", Help: "Messages delivered by the message queue",
		}),
		EventsUndecodable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tuya_bridge_events_undecodable_total", Help: "Messages acked but dropped because they could not be decoded",
		}),
		Forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tuya_bridge_forwards_total", Help: "Forward attempts by outcome",
		}, []string{"outcome"}),
		ForwardLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tuya_bridge_forward_seconds",
			Help:    "Duration of forward attempts",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tuya_bridge_reconnects_total", Help: "Websocket reconnects after the initial connection",
		}),
		SubscriptionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tuya_bridge_subscription_active", Help: "1 while a subscription handle is held",
		}),
	}
	reg.MustRegister(p.EventsReceived, p.EventsUndecodable, p.Forwards, p.ForwardLatency, p.Reconnects, p.SubscriptionActive)
	return p
}

func (p *Prom) Handler() http.Handler { return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{}) }

func (p *Prom) EventReceived() {
	if p == nil {
		return
	}
	p.EventsReceived.Inc()
}

func (p *Prom) EventUndecodable() {
	if p == nil {
		return
	}
	p.EventsUndecodable.Inc()
}

func (p *Prom) ForwardDone(outcome string, took time.Duration) {
	if p == nil {
		return
	}
	p.Forwards.WithLabelValues(outcome).Inc()
	p.ForwardLatency.Observe(took.Seconds())
}

func (p *Prom) Reconnected() {
	if p == nil {
		return
	}
	p.Reconnects.Inc()
}

func (p *Prom) SetSubscriptionActive(active bool) {
	if p == nil {
		return
	}
	if active {
		p.SubscriptionActive.Set(1)
	} else {
		p.SubscriptionActive.Set(0)
	}
}
