// Package subscription owns the bridge's single message queue connection.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BriceLerendu/TuyaRealtimeVB/internal/logging"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/metrics"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/pulsar"
)

var ErrNotStarted = errors.New("no active subscription")

// Conn is a live message queue subscription. *pulsar.Client implements it.
type Conn interface {
	AddMessageListener(l pulsar.MessageListener)
	Start(ctx context.Context) error
	Stop() error
	Done() <-chan struct{}
	Err() error
}

// Dialer constructs, but does not start, a connection.
type Dialer func(opts pulsar.Options) (Conn, error)

// PulsarDialer builds real Tuya message queue clients.
func PulsarDialer(log *slog.Logger, m *metrics.Prom) Dialer {
	return func(opts pulsar.Options) (Conn, error) {
		opts.Logger = log
		opts.Metrics = m
		c, err := pulsar.New(opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

type Manager struct {
	newConn  Dialer
	listener pulsar.MessageListener
	log      *slog.Logger
	metrics  *metrics.Prom

	mu   sync.Mutex
	conn Conn
}

func New(newConn Dialer, listener pulsar.MessageListener, log *slog.Logger, m *metrics.Prom) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		newConn:  newConn,
		listener: listener,
		log:      log,
		metrics:  m,
	}
}

// Start opens a new subscription, stopping any existing one first. The
// handle is kept even when starting it fails so Stop can release it. The
// lock is not held during the handshake, so Active and Stop stay responsive.
func (m *Manager) Start(ctx context.Context, creds pulsar.Credentials, endpoint string, topic pulsar.Topic) error {
	m.mu.Lock()
	if m.conn != nil {
		m.log.Warn("a subscription already exists, stopping it")
		m.stopLocked()
	}

	conn, err := m.newConn(pulsar.Options{
		Credentials: creds,
		Endpoint:    endpoint,
		Topic:       topic,
	})
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("create subscription: %w", err)
	}
	m.conn = conn
	m.metrics.SetSubscriptionActive(true)
	conn.AddMessageListener(m.listener)
	m.mu.Unlock()

	plog := logging.Tag(m.log, logging.TagPulsar)
	plog.Info("starting", "topic", string(topic))
	if err := conn.Start(ctx); err != nil {
		return fmt.Errorf("start subscription: %w", err)
	}
	plog.Info("listening for Tuya events")
	return nil
}

// Stop closes the current subscription, if any.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked()
}

func (m *Manager) stopLocked() error {
	if m.conn == nil {
		return nil
	}
	plog := logging.Tag(m.log, logging.TagPulsar)
	plog.Info("stopping")

	err := m.conn.Stop()
	m.conn = nil
	m.metrics.SetSubscriptionActive(false)
	if err != nil {
		m.log.Error("subscription did not stop cleanly", "error", err)
		return err
	}
	plog.Info("stopped")
	return nil
}

// Active reports whether a subscription handle is held.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Wait blocks until ctx is done (nil) or the subscription ends on its own
// (its error, or nil if it was stopped).
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotStarted
	}

	select {
	case <-ctx.Done():
		return nil
	case <-conn.Done():
		if err := conn.Err(); err != nil {
			return fmt.Errorf("subscription ended: %w", err)
		}
		return nil
	}
}
