package pulsar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/BriceLerendu/TuyaRealtimeVB/internal/cryptox"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/logging"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/metrics"
)

var (
	ErrStarted = errors.New("pulsar client already started")
	ErrStopped = errors.New("pulsar client stopped")
	// ErrRejected is returned when the broker refuses the handshake
	// credentials. It is not retried.
	ErrRejected = errors.New("message queue rejected credentials")
)

const (
	defaultPingInterval      = 30 * time.Second
	defaultReconnectInterval = 5 * time.Second
	writeTimeout             = 5 * time.Second
	stopTimeout              = 5 * time.Second
)

// MessageListener receives the decrypted data of one event. It runs on the
// client's read goroutine; the next message is not read until it returns.
type MessageListener func(payload string)

type Options struct {
	Credentials
	Endpoint string
	Topic    Topic

	Logger  *slog.Logger
	Metrics *metrics.Prom
	Dialer  *websocket.Dialer

	PingInterval      time.Duration
	ReconnectInterval time.Duration
}

// Client is a Tuya message queue consumer. It reconnects on its own after
// the initial connection succeeds, until Stop is called.
type Client struct {
	url     string
	header  http.Header
	key     []byte
	dialer  *websocket.Dialer
	log     *slog.Logger
	metrics *metrics.Prom
	limiter *rate.Limiter
	ping    time.Duration

	mu        sync.Mutex
	listeners []MessageListener
	conn      *websocket.Conn
	started   bool
	stopped   bool
	cancel    context.CancelFunc
	abortDial context.CancelFunc
	done      chan struct{}
	err       error
}

func New(opts Options) (*Client, error) {
	if opts.AccessID == "" || opts.AccessKey == "" {
		return nil, fmt.Errorf("access id and access key are required")
	}
	if opts.Topic == "" {
		opts.Topic = TopicProd
	}
	u, err := TopicURL(opts.Endpoint, opts.AccessID, opts.Topic)
	if err != nil {
		return nil, err
	}
	key, err := cryptox.PayloadKey(opts.AccessKey)
	if err != nil {
		return nil, err
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}
	every := opts.ReconnectInterval
	if every <= 0 {
		every = defaultReconnectInterval
	}

	header := http.Header{}
	header.Set("username", opts.AccessID)
	header.Set("password", opts.Password())

	return &Client{
		url:     u,
		header:  header,
		key:     key,
		dialer:  dialer,
		log:     logging.Tag(opts.Logger, logging.TagPulsar),
		metrics: opts.Metrics,
		limiter: rate.NewLimiter(rate.Every(every), 1),
		ping:    ping,
		done:    make(chan struct{}),
	}, nil
}

func (c *Client) AddMessageListener(l MessageListener) {
	if l == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Start opens the websocket and begins consuming in the background. Failure
// to open the first connection is returned as is.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.started {
		c.mu.Unlock()
		return ErrStarted
	}
	dialCtx, abort := context.WithCancel(ctx)
	c.started = true
	c.abortDial = abort
	c.mu.Unlock()

	conn, err := c.dial(dialCtx)
	abort()
	if err != nil {
		if c.isStopped() {
			return ErrStopped
		}
		c.finish(err)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		cancel()
		_ = conn.Close()
		return ErrStopped
	}
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx, conn)
	return nil
}

// Stop closes the connection and waits for the read loop to exit. Calling it
// again is a no-op.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	started := c.started
	conn, cancel, abort := c.conn, c.cancel, c.abortDial
	c.mu.Unlock()

	if abort != nil {
		abort()
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	if !started || cancel == nil {
		c.finish(nil)
		return nil
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(stopTimeout):
		return fmt.Errorf("pulsar client did not stop within %s", stopTimeout)
	}
}

// Done is closed once the client stops consuming, either after Stop or
// because reconnecting became impossible (see Err).
func (c *Client) Done() <-chan struct{} { return c.done }

// Err is the reason consumption ended; nil after a normal Stop.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
	}
	if !c.stopped {
		c.err = err
	}
	close(c.done)
}

func (c *Client) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// dial opens one websocket. Cancelling ctx aborts the handshake; the
// dialer's HandshakeTimeout alone only bounds it.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	d := *c.dialer
	next := d.NetDialContext
	if next == nil && d.NetDial != nil {
		netDial := d.NetDial
		next = func(_ context.Context, network, addr string) (net.Conn, error) {
			return netDial(network, addr)
		}
	}
	if next == nil {
		next = (&net.Dialer{}).DialContext
	}

	var (
		mu  sync.Mutex
		raw net.Conn
	)
	d.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		nc, err := next(ctx, network, addr)
		mu.Lock()
		raw = nc
		mu.Unlock()
		return nc, err
	}

	handshaken := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			mu.Lock()
			if raw != nil {
				_ = raw.Close()
			}
			mu.Unlock()
		case <-handshaken:
		}
	}()

	conn, resp, err := d.DialContext(ctx, c.url, c.header)
	close(handshaken)
	if ctx.Err() != nil {
		if conn != nil {
			_ = conn.Close()
		}
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("dial message queue: %w", ctx.Err())
	}
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial message queue: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial message queue: %w", err)
	}
	return conn, nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	var err error
	defer func() { c.finish(err) }()

	for {
		readErr := c.consume(ctx, conn)
		if ctx.Err() != nil || c.isStopped() {
			return
		}
		c.log.Warn("connection lost, reconnecting", "error", readErr)

		conn, err = c.reconnect(ctx)
		if err != nil {
			if ctx.Err() == nil && !c.isStopped() {
				c.log.Error("giving up on message queue", "error", err)
			} else {
				err = nil
			}
			return
		}
	}
}

func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, error) {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		conn, err := c.dial(ctx)
		if err != nil {
			if errors.Is(err, ErrRejected) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn("reconnect failed", "error", err)
			continue
		}

		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			_ = conn.Close()
			return nil, ErrStopped
		}
		c.conn = conn
		c.mu.Unlock()

		c.metrics.Reconnected()
		c.log.Info("reconnected")
		return conn, nil
	}
}

// consume reads frames until the connection fails or ctx is cancelled.
func (c *Client) consume(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	deadline := func() time.Time { return time.Now().Add(2 * c.ping) }
	_ = conn.SetReadDeadline(deadline())
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(deadline())
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.keepalive(ctx, conn, pingDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(deadline())
		c.handle(conn, data)
	}
}

func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(c.ping)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.log.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// handle acks a frame, decodes it and hands the payload to the listeners.
// Nothing here is allowed to end the read loop.
func (c *Client) handle(conn *websocket.Conn, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil || f.MessageID == "" {
		c.metrics.EventUndecodable()
		c.log.Warn("ignoring malformed frame", "error", err, "bytes", len(data))
		return
	}

	// Ack before delivery: the bridge is at-most-once.
	ackBody, _ := json.Marshal(ack{MessageID: f.MessageID})
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, ackBody); err != nil {
		c.log.Warn("ack failed", "message_id", f.MessageID, "error", err)
	}

	payload, err := DecodePayload(f, c.key)
	if err != nil {
		c.metrics.EventUndecodable()
		c.log.Warn("dropping undecodable message", "message_id", f.MessageID, "error", err)
		return
	}
	c.metrics.EventReceived()

	c.mu.Lock()
	listeners := append([]MessageListener(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		c.deliver(l, payload)
	}
}

func (c *Client) deliver(l MessageListener, payload string) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("message listener panicked", "panic", fmt.Sprint(r))
		}
	}()
	l(payload)
}
