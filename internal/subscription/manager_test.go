package subscription

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BriceLerendu/TuyaRealtimeVB/internal/logging"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/pulsar"
)

var creds = pulsar.Credentials{AccessID: "testid", AccessKey: "0123456789abcdef0123456789abcdef"}

// fakeConn records lifecycle calls; fleet tracks how many are open at once.
type fakeConn struct {
	fleet    *fleet
	opts     pulsar.Options
	startErr error

	mu        sync.Mutex
	listeners []pulsar.MessageListener
	starts    int
	stops     int
	done      chan struct{}
	err       error
}

func (c *fakeConn) AddMessageListener(l pulsar.MessageListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *fakeConn) Start(ctx context.Context) error {
	c.mu.Lock()
	c.starts++
	c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.fleet.opened()
	return nil
}

func (c *fakeConn) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	if c.stops == 1 {
		if c.starts > 0 && c.startErr == nil {
			c.fleet.closed()
		}
		close(c.done)
	}
	return nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// fail ends the connection on its own, as a client does after giving up.
func (c *fakeConn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	close(c.done)
}

type fleet struct {
	mu       sync.Mutex
	conns    []*fakeConn
	open     int
	maxOpen  int
	startErr error
	dialErr  error
}

func (f *fleet) opened() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open++
	if f.open > f.maxOpen {
		f.maxOpen = f.open
	}
}

func (f *fleet) closed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open--
}

func (f *fleet) dialer() Dialer {
	return func(opts pulsar.Options) (Conn, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.dialErr != nil {
			return nil, f.dialErr
		}
		c := &fakeConn{fleet: f, opts: opts, startErr: f.startErr, done: make(chan struct{})}
		f.conns = append(f.conns, c)
		return c, nil
	}
}

func newManager(f *fleet) (*Manager, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(f.dialer(), func(string) {}, logging.New(&buf, slog.LevelDebug), nil), &buf
}

func TestStart_PassesConfigurationAndAttachesOneListener(t *testing.T) {
	f := &fleet{}
	m, _ := newManager(f)

	require.NoError(t, m.Start(context.Background(), creds, pulsar.EndpointEU, pulsar.TopicTest))
	require.Len(t, f.conns, 1)

	c := f.conns[0]
	assert.Equal(t, creds, c.opts.Credentials)
	assert.Equal(t, pulsar.EndpointEU, c.opts.Endpoint)
	assert.Equal(t, pulsar.TopicTest, c.opts.Topic)
	assert.Len(t, c.listeners, 1)
	assert.Equal(t, 1, c.starts)
	assert.True(t, m.Active())
}

func TestStart_RepeatedStartsKeepOneConnection(t *testing.T) {
	f := &fleet{}
	m, out := newManager(f)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Start(context.Background(), creds, pulsar.EndpointEU, pulsar.TopicProd))
	}

	assert.Equal(t, 1, f.maxOpen)
	assert.Equal(t, 1, f.open)
	require.Len(t, f.conns, 3)
	assert.Equal(t, 1, f.conns[0].stops)
	assert.Equal(t, 1, f.conns[1].stops)
	assert.Equal(t, 0, f.conns[2].stops)
	for _, c := range f.conns {
		assert.Len(t, c.listeners, 1)
	}
	assert.Contains(t, out.String(), "[ATTENTION] a subscription already exists, stopping it")
}

func TestStop_IsIdempotent(t *testing.T) {
	f := &fleet{}
	m, _ := newManager(f)
	require.NoError(t, m.Start(context.Background(), creds, pulsar.EndpointEU, pulsar.TopicProd))

	assert.NoError(t, m.Stop())
	assert.NoError(t, m.Stop())
	assert.False(t, m.Active())
	assert.Equal(t, 1, f.conns[0].stops)
	assert.Equal(t, 0, f.open)
}

func TestStop_WithoutStartIsNoop(t *testing.T) {
	m, _ := newManager(&fleet{})
	assert.NoError(t, m.Stop())
	assert.False(t, m.Active())
}

func TestStart_FailureKeepsHandleForStop(t *testing.T) {
	f := &fleet{startErr: pulsar.ErrRejected}
	m, _ := newManager(f)

	err := m.Start(context.Background(), creds, pulsar.EndpointEU, pulsar.TopicProd)
	require.Error(t, err)
	assert.ErrorIs(t, err, pulsar.ErrRejected)
	assert.True(t, m.Active(), "partially started handle must still be held")

	require.NoError(t, m.Stop())
	assert.False(t, m.Active())
	assert.Equal(t, 1, f.conns[0].stops)
}

func TestStart_DialerErrorPropagates(t *testing.T) {
	f := &fleet{dialErr: errors.New("bad endpoint")}
	m, _ := newManager(f)

	err := m.Start(context.Background(), creds, "nope", pulsar.TopicProd)
	require.Error(t, err)
	assert.False(t, m.Active())
}

func TestWait(t *testing.T) {
	f := &fleet{}
	m, _ := newManager(f)

	assert.ErrorIs(t, m.Wait(context.Background()), ErrNotStarted)

	require.NoError(t, m.Start(context.Background(), creds, pulsar.EndpointEU, pulsar.TopicProd))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, m.Wait(ctx))

	f.conns[0].fail(pulsar.ErrRejected)
	err := m.Wait(context.Background())
	assert.ErrorIs(t, err, pulsar.ErrRejected)
}

func TestPulsarDialer_BuildsClient(t *testing.T) {
	d := PulsarDialer(slog.Default(), nil)
	c, err := d(pulsar.Options{Credentials: creds, Endpoint: pulsar.EndpointEU, Topic: pulsar.TopicProd})
	require.NoError(t, err)
	assert.IsType(t, &pulsar.Client{}, c)

	_, err = d(pulsar.Options{Credentials: pulsar.Credentials{AccessID: "x", AccessKey: "short"}, Endpoint: pulsar.EndpointEU})
	assert.Error(t, err)
}

// handshakeConn blocks in Start until it is stopped, like a client whose
// handshake never completes.
type handshakeConn struct {
	starting chan struct{}
	done     chan struct{}
	once     sync.Once
}

func newHandshakeConn() *handshakeConn {
	return &handshakeConn{starting: make(chan struct{}), done: make(chan struct{})}
}

func (c *handshakeConn) AddMessageListener(pulsar.MessageListener) {}

func (c *handshakeConn) Start(ctx context.Context) error {
	close(c.starting)
	select {
	case <-c.done:
		return pulsar.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *handshakeConn) Stop() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *handshakeConn) Done() <-chan struct{} { return c.done }
func (c *handshakeConn) Err() error { return nil }

func TestStart_DoesNotBlockActiveOrStop(t *testing.T) {
	conn := newHandshakeConn()
	m := New(func(pulsar.Options) (Conn, error) { return conn, nil }, func(string) {}, slog.Default(), nil)

	errCh := make(chan error, 1)
	go func() { errCh <- m.Start(context.Background(), creds, pulsar.EndpointEU, pulsar.TopicProd) }()
	<-conn.starting

	active := make(chan bool, 1)
	go func() { active <- m.Active() }()
	select {
	case a := <-active:
		assert.True(t, a)
	case <-time.After(time.Second):
		t.Fatal("Active blocked while Start was waiting on the handshake")
	}

	require.NoError(t, m.Stop())
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, pulsar.ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.False(t, m.Active())
}
