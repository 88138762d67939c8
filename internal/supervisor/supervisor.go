// Package supervisor drives the bridge's lifecycle:
//
//	IDLE -> STARTING -> RUNNING -> STOPPING -> STOPPED
//
// Teardown runs exactly once, whichever way Run exits.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/BriceLerendu/TuyaRealtimeVB/internal/logging"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/pulsar"
)

type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Subscriber is the part of subscription.Manager the supervisor drives.
type Subscriber interface {
	Start(ctx context.Context, creds pulsar.Credentials, endpoint string, topic pulsar.Topic) error
	Wait(ctx context.Context) error
	Stop() error
}

type Options struct {
	Credentials pulsar.Credentials
	Endpoint    string
	Topic       pulsar.Topic
	// Target is only shown in the startup banner.
	Target string

	Logger *slog.Logger
	// Trace receives stack traces of startup failures. Defaults to stderr.
	Trace io.Writer
	// OnState, if set, observes every transition.
	OnState func(State)
}

type Supervisor struct {
	sub   Subscriber
	opts  Options
	log   *slog.Logger
	plog  *slog.Logger
	state atomic.Int32
	once  sync.Once
}

func New(sub Subscriber, opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Trace == nil {
		opts.Trace = os.Stderr
	}
	return &Supervisor{
		sub:  sub,
		opts: opts,
		log:  opts.Logger,
		plog: logging.Tag(opts.Logger, logging.TagPulsar),
	}
}

func (s *Supervisor) State() State { return State(s.state.Load()) }

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	s.log.Debug("supervisor state", "state", st.String())
	if s.opts.OnState != nil {
		s.opts.OnState(st)
	}
}

// Run starts the subscription and blocks until ctx is cancelled or the
// subscription fails. It returns nil on a clean interrupt.
func (s *Supervisor) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
			s.log.Error(err.Error())
			fmt.Fprintf(s.opts.Trace, "%s\n", debug.Stack())
		}
		s.teardown()
	}()

	s.banner()
	s.setState(StateStarting)

	if err := s.sub.Start(ctx, s.opts.Credentials, s.opts.Endpoint, s.opts.Topic); err != nil {
		if ctx.Err() != nil {
			s.plog.Info("interrupted")
			return nil
		}
		s.log.Error(err.Error())
		fmt.Fprintf(s.opts.Trace, "%+v\n%s\n", err, debug.Stack())
		return err
	}

	s.setState(StateRunning)
	s.plog.Info("press Ctrl+C to stop")

	if err := s.sub.Wait(ctx); err != nil {
		s.log.Error(err.Error())
		return err
	}
	if ctx.Err() != nil {
		s.plog.Info("interrupted")
	}
	return nil
}

func (s *Supervisor) teardown() {
	s.once.Do(func() {
		s.setState(StateStopping)
		if err := s.sub.Stop(); err != nil {
			s.log.Error("stop failed", "error", err)
		}
		s.setState(StateStopped)
	})
}

func (s *Supervisor) banner() {
	rule := strings.Repeat("=", 50)
	s.log.Info(rule)
	s.log.Info("TUYA PULSAR -> HTTP bridge")
	s.log.Info(rule)
	s.log.Info("Access ID: " + s.opts.Credentials.AccessID)
	s.log.Info("Endpoint: " + s.opts.Endpoint)
	s.log.Info("Topic: " + string(s.opts.Topic))
	s.log.Info("Target: " + s.opts.Target)
	s.log.Info(rule)
}
