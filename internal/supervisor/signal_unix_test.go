//go:build unix

package supervisor

import (
	"context"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestRun_OSSignalReachesIdleWait(t *testing.T) {
	sub := new(mockSubscriber)
	sub.On("Start", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	sub.On("Wait", mock.Anything).Run(blockUntilDone).Return(nil).Once()
	sub.On("Stop").Return(nil).Once()

	rec := newRecorder()
	s, _, _ := newSupervisor(sub, rec)

	// SIGUSR1 stands in for SIGINT so the test binary itself is never interrupted.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	select {
	case <-rec.running:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor never reached RUNNING")
	}
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("send signal: %v", err)
	}

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("signal did not stop the supervisor")
	}
	assert.Equal(t, StateStopped, s.State())
	sub.AssertNumberOfCalls(t, "Stop", 1)
}
