package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
)

const shutdownTimeout = 5 * time.Second

// Serve runs app on addr until ctx is done, then drains in-flight requests.
// Fiber's Shutdown has no context, so the drain is bounded by shutdownTimeout.
func Serve(ctx context.Context, app *fiber.App, addr string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serveListener(ctx, app, ln, log)
}

func serveListener(ctx context.Context, app *fiber.App, ln net.Listener, log *slog.Logger) error {
	if ctx.Err() != nil {
		return ln.Close()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting status server", "addr", ln.Addr().String())
		errCh <- app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownErr := app.ShutdownWithTimeout(shutdownTimeout)
	if shutdownErr != nil {
		log.Error("status server shutdown failed", "error", shutdownErr)
	}
	// Shutdown only closes listeners fasthttp has registered; closing ln
	// also stops a server that had not reached Accept yet.
	_ = ln.Close()

	if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return shutdownErr
}
