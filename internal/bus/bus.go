package bus

import (
	"context"
	"errors"
)

// ErrUnavailable wraps publish failures caused by the bus not being
// reachable, as opposed to a rejected message.
var ErrUnavailable = errors.New("bus unavailable")

type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close()
}
