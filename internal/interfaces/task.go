package interfaces

import (
	"context"

	"trade-mirror-bot/internal/types"
)

// Task is one long-running mirror of a source trader.
type Task interface {
	Run(ctx context.Context) error
	Stop()
	Status() types.TaskStatus
	// Done is closed when Run returns.
	Done() <-chan struct{}
}
