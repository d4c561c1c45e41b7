package workerlock

import (
	"context"
	"errors"

	"cashback-ranking/pkg/errutil"
	"cashback-ranking/pkg/metrics"

	"go.uber.org/zap"
)

// Coordinator is a counted lease per process name.
type Coordinator interface {
	// Acquire increments process's worker count unless one of exclusive has a
	// nonzero count, in which case it reports false and changes nothing.
	Acquire(ctx context.Context, process string, exclusive ...string) (bool, error)
	// Release decrements process's worker count.
	Release(ctx context.Context, process string) error
}

func coordinationError(msg string, process string, err error) error {
	return errutil.WorkerCoordination(msg, err, errutil.WithDetails(errutil.Detail{
		Field:   "process_name",
		Message: process,
	}))
}

// IsCoordinationError reports whether err came from a lock row mismatch.
func IsCoordinationError(err error) bool {
	return errutil.HasStatus(err, errutil.StatusWorkerCoordination)
}

// ErrSkipped is returned by Run when an exclusive process holds the lock.
var ErrSkipped = errors.New("worker lock held by an exclusive process")

// Run executes fn between Acquire and Release using the exclusion table.
// Release runs even if fn fails; a release failure is reported only when fn succeeded.
func Run(ctx context.Context, c Coordinator, process string, fn func(ctx context.Context) error) (err error) {
	acquired, err := c.Acquire(ctx, process, ExclusiveAgainst[process]...)
	if err != nil {
		return err
	}
	if !acquired {
		metrics.LockSkipsTotal.WithLabelValues(process).Inc()
		zap.L().Info("[WorkerLock] skipped, exclusive process running", zap.String("process", process))
		return ErrSkipped
	}

	defer func() {
		// the caller's context may already be cancelled; the count must still go down
		relErr := c.Release(context.WithoutCancel(ctx), process)
		if relErr != nil {
			zap.L().Error("[WorkerLock] release failed", zap.String("process", process), zap.Error(relErr))
			if err == nil {
				err = relErr
			}
		}
	}()

	return fn(ctx)
}
