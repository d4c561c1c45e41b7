package orchestrator

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scheduler struct {
	dispatcher *Dispatcher
	hour       int
	minute     int
}

func NewScheduler(dispatcher *Dispatcher, hour, minute int) *Scheduler {
	return &Scheduler{dispatcher: dispatcher, hour: hour, minute: minute}
}

// StartScheduler runs the daily loop for the lifetime of the app.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started ranking scheduler", zap.Int("hour", s.hour), zap.Int("minute", s.minute))

	for {
		now := time.Now()
		next := nextRunTime(now, s.hour, s.minute)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	start := time.Now()
	zap.L().Info("[Scheduler] enqueueing active award periods")

	n, err := s.dispatcher.EnqueueAllActive(ctx)
	if err != nil {
		zap.L().Error("[Scheduler] failed to enqueue active periods", zap.Int("queued", n), zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] finished enqueueing",
		zap.Int("queued", n),
		zap.Duration("duration", time.Since(start)),
	)
}

// nextRunTime returns the next hour:minute strictly after now, in now's zone.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
