package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"cashback-ranking/pkg/errutil"
)

// Handler serves the ranking asynq tasks.
type Handler struct {
	service    *Service
	dispatcher *Dispatcher
	now        func() time.Time
}

func NewHandler(service *Service, dispatcher *Dispatcher) *Handler {
	return &Handler{service: service, dispatcher: dispatcher, now: time.Now}
}

// HandleRunPeriod runs one period. Without a stop time in the payload the
// budget starts when the task is picked up.
func (h *Handler) HandleRunPeriod(ctx context.Context, t *asynq.Task) error {
	var p RunPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode run payload: %v: %w", err, asynq.SkipRetry)
	}

	stopAt := p.StopAt
	if stopAt == nil {
		v := h.now().Add(h.service.settings().MaxRunDuration)
		stopAt = &v
	}

	report, err := h.service.RunForPeriod(ctx, p.AwardPeriodID, stopAt)
	if err != nil {
		if !errutil.StatusOf(err).Retryable() {
			zap.L().Error("[Handler] run failed, not retrying",
				zap.Uint64("award_period_id", p.AwardPeriodID),
				zap.String("status", string(errutil.StatusOf(err))),
				zap.Error(err),
			)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	zap.L().Info("[Handler] run done",
		zap.String("run_id", report.RunID),
		zap.String("status", report.Status),
	)
	return nil
}

// HandleRunAll fans out to one task per active period.
func (h *Handler) HandleRunAll(ctx context.Context, _ *asynq.Task) error {
	n, err := h.dispatcher.EnqueueAllActive(ctx)
	if err != nil {
		return err
	}
	zap.L().Info("[Handler] active periods enqueued", zap.Int("queued", n))
	return nil
}
