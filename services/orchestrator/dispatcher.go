package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"cashback-ranking/pkg/errutil"
	"cashback-ranking/pkg/task"
	"cashback-ranking/pkg/taskname"
	"cashback-ranking/services/awardperiod"
)

const maxTaskRetry = 3

// NewRunTask builds the per-period asynq task.
func NewRunTask(p RunPayload) (*asynq.Task, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.RankingPeriodRun, body), nil
}

// runTaskID dedupes a period while its task is queued or running.
func runTaskID(awardPeriodID uint64) string {
	return fmt.Sprintf("%s:%d", taskname.RankingPeriodRun, awardPeriodID)
}

// Dispatcher puts period runs on the task queue.
type Dispatcher struct {
	enqueuer task.Enqueuer
	periods  awardperiod.Client
	timeout  time.Duration
}

func NewDispatcher(enqueuer task.Enqueuer, periods awardperiod.Client, timeout time.Duration) *Dispatcher {
	return &Dispatcher{enqueuer: enqueuer, periods: periods, timeout: timeout}
}

// EnqueuePeriod reports false when a run for the period is already queued.
func (d *Dispatcher) EnqueuePeriod(ctx context.Context, p RunPayload) (bool, error) {
	t, err := NewRunTask(p)
	if err != nil {
		return false, errutil.Internal("encode run payload", err)
	}

	opts := []asynq.Option{
		asynq.Queue(task.QueueDefault),
		asynq.TaskID(runTaskID(p.AwardPeriodID)),
		asynq.MaxRetry(maxTaskRetry),
	}
	if d.timeout > 0 {
		opts = append(opts, asynq.Timeout(d.timeout))
	}

	info, err := d.enqueuer.Enqueue(ctx, t, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		zap.L().Info("[Dispatcher] run already queued", zap.Uint64("award_period_id", p.AwardPeriodID))
		return false, nil
	}
	if err != nil {
		zap.L().Error("[Dispatcher] enqueue failed", zap.Uint64("award_period_id", p.AwardPeriodID), zap.Error(err))
		return false, errutil.Internal("enqueue period run", err)
	}

	zap.L().Info("[Dispatcher] run enqueued",
		zap.Uint64("award_period_id", p.AwardPeriodID),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return true, nil
}

// EnqueueAllActive enqueues one run per active period and returns how many
// were newly queued.
func (d *Dispatcher) EnqueueAllActive(ctx context.Context) (int, error) {
	periods, err := d.periods.ListActive(ctx)
	if err != nil {
		return 0, errutil.Internal("list active award periods", err)
	}

	queued := 0
	for _, p := range periods {
		ok, err := d.EnqueuePeriod(ctx, RunPayload{AwardPeriodID: p.ID})
		if err != nil {
			return queued, err
		}
		if ok {
			queued++
		}
	}
	return queued, nil
}
