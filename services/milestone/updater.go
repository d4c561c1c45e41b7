package milestone

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cashback-ranking/pkg/db"
	"cashback-ranking/pkg/errutil"
	"cashback-ranking/pkg/metrics"
	"cashback-ranking/services/awardperiod"
	"cashback-ranking/services/workerlock"
)

// Store claims and fixes a slice of citizen rows whose milestone marker is out
// of date. ranking.Store satisfies it.
type Store interface {
	ApplyMilestones(ctx context.Context, awardPeriodID uint64, threshold int64, limit int, user string, at time.Time) (int, error)
}

type Options struct {
	Workers  int
	Limit    int
	MaxRows  int
	MaxRetry int
	StopAt   *time.Time
	User     string
}

type Result struct {
	Rows    int64
	Claims  int64
	Retries int64
	// Interrupted is set when the stop time ended the run before the backlog did.
	Interrupted bool
}

// progress is shared by the workers of one run.
type progress struct {
	rows        atomic.Int64
	claims      atomic.Int64
	retries     atomic.Int64
	interrupted atomic.Bool

	maxRows int64
	stopAt  *time.Time
}

func (p *progress) capReached() bool {
	return p.maxRows > 0 && p.rows.Load() >= p.maxRows
}

func (p *progress) expired(now time.Time) bool {
	if p.stopAt == nil || now.Before(*p.stopAt) {
		return false
	}
	p.interrupted.Store(true)
	return true
}

type Updater struct {
	store Store
	locks workerlock.Coordinator
	now   func() time.Time
}

func NewUpdater(store Store, locks workerlock.Coordinator) *Updater {
	return &Updater{store: store, locks: locks, now: time.Now}
}

// Run sets or clears the milestone marker of every citizen whose transaction
// count crossed the period's threshold. A threshold of zero disables it.
func (u *Updater) Run(ctx context.Context, period *awardperiod.AwardPeriod, opts Options) (*Result, error) {
	log := zap.L().With(zap.Uint64("award_period_id", period.ID))
	if period.MinTransactionNumber <= 0 {
		log.Debug("[Milestone] no threshold configured")
		return &Result{}, nil
	}
	if opts.Workers <= 0 || opts.Limit <= 0 {
		return nil, errutil.BadRequest("milestone workers and limit must be positive", nil)
	}

	p := &progress{maxRows: int64(opts.MaxRows), stopAt: opts.StopAt}
	err := workerlock.Run(ctx, u.locks, workerlock.ProcessMilestoneUpdate, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < opts.Workers; w++ {
			g.Go(func() error {
				return u.work(gctx, w, period, opts, p)
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Rows:        p.rows.Load(),
		Claims:      p.claims.Load(),
		Retries:     p.retries.Load(),
		Interrupted: p.interrupted.Load(),
	}
	log.Info("[Milestone] completed",
		zap.Int64("rows", res.Rows),
		zap.Int64("claims", res.Claims),
		zap.Int64("retries", res.Retries),
		zap.Bool("interrupted", res.Interrupted),
	)
	return res, nil
}

func (u *Updater) work(ctx context.Context, worker int, period *awardperiod.AwardPeriod, opts Options, p *progress) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.capReached() || p.expired(u.now()) {
			return nil
		}

		n, err := u.claim(ctx, worker, period, opts, p)
		if err != nil {
			return err
		}
		if n < opts.Limit {
			return nil
		}
	}
}

func (u *Updater) claim(ctx context.Context, worker int, period *awardperiod.AwardPeriod, opts Options, p *progress) (int, error) {
	for attempt := 0; ; attempt++ {
		n, err := u.store.ApplyMilestones(ctx, period.ID, period.MinTransactionNumber, opts.Limit, opts.User, u.now().UTC())
		if err == nil {
			p.rows.Add(int64(n))
			p.claims.Add(1)
			metrics.PagesTotal.WithLabelValues(workerlock.ProcessMilestoneUpdate).Inc()
			metrics.RowsTotal.WithLabelValues(workerlock.ProcessMilestoneUpdate).Add(float64(n))
			return n, nil
		}

		if !db.IsDeadlock(err) {
			zap.L().Error("[Milestone] claim failed", zap.Int("worker", worker), zap.Error(err))
			return 0, errutil.MilestoneUpdate("apply milestones", err)
		}
		if attempt >= opts.MaxRetry {
			zap.L().Error("[Milestone] deadlock retries exhausted", zap.Int("worker", worker), zap.Int("attempts", attempt+1), zap.Error(err))
			return 0, errutil.MilestoneUpdate("deadlock retries exhausted", err)
		}

		p.retries.Add(1)
		metrics.RetriesTotal.WithLabelValues(workerlock.ProcessMilestoneUpdate).Inc()
		zap.L().Warn("[Milestone] deadlock, retrying", zap.Int("worker", worker), zap.Int("attempt", attempt+1))
	}
}
