package ranking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"cashback-ranking/pkg/errutil"
	"cashback-ranking/pkg/execution"
	"cashback-ranking/pkg/metrics"
	"cashback-ranking/services/awardperiod"
	"cashback-ranking/services/workerlock"
)

type RunOptions struct {
	Limit    int
	Strategy execution.Strategy
	User     string
}

type Result struct {
	Pages   int
	Ranked  int64
	Summary *CitizenRankingExt
}

// Updater assigns the dense ranking of an award period.
type Updater struct {
	db    *gorm.DB
	store Store
	locks workerlock.Coordinator
	now   func() time.Time
}

func NewUpdater(db *gorm.DB, store Store, locks workerlock.Coordinator) *Updater {
	return &Updater{db: db, store: store, locks: locks, now: time.Now}
}

// Run ranks every citizen of the period under the ranking-update worker lock.
// It returns workerlock.ErrSkipped when an exclusive process is running.
func (u *Updater) Run(ctx context.Context, period *awardperiod.AwardPeriod, opts RunOptions) (*Result, error) {
	if opts.Limit <= 0 {
		return nil, errutil.BadRequest("ranking page limit must be positive", nil)
	}
	if opts.Strategy == nil {
		opts.Strategy = execution.New(false, 0)
	}

	var result *Result
	err := workerlock.Run(ctx, u.locks, workerlock.ProcessRankingUpdate, func(ctx context.Context) error {
		var err error
		result, err = u.rank(ctx, period, opts)
		return err
	})
	return result, err
}

func (u *Updater) rank(ctx context.Context, period *awardperiod.AwardPeriod, opts RunOptions) (*Result, error) {
	log := zap.L().With(zap.Uint64("award_period_id", period.ID))
	state := NewState(period.MinPosition)

	for {
		page, err := u.store.FetchPage(ctx, period.ID, state.Cursor(), opts.Limit)
		if err != nil {
			log.Error("[RankingUpdate] fetch page failed", zap.Int("page", state.Pages()+1), zap.Error(err))
			return nil, errutil.RankingUpdate("fetch ranking page", err)
		}
		if len(page) == 0 {
			break
		}

		fresh, err := state.Apply(ctx, opts.Strategy, page)
		if err != nil {
			return nil, errutil.RankingUpdate("assign ranks", err)
		}

		at := u.now().UTC()
		for _, r := range fresh {
			r.UpdateDate = &at
			r.UpdateUser = opts.User
		}

		if err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			affected, err := u.store.WithTrx(tx).UpdateRanks(ctx, fresh)
			if err != nil {
				return err
			}
			for i, n := range affected {
				if n != 1 {
					return fmt.Errorf("rank of %s updated %d rows", fresh[i].FiscalCode, n)
				}
			}
			return nil
		}); err != nil {
			log.Error("[RankingUpdate] persist ranks failed", zap.Int("page", state.Pages()), zap.Error(err))
			return nil, errutil.RankingUpdate("persist ranks", err)
		}

		if !state.Consistent() {
			err := fmt.Errorf("assigned %d ranks for %d extracted rows", state.Assigned(), state.Extracted())
			log.Error("[RankingUpdate] rank count mismatch", zap.Error(err))
			return nil, errutil.RankingUpdate("rank count mismatch", err)
		}

		metrics.PagesTotal.WithLabelValues(workerlock.ProcessRankingUpdate).Inc()
		metrics.RowsTotal.WithLabelValues(workerlock.ProcessRankingUpdate).Add(float64(len(page)))
		log.Debug("[RankingUpdate] page ranked", zap.Int("page", state.Pages()), zap.Int("rows", len(page)))

		if len(page) < opts.Limit {
			break
		}
	}

	result := &Result{Pages: state.Pages(), Ranked: state.Assigned()}

	summary := state.Summary(period.ID, opts.User, u.now().UTC())
	if summary == nil {
		log.Info("[RankingUpdate] nothing to rank")
		return result, nil
	}
	if err := u.store.UpsertSummary(ctx, summary); err != nil {
		log.Error("[RankingUpdate] upsert summary failed", zap.Error(err))
		return nil, errutil.RankingUpdate("upsert ranking summary", err)
	}
	result.Summary = summary

	log.Info("[RankingUpdate] completed",
		zap.Int("pages", result.Pages),
		zap.Int64("ranked", result.Ranked),
		zap.Int64("max_transaction_n", summary.MaxTransactionN),
		zap.Int64("min_transaction_n", summary.MinTransactionN),
	)
	return result, nil
}
