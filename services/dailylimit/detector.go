package dailylimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"cashback-ranking/pkg/errutil"
	"cashback-ranking/pkg/metrics"
	"cashback-ranking/services/awardperiod"
	"cashback-ranking/services/ranking"
	"cashback-ranking/services/transaction"
	"cashback-ranking/services/workerlock"
)

type Options struct {
	Workers int
	User    string
}

type Result struct {
	Citizens  int
	Discarded int64
	Requeued  int64
}

// Detector discards payments beyond the period's daily allowance and sends
// the citizen back through cashback aggregation from scratch.
type Detector struct {
	db           *gorm.DB
	transactions transaction.Store
	rankings     ranking.Store
	locks        workerlock.Coordinator
	now          func() time.Time
}

func NewDetector(db *gorm.DB, transactions transaction.Store, rankings ranking.Store, locks workerlock.Coordinator) *Detector {
	return &Detector{
		db:           db,
		transactions: transactions,
		rankings:     rankings,
		locks:        locks,
		now:          time.Now,
	}
}

func (d *Detector) Run(ctx context.Context, period *awardperiod.AwardPeriod, opts Options) (*Result, error) {
	log := zap.L().With(zap.Uint64("award_period_id", period.ID))
	if period.MaxDailyPayments <= 0 {
		log.Debug("[DailyLimit] no daily allowance configured")
		return &Result{}, nil
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	var discarded, requeued atomic.Int64
	res := &Result{}

	err := workerlock.Run(ctx, d.locks, workerlock.ProcessDailyPaymentLimits, func(ctx context.Context) error {
		codes, err := d.transactions.FindDailyLimitViolators(ctx, period.ID, period.MaxDailyPayments)
		if err != nil {
			log.Error("[DailyLimit] find violators failed", zap.Error(err))
			return errutil.Integrity("find daily limit violators", err)
		}
		res.Citizens = len(codes)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, code := range codes {
			g.Go(func() error {
				n, r, err := d.correct(gctx, period, code, opts.User)
				if err != nil {
					log.Error("[DailyLimit] correction failed", zap.String("fiscal_code", code), zap.Error(err))
					return errutil.Integrity("daily limit correction", err, errutil.WithDetails(errutil.Detail{
						Field:   "fiscal_code",
						Message: code,
					}))
				}
				discarded.Add(n)
				requeued.Add(r)
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}

	res.Discarded = discarded.Load()
	res.Requeued = requeued.Load()
	metrics.RowsTotal.WithLabelValues(workerlock.ProcessDailyPaymentLimits).Add(float64(res.Discarded))
	log.Info("[DailyLimit] completed",
		zap.Int("citizens", res.Citizens),
		zap.Int64("discarded", res.Discarded),
		zap.Int64("requeued", res.Requeued),
	)
	return res, nil
}

// correct runs in one transaction per citizen.
func (d *Detector) correct(ctx context.Context, period *awardperiod.AwardPeriod, fiscalCode, user string) (int64, int64, error) {
	at := d.now().UTC()
	var discarded, requeued int64

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		transactions := d.transactions.WithTrx(tx)

		payments, err := transactions.FetchCitizenPayments(ctx, period.ID, fiscalCode)
		if err != nil {
			return err
		}
		ids := excessPayments(payments, period.MaxDailyPayments)

		discarded, err = transactions.Discard(ctx, ids, user, at)
		if err != nil {
			return err
		}
		if discarded != int64(len(ids)) {
			return fmt.Errorf("discarded %d of %d payments", discarded, len(ids))
		}

		if _, err := d.rankings.WithTrx(tx).ResetCashback(ctx, period.ID, fiscalCode, user, at); err != nil {
			return err
		}

		requeued, err = transactions.ResetForReprocess(ctx, period.ID, fiscalCode, user, at)
		return err
	})
	return discarded, requeued, err
}

// excessPayments returns the ids of the payments past the first maxDaily of
// each calendar day (UTC). payments must be ordered by timestamp.
func excessPayments(payments []*transaction.WinningTransaction, maxDaily int64) []uint64 {
	perDay := make(map[string]int64)
	var out []uint64
	for _, p := range payments {
		day := p.TrxTimestamp.UTC().Format(time.DateOnly)
		perDay[day]++
		if perDay[day] > maxDaily {
			out = append(out, p.ID)
		}
	}
	return out
}
