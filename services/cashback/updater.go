package cashback

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
	"cashback-ranking/services/ranking"
	"cashback-ranking/services/transaction"
	"cashback-ranking/services/workerlock"
)

type RunOptions struct {
	Limit    int
	Strategy execution.Strategy
	User     string
}

type Result struct {
	Pages        int
	Transactions int64
	Parked       int64
	Unparked     int64
	Citizens     int64
}

// Updater drains unprocessed winning transactions into citizen cashback totals.
type Updater struct {
	db           *gorm.DB
	transactions transaction.Store
	rankings     ranking.Store
	locks        workerlock.Coordinator
	now          func() time.Time
}

func NewUpdater(db *gorm.DB, transactions transaction.Store, rankings ranking.Store, locks workerlock.Coordinator) *Updater {
	return &Updater{
		db:           db,
		transactions: transactions,
		rankings:     rankings,
		locks:        locks,
		now:          time.Now,
	}
}

// Run processes payments, total transfers and partial transfers in turn under
// the cashback-update worker lock. Each page commits on its own, so a failed
// run keeps the pages before the failure.
func (u *Updater) Run(ctx context.Context, period *awardperiod.AwardPeriod, opts RunOptions) (*Result, error) {
	if opts.Limit <= 0 {
		return nil, errutil.BadRequest("cashback page limit must be positive", nil)
	}
	if opts.Strategy == nil {
		opts.Strategy = execution.New(false, 0)
	}

	result := &Result{}
	err := workerlock.Run(ctx, u.locks, workerlock.ProcessCashbackUpdate, func(ctx context.Context) error {
		unparked, err := u.transactions.UnparkAll(ctx, period.ID)
		if err != nil {
			return errutil.CashbackUpdate("unpark transfers", err)
		}
		result.Unparked = unparked

		for _, kind := range Kinds {
			agg, err := NewAggregator(kind, opts.Strategy)
			if err != nil {
				return errutil.CashbackUpdate("select aggregator", err)
			}
			if err := u.drain(ctx, period, agg, opts, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("[CashbackUpdate] completed",
		zap.Uint64("award_period_id", period.ID),
		zap.Int("pages", result.Pages),
		zap.Int64("transactions", result.Transactions),
		zap.Int64("parked", result.Parked),
	)
	return result, nil
}

func (u *Updater) drain(ctx context.Context, period *awardperiod.AwardPeriod, agg Aggregator, opts RunOptions, result *Result) error {
	log := zap.L().With(zap.Uint64("award_period_id", period.ID), zap.String("operation_type", agg.Kind()))

	for page := 1; ; page++ {
		var fetched int
		err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			n, err := u.processPage(ctx, tx, period, agg, opts, result)
			fetched = n
			return err
		})
		if err != nil {
			log.Error("[CashbackUpdate] page failed", zap.Int("page", page), zap.Error(err))
			return errutil.CashbackUpdate("cashback page failed", err, errutil.WithDetails(errutil.Detail{
				Field:   "operation_type",
				Message: agg.Kind(),
			}))
		}
		if fetched == 0 {
			return nil
		}

		result.Pages++
		result.Transactions += int64(fetched)
		metrics.PagesTotal.WithLabelValues(workerlock.ProcessCashbackUpdate).Inc()
		metrics.RowsTotal.WithLabelValues(workerlock.ProcessCashbackUpdate).Add(float64(fetched))
		log.Debug("[CashbackUpdate] page committed", zap.Int("page", page), zap.Int("rows", fetched))

		if fetched < opts.Limit {
			return nil
		}
	}
}

func (u *Updater) processPage(ctx context.Context, tx *gorm.DB, period *awardperiod.AwardPeriod, agg Aggregator, opts RunOptions, result *Result) (int, error) {
	transactions := u.transactions.WithTrx(tx)
	rankings := u.rankings.WithTrx(tx)

	page, err := transactions.FetchUnprocessed(ctx, transaction.FetchQuery{
		AwardPeriodID: period.ID,
		OperationType: agg.Kind(),
		Limit:         opts.Limit,
	})
	if err != nil || len(page) == 0 {
		return 0, err
	}

	batch := Batch{
		Period:       period,
		Transactions: page,
		User:         opts.User,
		At:           u.now().UTC(),
	}
	if agg.Kind() == transaction.OperationPartialTransfer {
		refs := make([]transaction.CorrelationRef, len(page))
		for i, t := range page {
			refs[i] = t.CorrelationRef()
		}
		if batch.Balances, err = transactions.FetchGroupBalances(ctx, period.ID, refs); err != nil {
			return 0, err
		}
	}

	res, err := agg.Aggregate(ctx, batch)
	if err != nil {
		return 0, err
	}

	if err := upsertCashback(ctx, rankings, res.Rankings); err != nil {
		return 0, err
	}

	affected, err := transactions.MarkProcessed(ctx, res.Transactions)
	if err != nil {
		return 0, err
	}
	if len(affected) != len(res.Transactions) {
		return 0, fmt.Errorf("marked %d of %d transactions", len(affected), len(res.Transactions))
	}
	for i, n := range affected {
		if n != 1 {
			return 0, fmt.Errorf("transaction %d updated %d rows", res.Transactions[i].ID, n)
		}
		if res.Transactions[i].Parked {
			result.Parked++
		}
	}

	if len(res.Balances) > 0 {
		if err := transactions.SaveGroupBalances(ctx, period.ID, res.Balances, opts.User, batch.At); err != nil {
			return 0, err
		}
	}

	result.Citizens += int64(len(res.Rankings))
	return len(page), nil
}

// upsertCashback adds every delta to its citizen row and inserts the rows the
// update did not find.
func upsertCashback(ctx context.Context, store ranking.Store, deltas []*ranking.CitizenRanking) error {
	var missing []*ranking.CitizenRanking
	for _, d := range deltas {
		n, err := store.UpdateCashback(ctx, d)
		if err != nil {
			return err
		}
		switch n {
		case 0:
			missing = append(missing, d)
		case 1:
		default:
			return fmt.Errorf("cashback of %s updated %d rows", d.FiscalCode, n)
		}
	}

	inserted, err := store.InsertCashback(ctx, missing)
	if err != nil {
		return err
	}
	if inserted != int64(len(missing)) {
		return fmt.Errorf("inserted %d of %d citizen rows", inserted, len(missing))
	}
	return nil
}
