package cachesync

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"cashback-ranking/pkg/errutil"
	"cashback-ranking/pkg/metrics"
	"cashback-ranking/pkg/rediskey"
	"cashback-ranking/services/ranking"
	"cashback-ranking/services/workerlock"
)

// Entry is the cached view of one citizen, keyed by fiscal code.
type Entry struct {
	Ranking          int64      `json:"ranking"`
	TransactionN     int64      `json:"transaction_n"`
	Cashback         string     `json:"cashback"`
	LastTrxTimestamp *time.Time `json:"last_trx_timestamp,omitempty"`
	MilestoneAt      *time.Time `json:"milestone_at,omitempty"`
}

type Options struct {
	Limit int
	TTL   time.Duration
	// Ceiling bounds the published cashback of every citizen when positive.
	Ceiling decimal.Decimal
}

type Result struct {
	Pages   int
	Entries int64
}

// Syncer copies the ranking of a period into the cache. Readers keep seeing
// the previous copy until the new one is complete.
type Syncer struct {
	rankings ranking.Store
	sink     Sink
	locks    workerlock.Coordinator
}

func NewSyncer(rankings ranking.Store, sink Sink, locks workerlock.Coordinator) *Syncer {
	return &Syncer{rankings: rankings, sink: sink, locks: locks}
}

func (s *Syncer) Run(ctx context.Context, awardPeriodID uint64, opts Options) (*Result, error) {
	if opts.Limit <= 0 {
		return nil, errutil.BadRequest("cache sync page limit must be positive", nil)
	}

	var res *Result
	err := workerlock.Run(ctx, s.locks, workerlock.ProcessRedisSync, func(ctx context.Context) error {
		var err error
		res, err = s.sync(ctx, awardPeriodID, opts)
		if err != nil {
			zap.L().Error("[RedisSync] sync failed", zap.Uint64("award_period_id", awardPeriodID), zap.Error(err))
			return errutil.Internal("ranking cache sync", err)
		}
		return nil
	})
	return res, err
}

func (s *Syncer) sync(ctx context.Context, awardPeriodID uint64, opts Options) (*Result, error) {
	live := rediskey.BuildRankingKey(awardPeriodID)
	staging := rediskey.NamespaceKey(live, "staging")
	summaryKey := rediskey.BuildRankingSummaryKey(awardPeriodID)

	if err := s.sink.Drop(ctx, staging); err != nil {
		return nil, err
	}

	res := &Result{}
	var afterRank int64
	for {
		rows, err := s.rankings.FetchRanked(ctx, awardPeriodID, afterRank, opts.Limit)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}

		fields := make(map[string]string, len(rows))
		for _, r := range rows {
			b, err := json.Marshal(Entry{
				Ranking:          *r.Ranking,
				TransactionN:     r.TransactionN,
				Cashback:         r.AwardedCashback(opts.Ceiling).StringFixed(2),
				LastTrxTimestamp: r.LastTrxTimestamp,
				MilestoneAt:      r.MilestoneAt,
			})
			if err != nil {
				return nil, err
			}
			fields[r.FiscalCode] = string(b)
		}
		if err := s.sink.Put(ctx, staging, fields, opts.TTL); err != nil {
			return nil, err
		}

		res.Pages++
		res.Entries += int64(len(rows))
		afterRank = *rows[len(rows)-1].Ranking
		metrics.PagesTotal.WithLabelValues(workerlock.ProcessRedisSync).Inc()
		metrics.RowsTotal.WithLabelValues(workerlock.ProcessRedisSync).Add(float64(len(rows)))

		if len(rows) < opts.Limit {
			break
		}
	}

	if res.Entries == 0 {
		return res, s.sink.Drop(ctx, live, summaryKey)
	}
	if err := s.sink.Publish(ctx, staging, live); err != nil {
		return nil, err
	}

	summary, err := s.rankings.GetSummary(ctx, awardPeriodID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return res, nil
	case err != nil:
		return nil, err
	}

	fields := map[string]string{
		"min_transaction_n":  strconv.FormatInt(summary.MinTransactionN, 10),
		"max_transaction_n":  strconv.FormatInt(summary.MaxTransactionN, 10),
		"total_participants": strconv.FormatInt(summary.TotalParticipants, 10),
	}
	if summary.UpdateDate != nil {
		fields["updated_at"] = summary.UpdateDate.UTC().Format(time.RFC3339)
	}
	if err := s.sink.Put(ctx, summaryKey, fields, opts.TTL); err != nil {
		return nil, err
	}

	zap.L().Info("[RedisSync] published",
		zap.Uint64("award_period_id", awardPeriodID),
		zap.Int64("entries", res.Entries),
		zap.Int("pages", res.Pages),
	)
	return res, nil
}
