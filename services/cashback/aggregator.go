package cashback

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cashback-ranking/pkg/execution"
	"cashback-ranking/services/awardperiod"
	"cashback-ranking/services/ranking"
	"cashback-ranking/services/transaction"
)

// Kinds is the order in which the updater drains operation types.
var Kinds = []string{
	transaction.OperationPayment,
	transaction.OperationTotalTransfer,
	transaction.OperationPartialTransfer,
}

// Batch is one page of transactions of a single operation type.
type Batch struct {
	Period       *awardperiod.AwardPeriod
	Transactions []*transaction.WinningTransaction
	// Balances holds the running balance of every correlation group in the
	// page. Only partial transfers use it.
	Balances map[transaction.CorrelationRef]decimal.Decimal
	User     string
	At       time.Time
}

// Outcome is the aggregation of one batch.
type Outcome struct {
	// Rankings holds one merged delta per citizen, ordered by fiscal code.
	Rankings []*ranking.CitizenRanking
	// Transactions are the batch rows with their processing outcome set.
	Transactions []*transaction.WinningTransaction
	// Balances are the running balances to persist after the batch.
	Balances map[transaction.CorrelationRef]decimal.Decimal
}

// Aggregator turns a page of transactions into per-citizen cashback deltas.
// Implementations only fail when the context is cancelled.
type Aggregator interface {
	Kind() string
	Aggregate(ctx context.Context, b Batch) (*Outcome, error)
}

func NewAggregator(kind string, strategy execution.Strategy) (Aggregator, error) {
	switch kind {
	case transaction.OperationPayment:
		return &flatAggregator{kind: kind, count: 1, strategy: strategy}, nil
	case transaction.OperationTotalTransfer:
		return &flatAggregator{kind: kind, count: -1, strategy: strategy}, nil
	case transaction.OperationPartialTransfer:
		return &partialAggregator{strategy: strategy}, nil
	default:
		return nil, fmt.Errorf("no aggregator for operation type %q", kind)
	}
}

func newDelta(b Batch, t *transaction.WinningTransaction, cashback decimal.Decimal, count int64) *ranking.CitizenRanking {
	ts := t.TrxTimestamp
	at := b.At
	return &ranking.CitizenRanking{
		FiscalCode:       t.FiscalCode,
		AwardPeriodID:    b.Period.ID,
		Cashback:         cashback,
		TransactionN:     count,
		LastTrxTimestamp: &ts,
		InsertUser:       b.User,
		UpdateDate:       &at,
		UpdateUser:       b.User,
	}
}

func mergeByCitizen(ctx context.Context, s execution.Strategy, deltas []*ranking.CitizenRanking) ([]*ranking.CitizenRanking, error) {
	merged, err := execution.GroupMerge(ctx, s, deltas,
		func(r *ranking.CitizenRanking) string { return r.FiscalCode },
		ranking.Merge,
	)
	if err != nil {
		return nil, err
	}

	out := make([]*ranking.CitizenRanking, 0, merged.Len())
	merged.Range(func(_ string, r *ranking.CitizenRanking) bool {
		out = append(out, r)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].FiscalCode < out[j].FiscalCode })
	return out, nil
}
