package cashback

import (
	"context"

	"cashback-ranking/pkg/execution"
	"cashback-ranking/services/ranking"
)

// flatAggregator handles payments (+1) and total transfers (-1): every
// transaction contributes its rounded score and a fixed count.
type flatAggregator struct {
	kind     string
	count    int64
	strategy execution.Strategy
}

func (f *flatAggregator) Kind() string { return f.kind }

func (f *flatAggregator) Aggregate(ctx context.Context, b Batch) (*Outcome, error) {
	deltas, err := execution.Produce(ctx, f.strategy, len(b.Transactions), func(_ context.Context, i int) (*ranking.CitizenRanking, error) {
		t := b.Transactions[i]
		t.Processed = true
		t.Touch(b.User, b.At)
		return newDelta(b, t, RoundHalfDown(t.Score), f.count), nil
	})
	if err != nil {
		return nil, err
	}

	rankings, err := mergeByCitizen(ctx, f.strategy, deltas)
	if err != nil {
		return nil, err
	}
	return &Outcome{Rankings: rankings, Transactions: b.Transactions}, nil
}
