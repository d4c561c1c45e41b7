package cashback

import (
	"context"

	"github.com/shopspring/decimal"

	"cashback-ranking/pkg/execution"
	"cashback-ranking/services/ranking"
	"cashback-ranking/services/transaction"
)

// partialAggregator walks partial transfers of the same payment in timestamp
// order, drawing each refund from the payment's running balance. Groups are
// independent of each other; a group is always walked sequentially.
type partialAggregator struct {
	strategy execution.Strategy
}

func (p *partialAggregator) Kind() string { return transaction.OperationPartialTransfer }

type group struct {
	ref     transaction.CorrelationRef
	members []*transaction.WinningTransaction
}

type groupOutcome struct {
	deltas  []*ranking.CitizenRanking
	balance decimal.Decimal
	known   bool
}

func (p *partialAggregator) Aggregate(ctx context.Context, b Batch) (*Outcome, error) {
	groups := groupByCorrelation(b.Transactions)

	outcomes, err := execution.Produce(ctx, p.strategy, len(groups), func(_ context.Context, i int) (groupOutcome, error) {
		return walkGroup(b, groups[i]), nil
	})
	if err != nil {
		return nil, err
	}

	var deltas []*ranking.CitizenRanking
	balances := make(map[transaction.CorrelationRef]decimal.Decimal, len(groups))
	for i, o := range outcomes {
		deltas = append(deltas, o.deltas...)
		if o.known {
			balances[groups[i].ref] = o.balance
		}
	}

	rankings, err := mergeByCitizen(ctx, p.strategy, deltas)
	if err != nil {
		return nil, err
	}
	return &Outcome{Rankings: rankings, Transactions: b.Transactions, Balances: balances}, nil
}

// groupByCorrelation keeps first-seen group order and row order inside a group.
func groupByCorrelation(txs []*transaction.WinningTransaction) []*group {
	index := make(map[transaction.CorrelationRef]*group)
	var out []*group
	for _, t := range txs {
		ref := t.CorrelationRef()
		g, ok := index[ref]
		if !ok {
			g = &group{ref: ref}
			index[ref] = g
			out = append(out, g)
		}
		g.members = append(g.members, t)
	}
	return out
}

func walkGroup(b Batch, g *group) groupOutcome {
	balance, known := b.Balances[g.ref]
	out := groupOutcome{balance: balance, known: known}

	for _, t := range g.members {
		t.Touch(b.User, b.At)

		// a refund with no payment to draw from waits for the payment to arrive
		if !known {
			park(t)
			continue
		}

		next := balance.Sub(t.Amount)
		if next.IsNegative() {
			park(t)
			continue
		}

		t.Processed = true
		t.OriginalAmountBalance = decimal.NewNullDecimal(balance)
		t.AmountBalance = decimal.NewNullDecimal(next)
		t.Score = decimal.Zero

		if d := partialDelta(b, t, balance, next); d != nil {
			t.Score = d.Cashback
			out.deltas = append(out.deltas, d)
		}
		balance = next
	}

	out.balance = balance
	return out
}

func park(t *transaction.WinningTransaction) {
	t.Parked = true
	t.Processed = false
	t.Score = decimal.Zero
}

// partialDelta applies the refund policy for a transfer moving the running
// balance from prev to next. It returns nil when the transfer does not touch
// the cashback already earned.
func partialDelta(b Batch, t *transaction.WinningTransaction, prev, next decimal.Decimal) *ranking.CitizenRanking {
	period := b.Period
	limit := period.MaxTransactionEvaluated

	switch {
	case next.IsZero():
		return newDelta(b, t, refundScore(t.Amount, period.CashbackPercentage), -1)

	case !period.HasTransactionCap() || next.LessThan(limit):
		refunded := t.Amount
		if period.HasTransactionCap() && prev.GreaterThan(limit) {
			refunded = limit.Sub(next)
		}
		return newDelta(b, t, refundScore(refunded, period.CashbackPercentage), 0)

	default:
		return nil
	}
}
