package cashback

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cashback-ranking/pkg/execution"
	"cashback-ranking/services/awardperiod"
	"cashback-ranking/services/ranking"
	"cashback-ranking/services/transaction"
)

var base = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func period() *awardperiod.AwardPeriod {
	return &awardperiod.AwardPeriod{
		ID:                      1,
		Status:                  awardperiod.StatusActive,
		MinPosition:             100,
		MaxTransactionEvaluated: decimal.NewFromInt(150),
		CashbackPercentage:      decimal.NewFromInt(10),
	}
}

func winning(id, op, fiscalCode string, amount, score decimal.Decimal, at time.Time) *transaction.WinningTransaction {
	return &transaction.WinningTransaction{
		AcquirerCode:  "ACQ",
		AcquirerID:    "1",
		IDTrxAcquirer: id,
		TrxTimestamp:  at,
		OperationType: op,
		CorrelationID: "corr-" + fiscalCode,
		FiscalCode:    fiscalCode,
		AwardPeriodID: 1,
		Amount:        amount,
		Score:         score,
	}
}

func batchOf(txs ...*transaction.WinningTransaction) Batch {
	return Batch{Period: period(), Transactions: txs, User: "test", At: base}
}

func TestNewAggregatorByKind(t *testing.T) {
	s := execution.New(false, 0)
	for _, kind := range Kinds {
		agg, err := NewAggregator(kind, s)
		require.NoError(t, err)
		require.Equal(t, kind, agg.Kind())
	}

	_, err := NewAggregator("99", s)
	require.Error(t, err)
}

func TestFlatAggregatorMergesPerCitizen(t *testing.T) {
	txs := []*transaction.WinningTransaction{
		winning("1", transaction.OperationPayment, "AAA", decimal.NewFromInt(50), decimal.RequireFromString("5.005"), base),
		winning("2", transaction.OperationPayment, "BBB", decimal.NewFromInt(10), decimal.NewFromInt(1), base.Add(time.Minute)),
		winning("3", transaction.OperationPayment, "AAA", decimal.NewFromInt(60), decimal.NewFromInt(6), base.Add(time.Hour)),
	}

	agg, err := NewAggregator(transaction.OperationPayment, execution.New(false, 0))
	require.NoError(t, err)
	res, err := agg.Aggregate(context.Background(), batchOf(txs...))
	require.NoError(t, err)

	require.Len(t, res.Rankings, 2)
	a := res.Rankings[0]
	require.Equal(t, "AAA", a.FiscalCode)
	require.Equal(t, "11.00", a.Cashback.StringFixed(2))
	require.Equal(t, int64(2), a.TransactionN)
	require.True(t, a.LastTrxTimestamp.Equal(base.Add(time.Hour)))
	require.Equal(t, "test", a.UpdateUser)

	for _, tx := range res.Transactions {
		require.True(t, tx.Processed)
		require.Equal(t, "test", tx.UpdateUser)
	}
}

func TestTotalTransferCountsDown(t *testing.T) {
	agg, err := NewAggregator(transaction.OperationTotalTransfer, execution.New(false, 0))
	require.NoError(t, err)

	res, err := agg.Aggregate(context.Background(), batchOf(
		winning("1", transaction.OperationTotalTransfer, "AAA", decimal.NewFromInt(50), decimal.NewFromInt(-5), base),
	))
	require.NoError(t, err)
	require.Equal(t, int64(-1), res.Rankings[0].TransactionN)
	require.Equal(t, "-5.00", res.Rankings[0].Cashback.StringFixed(2))
}

func flatRun(t *testing.T, s execution.Strategy, cents []int64) map[string]string {
	t.Helper()
	txs := make([]*transaction.WinningTransaction, len(cents))
	for i, c := range cents {
		code := fmt.Sprintf("CF%02d", i%9)
		txs[i] = winning(fmt.Sprint(i), transaction.OperationPayment, code,
			decimal.New(c*10, -2), decimal.New(c, -3), base.Add(time.Duration(i)*time.Second))
	}

	agg, err := NewAggregator(transaction.OperationPayment, s)
	require.NoError(t, err)
	res, err := agg.Aggregate(context.Background(), batchOf(txs...))
	require.NoError(t, err)

	out := make(map[string]string, len(res.Rankings))
	for _, r := range res.Rankings {
		out[r.FiscalCode] = fmt.Sprintf("%s|%d|%s", r.Cashback.StringFixed(2), r.TransactionN, r.LastTrxTimestamp.Format(time.RFC3339))
	}
	return out
}

func TestFlatAggregationIsStrategyIndependent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("serial and parallel aggregates agree", prop.ForAll(
		func(cents []int64) bool {
			serial := flatRun(t, execution.New(false, 0), cents)
			parallel := flatRun(t, execution.New(true, 6), cents)
			if len(serial) != len(parallel) {
				return false
			}
			for k, v := range serial {
				if parallel[k] != v {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(-50_000, 50_000)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestPartialTransferPolicy(t *testing.T) {
	steps := []struct {
		amount  int64
		parked  bool
		score   string
		balance int64
	}{
		{amount: 30, score: "0.00", balance: 170},   // still above the evaluated cap
		{amount: 40, score: "-2.00", balance: 130},  // crosses the cap, only 20 counts
		{amount: 100, score: "-10.00", balance: 30}, // fully below the cap
		{amount: 50, parked: true, balance: 30},     // would go negative
		{amount: 30, score: "-3.00", balance: 0},    // closes the payment
	}

	txs := make([]*transaction.WinningTransaction, len(steps))
	for i, s := range steps {
		txs[i] = winning(fmt.Sprint(i), transaction.OperationPartialTransfer, "AAA",
			decimal.NewFromInt(s.amount), decimal.Zero, base.Add(time.Duration(i)*time.Hour))
	}
	b := batchOf(txs...)
	ref := txs[0].CorrelationRef()
	b.Balances = map[transaction.CorrelationRef]decimal.Decimal{ref: decimal.NewFromInt(200)}

	for _, s := range []execution.Strategy{execution.New(false, 0), execution.New(true, 4)} {
		for _, tx := range txs {
			tx.Parked, tx.Processed = false, false
		}
		agg, err := NewAggregator(transaction.OperationPartialTransfer, s)
		require.NoError(t, err)
		res, err := agg.Aggregate(context.Background(), b)
		require.NoError(t, err)

		for i, step := range steps {
			tx := res.Transactions[i]
			require.Equal(t, step.parked, tx.Parked, "step %d", i)
			require.Equal(t, !step.parked, tx.Processed, "step %d", i)
			if step.parked {
				require.True(t, tx.Score.IsZero())
				continue
			}
			require.Equal(t, step.score, tx.Score.StringFixed(2), "step %d", i)
			require.Equal(t, decimal.NewFromInt(step.balance).String(), tx.AmountBalance.Decimal.String(), "step %d", i)
		}

		require.Len(t, res.Rankings, 1)
		require.Equal(t, "-15.00", res.Rankings[0].Cashback.StringFixed(2))
		require.Equal(t, int64(-1), res.Rankings[0].TransactionN)
		require.True(t, res.Balances[ref].IsZero())
	}
}

func TestPartialTransferWithoutPaymentIsParked(t *testing.T) {
	agg, err := NewAggregator(transaction.OperationPartialTransfer, execution.New(false, 0))
	require.NoError(t, err)

	tx := winning("1", transaction.OperationPartialTransfer, "AAA", decimal.NewFromInt(10), decimal.Zero, base)
	res, err := agg.Aggregate(context.Background(), batchOf(tx))
	require.NoError(t, err)
	require.Empty(t, res.Rankings)
	require.Empty(t, res.Balances)
	require.True(t, tx.Parked)
	require.False(t, tx.Processed)
}

func TestPartialTransferWithoutCapRefundsEveryAmount(t *testing.T) {
	agg, err := NewAggregator(transaction.OperationPartialTransfer, execution.New(false, 0))
	require.NoError(t, err)

	tx := winning("1", transaction.OperationPartialTransfer, "AAA", decimal.NewFromInt(40), decimal.Zero, base)
	b := batchOf(tx)
	b.Period.MaxTransactionEvaluated = decimal.Zero
	b.Balances = map[transaction.CorrelationRef]decimal.Decimal{tx.CorrelationRef(): decimal.NewFromInt(500)}

	res, err := agg.Aggregate(context.Background(), b)
	require.NoError(t, err)
	require.Equal(t, "-4.00", res.Rankings[0].Cashback.StringFixed(2))
	require.Equal(t, int64(0), res.Rankings[0].TransactionN)
}

func TestPartialTransferNeverOverdraws(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("non-parked refunds fit in the payment", prop.ForAll(
		func(start int64, amounts []int64) bool {
			txs := make([]*transaction.WinningTransaction, len(amounts))
			for i, a := range amounts {
				txs[i] = winning(fmt.Sprint(i), transaction.OperationPartialTransfer, "AAA",
					decimal.NewFromInt(a), decimal.Zero, base.Add(time.Duration(i)*time.Minute))
			}
			b := batchOf(txs...)
			if len(txs) > 0 {
				b.Balances = map[transaction.CorrelationRef]decimal.Decimal{txs[0].CorrelationRef(): decimal.NewFromInt(start)}
			}

			agg, _ := NewAggregator(transaction.OperationPartialTransfer, execution.New(true, 3))
			res, err := agg.Aggregate(context.Background(), b)
			if err != nil {
				return false
			}

			spent := decimal.Zero
			for _, tx := range res.Transactions {
				if tx.Parked {
					continue
				}
				if tx.AmountBalance.Decimal.IsNegative() {
					return false
				}
				spent = spent.Add(tx.Amount)
			}
			return spent.LessThanOrEqual(decimal.NewFromInt(start))
		},
		gen.Int64Range(0, 1000),
		gen.SliceOf(gen.Int64Range(1, 400)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestMergedDeltaCarriesAuditFields(t *testing.T) {
	d := newDelta(batchOf(), winning("1", transaction.OperationPayment, "AAA", decimal.NewFromInt(1), decimal.NewFromInt(1), base), decimal.NewFromInt(1), 1)
	merged := ranking.Merge(d, d)
	require.Equal(t, "test", merged.UpdateUser)
	require.Equal(t, "test", merged.InsertUser)
}
