package ranking

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"cashback-ranking/pkg/execution"
)

func citizen(code string, n int64) *CitizenRanking {
	return &CitizenRanking{FiscalCode: code, AwardPeriodID: 1, TransactionN: n}
}

func sortedForRanking(rows []*CitizenRanking) []*CitizenRanking {
	out := append([]*CitizenRanking(nil), rows...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].TransactionN != out[j].TransactionN {
			return out[i].TransactionN > out[j].TransactionN
		}
		return out[i].FiscalCode < out[j].FiscalCode
	})
	return out
}

// pageAfter emulates the keyset query of the store over an in-memory table.
func pageAfter(sorted []*CitizenRanking, after *Cursor, limit int) []*CitizenRanking {
	var out []*CitizenRanking
	for _, r := range sorted {
		if after != nil && !(r.TransactionN < after.TransactionN ||
			(r.TransactionN == after.TransactionN && r.FiscalCode > after.FiscalCode)) {
			continue
		}
		cp := *r
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out
}

// rankInPages runs the fold the way the updater does and returns the rank
// written for every citizen.
func rankInPages(t *testing.T, s execution.Strategy, rows []*CitizenRanking, limit int, minPosition int64) (map[string]int64, *State) {
	t.Helper()
	sorted := sortedForRanking(rows)
	state := NewState(minPosition)
	written := make(map[string]int64, len(rows))

	for {
		page := pageAfter(sorted, state.Cursor(), limit)
		if len(page) == 0 {
			break
		}
		fresh, err := state.Apply(context.Background(), s, page)
		require.NoError(t, err)
		for _, r := range fresh {
			_, dup := written[r.FiscalCode]
			require.False(t, dup, "rank written twice for %s", r.FiscalCode)
			written[r.FiscalCode] = *r.Ranking
		}
		require.True(t, state.Consistent())
		if len(page) < limit {
			break
		}
	}
	return written, state
}

func TestTieClassAcrossPageBoundary(t *testing.T) {
	rows := []*CitizenRanking{
		citizen("A", 9),
		citizen("D", 7),
		citizen("B", 7),
		citizen("E", 7),
		citizen("C", 7),
		citizen("F", 5),
	}

	for _, s := range []execution.Strategy{execution.New(false, 0), execution.New(true, 4)} {
		ranks, state := rankInPages(t, s, rows, 3, 3)
		require.Equal(t, map[string]int64{"A": 1, "B": 2, "C": 3, "D": 4, "E": 5, "F": 6}, ranks)
		require.Equal(t, 2, state.Pages())

		summary := state.Summary(1, "test", base)
		require.Equal(t, int64(9), summary.MaxTransactionN)
		require.Equal(t, int64(7), summary.MinTransactionN)
		require.Equal(t, int64(6), summary.TotalParticipants)
	}
}

func TestSummaryFallsBackToLastRankedRow(t *testing.T) {
	rows := []*CitizenRanking{citizen("A", 4), citizen("B", 2)}
	_, state := rankInPages(t, execution.New(false, 0), rows, 10, 5)

	summary := state.Summary(1, "test", base)
	require.Equal(t, int64(4), summary.MaxTransactionN)
	require.Equal(t, int64(2), summary.MinTransactionN)
	require.Equal(t, int64(2), summary.TotalParticipants)
}

func TestSummaryIsNilWhenNothingRanked(t *testing.T) {
	state := NewState(1)
	fresh, err := state.Apply(context.Background(), execution.New(false, 0), nil)
	require.NoError(t, err)
	require.Empty(t, fresh)
	require.Nil(t, state.Summary(1, "test", base))
}

func TestRanksAreContiguousForAnyPageSize(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ranks are 1..N in sort order", prop.ForAll(
		func(counts []int64, limit int, parallel bool) bool {
			rows := make([]*CitizenRanking, len(counts))
			for i, n := range counts {
				rows[i] = citizen(fmt.Sprintf("CF%04d", i), n)
			}

			ranks, _ := rankInPages(t, execution.New(parallel, 3), rows, limit, 1)
			if len(ranks) != len(rows) {
				return false
			}
			for i, r := range sortedForRanking(rows) {
				if ranks[r.FiscalCode] != int64(i+1) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(-2, 6)),
		gen.IntRange(1, 7),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
