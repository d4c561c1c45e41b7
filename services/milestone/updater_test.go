package milestone

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cashback-ranking/pkg/errutil"
	"cashback-ranking/services/awardperiod"
	"cashback-ranking/services/ranking"
	"cashback-ranking/services/testutil"
	"cashback-ranking/services/workerlock"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var base = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

type mockStore struct {
	ApplyMilestonesFn func(ctx context.Context, awardPeriodID uint64, threshold int64, limit int, user string, at time.Time) (int, error)
}

func (m *mockStore) ApplyMilestones(ctx context.Context, awardPeriodID uint64, threshold int64, limit int, user string, at time.Time) (int, error) {
	return m.ApplyMilestonesFn(ctx, awardPeriodID, threshold, limit, user, at)
}

// backlog hands out rows until none are left.
func backlog(total int) *mockStore {
	var mu sync.Mutex
	left := total
	return &mockStore{
		ApplyMilestonesFn: func(_ context.Context, _ uint64, _ int64, limit int, _ string, _ time.Time) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			n := min(limit, left)
			left -= n
			return n, nil
		},
	}
}

func withThreshold(n int64) *awardperiod.AwardPeriod {
	return &awardperiod.AwardPeriod{ID: 1, MinTransactionNumber: n}
}

func newUpdater(store Store) (*Updater, workerlock.Coordinator) {
	locks := workerlock.NewMemoryCoordinator(workerlock.Processes...)
	return NewUpdater(store, locks), locks
}

func TestWorkersDrainTheBacklog(t *testing.T) {
	u, _ := newUpdater(backlog(23))

	res, err := u.Run(context.Background(), withThreshold(3), Options{Workers: 3, Limit: 5, MaxRetry: 1, User: "test"})
	require.NoError(t, err)
	require.Equal(t, int64(23), res.Rows)
	require.False(t, res.Interrupted)
}

func TestRowCapStopsClaims(t *testing.T) {
	u, _ := newUpdater(backlog(100))

	res, err := u.Run(context.Background(), withThreshold(3), Options{Workers: 1, Limit: 2, MaxRows: 10, User: "test"})
	require.NoError(t, err)
	require.Equal(t, int64(10), res.Rows)
	require.Equal(t, int64(5), res.Claims)
}

func TestStopTimeIsCheckedBeforeClaiming(t *testing.T) {
	var calls atomic.Int64
	store := &mockStore{ApplyMilestonesFn: func(context.Context, uint64, int64, int, string, time.Time) (int, error) {
		calls.Add(1)
		return 0, nil
	}}
	u, _ := newUpdater(store)

	past := time.Now().Add(-time.Minute)
	res, err := u.Run(context.Background(), withThreshold(3), Options{Workers: 2, Limit: 5, StopAt: &past})
	require.NoError(t, err)
	require.True(t, res.Interrupted)
	require.Zero(t, calls.Load())
}

func TestDeadlocksAreRetried(t *testing.T) {
	var calls atomic.Int64
	store := &mockStore{ApplyMilestonesFn: func(context.Context, uint64, int64, int, string, time.Time) (int, error) {
		if calls.Add(1) <= 2 {
			return 0, &pgconn.PgError{Code: "40P01"}
		}
		return 1, nil
	}}
	u, _ := newUpdater(store)

	res, err := u.Run(context.Background(), withThreshold(3), Options{Workers: 1, Limit: 5, MaxRetry: 2})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Retries)
	require.Equal(t, int64(1), res.Rows)
}

func TestDeadlockRetriesAreBounded(t *testing.T) {
	var calls atomic.Int64
	store := &mockStore{ApplyMilestonesFn: func(context.Context, uint64, int64, int, string, time.Time) (int, error) {
		calls.Add(1)
		return 0, &mysqldriver.MySQLError{Number: 1213, Message: "Deadlock found"}
	}}
	u, locks := newUpdater(store)

	_, err := u.Run(context.Background(), withThreshold(3), Options{Workers: 1, Limit: 5, MaxRetry: 2})
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusMilestoneUpdate))
	require.Equal(t, int64(3), calls.Load())

	// the lease is released after the failure
	ok, err := locks.Acquire(context.Background(), workerlock.ProcessRankingUpdate, workerlock.ExclusiveAgainst[workerlock.ProcessRankingUpdate]...)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOtherErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int64
	boom := errors.New("boom")
	store := &mockStore{ApplyMilestonesFn: func(context.Context, uint64, int64, int, string, time.Time) (int, error) {
		calls.Add(1)
		return 0, boom
	}}
	u, _ := newUpdater(store)

	_, err := u.Run(context.Background(), withThreshold(3), Options{Workers: 1, Limit: 5, MaxRetry: 5})
	require.ErrorIs(t, err, boom)
	require.Equal(t, int64(1), calls.Load())
}

func TestDisabledWithoutThreshold(t *testing.T) {
	store := &mockStore{ApplyMilestonesFn: func(context.Context, uint64, int64, int, string, time.Time) (int, error) {
		t.Fatal("store must not be called")
		return 0, nil
	}}
	u, _ := newUpdater(store)

	res, err := u.Run(context.Background(), withThreshold(0), Options{Workers: 1, Limit: 5})
	require.NoError(t, err)
	require.Zero(t, res.Rows)
}

func TestSkippedWhileRankingRuns(t *testing.T) {
	u, locks := newUpdater(backlog(1))
	ok, err := locks.Acquire(context.Background(), workerlock.ProcessRankingUpdate)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = u.Run(context.Background(), withThreshold(3), Options{Workers: 1, Limit: 5})
	require.ErrorIs(t, err, workerlock.ErrSkipped)
}

func TestMarkersFollowTheThreshold(t *testing.T) {
	db := testutil.NewTestDB(t, &ranking.CitizenRanking{})
	store := ranking.NewStore(db)

	last := base.Add(time.Hour)
	stale := base.Add(-time.Hour)
	rows := []*ranking.CitizenRanking{
		{FiscalCode: "A", AwardPeriodID: 1, Cashback: decimal.Zero, TransactionN: 5, LastTrxTimestamp: &last},
		{FiscalCode: "B", AwardPeriodID: 1, Cashback: decimal.Zero, TransactionN: 3, LastTrxTimestamp: &last},
		{FiscalCode: "C", AwardPeriodID: 1, Cashback: decimal.Zero, TransactionN: 1, MilestoneAt: &stale},
		{FiscalCode: "D", AwardPeriodID: 1, Cashback: decimal.Zero, TransactionN: 0},
	}
	require.NoError(t, db.Create(rows).Error)

	u, _ := newUpdater(store)
	res, err := u.Run(context.Background(), withThreshold(3), Options{Workers: 2, Limit: 2, User: "test"})
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Rows)

	var got []*ranking.CitizenRanking
	require.NoError(t, db.Order("fiscal_code ASC").Find(&got).Error)
	require.NotNil(t, got[0].MilestoneAt)
	require.True(t, got[0].MilestoneAt.Equal(last))
	require.NotNil(t, got[1].MilestoneAt)
	require.Nil(t, got[2].MilestoneAt)
	require.Nil(t, got[3].MilestoneAt)
}
