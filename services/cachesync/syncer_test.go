package cachesync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cashback-ranking/pkg/errutil"
	"cashback-ranking/services/ranking"
	"cashback-ranking/services/testutil"
	"cashback-ranking/services/workerlock"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type memorySink struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	ttls   map[string]time.Duration
	putErr error
}

func newMemorySink() *memorySink {
	return &memorySink{hashes: map[string]map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memorySink) Put(_ context.Context, key string, fields map[string]string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	m.ttls[key] = ttl
	return nil
}

func (m *memorySink) Publish(_ context.Context, staging, live string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[staging]
	if !ok {
		return errors.New("ERR no such key")
	}
	m.hashes[live] = h
	m.ttls[live] = m.ttls[staging]
	delete(m.hashes, staging)
	delete(m.ttls, staging)
	return nil
}

func (m *memorySink) Drop(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.hashes, k)
		delete(m.ttls, k)
	}
	return nil
}

func rankedCitizen(code string, rank, n int64, cashback string) *ranking.CitizenRanking {
	return &ranking.CitizenRanking{
		FiscalCode:    code,
		AwardPeriodID: 7,
		Cashback:      decimal.RequireFromString(cashback),
		TransactionN:  n,
		Ranking:       &rank,
	}
}

func TestSyncPublishesRankingAndSummary(t *testing.T) {
	db := testutil.NewTestDB(t, &ranking.CitizenRanking{}, &ranking.CitizenRankingExt{})
	store := ranking.NewStore(db)
	sink := newMemorySink()
	s := NewSyncer(store, sink, workerlock.NewMemoryCoordinator(workerlock.Processes...))
	ctx := context.Background()

	require.NoError(t, db.Create([]*ranking.CitizenRanking{
		rankedCitizen("AAA", 1, 9, "12.5"),
		rankedCitizen("BBB", 2, 7, "3"),
		rankedCitizen("CCC", 3, 2, "1.25"),
	}).Error)
	require.NoError(t, db.Create(&ranking.CitizenRanking{FiscalCode: "ZZZ", AwardPeriodID: 7, Cashback: decimal.Zero}).Error)
	require.NoError(t, store.UpsertSummary(ctx, &ranking.CitizenRankingExt{
		AwardPeriodID: 7, MinTransactionN: 2, MaxTransactionN: 9, TotalParticipants: 3,
	}))

	// a stale entry from a previous publication must disappear
	require.NoError(t, sink.Put(ctx, "ranking:7", map[string]string{"OLD": "{}"}, time.Hour))

	res, err := s.Run(ctx, 7, Options{Limit: 2, TTL: time.Hour, Ceiling: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Entries)
	require.Equal(t, 2, res.Pages)

	live := sink.hashes["ranking:7"]
	require.Len(t, live, 3)
	require.NotContains(t, live, "OLD")
	require.NotContains(t, sink.hashes, "ranking:7:staging")

	var entry Entry
	require.NoError(t, json.Unmarshal([]byte(live["BBB"]), &entry))
	require.Equal(t, int64(2), entry.Ranking)
	require.Equal(t, int64(7), entry.TransactionN)
	require.Equal(t, "3.00", entry.Cashback)

	// the stored total stays above the ceiling, the published one does not
	require.NoError(t, json.Unmarshal([]byte(live["AAA"]), &entry))
	require.Equal(t, "10.00", entry.Cashback)

	summary := sink.hashes["ranking:7:summary"]
	require.Equal(t, "9", summary["max_transaction_n"])
	require.Equal(t, "3", summary["total_participants"])
	require.Equal(t, time.Hour, sink.ttls["ranking:7:summary"])
}

func TestSyncWithoutRanksClearsTheCache(t *testing.T) {
	db := testutil.NewTestDB(t, &ranking.CitizenRanking{}, &ranking.CitizenRankingExt{})
	sink := newMemorySink()
	s := NewSyncer(ranking.NewStore(db), sink, workerlock.NewMemoryCoordinator(workerlock.Processes...))
	ctx := context.Background()

	require.NoError(t, sink.Put(ctx, "ranking:7", map[string]string{"OLD": "{}"}, time.Hour))

	res, err := s.Run(ctx, 7, Options{Limit: 10})
	require.NoError(t, err)
	require.Zero(t, res.Entries)
	require.Empty(t, sink.hashes)
}

func TestSyncFailureIsReported(t *testing.T) {
	db := testutil.NewTestDB(t, &ranking.CitizenRanking{}, &ranking.CitizenRankingExt{})
	require.NoError(t, db.Create(rankedCitizen("AAA", 1, 1, "1")).Error)

	sink := newMemorySink()
	sink.putErr = errors.New("connection refused")
	s := NewSyncer(ranking.NewStore(db), sink, workerlock.NewMemoryCoordinator(workerlock.Processes...))

	_, err := s.Run(context.Background(), 7, Options{Limit: 10})
	require.True(t, errutil.HasStatus(err, errutil.StatusInternal))
}

func TestSyncWaitsForMilestones(t *testing.T) {
	db := testutil.NewTestDB(t, &ranking.CitizenRanking{}, &ranking.CitizenRankingExt{})
	locks := workerlock.NewMemoryCoordinator(workerlock.Processes...)
	s := NewSyncer(ranking.NewStore(db), newMemorySink(), locks)

	ok, err := locks.Acquire(context.Background(), workerlock.ProcessMilestoneUpdate)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.Run(context.Background(), 7, Options{Limit: 10})
	require.ErrorIs(t, err, workerlock.ErrSkipped)
}
