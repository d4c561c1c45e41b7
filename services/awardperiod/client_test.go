package awardperiod

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"cashback-ranking/pkg/errutil"
	"cashback-ranking/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func period(id uint64, status string, start, end time.Time) *AwardPeriod {
	return &AwardPeriod{
		ID:                      id,
		Status:                  status,
		StartDate:               start,
		EndDate:                 end,
		MinPosition:             10,
		MaxPeriodCashback:       decimal.NewFromInt(150),
		MaxTransactionEvaluated: decimal.NewFromInt(150),
		CashbackPercentage:      decimal.NewFromInt(10),
	}
}

func TestGormClientListActive(t *testing.T) {
	db := testutil.NewTestDB(t, &AwardPeriod{})
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create([]*AwardPeriod{
		period(1, StatusActive, now.AddDate(0, -1, 0), now.AddDate(0, 1, 0)),
		period(2, StatusClosed, now.AddDate(0, -1, 0), now.AddDate(0, 1, 0)),
		period(3, StatusActive, now.AddDate(0, 1, 0), now.AddDate(0, 2, 0)),
		period(4, StatusActive, now.AddDate(0, -2, 0), now.AddDate(0, -1, 0)),
		period(5, StatusActive, now.AddDate(0, 0, -1), now.AddDate(0, 0, 1)),
	}).Error)

	client := &gormClient{db: db, now: func() time.Time { return now }}
	periods, err := client.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, periods, 2)
	require.Equal(t, uint64(1), periods[0].ID)
	require.Equal(t, uint64(5), periods[1].ID)
	require.Equal(t, "150.00", periods[0].MaxPeriodCashback.StringFixed(2))
}

func TestGormClientGetByIDNotFound(t *testing.T) {
	db := testutil.NewTestDB(t, &AwardPeriod{})

	_, err := NewGormClient(db).GetByID(context.Background(), 42)
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}

func TestCachedClientHitsSourceOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := NewMockClient(ctrl)

	p := period(7, StatusActive, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	source.EXPECT().GetByID(gomock.Any(), uint64(7)).Return(p, nil).Times(1)

	cached := NewCachedClient(source, 8, time.Minute)
	for i := 0; i < 3; i++ {
		got, err := cached.GetByID(context.Background(), 7)
		require.NoError(t, err)
		require.Equal(t, p, got)
	}

	cached.Invalidate(7)
	source.EXPECT().GetByID(gomock.Any(), uint64(7)).Return(p, nil).Times(1)
	_, err := cached.GetByID(context.Background(), 7)
	require.NoError(t, err)
}

func TestCachedClientListActiveWarmsCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := NewMockClient(ctrl)

	p := period(9, StatusActive, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	source.EXPECT().ListActive(gomock.Any()).Return([]*AwardPeriod{p}, nil)

	cached := NewCachedClient(source, 8, time.Minute)
	_, err := cached.ListActive(context.Background())
	require.NoError(t, err)

	got, err := cached.GetByID(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestActiveAt(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	p := period(1, StatusActive, now, now.AddDate(0, 0, 30))
	require.True(t, p.ActiveAt(now))
	require.True(t, p.ActiveAt(now.AddDate(0, 0, 30)))
	require.False(t, p.ActiveAt(now.Add(-time.Second)))

	p.Status = StatusClosed
	require.False(t, p.ActiveAt(now))
}
