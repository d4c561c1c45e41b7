package awardperiod

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"cashback-ranking/pkg/errutil"
)

//go:generate mockgen -source=client.go -destination=mock_client.go -package=awardperiod

// Client looks up award periods.
type Client interface {
	ListActive(ctx context.Context) ([]*AwardPeriod, error)
	GetByID(ctx context.Context, id uint64) (*AwardPeriod, error)
}

type gormClient struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormClient(db *gorm.DB) Client {
	return &gormClient{db: db, now: time.Now}
}

func (c *gormClient) ListActive(ctx context.Context) ([]*AwardPeriod, error) {
	now := c.now().UTC()

	var periods []*AwardPeriod
	if err := c.db.WithContext(ctx).
		Where("status = ? AND start_date <= ? AND end_date >= ?", StatusActive, now, now).
		Order("id ASC").
		Find(&periods).Error; err != nil {
		return nil, err
	}
	return periods, nil
}

func (c *gormClient) GetByID(ctx context.Context, id uint64) (*AwardPeriod, error) {
	var period AwardPeriod
	if err := c.db.WithContext(ctx).Where("id = ?", id).First(&period).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("award period not found", err)
		}
		return nil, err
	}
	return &period, nil
}
