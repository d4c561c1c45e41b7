package awardperiod

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// AwardPeriod is read-only for the batch; it is owned by the award period registry.
type AwardPeriod struct {
	ID                      uint64          `gorm:"column:id;primaryKey"`
	Status                  string          `gorm:"column:status;type:varchar(20);index;not null"`
	StartDate               time.Time       `gorm:"column:start_date;not null"`
	EndDate                 time.Time       `gorm:"column:end_date;not null"`
	MinPosition             int64           `gorm:"column:min_position;not null"`
	MaxPeriodCashback       decimal.Decimal `gorm:"column:max_period_cashback;type:decimal(19,2);not null"`
	MaxTransactionEvaluated decimal.Decimal `gorm:"column:max_transaction_evaluated;type:decimal(19,2);not null"`
	CashbackPercentage      decimal.Decimal `gorm:"column:cashback_percentage;type:decimal(5,2);not null"`
	MinTransactionNumber    int64           `gorm:"column:min_transaction_number;not null"`
	MaxDailyPayments        int64           `gorm:"column:max_daily_payments;not null"`
	CreatedAt               time.Time       `gorm:"autoCreateTime"`
	UpdatedAt               time.Time       `gorm:"autoUpdateTime"`
}

func (AwardPeriod) TableName() string {
	return "award_periods"
}

// HasCashbackCap reports whether the per-citizen period total is bounded.
func (p *AwardPeriod) HasCashbackCap() bool {
	return p.MaxPeriodCashback.IsPositive()
}

// HasTransactionCap reports whether partial transfers are evaluated against a
// ceiling on the original payment amount.
func (p *AwardPeriod) HasTransactionCap() bool {
	return p.MaxTransactionEvaluated.IsPositive()
}

func (p *AwardPeriod) ActiveAt(t time.Time) bool {
	return p.Status == StatusActive && !t.Before(p.StartDate) && !t.After(p.EndDate)
}
