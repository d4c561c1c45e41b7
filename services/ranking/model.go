package ranking

import (
	"time"

	"github.com/shopspring/decimal"
)

// CitizenRanking is the per-citizen cashback total and rank in one award period.
type CitizenRanking struct {
	FiscalCode       string          `gorm:"column:fiscal_code;primaryKey;type:varchar(16)"`
	AwardPeriodID    uint64          `gorm:"column:award_period_id;primaryKey;index:idx_citizen_ranking_order,priority:1"`
	Cashback         decimal.Decimal `gorm:"column:cashback;type:decimal(19,2);not null"`
	TransactionN     int64           `gorm:"column:transaction_n;not null;index:idx_citizen_ranking_order,priority:2"`
	LastTrxTimestamp *time.Time      `gorm:"column:last_trx_timestamp"`
	Ranking          *int64          `gorm:"column:ranking;index"`
	MilestoneAt      *time.Time      `gorm:"column:milestone_at"`
	InsertDate       time.Time       `gorm:"column:insert_date;autoCreateTime"`
	InsertUser       string          `gorm:"column:insert_user;type:varchar(40)"`
	UpdateDate       *time.Time      `gorm:"column:update_date"`
	UpdateUser       string          `gorm:"column:update_user;type:varchar(40)"`
}

func (CitizenRanking) TableName() string {
	return "citizen_rankings"
}

// AwardedCashback is the stored total bounded by ceiling when ceiling is
// positive. The stored total itself is never clamped.
func (r *CitizenRanking) AwardedCashback(ceiling decimal.Decimal) decimal.Decimal {
	if ceiling.IsPositive() && r.Cashback.GreaterThan(ceiling) {
		return ceiling
	}
	return r.Cashback
}

// CitizenRankingExt summarises the ranking of one award period.
type CitizenRankingExt struct {
	AwardPeriodID     uint64     `gorm:"column:award_period_id;primaryKey"`
	MinTransactionN   int64      `gorm:"column:min_transaction_n;not null"`
	MaxTransactionN   int64      `gorm:"column:max_transaction_n;not null"`
	TotalParticipants int64      `gorm:"column:total_participants;not null"`
	InsertDate        time.Time  `gorm:"column:insert_date;autoCreateTime"`
	InsertUser        string     `gorm:"column:insert_user;type:varchar(40)"`
	UpdateDate        *time.Time `gorm:"column:update_date"`
	UpdateUser        string     `gorm:"column:update_user;type:varchar(40)"`
}

func (CitizenRankingExt) TableName() string {
	return "citizen_ranking_exts"
}

// Cursor is the keyset position after the last row of a ranking page.
type Cursor struct {
	TransactionN int64
	FiscalCode   string
}
