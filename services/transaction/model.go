package transaction

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Operation types as delivered by the acquirers.
const (
	OperationPayment         = "00"
	OperationTotalTransfer   = "01"
	OperationPartialTransfer = "02"
)

// WinningTransaction is a transaction eligible for cashback in an award period.
// Rows are written upstream; the batch only flips processing state and the
// running balance of partial transfers.
type WinningTransaction struct {
	ID                    uint64              `gorm:"column:id;primaryKey;autoIncrement"`
	AcquirerCode          string              `gorm:"column:acquirer_code;type:varchar(20);not null;uniqueIndex:uq_winning_trx_natural,priority:1"`
	AcquirerID            string              `gorm:"column:acquirer_id;type:varchar(255);not null;uniqueIndex:uq_winning_trx_natural,priority:2"`
	IDTrxAcquirer         string              `gorm:"column:id_trx_acquirer;type:varchar(255);not null;uniqueIndex:uq_winning_trx_natural,priority:3"`
	TrxTimestamp          time.Time           `gorm:"column:trx_timestamp;not null;uniqueIndex:uq_winning_trx_natural,priority:4"`
	OperationType         string              `gorm:"column:operation_type;type:varchar(2);not null;index:idx_winning_trx_pending,priority:2"`
	CorrelationID         string              `gorm:"column:correlation_id;type:varchar(255);index:idx_winning_trx_correlation"`
	FiscalCode            string              `gorm:"column:fiscal_code;type:varchar(16);not null;index"`
	AwardPeriodID         uint64              `gorm:"column:award_period_id;not null;index:idx_winning_trx_pending,priority:1"`
	Amount                decimal.Decimal     `gorm:"column:amount;type:decimal(19,2);not null"`
	Score                 decimal.Decimal     `gorm:"column:score;type:decimal(19,2);not null"`
	AmountBalance         decimal.NullDecimal `gorm:"column:amount_balance;type:decimal(19,2)"`
	OriginalAmountBalance decimal.NullDecimal `gorm:"column:original_amount_balance;type:decimal(19,2)"`
	Processed             bool                `gorm:"column:processed;not null;index:idx_winning_trx_pending,priority:3"`
	Parked                bool                `gorm:"column:parked;not null"`
	Discarded             bool                `gorm:"column:discarded;not null"`
	InsertDate            time.Time           `gorm:"column:insert_date;autoCreateTime"`
	UpdateDate            *time.Time          `gorm:"column:update_date"`
	UpdateUser            string              `gorm:"column:update_user;type:varchar(40)"`
}

func (WinningTransaction) TableName() string {
	return "winning_transactions"
}

// CorrelationRef identifies the payment a partial transfer refunds.
type CorrelationRef struct {
	AcquirerCode  string
	AcquirerID    string
	CorrelationID string
}

func (r CorrelationRef) String() string {
	return fmt.Sprintf("%s|%s|%s", r.AcquirerCode, r.AcquirerID, r.CorrelationID)
}

func (t *WinningTransaction) CorrelationRef() CorrelationRef {
	return CorrelationRef{
		AcquirerCode:  t.AcquirerCode,
		AcquirerID:    t.AcquirerID,
		CorrelationID: t.CorrelationID,
	}
}

// Touch stamps the audit columns.
func (t *WinningTransaction) Touch(user string, at time.Time) {
	t.UpdateDate = &at
	t.UpdateUser = user
}

// FetchQuery selects a page of transactions still waiting for cashback processing.
type FetchQuery struct {
	AwardPeriodID uint64
	OperationType string
	Limit         int
}
