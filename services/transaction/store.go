package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store interface {
	WithTrx(tx *gorm.DB) Store

	// FetchUnprocessed returns up to q.Limit unprocessed, unparked, not discarded
	// rows of one operation type. Partial transfers come grouped by correlation
	// and ordered by timestamp inside a group; other types by timestamp.
	FetchUnprocessed(ctx context.Context, q FetchQuery) ([]*WinningTransaction, error)
	// FetchGroupBalances returns the running balance of the payment behind each
	// correlation: its stored balance, or its amount if no partial transfer was
	// applied yet. Correlations without a payment are absent from the result.
	FetchGroupBalances(ctx context.Context, awardPeriodID uint64, refs []CorrelationRef) (map[CorrelationRef]decimal.Decimal, error)
	SaveGroupBalances(ctx context.Context, awardPeriodID uint64, balances map[CorrelationRef]decimal.Decimal, user string, at time.Time) error
	// MarkProcessed persists the processing outcome of every row and returns
	// the affected row count per input row.
	MarkProcessed(ctx context.Context, txs []*WinningTransaction) ([]int64, error)
	UnparkAll(ctx context.Context, awardPeriodID uint64) (int64, error)

	FindDailyLimitViolators(ctx context.Context, awardPeriodID uint64, maxDaily int64) ([]string, error)
	FetchCitizenPayments(ctx context.Context, awardPeriodID uint64, fiscalCode string) ([]*WinningTransaction, error)
	Discard(ctx context.Context, ids []uint64, user string, at time.Time) (int64, error)
	ResetForReprocess(ctx context.Context, awardPeriodID uint64, fiscalCode, user string, at time.Time) (int64, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) WithTrx(tx *gorm.DB) Store {
	return &gormStore{db: tx}
}

func (s *gormStore) FetchUnprocessed(ctx context.Context, q FetchQuery) ([]*WinningTransaction, error) {
	query := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("award_period_id = ? AND operation_type = ?", q.AwardPeriodID, q.OperationType).
		Where("processed = ? AND parked = ? AND discarded = ?", false, false, false)

	if q.OperationType == OperationPartialTransfer {
		query = query.Order("acquirer_code ASC, acquirer_id ASC, correlation_id ASC, trx_timestamp ASC, id ASC")
	} else {
		query = query.Order("trx_timestamp ASC, id ASC")
	}

	var out []*WinningTransaction
	if err := query.Limit(q.Limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) paymentFor(ctx context.Context, awardPeriodID uint64, ref CorrelationRef) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&WinningTransaction{}).
		Where("award_period_id = ? AND operation_type = ? AND discarded = ?", awardPeriodID, OperationPayment, false).
		Where("acquirer_code = ? AND acquirer_id = ? AND correlation_id = ?", ref.AcquirerCode, ref.AcquirerID, ref.CorrelationID)
}

func (s *gormStore) FetchGroupBalances(ctx context.Context, awardPeriodID uint64, refs []CorrelationRef) (map[CorrelationRef]decimal.Decimal, error) {
	out := make(map[CorrelationRef]decimal.Decimal, len(refs))
	for _, ref := range refs {
		if _, seen := out[ref]; seen {
			continue
		}

		var payments []*WinningTransaction
		if err := s.paymentFor(ctx, awardPeriodID, ref).Order("id ASC").Limit(1).Find(&payments).Error; err != nil {
			return nil, err
		}
		if len(payments) == 0 {
			continue
		}

		p := payments[0]
		if p.AmountBalance.Valid {
			out[ref] = p.AmountBalance.Decimal
		} else {
			out[ref] = p.Amount
		}
	}
	return out, nil
}

func (s *gormStore) SaveGroupBalances(ctx context.Context, awardPeriodID uint64, balances map[CorrelationRef]decimal.Decimal, user string, at time.Time) error {
	for ref, balance := range balances {
		res := s.paymentFor(ctx, awardPeriodID, ref).Updates(map[string]any{
			"amount_balance": balance,
			"update_date":    at,
			"update_user":    user,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("no payment for correlation %s", ref)
		}
	}
	return nil
}

func (s *gormStore) MarkProcessed(ctx context.Context, txs []*WinningTransaction) ([]int64, error) {
	affected := make([]int64, len(txs))
	for i, t := range txs {
		res := s.db.WithContext(ctx).
			Model(&WinningTransaction{}).
			Where("id = ?", t.ID).
			Updates(map[string]any{
				"processed":               t.Processed,
				"parked":                  t.Parked,
				"score":                   t.Score,
				"amount_balance":          t.AmountBalance,
				"original_amount_balance": t.OriginalAmountBalance,
				"update_date":             t.UpdateDate,
				"update_user":             t.UpdateUser,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		affected[i] = res.RowsAffected
	}
	return affected, nil
}

func (s *gormStore) UnparkAll(ctx context.Context, awardPeriodID uint64) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&WinningTransaction{}).
		Where("award_period_id = ? AND parked = ? AND processed = ?", awardPeriodID, true, false).
		Update("parked", false)
	return res.RowsAffected, res.Error
}

func (s *gormStore) FindDailyLimitViolators(ctx context.Context, awardPeriodID uint64, maxDaily int64) ([]string, error) {
	var codes []string
	if err := s.db.WithContext(ctx).
		Model(&WinningTransaction{}).
		Where("award_period_id = ? AND operation_type = ? AND discarded = ?", awardPeriodID, OperationPayment, false).
		Group("fiscal_code, DATE(trx_timestamp)").
		Having("COUNT(*) > ?", maxDaily).
		Order("fiscal_code ASC").
		Pluck("fiscal_code", &codes).Error; err != nil {
		return nil, err
	}

	out := make([]string, 0, len(codes))
	for i, c := range codes {
		if i > 0 && codes[i-1] == c {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *gormStore) FetchCitizenPayments(ctx context.Context, awardPeriodID uint64, fiscalCode string) ([]*WinningTransaction, error) {
	var out []*WinningTransaction
	if err := s.db.WithContext(ctx).
		Where("award_period_id = ? AND fiscal_code = ? AND operation_type = ? AND discarded = ?",
			awardPeriodID, fiscalCode, OperationPayment, false).
		Order("trx_timestamp ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) Discard(ctx context.Context, ids []uint64, user string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&WinningTransaction{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"discarded":   true,
			"update_date": at,
			"update_user": user,
		})
	return res.RowsAffected, res.Error
}

func (s *gormStore) ResetForReprocess(ctx context.Context, awardPeriodID uint64, fiscalCode, user string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&WinningTransaction{}).
		Where("award_period_id = ? AND fiscal_code = ? AND discarded = ?", awardPeriodID, fiscalCode, false).
		Updates(map[string]any{
			"processed":               false,
			"parked":                  false,
			"amount_balance":          gorm.Expr("NULL"),
			"original_amount_balance": gorm.Expr("NULL"),
			"update_date":             at,
			"update_user":             user,
		})
	return res.RowsAffected, res.Error
}
