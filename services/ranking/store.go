package ranking

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// decimals are bound as text; the cast keeps arithmetic numeric on every dialect
const (
	addCashback    = "cashback + CAST(? AS DECIMAL(19,2))"
	laterTimestamp = "CASE WHEN last_trx_timestamp IS NULL OR last_trx_timestamp < ? THEN ? ELSE last_trx_timestamp END"
)

type Store interface {
	WithTrx(tx *gorm.DB) Store

	// UpdateCashback adds delta to an existing row and returns the affected
	// row count. Totals are stored unbounded; see AwardedCashback.
	UpdateCashback(ctx context.Context, delta *CitizenRanking) (int64, error)
	// InsertCashback creates rows for citizens seen for the first time.
	InsertCashback(ctx context.Context, rows []*CitizenRanking) (int64, error)
	ResetCashback(ctx context.Context, awardPeriodID uint64, fiscalCode, user string, at time.Time) (int64, error)

	FetchPage(ctx context.Context, awardPeriodID uint64, after *Cursor, limit int) ([]*CitizenRanking, error)
	UpdateRanks(ctx context.Context, rows []*CitizenRanking) ([]int64, error)
	FetchRanked(ctx context.Context, awardPeriodID uint64, afterRank int64, limit int) ([]*CitizenRanking, error)

	UpsertSummary(ctx context.Context, ext *CitizenRankingExt) error
	GetSummary(ctx context.Context, awardPeriodID uint64) (*CitizenRankingExt, error)

	// ApplyMilestones claims up to limit rows whose milestone marker disagrees
	// with threshold, fixes them in one transaction and returns how many it claimed.
	ApplyMilestones(ctx context.Context, awardPeriodID uint64, threshold int64, limit int, user string, at time.Time) (int, error)
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

func (s *gormStore) UpdateCashback(ctx context.Context, delta *CitizenRanking) (int64, error) {
	updates := map[string]any{
		"cashback":      gorm.Expr(addCashback, delta.Cashback),
		"transaction_n": gorm.Expr("transaction_n + ?", delta.TransactionN),
		"update_date":   delta.UpdateDate,
		"update_user":   delta.UpdateUser,
	}
	if delta.LastTrxTimestamp != nil {
		updates["last_trx_timestamp"] = gorm.Expr(laterTimestamp, *delta.LastTrxTimestamp, *delta.LastTrxTimestamp)
	}

	res := s.db.WithContext(ctx).
		Model(&CitizenRanking{}).
		Where("fiscal_code = ? AND award_period_id = ?", delta.FiscalCode, delta.AwardPeriodID).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (s *gormStore) InsertCashback(ctx context.Context, rows []*CitizenRanking) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Create(&rows)
	return res.RowsAffected, res.Error
}

func (s *gormStore) ResetCashback(ctx context.Context, awardPeriodID uint64, fiscalCode, user string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&CitizenRanking{}).
		Where("fiscal_code = ? AND award_period_id = ?", fiscalCode, awardPeriodID).
		Updates(map[string]any{
			"cashback":           decimal.Zero,
			"transaction_n":      0,
			"ranking":            gorm.Expr("NULL"),
			"last_trx_timestamp": gorm.Expr("NULL"),
			"milestone_at":       gorm.Expr("NULL"),
			"update_date":        at,
			"update_user":        user,
		})
	return res.RowsAffected, res.Error
}

func (s *gormStore) FetchPage(ctx context.Context, awardPeriodID uint64, after *Cursor, limit int) ([]*CitizenRanking, error) {
	query := s.db.WithContext(ctx).Where("award_period_id = ?", awardPeriodID)
	if after != nil {
		query = query.Where("(transaction_n < ? OR (transaction_n = ? AND fiscal_code > ?))",
			after.TransactionN, after.TransactionN, after.FiscalCode)
	}

	var out []*CitizenRanking
	if err := query.
		Order("transaction_n DESC, fiscal_code ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) UpdateRanks(ctx context.Context, rows []*CitizenRanking) ([]int64, error) {
	affected := make([]int64, len(rows))
	for i, r := range rows {
		res := s.db.WithContext(ctx).
			Model(&CitizenRanking{}).
			Where("fiscal_code = ? AND award_period_id = ?", r.FiscalCode, r.AwardPeriodID).
			Updates(map[string]any{
				"ranking":     r.Ranking,
				"update_date": r.UpdateDate,
				"update_user": r.UpdateUser,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		affected[i] = res.RowsAffected
	}
	return affected, nil
}

func (s *gormStore) FetchRanked(ctx context.Context, awardPeriodID uint64, afterRank int64, limit int) ([]*CitizenRanking, error) {
	var out []*CitizenRanking
	if err := s.db.WithContext(ctx).
		Where("award_period_id = ? AND ranking IS NOT NULL AND ranking > ?", awardPeriodID, afterRank).
		Order("ranking ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) UpsertSummary(ctx context.Context, ext *CitizenRankingExt) error {
	res := s.db.WithContext(ctx).
		Model(&CitizenRankingExt{}).
		Where("award_period_id = ?", ext.AwardPeriodID).
		Updates(map[string]any{
			"min_transaction_n":  ext.MinTransactionN,
			"max_transaction_n":  ext.MaxTransactionN,
			"total_participants": ext.TotalParticipants,
			"update_date":        ext.UpdateDate,
			"update_user":        ext.UpdateUser,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	ext.InsertUser = ext.UpdateUser
	return s.db.WithContext(ctx).Create(ext).Error
}

func (s *gormStore) GetSummary(ctx context.Context, awardPeriodID uint64) (*CitizenRankingExt, error) {
	var ext CitizenRankingExt
	if err := s.db.WithContext(ctx).Where("award_period_id = ?", awardPeriodID).First(&ext).Error; err != nil {
		return nil, err
	}
	return &ext, nil
}

func (s *gormStore) ApplyMilestones(ctx context.Context, awardPeriodID uint64, threshold int64, limit int, user string, at time.Time) (int, error) {
	claimed := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []*CitizenRanking
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("award_period_id = ?", awardPeriodID).
			Where("((transaction_n >= ? AND milestone_at IS NULL) OR (transaction_n < ? AND milestone_at IS NOT NULL))", threshold, threshold).
			Order("fiscal_code ASC").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return err
		}

		for _, r := range rows {
			var marker any = gorm.Expr("NULL")
			if r.TransactionN >= threshold {
				if r.LastTrxTimestamp != nil {
					marker = *r.LastTrxTimestamp
				} else {
					marker = at
				}
			}
			if err := tx.Model(&CitizenRanking{}).
				Where("fiscal_code = ? AND award_period_id = ?", r.FiscalCode, r.AwardPeriodID).
				Updates(map[string]any{
					"milestone_at": marker,
					"update_date":  at,
					"update_user":  user,
				}).Error; err != nil {
				return err
			}
		}

		claimed = len(rows)
		return nil
	})
	return claimed, err
}
