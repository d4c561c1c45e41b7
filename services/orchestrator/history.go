package orchestrator

import (
	"context"
	"time"

	"cashback-ranking/pkg/db/pagination"
	"cashback-ranking/pkg/errutil"
)

// ListRuns returns run records newest first. awardPeriodID 0 lists every period.
func (s *Service) ListRuns(ctx context.Context, awardPeriodID uint64, p pagination.Pagination) ([]*Run, *pagination.PageInfo, error) {
	p = p.Normalize()

	q := s.DB.WithContext(ctx).Model(&Run{})
	if awardPeriodID != 0 {
		q = q.Where("award_period_id = ?", awardPeriodID)
	}
	if p.Cursor != "" {
		c, err := pagination.DecodeCursor(p.Cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		startedAt, err := time.Parse(time.RFC3339Nano, c.CreatedAt)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		q = q.Where("started_at < ? OR (started_at = ? AND id < ?)", startedAt, startedAt, c.ID)
	}

	var runs []*Run
	if err := q.Order("started_at DESC").Order("id DESC").Limit(p.Limit + 1).Find(&runs).Error; err != nil {
		return nil, nil, errutil.Internal("list runs", err)
	}

	runs, info, err := pagination.Page(runs, p.Limit, func(r *Run) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.StartedAt.UTC().Format(time.RFC3339Nano), ID: r.ID}
	})
	if err != nil {
		return nil, nil, errutil.Internal("encode cursor", err)
	}
	return runs, info, nil
}
