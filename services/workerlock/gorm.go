package workerlock

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormCoordinator struct {
	db *gorm.DB
}

func NewGormCoordinator(db *gorm.DB) Coordinator {
	return &gormCoordinator{db: db}
}

// EnsureProcesses creates the missing lock rows with a zero count.
func EnsureProcesses(ctx context.Context, db *gorm.DB, names ...string) error {
	rows := make([]WorkerLock, 0, len(names))
	for _, name := range names {
		rows = append(rows, WorkerLock{ProcessName: name})
	}
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

func (c *gormCoordinator) Acquire(ctx context.Context, process string, exclusive ...string) (bool, error) {
	acquired := false

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		names := append([]string{process}, exclusive...)

		var locks []WorkerLock
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("process_name IN ?", names).
			Order("process_name ASC").
			Find(&locks).Error; err != nil {
			return err
		}

		for _, l := range locks {
			for _, ex := range exclusive {
				if l.ProcessName == ex && l.WorkerCount > 0 {
					zap.L().Debug("[WorkerLock] exclusive process busy",
						zap.String("process", process),
						zap.String("busy", ex),
						zap.Int64("worker_count", l.WorkerCount),
					)
					return nil
				}
			}
		}

		res := tx.Model(&WorkerLock{}).
			Where("process_name = ?", process).
			Update("worker_count", gorm.Expr("worker_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return coordinationError("failed to enter worker lock", process,
				fmt.Errorf("expected 1 row affected, got %d", res.RowsAffected))
		}

		acquired = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return acquired, nil
}

func (c *gormCoordinator) Release(ctx context.Context, process string) error {
	res := c.db.WithContext(ctx).
		Model(&WorkerLock{}).
		Where("process_name = ? AND worker_count > 0", process).
		Update("worker_count", gorm.Expr("worker_count - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return coordinationError("failed to exit worker lock", process,
			fmt.Errorf("expected 1 row affected, got %d", res.RowsAffected))
	}
	return nil
}
