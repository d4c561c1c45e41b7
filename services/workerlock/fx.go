package workerlock

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("workerlock",
	fx.Provide(NewGormCoordinator),
	fx.Invoke(seedProcesses),
)

func seedProcesses(lc fx.Lifecycle, db *gorm.DB) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := EnsureProcesses(ctx, db, Processes...); err != nil {
				zap.L().Error("[WorkerLock] failed to seed lock rows", zap.Error(err))
				return err
			}
			return nil
		},
	})
}
