package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("bootstrap",
	fx.Provide(
		NewService,
	),
	fx.Invoke(runBootstrap),
)

// Run after DB initialized
func runBootstrap(lc fx.Lifecycle, b *Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !b.config.Database.AutoMigrate {
				zap.L().Info("[bootstrap] auto migrate disabled")
				return nil
			}
			return b.Migrate(ctx)
		},
	})
}
