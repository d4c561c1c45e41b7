package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"cashback-ranking/pkg/config"
	"cashback-ranking/pkg/errutil"
	"cashback-ranking/services/awardperiod"
	"cashback-ranking/services/orchestrator"
	"cashback-ranking/services/ranking"
	"cashback-ranking/services/transaction"
	"cashback-ranking/services/workerlock"
)

// Models are the tables owned or read by the batch.
var Models = []any{
	&awardperiod.AwardPeriod{},
	&transaction.WinningTransaction{},
	&ranking.CitizenRanking{},
	&ranking.CitizenRankingExt{},
	&workerlock.WorkerLock{},
	&orchestrator.Run{},
}

type Service struct {
	db     *gorm.DB
	config *config.Config
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		config: p.Config,
	}
}

// Migrate creates the missing tables and the worker lock rows.
func (s *Service) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models...); err != nil {
		zap.L().Error("[bootstrap] auto migrate failed", zap.Error(err))
		return errutil.Internal("auto migrate", err)
	}

	if err := workerlock.EnsureProcesses(ctx, s.db, workerlock.Processes...); err != nil {
		zap.L().Error("[bootstrap] failed to seed worker locks", zap.Error(err))
		return err
	}

	zap.L().Info("[bootstrap] schema ready", zap.Int("models", len(Models)))
	return nil
}
