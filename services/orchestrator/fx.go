package orchestrator

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"cashback-ranking/pkg/config"
	"cashback-ranking/pkg/featureflags"
	"cashback-ranking/pkg/gen"
	"cashback-ranking/pkg/task"
	"cashback-ranking/pkg/taskname"
	"cashback-ranking/services/awardperiod"
	"cashback-ranking/services/cachesync"
	"cashback-ranking/services/cashback"
	"cashback-ranking/services/dailylimit"
	"cashback-ranking/services/milestone"
	"cashback-ranking/services/ranking"
	"cashback-ranking/services/snapshot"
)

var Module = fx.Module("orchestrator",
	fx.Provide(
		ProvideService,
		ProvideDispatcher,
		NewHandler,
	),
)

// Worker registers the task handlers on the asynq server mux.
var Worker = fx.Module("orchestrator.worker",
	fx.Invoke(RegisterHandlers),
)

var Schedule = fx.Module("orchestrator.scheduler",
	fx.Provide(ProvideScheduler),
	fx.Invoke(StartScheduler),
)

type Params struct {
	fx.In
	Config     *config.Config
	DB         *gorm.DB
	IDs        *gen.SnowflakeNode
	Periods    awardperiod.Client
	Flags      featureflags.FeatureFlag `optional:"true"`
	DailyLimit *dailylimit.Detector
	Cashback   *cashback.Updater
	Ranking    *ranking.Updater
	Milestone  *milestone.Updater
	CacheSync  *cachesync.Syncer   `optional:"true"`
	Snapshot   *snapshot.Publisher `optional:"true"`
}

func ProvideService(p Params) *Service {
	deps := Deps{
		DB:         p.DB,
		IDs:        p.IDs,
		Periods:    p.Periods,
		Flags:      p.Flags,
		DailyLimit: p.DailyLimit,
		Cashback:   p.Cashback,
		Ranking:    p.Ranking,
		Milestone:  p.Milestone,
		Config:     p.Config.Ranking,
		Settings: func() config.Ranking {
			return config.Current(p.Config).Ranking
		},
	}
	// typed nil pointers must not reach the interfaces
	if p.CacheSync != nil {
		deps.CacheSync = p.CacheSync
	}
	if p.Snapshot != nil {
		deps.Snapshot = p.Snapshot
	}
	return New(deps)
}

func ProvideDispatcher(cfg *config.Config, enqueuer task.Enqueuer, periods awardperiod.Client) *Dispatcher {
	r := cfg.Ranking
	r.ApplyDefaults()
	return NewDispatcher(enqueuer, periods, r.MaxRunDuration)
}

func ProvideScheduler(cfg *config.Config, dispatcher *Dispatcher) *Scheduler {
	r := cfg.Ranking
	r.ApplyDefaults()
	return NewScheduler(dispatcher, r.ScheduleHour, r.ScheduleMinute)
}

func RegisterHandlers(mux *asynq.ServeMux, h *Handler) {
	mux.HandleFunc(taskname.RankingPeriodRun, h.HandleRunPeriod)
	mux.HandleFunc(taskname.RankingRunAll, h.HandleRunAll)
}
