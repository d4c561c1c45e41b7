package main

import (
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"cashback-ranking/pkg/config"
	"cashback-ranking/pkg/db"
	"cashback-ranking/pkg/featureflags"
	"cashback-ranking/pkg/gen"
	"cashback-ranking/pkg/hashistack/secretmanager"
	"cashback-ranking/pkg/health"
	"cashback-ranking/pkg/httpapi"
	"cashback-ranking/pkg/logger"
	"cashback-ranking/pkg/minio"
	"cashback-ranking/pkg/otelcol"
	"cashback-ranking/pkg/profiling"
	"cashback-ranking/pkg/redis"
	"cashback-ranking/pkg/server"
	"cashback-ranking/pkg/task"
	"cashback-ranking/services/awardperiod"
	"cashback-ranking/services/bootstrap"
	"cashback-ranking/services/cachesync"
	"cashback-ranking/services/cashback"
	"cashback-ranking/services/dailylimit"
	"cashback-ranking/services/milestone"
	"cashback-ranking/services/orchestrator"
	"cashback-ranking/services/ranking"
	"cashback-ranking/services/snapshot"
	"cashback-ranking/services/transaction"
	"cashback-ranking/services/workerlock"
)

func main() {
	app := fx.New(
		secretmanager.Module,
		configModule(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		featureflags.Module,
		minio.Client,
		task.Client,
		task.Server,

		bootstrap.Module,
		workerlock.Module,
		awardperiod.Module,
		transaction.Module,
		ranking.Module,
		cashback.Module,
		milestone.Module,
		dailylimit.Module,
		cachesync.Module,
		snapshot.Module,
		orchestrator.Module,
		orchestrator.Worker,
		orchestrator.Schedule,

		health.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		fxLogger,
	)

	app.Run()
}

// configModule reads the remote provider when REMOTE_CONFIG_PROVIDER is set.
func configModule() fx.Option {
	if _, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		return config.RemoteModule
	}
	return config.Module
}

var fxLogger = fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
	l := &fxevent.ZapLogger{Logger: logger.Named("fx")}
	l.UseLogLevel(zap.DebugLevel)
	return l
})
