package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	internalhttp "cashback-ranking/internal/httpapi"
	"cashback-ranking/pkg/config"
	"cashback-ranking/pkg/health"
	"cashback-ranking/pkg/middleware"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		internalhttp.NewRunHandler,
		ProvideRouter,
	),
)

type Params struct {
	fx.In
	Config *config.Config
	Health health.HealthService
	Runs   *internalhttp.RunHandler
}

// ProvideRouter serves probes, metrics and the manual run trigger.
func ProvideRouter(p Params) *gin.Engine {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/award-periods/:id/runs", p.Runs.TriggerPeriod)
	v1.POST("/runs", p.Runs.TriggerAll)
	v1.GET("/runs", p.Runs.List)

	return r
}
