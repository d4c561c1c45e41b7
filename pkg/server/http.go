package server

import (
	"context"
	"errors"
	"net/http"

	"cashback-ranking/pkg/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ProvideHTTPServer = fx.Module("http.server",
	fx.Provide(NewHttpServer),
	fx.Invoke(Run),
)

type Server struct {
	server *http.Server
}

type Params struct {
	fx.In
	Config  *config.Config
	Handler *gin.Engine
}

func NewHttpServer(p Params) *Server {
	cfg := p.Config
	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      p.Handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

func Run(lc fx.Lifecycle, srv *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			zap.L().Info("Starting ops HTTP server", zap.String("addr", srv.server.Addr))
			go func() {
				if err := srv.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					zap.L().Error("ops HTTP server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("Shutting down ops HTTP server gracefully...")
			return srv.server.Shutdown(ctx)
		},
	})
}
