package httpapi

import (
	"creatorpay/pkg/config"
	"creatorpay/pkg/health"
	"creatorpay/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(ProvideRouter),
	fx.Invoke(registerHealthEndpoints),
)

func ProvideRouter(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Error())

	return engine
}

func registerHealthEndpoints(engine *gin.Engine, h health.HealthService) {
	engine.GET("/healthz", h.Liveness)
	engine.GET("/readyz", h.Readiness)
}
