package earning

import (
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("earning.service",
	fx.Provide(provideSettings),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

type settingsParams struct {
	fx.In
	DB    *gorm.DB
	Redis *goredis.Client `optional:"true"`
}

func provideSettings(p settingsParams) *Settings {
	return NewSettings(p.DB, p.Redis)
}

func registerRoutes(engine *gin.Engine, handler *Handler) {
	handler.Register(engine)
}
