package main

import (
	"log"
	"os"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creatorpay/pkg/config"
	"creatorpay/pkg/db"
	"creatorpay/pkg/hashistack/secretmanager"
	"creatorpay/pkg/health"
	"creatorpay/pkg/httpapi"
	"creatorpay/pkg/logger"
	"creatorpay/pkg/redis"
	"creatorpay/pkg/sequence"
	"creatorpay/pkg/server"
	"creatorpay/pkg/task"
	"creatorpay/services/earning"
	"creatorpay/services/gateway"
	"creatorpay/services/payment"
	"creatorpay/services/user"
	"creatorpay/services/withdrawal"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		sequence.Module,
		health.Module,
		fx.Provide(
			provideTracerProvider,
			provideSnowflakeNode,
		),
		httpapi.Module,
		gateway.Module,
		earning.Module,
		payment.Module,
		payment.Worker,
		withdrawal.Module,
		server.ProvideHTTPServer,
		fx.Invoke(autoMigrate),
		fxLogger,
	}

	// secrets come from vault only where a vault is reachable; everywhere
	// else the environment supplies them directly
	if os.Getenv("VAULT_ADDR") != "" {
		opts = append([]fx.Option{secretmanager.Module}, opts...)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func autoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&user.User{},
		&payment.Payment{},
		&earning.Earning{},
		&earning.MonetizationSettings{},
		&withdrawal.Withdrawal{},
	)
}
