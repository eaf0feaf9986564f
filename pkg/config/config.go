package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type GatewayConfig struct {
	Enabled    bool   `mapstructure:"ENABLED"`
	MerchantID string `mapstructure:"MERCHANT_ID"`
	Password   string `mapstructure:"PASSWORD"`
	Secret     string `mapstructure:"SECRET"`
	Endpoint   string `mapstructure:"ENDPOINT"`
	ReturnURL  string `mapstructure:"RETURN_URL"`
	CancelURL  string `mapstructure:"CANCEL_URL"`
	NotifyURL  string `mapstructure:"NOTIFY_URL"`
}

type PayFastConfig struct {
	GatewayConfig `mapstructure:",squash"`
	MerchantKey   string `mapstructure:"MERCHANT_KEY"`
	Passphrase    string `mapstructure:"PASSPHRASE"`
	// ValidateURL is the server-to-server confirmation endpoint.
	ValidateURL string   `mapstructure:"VALIDATE_URL"`
	AllowedIPs  []string `mapstructure:"ALLOWED_IPS"`
}

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Payment struct {
		// PendingTTL bounds how long a payment may sit in pending before the
		// reconciliation job expires it.
		PendingTTL        time.Duration `mapstructure:"PENDING_TTL"`
		ReconcileInterval time.Duration `mapstructure:"RECONCILE_INTERVAL"`
		ErrorRedirectURL  string        `mapstructure:"ERROR_REDIRECT_URL"`
		ReturnRedirectURL string        `mapstructure:"RETURN_REDIRECT_URL"`
	} `mapstructure:"PAYMENT"`
	JazzCash  GatewayConfig `mapstructure:"JAZZCASH"`
	EasyPaisa GatewayConfig `mapstructure:"EASYPAISA"`
	PayFast   PayFastConfig `mapstructure:"PAYFAST"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config file", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if cfg.Payment.PendingTTL == 0 {
		cfg.Payment.PendingTTL = 24 * time.Hour
	}
	if cfg.Payment.ReconcileInterval == 0 {
		cfg.Payment.ReconcileInterval = time.Hour
	}

	if p.Vault != nil {
		client := p.Vault
		ctx := context.Background()

		zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
		secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
		if err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Info("Success Get Secret")

		get := func(key string) string {
			if val, ok := secret.Data.Data[key].(string); ok {
				return val
			}
			return ""
		}

		cfg.Database.User = get("postgres_user")
		cfg.Database.Password = get("postgres_password")
		cfg.Redis.Password = get("redis_password")
		cfg.JazzCash.Secret = get("jazzcash_integrity_salt")
		cfg.EasyPaisa.Secret = get("easypaisa_hash_key")
		cfg.PayFast.Passphrase = get("payfast_passphrase")
		cfg.PayFast.MerchantKey = get("payfast_merchant_key")
	}

	if err := cfg.ValidateGateways(); err != nil {
		zap.L().Error("invalid gateway configuration", zap.Error(err))
		os.Exit(1)
	}

	return &cfg
}

// ValidateGateways rejects a configuration that enables a gateway without its
// merchant credentials. There are deliberately no built-in fallbacks: a
// missing secret stops the process at startup instead of signing requests
// with a placeholder.
func (c *Config) ValidateGateways() error {
	if c.JazzCash.Enabled {
		if c.JazzCash.MerchantID == "" || c.JazzCash.Secret == "" {
			return fmt.Errorf("jazzcash enabled without merchant_id/integrity salt")
		}
	}
	if c.EasyPaisa.Enabled {
		if c.EasyPaisa.MerchantID == "" || c.EasyPaisa.Secret == "" {
			return fmt.Errorf("easypaisa enabled without store_id/hash key")
		}
	}
	if c.PayFast.Enabled {
		if c.PayFast.MerchantID == "" || c.PayFast.MerchantKey == "" {
			return fmt.Errorf("payfast enabled without merchant_id/merchant_key")
		}
	}
	return nil
}
