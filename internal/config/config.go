package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppCfg struct{ Env, Port string }
type DBCfg struct{ DSN string }
type RedisCfg struct{ Addr string }

// GatewayCfg points at the M-Pesa gateway (push/status endpoints plus the
// OAuth credentials used to mint bearer tokens).
type GatewayCfg struct {
	BaseURL        string
	AuthURL        string
	ConsumerKey    string
	ConsumerSecret string
	TimeoutSec     int
}

// RealtimeCfg points at the ledger store's change-notification websocket.
// Realtime is best-effort; leaving it disabled degrades to polling only.
type RealtimeCfg struct {
	Enabled bool
	URL     string
}

type PaymentCfg struct {
	DeadlineSec int
}

// SecurityCfg guards the station-facing HTTP API.
type SecurityCfg struct {
	StationToken string
}

type Cfg struct {
	App      AppCfg
	DB       DBCfg
	Redis    RedisCfg
	Gateway  GatewayCfg
	Realtime RealtimeCfg
	Payment  PaymentCfg
	Sec      SecurityCfg
}

func Load() Cfg {
	// .env is optional; process env always wins.
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetDefault("APP_ENV", "sandbox")
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("TZ", "Africa/Nairobi")
	viper.SetDefault("GATEWAY_TIMEOUT_SEC", 30)
	viper.SetDefault("PAYMENT_DEADLINE_SEC", 90)
	viper.SetDefault("REALTIME_ENABLED", false)

	if tz := viper.GetString("TZ"); tz != "" {
		os.Setenv("TZ", tz)
	}

	cfg := Cfg{
		App: AppCfg{
			Env:  viper.GetString("APP_ENV"),
			Port: viper.GetString("APP_PORT"),
		},
		DB:    DBCfg{DSN: viper.GetString("DB_DSN")},
		Redis: RedisCfg{Addr: viper.GetString("REDIS_ADDR")},
		Gateway: GatewayCfg{
			BaseURL:        viper.GetString("GATEWAY_BASE_URL"),
			AuthURL:        viper.GetString("GATEWAY_AUTH_URL"),
			ConsumerKey:    viper.GetString("GATEWAY_CONSUMER_KEY"),
			ConsumerSecret: viper.GetString("GATEWAY_CONSUMER_SECRET"),
			TimeoutSec:     viper.GetInt("GATEWAY_TIMEOUT_SEC"),
		},
		Realtime: RealtimeCfg{
			Enabled: viper.GetBool("REALTIME_ENABLED"),
			URL:     viper.GetString("REALTIME_URL"),
		},
		Payment: PaymentCfg{
			DeadlineSec: viper.GetInt("PAYMENT_DEADLINE_SEC"),
		},
		Sec: SecurityCfg{
			StationToken: strings.TrimSpace(viper.GetString("STATION_TOKEN")),
		},
	}

	if cfg.Gateway.AuthURL == "" {
		cfg.Gateway.AuthURL = cfg.Gateway.BaseURL
	}

	// Fail fast on required settings.
	if cfg.DB.DSN == "" {
		log.Fatal().Msg("DB_DSN is required")
	}
	if cfg.Gateway.BaseURL == "" {
		log.Fatal().Msg("GATEWAY_BASE_URL is required")
	}
	if cfg.Realtime.Enabled && cfg.Realtime.URL == "" {
		log.Fatal().Msg("REALTIME_URL is required when REALTIME_ENABLED is set")
	}

	_ = time.Local // TZ set via env
	return cfg
}
