package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Cron    CronConfig    `mapstructure:"cron"`
	Tracker TrackerConfig `mapstructure:"tracker"`
	Oracle  OracleConfig  `mapstructure:"oracle"`
	Sim     SimConfig     `mapstructure:"sim"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Ingest  string `mapstructure:"ingest"`
}

// TrackerConfig points at the Solana Tracker data API.
type TrackerConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	TargetWallet string        `mapstructure:"target_wallet"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxPages     int           `mapstructure:"max_pages"`
}

type OracleConfig struct {
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// SimConfig holds the sizing rules for the simulated wallet.
type SimConfig struct {
	BuyFraction    float64 `mapstructure:"buy_fraction"`
	SellFraction   float64 `mapstructure:"sell_fraction"`
	InitialBalance float64 `mapstructure:"initial_balance"`
}

type IngestConfig struct {
	TickTimeout time.Duration `mapstructure:"tick_timeout"`
	// ColdStartLookback backdates the watermark when the trade log is empty.
	// Zero means "start from now": only trades after process start are mirrored.
	ColdStartLookback time.Duration `mapstructure:"cold_start_lookback"`
	// StatusLookback bounds how far back the status aggregation reads the log.
	// Zero means the whole log.
	StatusLookback time.Duration `mapstructure:"status_lookback"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.ingest", "@every 3m")
	v.SetDefault("tracker.base_url", "https://data.solanatracker.io")
	v.SetDefault("tracker.timeout", "15s")
	v.SetDefault("tracker.max_pages", 10)
	v.SetDefault("oracle.cache_ttl", "300s")
	v.SetDefault("oracle.max_attempts", 3)
	v.SetDefault("oracle.backoff_base", "1s")
	v.SetDefault("sim.buy_fraction", 0.10)
	v.SetDefault("sim.sell_fraction", 0.50)
	v.SetDefault("sim.initial_balance", 2.0)
	v.SetDefault("ingest.tick_timeout", "60s")
	v.SetDefault("ingest.cold_start_lookback", "0s")
	v.SetDefault("ingest.status_lookback", "0s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
