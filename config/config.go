package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Rewards   RewardsConfig   `mapstructure:"rewards"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Firebase  FirebaseConfig  `mapstructure:"firebase"`
	Events    EventsConfig    `mapstructure:"events"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Env          string        `mapstructure:"env"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // mysql | sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type JWTConfig struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessExpiry  time.Duration `mapstructure:"access_expiry"`
	RefreshExpiry time.Duration `mapstructure:"refresh_expiry"`
	Issuer        string        `mapstructure:"issuer"`
}

// RewardsConfig holds the fallback reward settings used when no active
// reward_settings row exists.
type RewardsConfig struct {
	PointsPerMinute            float64       `mapstructure:"points_per_minute"`
	PointsToDollarRate         float64       `mapstructure:"points_to_dollar_rate"`
	MaxFreeMinutes             float64       `mapstructure:"max_free_minutes"`
	ContinuationRateMultiplier float64       `mapstructure:"continuation_rate_multiplier"`
	ContinueGrace              time.Duration `mapstructure:"continue_grace"` // after the free-tier limit, before auto-termination
}

type MatchingConfig struct {
	CandidatePool       int           `mapstructure:"candidate_pool"`
	MaxAlternates       int           `mapstructure:"max_alternates"`
	HeartbeatStaleAfter time.Duration `mapstructure:"heartbeat_stale_after"` // 0 disables the staleness filter
	DefaultCurrency     string        `mapstructure:"default_currency"`
}

type RateLimitConfig struct {
	GlobalPerMinute   int `mapstructure:"global_per_minute"`
	MutationPerMinute int `mapstructure:"mutation_per_minute"`
}

type FirebaseConfig struct {
	ServiceAccountPath string `mapstructure:"service_account_path"`
}

// AdminConfig seeds the first admin account. Seeding is skipped while either field is empty.
type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

type EventsConfig struct {
	Buffer  int `mapstructure:"buffer"`
	Workers int `mapstructure:"workers"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8099",
			Env:          "development",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "mysql",
			DSN:             "haven:haven@tcp(localhost:3306)/haven?charset=utf8mb4&parseTime=True&loc=UTC",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret:  "change-me-in-production",
			RefreshSecret: "change-me-refresh",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
			Issuer:        "haven",
		},
		Rewards: RewardsConfig{
			PointsPerMinute:            40,
			PointsToDollarRate:         0.10,
			MaxFreeMinutes:             5,
			ContinuationRateMultiplier: 1.5,
			ContinueGrace:              2 * time.Minute,
		},
		Matching: MatchingConfig{
			CandidatePool:   50,
			MaxAlternates:   10,
			DefaultCurrency: "USD",
		},
		RateLimit: RateLimitConfig{
			GlobalPerMinute:   100,
			MutationPerMinute: 20,
		},
		Events: EventsConfig{
			Buffer:  256,
			Workers: 2,
		},
	}
}

// Load returns Defaults overlaid with an optional config.yaml and HAVEN_* environment variables.
func Load() *Config {
	cfg := Defaults()
	v := viper.New()
	setDefaults(v, cfg)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("HAVEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Printf("[Config] no config.yaml found, using defaults and environment")
		} else {
			log.Fatalf("[Config] read config: %v", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		log.Fatalf("[Config] unmarshal: %v", err)
	}
	return cfg
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.env", cfg.Server.Env)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)

	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)

	v.SetDefault("jwt.access_secret", cfg.JWT.AccessSecret)
	v.SetDefault("jwt.refresh_secret", cfg.JWT.RefreshSecret)
	v.SetDefault("jwt.access_expiry", cfg.JWT.AccessExpiry)
	v.SetDefault("jwt.refresh_expiry", cfg.JWT.RefreshExpiry)
	v.SetDefault("jwt.issuer", cfg.JWT.Issuer)

	v.SetDefault("rewards.points_per_minute", cfg.Rewards.PointsPerMinute)
	v.SetDefault("rewards.points_to_dollar_rate", cfg.Rewards.PointsToDollarRate)
	v.SetDefault("rewards.max_free_minutes", cfg.Rewards.MaxFreeMinutes)
	v.SetDefault("rewards.continuation_rate_multiplier", cfg.Rewards.ContinuationRateMultiplier)
	v.SetDefault("rewards.continue_grace", cfg.Rewards.ContinueGrace)

	v.SetDefault("matching.candidate_pool", cfg.Matching.CandidatePool)
	v.SetDefault("matching.max_alternates", cfg.Matching.MaxAlternates)
	v.SetDefault("matching.heartbeat_stale_after", cfg.Matching.HeartbeatStaleAfter)
	v.SetDefault("matching.default_currency", cfg.Matching.DefaultCurrency)

	v.SetDefault("rate_limit.global_per_minute", cfg.RateLimit.GlobalPerMinute)
	v.SetDefault("rate_limit.mutation_per_minute", cfg.RateLimit.MutationPerMinute)

	v.SetDefault("firebase.service_account_path", cfg.Firebase.ServiceAccountPath)

	v.SetDefault("events.buffer", cfg.Events.Buffer)
	v.SetDefault("events.workers", cfg.Events.Workers)

	v.SetDefault("admin.email", cfg.Admin.Email)
	v.SetDefault("admin.password", cfg.Admin.Password)
}
