package config

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type PostingMode string

const (
	// PostingSync posts ledger and stock inside the transaction that confirms the bill.
	PostingSync PostingMode = "sync"
	// PostingDeferred commits the bill first; the reconciler completes posting.
	PostingDeferred PostingMode = "deferred"
)

type Configuration struct {
	Server     ServerConfig     `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Auth       AuthConfig
	Posting    PostingConfig `validate:"required"`
	Stock      StockConfig
	Reconciler ReconcilerConfig `validate:"required"`
}

type ServerConfig struct {
	Address        string `validate:"required"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
	BodyLimitBytes int64  `mapstructure:"body_limit_bytes" validate:"gt=0"`
}

type PostgresConfig struct {
	URL      string `validate:"required"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

type LoggingConfig struct {
	Level  string `validate:"required,oneof=trace debug info warn error"`
	Format string `validate:"required,oneof=json console"`
	Output string
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string `mapstructure:"jwt_secret" validate:"required_if=Enabled true"`
}

type PostingConfig struct {
	Mode     PostingMode `validate:"required,oneof=sync deferred"`
	OnCreate bool        `mapstructure:"on_create"`
}

type StockConfig struct {
	EnforceNonNegative bool `mapstructure:"enforce_non_negative"`
}

type ReconcilerConfig struct {
	Enabled     bool
	Interval    time.Duration `validate:"gt=0"`
	BatchSize   int           `mapstructure:"batch_size" validate:"gt=0"`
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gt=0"`
	Concurrency int           `validate:"gt=0"`
	MaxElapsed  time.Duration `mapstructure:"max_elapsed" validate:"gt=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.body_limit_bytes", 1<<20)
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("posting.mode", string(PostingSync))
	v.SetDefault("posting.on_create", false)
	v.SetDefault("stock.enforce_non_negative", true)
	v.SetDefault("reconciler.enabled", true)
	v.SetDefault("reconciler.interval", 30*time.Second)
	v.SetDefault("reconciler.batch_size", 50)
	v.SetDefault("reconciler.max_attempts", 10)
	v.SetDefault("reconciler.concurrency", 4)
	v.SetDefault("reconciler.max_elapsed", 20*time.Second)
}

// NewConfig loads .env, then config.yaml (optional), then ERP_* environment variables.
func NewConfig() (*Configuration, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/garments-erp")

	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"postgres.url", "server.allowed_origins", "auth.jwt_secret"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Configuration, error) {
	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Configuration) Validate() error {
	return validator.New().Struct(c)
}

// GetDefaultConfig returns a configuration for tests and local scripts.
func GetDefaultConfig() *Configuration {
	v := viper.New()
	setDefaults(v)
	var cfg Configuration
	_ = v.Unmarshal(&cfg)
	return &cfg
}
