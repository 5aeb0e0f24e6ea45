package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/shotsense-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service" mapstructure:"service"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Poll     PollConfig     `yaml:"poll" mapstructure:"poll"`
	Download DownloadConfig `yaml:"download" mapstructure:"download"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
	Serve    ServeConfig    `yaml:"serve" mapstructure:"serve"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ServiceConfig points the client at the analysis service.
type ServiceConfig struct {
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	TimeoutSecs int           `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gt=0"`
	UserAgent   string        `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec  float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec" validate:"gte=0"`
	Retry       RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit     CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig tunes retries of idempotent requests.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=0,lte=10"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms" validate:"gte=0"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms" validate:"gte=0"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier" validate:"gte=0"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction" validate:"gte=0,lte=1"`
}

// CircuitConfig tunes the breaker around the service.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold" validate:"gte=0"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs" validate:"gte=0"`
}

// StoreConfig configures the local database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required_if=Driver postgres"`
	DataDir     string `yaml:"data_dir" mapstructure:"data_dir"`
}

// PollConfig configures waiting for an analysis after upload.
type PollConfig struct {
	InitialSecs int `yaml:"initial_secs" mapstructure:"initial_secs" validate:"gt=0"`
	CapSecs     int `yaml:"cap_secs" mapstructure:"cap_secs" validate:"gtefield=InitialSecs"`
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gt=0"`
}

// DownloadConfig configures media downloads.
type DownloadConfig struct {
	Dir        string  `yaml:"dir" mapstructure:"dir"`
	MaxRetries int     `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=1,lte=10"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec" validate:"gte=0"`
}

// ExportConfig configures the spreadsheet export.
type ExportConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=1,lte=32"`
}

// ServeConfig configures the local viewer API.
type ServeConfig struct {
	Port           int      `yaml:"port" mapstructure:"port" validate:"gte=1,lte=65535"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Timeout returns the request timeout.
func (c ServiceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Policy builds the retry policy.
func (c ServiceConfig) Policy() resilience.Policy {
	r := c.Retry
	return resilience.PolicyFromConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction)
}

// Breaker builds the circuit breaker settings.
func (c ServiceConfig) Breaker() resilience.BreakerConfig {
	return resilience.BreakerFromConfig(c.Circuit.FailureThreshold, c.Circuit.CooldownSecs)
}

// Durations returns the poll interval, cap and timeout.
func (c PollConfig) Durations() (initial, limit, timeout time.Duration) {
	return time.Duration(c.InitialSecs) * time.Second,
		time.Duration(c.CapSecs) * time.Second,
		time.Duration(c.TimeoutSecs) * time.Second
}

// DefaultDataDir is $HOME/.shotsense, or .shotsense when there is no home.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".shotsense"
	}
	return filepath.Join(home, ".shotsense")
}

var validate = validator.New()

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	return eris.Wrap(validate.Struct(cfg), "config: validate")
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(DefaultDataDir())

	// Environment
	v.SetEnvPrefix("SHOTSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("service.base_url", "http://127.0.0.1:5000")
	v.SetDefault("service.timeout_secs", 120)
	v.SetDefault("service.user_agent", "shotsense-cli")
	v.SetDefault("service.rate_per_sec", 5)
	v.SetDefault("service.retry.max_attempts", 3)
	v.SetDefault("service.retry.initial_backoff_ms", 500)
	v.SetDefault("service.retry.max_backoff_ms", 10000)
	v.SetDefault("service.retry.multiplier", 2.0)
	v.SetDefault("service.retry.jitter_fraction", 0.2)
	v.SetDefault("service.circuit.failure_threshold", 5)
	v.SetDefault("service.circuit.cooldown_secs", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.data_dir", DefaultDataDir())
	v.SetDefault("poll.initial_secs", 2)
	v.SetDefault("poll.cap_secs", 15)
	v.SetDefault("poll.timeout_secs", 300)
	v.SetDefault("download.dir", ".")
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.rate_per_sec", 4)
	v.SetDefault("export.concurrency", 4)
	v.SetDefault("serve.port", 8080)
	v.SetDefault("serve.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Service.BaseURL = strings.TrimRight(cfg.Service.BaseURL, "/")

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	// Logs go to stderr so command output on stdout stays machine-readable.
	zapCfg.OutputPaths = []string{"stderr"}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
