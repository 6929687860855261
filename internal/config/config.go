// Package config loads the YAML configuration shared by the CLIs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"strategy-lab/internal/backtest"
	"strategy-lab/internal/compliance"
	"strategy-lab/internal/optimizer"
)

// Environment variables overriding file values.
const (
	EnvPostgresDSN   = "STRATLAB_POSTGRES_DSN"
	EnvClickHouseDSN = "STRATLAB_CLICKHOUSE_DSN"
	EnvWorkers       = "STRATLAB_WORKERS"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New()

// Config is the root configuration.
type Config struct {
	Risk      RiskConfig      `yaml:"risk"`
	Backtest  BacktestConfig  `yaml:"backtest"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// RiskConfig holds the account limits enforced by the compliance tracker.
// A zero percentage or cap disables that rule.
type RiskConfig struct {
	StartingBalance        float64 `yaml:"starting_balance" default:"100000" validate:"gt=0"`
	RiskPerTradePct        float64 `yaml:"risk_per_trade_pct" default:"1" validate:"gt=0,lte=100"`
	MaxDailyLossPct        float64 `yaml:"max_daily_loss_pct" default:"5" validate:"gte=0,lte=100"`
	MaxTotalDrawdownPct    float64 `yaml:"max_total_drawdown_pct" default:"10" validate:"gte=0,lte=100"`
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions" default:"3" validate:"gte=0"`
	ProfitTargetPct        float64 `yaml:"profit_target_pct" default:"10" validate:"gte=0"`
	ConsecutiveLossCap     int     `yaml:"consecutive_loss_cap" default:"5" validate:"gte=0"`
	HaltPolicy             string  `yaml:"halt_policy" default:"let_resolve" validate:"oneof=let_resolve force_close"`
}

// BacktestConfig holds simulator settings.
type BacktestConfig struct {
	MaxStrategyFaults int `yaml:"max_strategy_faults" default:"50" validate:"gte=1"`
	TimeLimitBars     int `yaml:"time_limit_bars" validate:"gte=0"`
}

// OptimizerConfig holds sweep settings.
type OptimizerConfig struct {
	ParameterSpaceCeiling int `yaml:"parameter_space_ceiling" default:"10000" validate:"gte=1"`
	WorkerCount           int `yaml:"worker_count" default:"4" validate:"gte=1,lte=1024"`
	TopN                  int `yaml:"top_n" default:"10" validate:"gte=0"`
	ProgressEvery         int `yaml:"progress_every" default:"100" validate:"gte=1"`
	TargetTrades          int `yaml:"target_trades" default:"20" validate:"gte=1"`
}

// StorageConfig holds optional database connections. Empty DSNs disable
// the corresponding store.
type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn warning error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		// Only reachable with a malformed default tag.
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file. Fields missing from
// the file keep their defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(b, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes YAML into c, which should already hold defaults, and validates it.
func Parse(b []byte, c *Config) error {
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return c.Validate()
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set are kept. An empty path is a no-op.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv(EnvClickHouseDSN); v != "" {
		c.Storage.ClickHouseDSN = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, EnvWorkers, v)
		}
		c.Optimizer.WorkerCount = n
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

// Limits converts the risk section to compliance limits.
func (r RiskConfig) Limits() compliance.Limits {
	return compliance.Limits{
		StartingBalance:        r.StartingBalance,
		RiskPerTradePct:        r.RiskPerTradePct,
		MaxDailyLossPct:        r.MaxDailyLossPct,
		MaxTotalDrawdownPct:    r.MaxTotalDrawdownPct,
		MaxConcurrentPositions: r.MaxConcurrentPositions,
		ProfitTargetPct:        r.ProfitTargetPct,
		ConsecutiveLossCap:     r.ConsecutiveLossCap,
	}
}

// BacktestOptions builds simulator options from the risk and backtest sections.
func (c *Config) BacktestOptions(log logrus.FieldLogger) backtest.Options {
	return backtest.Options{
		Limits:            c.Risk.Limits(),
		HaltPolicy:        compliance.HaltPolicy(c.Risk.HaltPolicy),
		MaxStrategyFaults: c.Backtest.MaxStrategyFaults,
		TimeLimitBars:     c.Backtest.TimeLimitBars,
		Logger:            log,
	}
}

// OptimizerOptions builds sweep options from the optimizer section.
func (c *Config) OptimizerOptions(log logrus.FieldLogger) optimizer.Options {
	return optimizer.Options{
		Ceiling:       c.Optimizer.ParameterSpaceCeiling,
		Workers:       c.Optimizer.WorkerCount,
		ProgressEvery: c.Optimizer.ProgressEvery,
		Logger:        log,
	}
}

// Scorer returns the default scorer tuned to the configured trade target.
func (c *Config) Scorer() optimizer.Scorer {
	return optimizer.DefaultScorer(c.Optimizer.TargetTrades)
}

// NewLogger returns a logrus logger with the configured level and format.
func (l LogConfig) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	if l.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
