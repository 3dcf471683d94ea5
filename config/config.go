// Package config loads the bot configuration from YAML and the environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/tradeflow/internal/domain"
)

const (
	VenuePaper   = "paper"
	VenueBinance = "binance"

	StorageWAL      = "wal"
	StoragePostgres = "postgres"

	ProviderBinance = "binance"
	ProviderBybit   = "bybit"
)

// environment variables holding secrets
const (
	EnvLLMAPIKey        = "TRADEFLOW_LLM_API_KEY"
	EnvPostgresDSN      = "TRADEFLOW_POSTGRES_DSN"
	EnvRedisPassword    = "TRADEFLOW_REDIS_PASSWORD"
	EnvBinanceAPIKey    = "BINANCE_API_KEY"
	EnvBinanceAPISecret = "BINANCE_API_SECRET"
	EnvBybitAPIKey      = "BYBIT_API_KEY"
	EnvBybitAPISecret   = "BYBIT_API_SECRET"
	EnvTelegramToken    = "TELEGRAM_BOT_TOKEN"
)

// Config validated bot configuration.
type Config struct {
	Quote    string
	Capital  decimal.Decimal
	Interval time.Duration
	Venue    string
	// Providers market-data providers in fallback order.
	Providers     []string
	KlineInterval string

	Storage  Storage
	Cache    Cache
	Oracle   Oracle
	Risk     Risk
	Pipeline Pipeline
	Exec     Execution
	Notify   Notify
	Web      Web

	Binance Credentials
	Bybit   Credentials
}

type Credentials struct {
	APIKey    string
	APISecret string
}

type Storage struct {
	Driver      string
	WALDir      string
	PostgresDSN string
	MaxConns    int32
}

type Cache struct {
	RedisAddr string
	Password  string
	DB        int
	TTL       time.Duration
}

// Enabled reports whether a redis cache is configured.
func (c Cache) Enabled() bool {
	return c.RedisAddr != ""
}

type Oracle struct {
	APIURL     string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Enabled reports whether the LLM oracle can be used.
func (o Oracle) Enabled() bool {
	return o.APIKey != ""
}

type Risk struct {
	MinPosition   decimal.Decimal
	MaxPosition   decimal.Decimal
	MinConfidence float64
	MaxSlippage   float64
	// MaxStagedEntries and MaxStagedHours bound staged entries suggested by the oracle.
	MaxStagedEntries int
	MaxStagedHours   int
}

type Pipeline struct {
	Benchmark              string
	CandidateLimit         int
	HistoryLimit           int
	Concurrency            int
	MinLiquidity           decimal.Decimal
	MinVolume24h           decimal.Decimal
	MaxHolderConcentration float64
	RequireVerified        bool
	MaxPositions           int
	Cooldown               time.Duration
}

type Execution struct {
	MaxAttempts     int
	Backoff         time.Duration
	CallTimeout     time.Duration
	ConfirmPolls    int
	ConfirmInterval time.Duration
}

type Notify struct {
	QueueSize      int
	TelegramToken  string
	TelegramChatID string
	WebhookURL     string
}

type Web struct {
	Addr string
}

// ConfigTmp raw YAML layout. Money is kept as strings so it parses into decimals without float rounding.
type ConfigTmp struct {
	Quote         string        `yaml:"quote"`
	Capital       string        `yaml:"capital"`
	Interval      time.Duration `yaml:"interval"`
	Venue         string        `yaml:"venue"`
	Providers     []string      `yaml:"providers"`
	KlineInterval string        `yaml:"kline_interval"`

	Storage struct {
		Driver   string `yaml:"driver"`
		WALDir   string `yaml:"wal_dir"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"storage"`

	Cache struct {
		RedisAddr string        `yaml:"redis_addr"`
		DB        int           `yaml:"db"`
		TTL       time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	Oracle struct {
		APIURL     string        `yaml:"api_url"`
		Model      string        `yaml:"model"`
		Timeout    time.Duration `yaml:"timeout"`
		MaxRetries int           `yaml:"max_retries"`
	} `yaml:"oracle"`

	Risk struct {
		MinPosition   string  `yaml:"min_position"`
		MaxPosition   string  `yaml:"max_position"`
		MinConfidence float64 `yaml:"min_confidence"`
		MaxSlippage   float64 `yaml:"max_slippage"`

		MaxStagedEntries int `yaml:"max_staged_entries"`
		MaxStagedHours   int `yaml:"max_staged_hours"`
	} `yaml:"risk"`

	Pipeline struct {
		Benchmark              string        `yaml:"benchmark"`
		CandidateLimit         int           `yaml:"candidate_limit"`
		HistoryLimit           int           `yaml:"history_limit"`
		Concurrency            int           `yaml:"concurrency"`
		MinLiquidity           string        `yaml:"min_liquidity"`
		MinVolume24h           string        `yaml:"min_volume_24h"`
		MaxHolderConcentration float64       `yaml:"max_holder_concentration"`
		RequireVerified        bool          `yaml:"require_verified"`
		MaxPositions           int           `yaml:"max_positions"`
		Cooldown               time.Duration `yaml:"cooldown"`
	} `yaml:"pipeline"`

	Execution struct {
		MaxAttempts     int           `yaml:"max_attempts"`
		Backoff         time.Duration `yaml:"backoff"`
		CallTimeout     time.Duration `yaml:"call_timeout"`
		ConfirmPolls    int           `yaml:"confirm_polls"`
		ConfirmInterval time.Duration `yaml:"confirm_interval"`
	} `yaml:"execution"`

	Notify struct {
		QueueSize      int    `yaml:"queue_size"`
		TelegramChatID string `yaml:"telegram_chat_id"`
		WebhookURL     string `yaml:"webhook_url"`
	} `yaml:"notify"`

	Web struct {
		Addr string `yaml:"addr"`
	} `yaml:"web"`
}

// Load reads the YAML file at path and fills secrets from the environment.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}
	return Parse(data, os.Getenv)
}

// Parse builds the configuration from YAML. getenv resolves secrets.
func Parse(data []byte, getenv func(string) string) (Config, error) {
	var tmp ConfigTmp
	if err := yaml.Unmarshal(data, &tmp); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse yaml config")
	}

	cfg, err := tmp.toConfig()
	if err != nil {
		return Config{}, err
	}

	cfg.Oracle.APIKey = getenv(EnvLLMAPIKey)
	cfg.Storage.PostgresDSN = getenv(EnvPostgresDSN)
	cfg.Cache.Password = getenv(EnvRedisPassword)
	cfg.Binance = Credentials{APIKey: getenv(EnvBinanceAPIKey), APISecret: getenv(EnvBinanceAPISecret)}
	cfg.Bybit = Credentials{APIKey: getenv(EnvBybitAPIKey), APISecret: getenv(EnvBybitAPISecret)}
	cfg.Notify.TelegramToken = getenv(EnvTelegramToken)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c ConfigTmp) toConfig() (Config, error) {
	capital, err := parseDecimal("capital", c.Capital, decimal.NewFromInt(1000))
	if err != nil {
		return Config{}, err
	}
	minPosition, err := parseDecimal("risk.min_position", c.Risk.MinPosition, decimal.NewFromInt(10))
	if err != nil {
		return Config{}, err
	}
	maxPosition, err := parseDecimal("risk.max_position", c.Risk.MaxPosition, decimal.NewFromInt(200))
	if err != nil {
		return Config{}, err
	}
	minLiquidity, err := parseDecimal("pipeline.min_liquidity", c.Pipeline.MinLiquidity, decimal.NewFromInt(100_000))
	if err != nil {
		return Config{}, err
	}
	minVolume, err := parseDecimal("pipeline.min_volume_24h", c.Pipeline.MinVolume24h, decimal.NewFromInt(50_000))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Quote:         strings.ToUpper(or(c.Quote, "USDT")),
		Capital:       capital,
		Interval:      orDuration(c.Interval, time.Minute),
		Venue:         strings.ToLower(or(c.Venue, VenuePaper)),
		Providers:     c.Providers,
		KlineInterval: or(c.KlineInterval, "1h"),
		Storage: Storage{
			Driver:   strings.ToLower(or(c.Storage.Driver, StorageWAL)),
			WALDir:   or(c.Storage.WALDir, "./wal"),
			MaxConns: c.Storage.MaxConns,
		},
		Cache: Cache{
			RedisAddr: c.Cache.RedisAddr,
			DB:        c.Cache.DB,
			TTL:       orDuration(c.Cache.TTL, 30*time.Second),
		},
		Oracle: Oracle{
			APIURL:     or(c.Oracle.APIURL, "https://openrouter.ai/api/v1/chat/completions"),
			Model:      or(c.Oracle.Model, "deepseek/deepseek-chat"),
			Timeout:    orDuration(c.Oracle.Timeout, 60*time.Second),
			MaxRetries: c.Oracle.MaxRetries,
		},
		Risk: Risk{
			MinPosition:   minPosition,
			MaxPosition:   maxPosition,
			MinConfidence: orFloat(c.Risk.MinConfidence, 0.7),
			MaxSlippage:   orFloat(c.Risk.MaxSlippage, 0.01),

			MaxStagedEntries: orInt(c.Risk.MaxStagedEntries, 3),
			MaxStagedHours:   orInt(c.Risk.MaxStagedHours, 24),
		},
		Pipeline: Pipeline{
			Benchmark:              strings.ToUpper(or(c.Pipeline.Benchmark, "BTC")),
			CandidateLimit:         c.Pipeline.CandidateLimit,
			HistoryLimit:           c.Pipeline.HistoryLimit,
			Concurrency:            c.Pipeline.Concurrency,
			MinLiquidity:           minLiquidity,
			MinVolume24h:           minVolume,
			MaxHolderConcentration: c.Pipeline.MaxHolderConcentration,
			RequireVerified:        c.Pipeline.RequireVerified,
			MaxPositions:           c.Pipeline.MaxPositions,
			Cooldown:               orDuration(c.Pipeline.Cooldown, 15*time.Minute),
		},
		Exec: Execution{
			MaxAttempts:     c.Execution.MaxAttempts,
			Backoff:         c.Execution.Backoff,
			CallTimeout:     c.Execution.CallTimeout,
			ConfirmPolls:    c.Execution.ConfirmPolls,
			ConfirmInterval: c.Execution.ConfirmInterval,
		},
		Notify: Notify{
			QueueSize:      c.Notify.QueueSize,
			TelegramChatID: c.Notify.TelegramChatID,
			WebhookURL:     c.Notify.WebhookURL,
		},
		Web: Web{Addr: c.Web.Addr},
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = []string{ProviderBinance, ProviderBybit}
	}
	for i, p := range cfg.Providers {
		cfg.Providers[i] = strings.ToLower(p)
	}

	return cfg, nil
}

// Validate checks the configuration for values the bot cannot run with.
func (c Config) Validate() error {
	if !c.Capital.IsPositive() {
		return errors.Errorf("capital must be positive, got %s", c.Capital)
	}
	if c.Risk.MinPosition.IsNegative() {
		return errors.Errorf("risk.min_position must not be negative, got %s", c.Risk.MinPosition)
	}
	if c.Risk.MaxPosition.LessThan(c.Risk.MinPosition) {
		return errors.Errorf("risk.max_position %s is below risk.min_position %s", c.Risk.MaxPosition, c.Risk.MinPosition)
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		return errors.Errorf("risk.min_confidence must be within [0, 1], got %v", c.Risk.MinConfidence)
	}
	if c.Risk.MaxSlippage <= 0 || c.Risk.MaxSlippage >= 1 {
		return errors.Errorf("risk.max_slippage must be within (0, 1), got %v", c.Risk.MaxSlippage)
	}
	if c.Risk.MaxStagedEntries < 1 || c.Risk.MaxStagedEntries > domain.MaxStagedEntries {
		return errors.Errorf("risk.max_staged_entries must be within [1, %d], got %d", domain.MaxStagedEntries, c.Risk.MaxStagedEntries)
	}
	if c.Risk.MaxStagedHours < 1 || c.Risk.MaxStagedHours > domain.MaxStagedHours {
		return errors.Errorf("risk.max_staged_hours must be within [1, %d], got %d", domain.MaxStagedHours, c.Risk.MaxStagedHours)
	}
	if c.Pipeline.MaxHolderConcentration < 0 || c.Pipeline.MaxHolderConcentration > 1 {
		return errors.Errorf("pipeline.max_holder_concentration must be within [0, 1], got %v", c.Pipeline.MaxHolderConcentration)
	}

	switch c.Venue {
	case VenuePaper:
	case VenueBinance:
		if c.Binance.APIKey == "" || c.Binance.APISecret == "" {
			return errors.Errorf("venue binance requires %s and %s", EnvBinanceAPIKey, EnvBinanceAPISecret)
		}
	default:
		return errors.Errorf("unsupported venue: %s", c.Venue)
	}

	for _, p := range c.Providers {
		if p != ProviderBinance && p != ProviderBybit {
			return errors.Errorf("unsupported market data provider: %s", p)
		}
	}

	switch c.Storage.Driver {
	case StorageWAL:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.Errorf("storage driver postgres requires %s", EnvPostgresDSN)
		}
	default:
		return errors.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}

	if c.Notify.TelegramChatID != "" && c.Notify.TelegramToken == "" {
		return errors.Errorf("notify.telegram_chat_id requires %s", EnvTelegramToken)
	}
	return nil
}

func parseDecimal(field, s string, def decimal.Decimal) (decimal.Decimal, error) {
	if s == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "incorrect '%s' param in yaml config", field)
	}
	return d, nil
}

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func orInt(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func orFloat(f, def float64) float64 {
	if f == 0 {
		return def
	}
	return f
}
