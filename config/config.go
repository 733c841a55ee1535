package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the engine, loaded from the
// environment.
type Config struct {
	// Mode
	DryRun bool
	Debug  bool

	// Engine cadence
	CycleInterval  time.Duration
	RecomputeEvery int
	RegimeAsset    string

	// Capital and risk limits
	Capital             decimal.Decimal
	MaxPositionFraction decimal.Decimal
	MaxAssetFraction    decimal.Decimal
	MaxTotalFraction    decimal.Decimal
	MaxDailyLoss        decimal.Decimal
	MaxTradesPerDay     int
	MaxConsecLosses     int
	CooldownDuration    time.Duration

	// Ranking
	TopK int

	// Broker
	BrokerURL        string
	BrokerAPIKey     string
	BrokerAPISecret  string
	BrokerPassphrase string
	ETHPrivateKey    string

	// Feeds
	EthRPCURL string

	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Dashboard
	DashboardAddr string

	// Database
	DatabaseDSN string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DryRun: getEnvBool("DRY_RUN", true),
		Debug:  getEnvBool("DEBUG", false),

		CycleInterval:  getEnvDuration("CYCLE_INTERVAL", 60*time.Second),
		RecomputeEvery: getEnvInt("WEIGHT_RECOMPUTE_CYCLES", 10),
		RegimeAsset:    getEnv("REGIME_ASSET", "SPY"),

		Capital:             getEnvDecimal("CAPITAL", decimal.NewFromInt(100000)),
		MaxPositionFraction: getEnvDecimal("MAX_POSITION_FRACTION", decimal.NewFromFloat(0.03)),
		MaxAssetFraction:    getEnvDecimal("MAX_ASSET_FRACTION", decimal.NewFromFloat(0.05)),
		MaxTotalFraction:    getEnvDecimal("MAX_TOTAL_FRACTION", decimal.NewFromFloat(0.25)),
		MaxDailyLoss:        getEnvDecimal("MAX_DAILY_LOSS_FRACTION", decimal.NewFromFloat(0.05)),
		MaxTradesPerDay:     getEnvInt("MAX_TRADES_PER_DAY", 30),
		MaxConsecLosses:     getEnvInt("MAX_CONSECUTIVE_LOSSES", 3),
		CooldownDuration:    getEnvDuration("COOLDOWN_DURATION", 4*time.Hour),

		TopK: getEnvInt("RANKER_TOP_K", 3),

		BrokerURL:        getEnv("BROKER_URL", "https://api.example-broker.com"),
		BrokerAPIKey:     os.Getenv("BROKER_API_KEY"),
		BrokerAPISecret:  os.Getenv("BROKER_API_SECRET"),
		BrokerPassphrase: os.Getenv("BROKER_PASSPHRASE"),
		ETHPrivateKey:    os.Getenv("ETH_PRIVATE_KEY"),

		EthRPCURL: getEnv("ETH_RPC_URL", "https://eth.llamarpc.com"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		DashboardAddr: getEnv("DASHBOARD_ADDR", ":8080"),

		DatabaseDSN: getEnv("DATABASE_DSN", "data/medusa.db"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if !cfg.Capital.IsPositive() {
		return nil, fmt.Errorf("CAPITAL must be positive")
	}
	if !cfg.DryRun && cfg.ETHPrivateKey == "" {
		return nil, fmt.Errorf("ETH_PRIVATE_KEY is required in live mode")
	}
	if cfg.CycleInterval < time.Second {
		return nil, fmt.Errorf("CYCLE_INTERVAL below 1s is not supported")
	}

	return cfg, nil
}

// TelegramEnabled reports whether both token and chat ID are set.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
