package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the bridge bot. It is constructed once
// at startup and passed by reference; nothing reads configuration globals at
// runtime.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Bridge       BridgeConfig
	Scheduler    SchedulerConfig
	Chains       []ChainConfig
	Notification NotificationConfig
	Logging      LoggingConfig
	Crypto       CryptoConfig
	AWS          AWSConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

// BridgeConfig holds bridge provider configuration
type BridgeConfig struct {
	JumperAPIURL string        `mapstructure:"jumper_api_url"`
	JumperAPIKey string        `mapstructure:"jumper_api_key"`
	RelayAPIURL  string        `mapstructure:"relay_api_url"`
	RelayAPIKey  string        `mapstructure:"relay_api_key"`
	QuoteTimeout time.Duration `mapstructure:"quote_timeout"`
	// MaxAttempts bounds the execute-with-fallback loop. 0 means every
	// ranked quote is tried once.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// SchedulerConfig holds randomized scheduling configuration
type SchedulerConfig struct {
	TransactionsPerDay int           `mapstructure:"transactions_per_day"`
	MinIntervalHours   float64       `mapstructure:"min_interval_hours"`
	MaxIntervalHours   float64       `mapstructure:"max_interval_hours"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	MinAmountPercent   int           `mapstructure:"min_amount_percent"`
	MaxAmountPercent   int           `mapstructure:"max_amount_percent"`
	MinAmount          string        `mapstructure:"min_amount"`
}

// ChainConfig describes one supported EVM chain
type ChainConfig struct {
	Name    string        `mapstructure:"name"`
	RpcURL  string        `mapstructure:"rpc_url"`
	ChainID int64         `mapstructure:"chain_id"`
	Tokens  []TokenConfig `mapstructure:"tokens"`
}

// TokenConfig describes a token tracked on a chain
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Address  string `mapstructure:"address"`
	Decimals int    `mapstructure:"decimals"`
}

// NotificationConfig holds notification configuration
type NotificationConfig struct {
	Telegram TelegramConfig
}

// TelegramConfig holds Telegram specific configuration
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Dir    string
}

// CryptoConfig holds the wallet encryption secret
type CryptoConfig struct {
	Passphrase string
}

// AWSConfig holds AWS configuration for the optional passphrase source
type AWSConfig struct {
	SecretID string `mapstructure:"secret_id"`
}

// LoadConfig loads configuration from YAML file or environment variables
func LoadConfig() *Config {
	if config, err := LoadConfigFromYAML(); err == nil {
		return config
	}

	return LoadConfigFromEnv()
}

// LoadConfigFromYAML loads configuration from YAML file
func LoadConfigFromYAML() (*Config, error) {
	viper.SetConfigName("config.dev")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../configs")
	viper.AddConfigPath("../../configs")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideWithEnvVars(&config)
	applyDefaults(&config)

	return &config, nil
}

// overrideWithEnvVars overrides sensitive values with environment variables
func overrideWithEnvVars(config *Config) {
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		config.Database.Password = password
	}
	if passphrase := os.Getenv("WALLET_ENCRYPTION_KEY"); passphrase != "" {
		config.Crypto.Passphrase = passphrase
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		config.Notification.Telegram.BotToken = token
	}
}

// LoadConfigFromEnv loads configuration from environment variables
func LoadConfigFromEnv() *Config {
	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_URL", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "password"),
			Database: getEnv("DB_DATABASE", "bridge_bot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Bridge: BridgeConfig{
			JumperAPIURL: getEnv("JUMPER_API_URL", "https://li.quest/v1"),
			JumperAPIKey: getEnv("JUMPER_API_KEY", ""),
			RelayAPIURL:  getEnv("RELAY_API_URL", "https://api.relay.link"),
			RelayAPIKey:  getEnv("RELAY_API_KEY", ""),
		},
		Scheduler: SchedulerConfig{
			TransactionsPerDay: getEnvAsInt("TRANSACTIONS_PER_DAY", 2),
			MinIntervalHours:   float64(getEnvAsInt("MIN_TRANSACTION_INTERVAL_HOURS", 1)),
			MaxIntervalHours:   float64(getEnvAsInt("MAX_TRANSACTION_INTERVAL_HOURS", 23)),
		},
		Notification: NotificationConfig{
			Telegram: TelegramConfig{
				BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
				ChatID:   getEnv("TELEGRAM_BOT_MESSAGE_GROUP", ""),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Dir:    getEnv("LOG_DIR", "./logs"),
		},
		Crypto: CryptoConfig{
			Passphrase: getEnv("WALLET_ENCRYPTION_KEY", ""),
		},
		AWS: AWSConfig{
			SecretID: getEnv("SECRETID", ""),
		},
	}

	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Bridge.QuoteTimeout <= 0 {
		config.Bridge.QuoteTimeout = 10 * time.Second
	}
	if config.Scheduler.TransactionsPerDay <= 0 {
		config.Scheduler.TransactionsPerDay = 2
	}
	if config.Scheduler.MinIntervalHours <= 0 {
		config.Scheduler.MinIntervalHours = 1
	}
	if config.Scheduler.MaxIntervalHours <= 0 {
		config.Scheduler.MaxIntervalHours = 23
	}
	if config.Scheduler.RetryDelay <= 0 {
		config.Scheduler.RetryDelay = 5 * time.Minute
	}
	if config.Scheduler.MinAmountPercent <= 0 {
		config.Scheduler.MinAmountPercent = 10
	}
	if config.Scheduler.MaxAmountPercent <= 0 {
		config.Scheduler.MaxAmountPercent = 90
	}
	if config.Scheduler.MinAmount == "" {
		config.Scheduler.MinAmount = "10"
	}
	if len(config.Chains) == 0 {
		config.Chains = DefaultChains()
	}
}

// DefaultChains returns the supported chains when none are configured.
func DefaultChains() []ChainConfig {
	usdc := func(addr string) TokenConfig {
		return TokenConfig{Symbol: "USDC", Address: addr, Decimals: 6}
	}
	return []ChainConfig{
		{
			Name: "ethereum", ChainID: 1,
			RpcURL: "https://eth-mainnet.g.alchemy.com/v2/demo",
			Tokens: []TokenConfig{usdc("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")},
		},
		{
			Name: "polygon", ChainID: 137,
			RpcURL: "https://polygon-mainnet.g.alchemy.com/v2/demo",
			Tokens: []TokenConfig{usdc("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")},
		},
		{
			Name: "arbitrum", ChainID: 42161,
			RpcURL: "https://arb-mainnet.g.alchemy.com/v2/demo",
			Tokens: []TokenConfig{usdc("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")},
		},
		{
			Name: "optimism", ChainID: 10,
			RpcURL: "https://opt-mainnet.g.alchemy.com/v2/demo",
			Tokens: []TokenConfig{usdc("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85")},
		},
		{
			Name: "avalanche", ChainID: 43114,
			RpcURL: "https://api.avax.network/ext/bc/C/rpc",
			Tokens: []TokenConfig{usdc("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E")},
		},
		{
			Name: "binance-smart-chain", ChainID: 56,
			RpcURL: "https://bsc-dataseed.binance.org/",
			Tokens: []TokenConfig{{Symbol: "USDC", Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Decimals: 18}},
		},
		{
			Name: "base", ChainID: 8453,
			RpcURL: "https://mainnet.base.org",
			Tokens: []TokenConfig{usdc("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")},
		},
	}
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt gets an environment variable as integer with a fallback value
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}
