// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application. It is loaded once at
// process start and never mutated afterwards; components receive the
// sections they need through their constructors.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Ethereum      EthereumConfig     `mapstructure:"ethereum"`
	Solana        SolanaConfig       `mapstructure:"solana"`
	Wallets       []WalletConfig     `mapstructure:"wallets"`
	Tokens        []TokenConfig      `mapstructure:"tokens"`
	Thresholds    ThresholdConfig    `mapstructure:"thresholds"`
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Price         PriceConfig        `mapstructure:"price"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Report        ReportConfig       `mapstructure:"report"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// EthereumConfig contains Ethereum RPC connection configuration
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	LogBatchBlocks uint64        `mapstructure:"log_batch_blocks"`
}

// SolanaConfig contains Solana RPC connection configuration
type SolanaConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SignatureLimit int           `mapstructure:"signature_limit"`
}

// WalletConfig describes one monitored treasury or whale wallet
type WalletConfig struct {
	DAOName string `mapstructure:"dao_name"`
	Chain   string `mapstructure:"chain"`
	Address string `mapstructure:"address"`
}

// TokenConfig describes one monitored token on a chain
type TokenConfig struct {
	Symbol          string  `mapstructure:"symbol"`
	Chain           string  `mapstructure:"chain"`
	Address         string  `mapstructure:"address"` // ERC-20 contract or SPL mint
	Decimals        int32   `mapstructure:"decimals"`
	CoingeckoID     string  `mapstructure:"coingecko_id"`
	AmountThreshold float64 `mapstructure:"amount_threshold"`
}

// ThresholdConfig contains global alert thresholds
type ThresholdConfig struct {
	USDAmount float64 `mapstructure:"usd_amount"`
}

// SchedulerConfig contains poll scheduling configuration
type SchedulerConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	OverlapBlocks uint64        `mapstructure:"overlap_blocks"`
	CycleTimeout  time.Duration `mapstructure:"cycle_timeout"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`
	StartStagger  time.Duration `mapstructure:"start_stagger"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
	ClaimTTL         time.Duration `mapstructure:"claim_ttl"`
}

// PriceConfig contains price lookup configuration
type PriceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// NotificationConfig contains notification system configuration
type NotificationConfig struct {
	Enabled             bool           `mapstructure:"enabled"`
	DefaultChannel      string         `mapstructure:"default_channel"`
	RetryAttempts       int            `mapstructure:"retry_attempts"`
	RetryDelay          time.Duration  `mapstructure:"retry_delay"`
	NotificationTimeout time.Duration  `mapstructure:"notification_timeout"`
	Telegram            TelegramConfig `mapstructure:"telegram"`
	Discord             DiscordConfig  `mapstructure:"discord"`
}

// TelegramConfig contains Telegram Bot API configuration
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// DiscordConfig contains Discord webhook configuration
type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// ReportConfig contains daily report configuration
type ReportConfig struct {
	Enabled bool `mapstructure:"enabled"`
	HourUTC int  `mapstructure:"hour_utc"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("WHALE_MONITOR")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if rpcURL := os.Getenv("ETHEREUM_RPC_URL"); rpcURL != "" {
		config.Ethereum.RPCURL = rpcURL
	}
	if rpcURL := os.Getenv("SOLANA_RPC_URL"); rpcURL != "" {
		config.Solana.RPCURL = rpcURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.Type = "postgres"
		config.Storage.ConnectionString = dbURL
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		config.Notifications.Telegram.BotToken = token
	}
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		config.Notifications.Telegram.ChatID = chatID
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "bio-whale-monitor")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Chain defaults
	viper.SetDefault("ethereum.request_timeout", "30s")
	viper.SetDefault("ethereum.log_batch_blocks", 2000)
	viper.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	viper.SetDefault("solana.request_timeout", "30s")
	viper.SetDefault("solana.signature_limit", 100)

	// Threshold defaults (1M tokens / $100k)
	viper.SetDefault("thresholds.usd_amount", 100000)

	// Scheduler defaults
	viper.SetDefault("scheduler.poll_interval", "30s")
	viper.SetDefault("scheduler.overlap_blocks", 5)
	viper.SetDefault("scheduler.cycle_timeout", "2m")
	viper.SetDefault("scheduler.backoff_base", "5s")
	viper.SetDefault("scheduler.backoff_max", "10m")
	viper.SetDefault("scheduler.start_stagger", "500ms")

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/whale_monitor.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")
	viper.SetDefault("storage.claim_ttl", "15m")

	// Price defaults
	viper.SetDefault("price.base_url", "https://api.coingecko.com/api/v3")
	viper.SetDefault("price.cache_ttl", "5m")
	viper.SetDefault("price.request_timeout", "10s")

	// Notification defaults
	viper.SetDefault("notifications.enabled", true)
	viper.SetDefault("notifications.default_channel", "log")
	viper.SetDefault("notifications.retry_attempts", 3)
	viper.SetDefault("notifications.retry_delay", "5s")
	viper.SetDefault("notifications.notification_timeout", "30s")

	// Report defaults
	viper.SetDefault("report.enabled", true)
	viper.SetDefault("report.hour_utc", 9)

	// Server defaults
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	hasEthereum := false
	hasSolana := false
	for _, w := range c.Wallets {
		switch w.Chain {
		case "ethereum":
			hasEthereum = true
		case "solana":
			hasSolana = true
		default:
			return fmt.Errorf("wallet %s has unsupported chain %q", w.Address, w.Chain)
		}
		if w.Address == "" {
			return fmt.Errorf("wallet for %s has empty address", w.DAOName)
		}
	}
	if hasEthereum && c.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum RPC URL is required when ethereum wallets are configured")
	}
	if hasSolana && c.Solana.RPCURL == "" {
		return fmt.Errorf("solana RPC URL is required when solana wallets are configured")
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler poll interval must be positive")
	}
	if c.Thresholds.USDAmount <= 0 {
		return fmt.Errorf("usd threshold must be positive")
	}
	for _, t := range c.Tokens {
		if t.Symbol == "" || t.Address == "" {
			return fmt.Errorf("token config requires symbol and address")
		}
		if t.AmountThreshold < 0 {
			return fmt.Errorf("token %s amount threshold must not be negative", t.Symbol)
		}
	}
	return nil
}

// TokenBySymbol returns the token configuration for a symbol on a chain,
// or nil when the token is not monitored.
func (c *Config) TokenBySymbol(chain, symbol string) *TokenConfig {
	for i := range c.Tokens {
		if c.Tokens[i].Chain == chain && c.Tokens[i].Symbol == symbol {
			return &c.Tokens[i]
		}
	}
	return nil
}
