package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Weather    WeatherConfig    `mapstructure:"weather"`
	Fraud      FraudConfig      `mapstructure:"fraud"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// WeatherConfig holds weather provider configuration
type WeatherConfig struct {
	APIBaseURL     string        `mapstructure:"api_base_url"`
	Latitude       float64       `mapstructure:"latitude"`
	Longitude      float64       `mapstructure:"longitude"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// FraudConfig holds fraud rule engine configuration
type FraudConfig struct {
	RateLimitEnabled        bool          `mapstructure:"rate_limit_enabled"`
	MaxSubmissionsPerWindow int           `mapstructure:"max_submissions_per_window"`
	MaxKWhPerWindow         int64         `mapstructure:"max_kwh_per_window"`
	RateWindow              time.Duration `mapstructure:"rate_window"`
	PlausibilityEnabled     bool          `mapstructure:"plausibility_enabled"`
	MaxSingleTradeKWh       int64         `mapstructure:"max_single_trade_kwh"`
	SolarMaxOutputKWh       int64         `mapstructure:"solar_max_output_kwh"`
	BatteryCapacityKWh      int64         `mapstructure:"battery_capacity_kwh"`
	ChargeEfficiency        float64       `mapstructure:"charge_efficiency"`
	WeatherRuleEnabled      bool          `mapstructure:"weather_rule_enabled"`
	WeatherFailOpen         bool          `mapstructure:"weather_fail_open"`
	RequireSignature        bool          `mapstructure:"require_signature"`
	HistoryMaxRecords       int           `mapstructure:"history_max_records"`
}

// BatchConfig holds batch queue and scheduler configuration
type BatchConfig struct {
	SizeThreshold     int           `mapstructure:"size_threshold"`
	MaxAge            time.Duration `mapstructure:"max_age"`
	SchedulerInterval time.Duration `mapstructure:"scheduler_interval"`
}

// SettlementConfig holds chain submission configuration
type SettlementConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPCURL          string        `mapstructure:"rpc_url"`
	ContractAddress string        `mapstructure:"contract_address"`
	PrivateKey      string        `mapstructure:"private_key"`
	ChainID         int64         `mapstructure:"chain_id"`
	GasLimit        uint64        `mapstructure:"gas_limit"`
	GasPriceGwei    int64         `mapstructure:"gas_price_gwei"`
	UnitPrice       int64         `mapstructure:"unit_price"`
	Confirmations   uint64        `mapstructure:"confirmations"`
	ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

// LedgerConfig holds trade ledger persistence configuration
type LedgerConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// TelegramConfig holds operator alert configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("GRID_ORACLE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.listen_addr", ":8000")
	v.SetDefault("server.request_timeout", "30s")

	// Weather defaults (open-meteo, Los Angeles)
	v.SetDefault("weather.api_base_url", "https://api.open-meteo.com")
	v.SetDefault("weather.latitude", 34.05)
	v.SetDefault("weather.longitude", -118.24)
	v.SetDefault("weather.timeout", "10s")
	v.SetDefault("weather.cache_ttl", "3m")
	v.SetDefault("weather.max_retries", 3)
	v.SetDefault("weather.retry_delay_base", "1s")

	// Fraud rule defaults (plant parameters from the settlement contract's
	// reference installation: 50 kWh solar array, 50 kWh battery at 92%
	// charge efficiency)
	v.SetDefault("fraud.rate_limit_enabled", true)
	v.SetDefault("fraud.max_submissions_per_window", 10)
	v.SetDefault("fraud.max_kwh_per_window", 500)
	v.SetDefault("fraud.rate_window", "1h")
	v.SetDefault("fraud.plausibility_enabled", true)
	v.SetDefault("fraud.max_single_trade_kwh", 1000)
	v.SetDefault("fraud.solar_max_output_kwh", 50)
	v.SetDefault("fraud.battery_capacity_kwh", 50)
	v.SetDefault("fraud.charge_efficiency", 0.92)
	v.SetDefault("fraud.weather_rule_enabled", true)
	v.SetDefault("fraud.weather_fail_open", false)
	v.SetDefault("fraud.require_signature", false)
	v.SetDefault("fraud.history_max_records", 100)

	// Batch defaults
	v.SetDefault("batch.size_threshold", 5)
	v.SetDefault("batch.max_age", "2m")
	v.SetDefault("batch.scheduler_interval", "5s")

	// Settlement defaults (local hardhat node)
	v.SetDefault("settlement.enabled", true)
	v.SetDefault("settlement.rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("settlement.chain_id", 31337)
	v.SetDefault("settlement.gas_limit", 3000000)
	v.SetDefault("settlement.gas_price_gwei", 1)
	v.SetDefault("settlement.unit_price", 80)
	v.SetDefault("settlement.confirmations", 1)
	v.SetDefault("settlement.confirm_timeout", "2m")
	v.SetDefault("settlement.poll_interval", "2s")

	// Ledger defaults
	v.SetDefault("ledger.db_path", "./data/gridoracle.db")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Server config
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Server.RequestTimeout < time.Second {
		return fmt.Errorf("server.request_timeout must be at least 1 second")
	}

	// Validate Weather config
	if c.Weather.APIBaseURL == "" {
		return fmt.Errorf("weather.api_base_url is required")
	}
	if c.Weather.Latitude < -90 || c.Weather.Latitude > 90 {
		return fmt.Errorf("weather.latitude must be between -90 and 90")
	}
	if c.Weather.Longitude < -180 || c.Weather.Longitude > 180 {
		return fmt.Errorf("weather.longitude must be between -180 and 180")
	}
	if c.Weather.CacheTTL < 30*time.Second {
		return fmt.Errorf("weather.cache_ttl must be at least 30 seconds")
	}

	// Validate Fraud config
	if c.Fraud.RateLimitEnabled {
		if c.Fraud.MaxSubmissionsPerWindow < 1 {
			return fmt.Errorf("fraud.max_submissions_per_window must be at least 1")
		}
		if c.Fraud.MaxKWhPerWindow < 1 {
			return fmt.Errorf("fraud.max_kwh_per_window must be at least 1")
		}
		if c.Fraud.RateWindow < time.Minute {
			return fmt.Errorf("fraud.rate_window must be at least 1 minute")
		}
	}
	if c.Fraud.SolarMaxOutputKWh < 1 {
		return fmt.Errorf("fraud.solar_max_output_kwh must be at least 1")
	}
	if c.Fraud.BatteryCapacityKWh < 1 {
		return fmt.Errorf("fraud.battery_capacity_kwh must be at least 1")
	}
	if c.Fraud.ChargeEfficiency <= 0.0 || c.Fraud.ChargeEfficiency > 1.0 {
		return fmt.Errorf("fraud.charge_efficiency must be between 0.0 and 1.0")
	}
	if c.Fraud.HistoryMaxRecords < 1 {
		return fmt.Errorf("fraud.history_max_records must be at least 1")
	}

	// Validate Batch config
	if c.Batch.SizeThreshold < 1 {
		return fmt.Errorf("batch.size_threshold must be at least 1")
	}
	if c.Batch.MaxAge < time.Second {
		return fmt.Errorf("batch.max_age must be at least 1 second")
	}
	if c.Batch.SchedulerInterval < time.Second {
		return fmt.Errorf("batch.scheduler_interval must be at least 1 second")
	}

	// Validate Settlement config
	if c.Settlement.Enabled {
		if c.Settlement.RPCURL == "" {
			return fmt.Errorf("settlement.rpc_url is required when settlement is enabled")
		}
		if c.Settlement.ContractAddress == "" {
			return fmt.Errorf("settlement.contract_address is required when settlement is enabled")
		}
		if c.Settlement.PrivateKey == "" {
			return fmt.Errorf("settlement.private_key is required when settlement is enabled")
		}
		if c.Settlement.ChainID < 1 {
			return fmt.Errorf("settlement.chain_id must be at least 1")
		}
		if c.Settlement.ConfirmTimeout < 10*time.Second {
			return fmt.Errorf("settlement.confirm_timeout must be at least 10 seconds")
		}
		if c.Settlement.PollInterval < time.Second {
			return fmt.Errorf("settlement.poll_interval must be at least 1 second")
		}
	}
	if c.Settlement.UnitPrice < 1 {
		return fmt.Errorf("settlement.unit_price must be at least 1")
	}

	// Validate Ledger config
	if c.Ledger.DBPath == "" {
		return fmt.Errorf("ledger.db_path is required")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
