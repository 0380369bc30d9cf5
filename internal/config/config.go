package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all engine configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Indicators IndicatorConfig  `mapstructure:"indicators"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Allocation AllocationConfig `mapstructure:"allocation"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
	DataDir     string `mapstructure:"data_dir"`   // wallet and position snapshots
}

// DatabaseConfig contains PostgreSQL settings for the trade history store
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings for the ticker cache
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS settings for alert publishing
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TradingConfig contains trading settings
type TradingConfig struct {
	Mode           string   `mapstructure:"mode"`        // "simulated" or "live"
	MarketType     string   `mapstructure:"market_type"` // "spot" or "futures"
	Symbols        []string `mapstructure:"symbols"`
	QuoteCurrency  string   `mapstructure:"quote_currency"`
	InitialCapital float64  `mapstructure:"initial_capital"`
	Leverage       int      `mapstructure:"leverage"`
	FeeRate        float64  `mapstructure:"fee_rate"`
}

// IndicatorConfig contains indicator periods and thresholds
type IndicatorConfig struct {
	EmaFast          int     `mapstructure:"ema_fast"`
	EmaSlow          int     `mapstructure:"ema_slow"`
	RsiPeriod        int     `mapstructure:"rsi_period"`
	BollingerPeriod  int     `mapstructure:"bollinger_period"`
	BollingerStdDev  float64 `mapstructure:"bollinger_std_dev"`
	AtrPeriod        int     `mapstructure:"atr_period"`
	VolumePeriod     int     `mapstructure:"volume_period"`
	VolumeSurgeRatio float64 `mapstructure:"volume_surge_ratio"`
	MinCandles       int     `mapstructure:"min_candles"`
}

// ScoringConfig contains factor weights and signal thresholds
type ScoringConfig struct {
	Weights            WeightConfig `mapstructure:"weights"`
	BuyThreshold       float64      `mapstructure:"buy_threshold"`
	StrongBuyThreshold float64      `mapstructure:"strong_buy_threshold"`
	SellThreshold      float64      `mapstructure:"sell_threshold"`
}

// WeightConfig contains the five factor weights; they must sum to 1.0
type WeightConfig struct {
	Technical  float64 `mapstructure:"technical"`
	Momentum   float64 `mapstructure:"momentum"`
	Volatility float64 `mapstructure:"volatility"`
	Volume     float64 `mapstructure:"volume"`
	Sentiment  float64 `mapstructure:"sentiment"`
}

// Sum returns the total of all five weights.
func (w WeightConfig) Sum() float64 {
	return w.Technical + w.Momentum + w.Volatility + w.Volume + w.Sentiment
}

// AllocationConfig contains portfolio allocation settings
type AllocationConfig struct {
	ReserveRatio     float64 `mapstructure:"reserve_ratio"`
	MinPct           float64 `mapstructure:"min_pct"`
	MaxPct           float64 `mapstructure:"max_pct"`
	StrongBuyBoost   float64 `mapstructure:"strong_buy_boost"`
	LimitDiscount    float64 `mapstructure:"limit_discount"`
	MinOrderNotional float64 `mapstructure:"min_order_notional"`
}

// RiskConfig contains risk management settings
type RiskConfig struct {
	StopLossPct          float64 `mapstructure:"stop_loss_pct"`
	StopLossCapPct       float64 `mapstructure:"stop_loss_cap_pct"`
	TrailingStopPct      float64 `mapstructure:"trailing_stop_pct"`
	MaxHoldMinutes       int     `mapstructure:"max_hold_minutes"`
	DailyLossLimitPct    float64 `mapstructure:"daily_loss_limit_pct"` // negative, e.g. -0.05
	MaxConsecutiveLosses int     `mapstructure:"max_consecutive_losses"`
	MarginPerTickerPct   float64 `mapstructure:"margin_per_ticker_pct"`
	TargetAtrPct         float64 `mapstructure:"target_atr_pct"`
	MaxPerTickerPct      float64 `mapstructure:"max_per_ticker_pct"`
	MaxTotalMarginPct    float64 `mapstructure:"max_total_margin_pct"`
	MinAvailablePct      float64 `mapstructure:"min_available_pct"`
	Timezone             string  `mapstructure:"timezone"`
}

// SchedulerConfig contains job intervals in minutes plus the daily cron
type SchedulerConfig struct {
	DataIntervalMin      int    `mapstructure:"data_collection_interval_min"`
	IndicatorIntervalMin int    `mapstructure:"indicator_calc_interval_min"`
	ScoringIntervalMin   int    `mapstructure:"scoring_interval_min"`
	BuyIntervalMin       int    `mapstructure:"buy_execution_interval_min"`
	RiskIntervalMin      int    `mapstructure:"risk_check_interval_min"`
	DailyFeedbackAt      string `mapstructure:"daily_feedback_at"` // "HH:MM" local
	MisfireGraceSec      int    `mapstructure:"misfire_grace_sec"`
}

// ExchangeConfig contains exchange connectivity settings
type ExchangeConfig struct {
	APIKey           string `mapstructure:"api_key"`
	SecretKey        string `mapstructure:"secret_key"`
	Testnet          bool   `mapstructure:"testnet"`
	RateLimitMS      int    `mapstructure:"rate_limit_ms"`
	RequestTimeoutMS int    `mapstructure:"request_timeout_ms"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("COINFORGE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "coinforge")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")
	v.SetDefault("app.data_dir", "data")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "coinforge")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")

	// Trading defaults
	v.SetDefault("trading.mode", "simulated")
	v.SetDefault("trading.market_type", "spot")
	v.SetDefault("trading.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("trading.quote_currency", "USDT")
	v.SetDefault("trading.initial_capital", 10000.0)
	v.SetDefault("trading.leverage", 1)
	v.SetDefault("trading.fee_rate", 0.0005)

	// Indicator defaults
	v.SetDefault("indicators.ema_fast", 9)
	v.SetDefault("indicators.ema_slow", 21)
	v.SetDefault("indicators.rsi_period", 14)
	v.SetDefault("indicators.bollinger_period", 20)
	v.SetDefault("indicators.bollinger_std_dev", 2.0)
	v.SetDefault("indicators.atr_period", 14)
	v.SetDefault("indicators.volume_period", 20)
	v.SetDefault("indicators.volume_surge_ratio", 1.5)
	v.SetDefault("indicators.min_candles", 50)

	// Scoring defaults
	v.SetDefault("scoring.weights.technical", 0.30)
	v.SetDefault("scoring.weights.momentum", 0.25)
	v.SetDefault("scoring.weights.volatility", 0.15)
	v.SetDefault("scoring.weights.volume", 0.15)
	v.SetDefault("scoring.weights.sentiment", 0.15)
	v.SetDefault("scoring.buy_threshold", 70.0)
	v.SetDefault("scoring.strong_buy_threshold", 80.0)
	v.SetDefault("scoring.sell_threshold", 30.0)

	// Allocation defaults
	v.SetDefault("allocation.reserve_ratio", 0.10)
	v.SetDefault("allocation.min_pct", 0.10)
	v.SetDefault("allocation.max_pct", 0.50)
	v.SetDefault("allocation.strong_buy_boost", 1.5)
	v.SetDefault("allocation.limit_discount", 0.003)
	v.SetDefault("allocation.min_order_notional", 5000.0)

	// Risk defaults
	v.SetDefault("risk.stop_loss_pct", 0.010)
	v.SetDefault("risk.stop_loss_cap_pct", 0.020)
	v.SetDefault("risk.trailing_stop_pct", 0.004)
	v.SetDefault("risk.max_hold_minutes", 60)
	v.SetDefault("risk.daily_loss_limit_pct", -0.05)
	v.SetDefault("risk.max_consecutive_losses", 3)
	v.SetDefault("risk.margin_per_ticker_pct", 0.03)
	v.SetDefault("risk.target_atr_pct", 0.003)
	v.SetDefault("risk.max_per_ticker_pct", 0.04)
	v.SetDefault("risk.max_total_margin_pct", 0.20)
	v.SetDefault("risk.min_available_pct", 0.50)
	v.SetDefault("risk.timezone", "Asia/Seoul")

	// Scheduler defaults
	v.SetDefault("scheduler.data_collection_interval_min", 5)
	v.SetDefault("scheduler.indicator_calc_interval_min", 15)
	v.SetDefault("scheduler.scoring_interval_min", 30)
	v.SetDefault("scheduler.buy_execution_interval_min", 30)
	v.SetDefault("scheduler.risk_check_interval_min", 5)
	v.SetDefault("scheduler.daily_feedback_at", "00:30")
	v.SetDefault("scheduler.misfire_grace_sec", 60)

	// Exchange defaults
	v.SetDefault("exchange.testnet", false)
	v.SetDefault("exchange.rate_limit_ms", 60)
	v.SetDefault("exchange.request_timeout_ms", 10000)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RequestTimeout returns the exchange request timeout as a duration
func (c *ExchangeConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// MinRequestGap returns the minimum gap between outbound exchange requests
func (c *ExchangeConfig) MinRequestGap() time.Duration {
	return time.Duration(c.RateLimitMS) * time.Millisecond
}

// IsLive reports whether the engine trades with real funds
func (c *TradingConfig) IsLive() bool {
	return c.Mode == "live"
}

// IsFutures reports whether the configured market supports short positions
func (c *TradingConfig) IsFutures() bool {
	return c.MarketType == "futures"
}

// Location resolves the configured risk timezone, falling back to UTC.
func (c *RiskConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
