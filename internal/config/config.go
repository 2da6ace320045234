package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/irfndi/costcast/internal/forecast"
	"github.com/irfndi/costcast/internal/models"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Forecast    ForecastConfig  `mapstructure:"forecast"`
	AI          AIConfig        `mapstructure:"ai"`
	Budget      BudgetConfig    `mapstructure:"budget"`
	Retention   RetentionConfig `mapstructure:"retention"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IngestAPIKey   string        `mapstructure:"ingest_api_key" json:"-" yaml:"-"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig controls forecast result caching
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	TTL       time.Duration `mapstructure:"ttl"`
	LocalSize int           `mapstructure:"local_size"`
}

type ARIMAConfig struct {
	P int `mapstructure:"p"`
	D int `mapstructure:"d"`
	Q int `mapstructure:"q"`
}

type SmoothingConfig struct {
	Alpha float64 `mapstructure:"alpha"`
	Beta  float64 `mapstructure:"beta"`
	Gamma float64 `mapstructure:"gamma"`
}

// ForecastConfig holds engine defaults
type ForecastConfig struct {
	DefaultHorizon      int             `mapstructure:"default_horizon"`
	MaxHorizon          int             `mapstructure:"max_horizon"`
	DefaultLookbackDays int             `mapstructure:"default_lookback_days"`
	Methods             []string        `mapstructure:"methods"`
	GapPolicy           string          `mapstructure:"gap_policy"`
	ARIMA               ARIMAConfig     `mapstructure:"arima"`
	Smoothing           SmoothingConfig `mapstructure:"smoothing"`
}

// AIConfig configures the optional AI forecasting collaborator
type AIConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	ServiceURL        string        `mapstructure:"service_url"`
	APIKey            string        `mapstructure:"api_key" json:"-" yaml:"-"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	BreakerFailures   uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout    time.Duration `mapstructure:"breaker_timeout"`
}

// RetentionConfig controls the periodic cleanup of stored data. Zero days keeps data forever.
type RetentionConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ForecastDays int           `mapstructure:"forecast_days"`
	CostDays     int           `mapstructure:"cost_days"`
	Interval     time.Duration `mapstructure:"interval"`
}

// BudgetConfig holds the default alerting threshold
type BudgetConfig struct {
	DefaultThreshold float64 `mapstructure:"default_threshold"`
	WarningRatio     float64 `mapstructure:"warning_ratio"`
	Currency         string  `mapstructure:"currency"`
}

type TelemetryConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Exporter       string  `mapstructure:"exporter"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	LogsEnabled    bool    `mapstructure:"logs_enabled"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	// FORECAST_ARIMA_P overrides forecast.arima.p and so on
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("database.database_url", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind DATABASE_URL environment variable: %w", err)
	}
	if err := v.BindEnv("ai.api_key", "AI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind AI_API_KEY environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)
	config.Forecast.GapPolicy = strings.ToLower(config.Forecast.GapPolicy)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks cross-field constraints viper cannot express
func (c *Config) Validate() error {
	f := c.Forecast
	if f.DefaultHorizon <= 0 || f.MaxHorizon <= 0 {
		return fmt.Errorf("forecast horizons must be positive, got default=%d max=%d", f.DefaultHorizon, f.MaxHorizon)
	}
	if f.DefaultHorizon > f.MaxHorizon {
		return fmt.Errorf("forecast default horizon %d exceeds max horizon %d", f.DefaultHorizon, f.MaxHorizon)
	}
	if f.DefaultLookbackDays <= 0 {
		return fmt.Errorf("forecast lookback must be positive, got %d", f.DefaultLookbackDays)
	}
	if !forecast.GapPolicy(f.GapPolicy).Valid() {
		return fmt.Errorf("unknown forecast gap policy %q", f.GapPolicy)
	}
	for _, m := range f.Methods {
		if _, ok := models.ParseForecastMethod(m); !ok {
			return fmt.Errorf("unknown forecast method %q", m)
		}
	}
	if f.ARIMA.P < 0 || f.ARIMA.D < 0 || f.ARIMA.Q < 0 || f.ARIMA.P+f.ARIMA.Q == 0 {
		return fmt.Errorf("invalid ARIMA order (%d,%d,%d)", f.ARIMA.P, f.ARIMA.D, f.ARIMA.Q)
	}
	for name, factor := range map[string]float64{
		"alpha": f.Smoothing.Alpha,
		"beta":  f.Smoothing.Beta,
		"gamma": f.Smoothing.Gamma,
	} {
		if factor <= 0 || factor >= 1 {
			return fmt.Errorf("smoothing %s must be in (0,1), got %v", name, factor)
		}
	}

	if c.AI.Enabled {
		if c.AI.ServiceURL == "" {
			return errors.New("ai.service_url is required when the AI forecaster is enabled")
		}
		if c.AI.Timeout <= 0 {
			return fmt.Errorf("ai.timeout must be positive, got %s", c.AI.Timeout)
		}
	}

	if c.Budget.WarningRatio <= 0 || c.Budget.WarningRatio > 1 {
		return fmt.Errorf("budget warning ratio must be in (0,1], got %v", c.Budget.WarningRatio)
	}
	if c.Budget.DefaultThreshold < 0 {
		return fmt.Errorf("budget default threshold must not be negative, got %v", c.Budget.DefaultThreshold)
	}
	if c.Retention.ForecastDays < 0 || c.Retention.CostDays < 0 {
		return fmt.Errorf("retention days must not be negative")
	}
	if c.Retention.Enabled && c.Retention.Interval <= 0 {
		return fmt.Errorf("retention interval must be positive when retention is enabled")
	}

	switch c.Telemetry.Exporter {
	case "otlp", "stdout", "none":
	default:
		return fmt.Errorf("unknown telemetry exporter %q", c.Telemetry.Exporter)
	}
	return nil
}

// EngineConfig converts the forecast section into engine settings
func (f ForecastConfig) EngineConfig() forecast.Config {
	methods := make([]models.ForecastMethod, 0, len(f.Methods))
	for _, m := range f.Methods {
		if parsed, ok := models.ParseForecastMethod(m); ok {
			methods = append(methods, parsed)
		}
	}
	return forecast.Config{
		DefaultHorizon: f.DefaultHorizon,
		MaxHorizon:     f.MaxHorizon,
		GapPolicy:      forecast.GapPolicy(f.GapPolicy),
		Methods:        methods,
		ARIMA:          forecast.ARIMAConfig{P: f.ARIMA.P, D: f.ARIMA.D, Q: f.ARIMA.Q},
		Smoothing: forecast.SmoothingConfig{
			Alpha: f.Smoothing.Alpha,
			Beta:  f.Smoothing.Beta,
			Gamma: f.Smoothing.Gamma,
		},
	}
}

// ForecasterConfig converts the AI section into adapter settings
func (a AIConfig) ForecasterConfig() forecast.AIConfig {
	return forecast.AIConfig{
		Timeout:         a.Timeout,
		BreakerFailures: a.BreakerFailures,
		BreakerTimeout:  a.BreakerTimeout,
	}
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.ingest_api_key", "")

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "costcast")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Cache
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.local_size", 256)

	// Forecast
	v.SetDefault("forecast.default_horizon", 30)
	v.SetDefault("forecast.max_horizon", 365)
	v.SetDefault("forecast.default_lookback_days", 90)
	v.SetDefault("forecast.methods", []string{})
	v.SetDefault("forecast.gap_policy", string(forecast.GapInterpolate))
	v.SetDefault("forecast.arima.p", 1)
	v.SetDefault("forecast.arima.d", 1)
	v.SetDefault("forecast.arima.q", 1)
	v.SetDefault("forecast.smoothing.alpha", 0.3)
	v.SetDefault("forecast.smoothing.beta", 0.1)
	v.SetDefault("forecast.smoothing.gamma", 0.1)

	// AI collaborator
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.service_url", "http://localhost:3001")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.timeout", "10s")
	v.SetDefault("ai.requests_per_second", 2.0)
	v.SetDefault("ai.burst", 4)
	v.SetDefault("ai.breaker_failures", 3)
	v.SetDefault("ai.breaker_timeout", "60s")

	// Budget
	v.SetDefault("budget.default_threshold", 0.0)
	v.SetDefault("budget.warning_ratio", 0.8)
	v.SetDefault("budget.currency", "USD")

	// Retention
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.forecast_days", 90)
	v.SetDefault("retention.cost_days", 0)
	v.SetDefault("retention.interval", "6h")

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "otlp")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "costcast")
	v.SetDefault("telemetry.service_version", "1.0.0")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.logs_enabled", false)
}
