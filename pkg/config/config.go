package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Only this package reads environment variables.
type Config struct {
	Port string
	Env  string // development, staging, production

	Database DatabaseConfig
	Redis    RedisConfig
	Tushare  TushareConfig
	Breadth  BreadthConfig
	Screen   ScreenConfig

	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL string

	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration. Redis is optional and only used
// to share the provider rate limit across processes.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// TushareConfig holds the market-data provider configuration.
// The token is injected here and nowhere else.
type TushareConfig struct {
	Token      string
	BaseURL    string
	Timeout    time.Duration
	ReqPerMin  int // provider-side limit for the daily endpoints
	MaxRetries int
	Cooldown   time.Duration // pause after a rate-limited reply
}

// BreadthConfig controls the new-high/new-low engine.
type BreadthConfig struct {
	WindowWeeks     []int // lookback windows, in weeks
	MinHistoryBars  int   // bars required inside the window to count an instrument
	BackfillDays    int   // trading days covered by the initial full backfill
	RetainTradeDays int   // distinct trade dates kept after pruning
}

// ScreenConfig controls the quality-momentum screen.
type ScreenConfig struct {
	TradeDays           int     // new-high lookback, trading days
	MinMarketValue      float64 // in the provider's 万元 unit
	MaxVolatility       float64 // stddev of daily returns over MinUptrendDays
	MaxRecentVolatility float64 // stddev over the last 5 sessions
	MinUptrendDays      int
	MAWindow            int
	HistoryYears        int
	MaxRebound          float64
	RecentDays          int
	MaxRecentReturn     float64
}

// Load reads configuration from environment variables, with a .env
// fallback for local development.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8086"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Tushare: TushareConfig{
			Token:      getEnv("TUSHARE_TOKEN", ""),
			BaseURL:    getEnv("TUSHARE_BASE_URL", "https://api.tushare.pro"),
			Timeout:    getEnvAsDuration("TUSHARE_TIMEOUT", "30s"),
			ReqPerMin:  getEnvAsInt("TUSHARE_REQ_PER_MIN", 190),
			MaxRetries: getEnvAsInt("TUSHARE_MAX_RETRIES", 3),
			Cooldown:   getEnvAsDuration("TUSHARE_COOLDOWN", "60s"),
		},

		Breadth: BreadthConfig{
			WindowWeeks:     []int{52, 26},
			MinHistoryBars:  getEnvAsInt("BREADTH_MIN_HISTORY", 20),
			BackfillDays:    getEnvAsInt("BREADTH_BACKFILL_DAYS", 90),
			RetainTradeDays: getEnvAsInt("BREADTH_RETAIN_DAYS", 380),
		},

		Screen: ScreenConfig{
			TradeDays:           getEnvAsInt("SCREEN_TRADE_DAYS", 300),
			MinMarketValue:      getEnvAsFloat("SCREEN_MIN_MARKET_VALUE", 150*10000),
			MaxVolatility:       getEnvAsFloat("SCREEN_MAX_VOLATILITY", 0.03),
			MaxRecentVolatility: getEnvAsFloat("SCREEN_MAX_RECENT_VOLATILITY", 0.02),
			MinUptrendDays:      getEnvAsInt("SCREEN_MIN_UPTREND_DAYS", 30),
			MAWindow:            getEnvAsInt("SCREEN_MA_WINDOW", 20),
			HistoryYears:        getEnvAsInt("SCREEN_HISTORY_YEARS", 5),
			MaxRebound:          getEnvAsFloat("SCREEN_MAX_REBOUND", 0.4),
			RecentDays:          getEnvAsInt("SCREEN_RECENT_DAYS", 10),
			MaxRecentReturn:     getEnvAsFloat("SCREEN_MAX_RECENT_RETURN", 0.15),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if len(c.Breadth.WindowWeeks) == 0 {
		return fmt.Errorf("at least one breadth window is required")
	}

	return nil
}

// loadEnvFile tries to load .env from a few likely locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
