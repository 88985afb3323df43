package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ==================== CONFIGURATION ====================

// Config is loaded once at start-up and passed by value into
// components; nothing reads the environment after Load returns.
type Config struct {
	Log      LogConfig
	Market   MarketConfig
	Database DatabaseConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Scanner  ScannerConfig
	Tracker  TrackerConfig
	API      APIConfig
}

type LogConfig struct {
	Level   string
	Console bool
}

type MarketConfig struct {
	RESTBaseURL string
	WSBaseURL   string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LLMConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

type ScannerConfig struct {
	Enabled     bool
	VolumeFloor float64
	UserIDs     []int64
}

type TrackerConfig struct {
	TieBreakSLWins bool
}

type APIConfig struct {
	Addr string
}

// Load reads .env if present, then the environment. Only the database
// URL and the LLM key are mandatory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Log: LogConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Console: getBool("LOG_CONSOLE", false),
		},
		Market: MarketConfig{
			RESTBaseURL: getEnv("MARKET_REST_URL", "https://api.binance.com"),
			WSBaseURL:   getEnv("MARKET_WS_URL", "wss://stream.binance.com:9443"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", "claude"),
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    getEnv("LLM_MODEL", "claude-sonnet-4-20250514"),
			BaseURL:  os.Getenv("LLM_BASE_URL"),
		},
		Scanner: ScannerConfig{
			Enabled:     getBool("SCANNER_ENABLED", true),
			VolumeFloor: getFloat("SCANNER_VOLUME_FLOOR", 5_000_000),
			UserIDs:     getInt64List("SCANNER_USER_IDS"),
		},
		Tracker: TrackerConfig{
			TieBreakSLWins: getBool("TRACKER_SL_WINS_TIE", true),
		},
		API: APIConfig{
			Addr: getEnv("API_ADDR", ":8080"),
		},
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getInt64List(key string) []int64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
