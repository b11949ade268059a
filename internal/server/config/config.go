package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DataDir     string
	ShareRoot   string
	DatabaseURL string
	ConfigFile  string
	BaseURL     string
	MaxUpload   int64
	LogLevel    string

	SessionBackend string
	SessionTTL     time.Duration
	CookieSecure   bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	LoginFailureDelay time.Duration
	RateLimitRPS      float64
	RateLimitBurst    int

	GeoLookupURL     string
	GeoLookupTimeout time.Duration

	// Purge is disabled when PurgeInterval is zero.
	PurgeInterval time.Duration
	PurgeAfter    time.Duration
}

func Load() *Config {
	dataDir := getEnv("DATA_DIR", "./data")
	return &Config{
		Port:        getEnv("PORT", "8080"),
		DataDir:     dataDir,
		ShareRoot:   getEnv("SHARE_ROOT", filepath.Join(dataDir, "shares")),
		DatabaseURL: getEnv("DATABASE_URL", filepath.Join(dataDir, "nexus.db")),
		ConfigFile:  getEnv("CONFIG_FILE", filepath.Join(dataDir, "nexus.conf")),
		BaseURL:     getEnv("BASE_URL", ""),
		MaxUpload:   getEnvInt64("MAX_UPLOAD_SIZE", 16*1024*1024*1024), // 16GB
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		SessionBackend: getEnv("SESSION_BACKEND", "memory"),
		SessionTTL:     getEnvHours("SESSION_TTL_HOURS", 7*24*time.Hour),
		CookieSecure:   getEnvBool("COOKIE_SECURE", false),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),

		LoginFailureDelay: getEnvMillis("LOGIN_FAILURE_DELAY_MS", time.Second),
		RateLimitRPS:      getEnvFloat64("LOGIN_RATE_LIMIT_RPS", 1),
		RateLimitBurst:    getEnvInt("LOGIN_RATE_LIMIT_BURST", 5),

		GeoLookupURL:     getEnv("GEO_LOOKUP_URL", "https://whois.pconline.com.cn/ipJson.jsp"),
		GeoLookupTimeout: getEnvMillis("GEO_LOOKUP_TIMEOUT_MS", 3*time.Second),

		PurgeInterval: getEnvHours("SHARE_PURGE_INTERVAL_HOURS", 0),
		PurgeAfter:    getEnvHours("SHARE_PURGE_AFTER_HOURS", 30*24*time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvHours(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if hours, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(hours * float64(time.Hour))
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.ParseInt(val, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}
