package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StrategyToken   = "token"
	StrategySession = "session"
	StrategyCookie  = "cookie"

	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

type Config struct {
	HTTPAddr       string
	LogLevel       string
	LogFormat      string
	StorageBackend string
	MongoURI       string
	MongoDatabase  string
	RedisAddr      string
	RedisDB        int
	RedisPassword  string
	UserCacheTTL   time.Duration
	AllowedOrigins []string
	Auth           AuthConfig
}

type AuthConfig struct {
	Strategy      string
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SessionSecret string
	SessionMaxAge int
	CookieName    string
	CookieSecure  bool
}

// Load reads an optional env file at path and builds the configuration from
// the process environment. Variables already set in the environment win over
// the file.
func Load(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	var (
		cfg  Config
		errs []string
	)
	parseErr := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", key, err))
	}

	cfg.HTTPAddr = get("HTTP_ADDR", ":5001")
	cfg.LogLevel = get("LOG_LEVEL", "info")
	cfg.LogFormat = get("LOG_FORMAT", "json")
	cfg.StorageBackend = get("STORAGE_BACKEND", BackendMongo)
	cfg.MongoURI = get("MONGODB_URI", "mongodb://localhost:27017")
	cfg.MongoDatabase = get("MONGODB_DATABASE", "placesdb")
	cfg.RedisAddr = get("REDIS_ADDR", "")
	cfg.RedisPassword = get("REDIS_PASSWORD", "")
	cfg.AllowedOrigins = splitList(get("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"))

	var err error
	if cfg.RedisDB, err = strconv.Atoi(get("REDIS_DB", "0")); err != nil {
		parseErr("REDIS_DB", err)
	}
	if cfg.UserCacheTTL, err = time.ParseDuration(get("USER_CACHE_TTL", "24h")); err != nil {
		parseErr("USER_CACHE_TTL", err)
	}

	a := &cfg.Auth
	a.Strategy = get("AUTH_STRATEGY", StrategyToken)
	a.AccessSecret = get("ACCESS_TOKEN_SECRET", "")
	a.RefreshSecret = get("REFRESH_TOKEN_SECRET", "")
	a.SessionSecret = get("SESSION_SECRET", "")
	a.CookieName = get("SESSION_COOKIE_NAME", "places_session")
	if a.AccessTTL, err = time.ParseDuration(get("ACCESS_TOKEN_TTL", "30s")); err != nil {
		parseErr("ACCESS_TOKEN_TTL", err)
	}
	if a.RefreshTTL, err = time.ParseDuration(get("REFRESH_TOKEN_TTL", "24h")); err != nil {
		parseErr("REFRESH_TOKEN_TTL", err)
	}
	if a.SessionMaxAge, err = strconv.Atoi(get("SESSION_MAX_AGE", "86400")); err != nil {
		parseErr("SESSION_MAX_AGE", err)
	}
	if a.CookieSecure, err = strconv.ParseBool(get("COOKIE_SECURE", "false")); err != nil {
		parseErr("COOKIE_SECURE", err)
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	switch c.StorageBackend {
	case BackendMongo, BackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	a := c.Auth
	switch a.Strategy {
	case StrategyToken:
		if a.AccessSecret == "" || a.RefreshSecret == "" {
			return fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required for the %s strategy", a.Strategy)
		}
		if a.AccessTTL <= 0 || a.RefreshTTL <= 0 {
			return fmt.Errorf("token lifetimes must be positive")
		}
	case StrategySession, StrategyCookie:
		if len(a.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 bytes for the %s strategy", a.Strategy)
		}
	default:
		return fmt.Errorf("unknown AUTH_STRATEGY %q", a.Strategy)
	}
	return nil
}

func get(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
