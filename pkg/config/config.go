package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendRTDB   = "rtdb"
	BackendMongo  = "mongo"
)

// Auth modes.
const (
	AuthFirebase = "firebase"
	AuthLocal    = "local"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	StoreBackend            string
	FirebaseCredentialsPath string
	FirebaseDatabaseURL     string
	MongoURI                string
	MongoDatabase           string
	PollInterval            time.Duration

	// PairIndex selects the private-room pair index: "", "postgres" or
	// "sqlite".
	PairIndex   string
	PostgresURL string
	SQLitePath  string

	// RequestGuard selects the friend request guard: "", "local" or "redis".
	RequestGuard string
	RedisAddr    string

	AuthMode  string
	JWTSecret string
}

// Load reads a .env file when present and then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using the environment only")
	}
	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		StoreBackend:            strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		FirebaseDatabaseURL:     getEnv("FIREBASE_DATABASE_URL", ""),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDatabase:           getEnv("MONGO_DATABASE", "pandachat"),
		PollInterval:            getDuration("POLL_INTERVAL", 2*time.Second),
		PairIndex:               strings.ToLower(getEnv("PAIR_INDEX", "")),
		PostgresURL:             getEnv("POSTGRES_CONN_STR", ""),
		SQLitePath:              getEnv("SQLITE_PATH", "pairs.db"),
		RequestGuard:            strings.ToLower(getEnv("REQUEST_GUARD", "")),
		RedisAddr:               getEnv("REDIS_ADDR", ""),
		AuthMode:                strings.ToLower(getEnv("AUTH_MODE", AuthFirebase)),
		JWTSecret:               getEnv("JWT_SECRET", ""),
	}
}

// Validate checks that every selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRTDB:
		if c.FirebaseDatabaseURL == "" {
			return fmt.Errorf("FIREBASE_DATABASE_URL is required for the %s backend", c.StoreBackend)
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the %s backend", c.StoreBackend)
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.PairIndex {
	case "", "sqlite":
	case "postgres":
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_CONN_STR is required for the postgres pair index")
		}
	default:
		return fmt.Errorf("unknown PAIR_INDEX %q", c.PairIndex)
	}

	switch c.RequestGuard {
	case "", "local":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis request guard")
		}
	default:
		return fmt.Errorf("unknown REQUEST_GUARD %q", c.RequestGuard)
	}

	switch c.AuthMode {
	case AuthFirebase:
	case AuthLocal:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in local auth mode")
		}
		if c.Env == "production" {
			return fmt.Errorf("local auth mode is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}
	return nil
}

// NeedsFirebase reports whether a Firebase app must be initialized.
func (c *Config) NeedsFirebase() bool {
	return c.StoreBackend == BackendRTDB || c.AuthMode == AuthFirebase
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		slog.Warn("ignoring invalid duration", slog.String("key", key), slog.String("value", value))
		return defaultValue
	}
	return d
}
