package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int
	APIVersion string
	LogLevel   slog.Level

	Database DatabaseConfig
	Auth     AuthConfig
	Hashing  HashingConfig
	Events   EventsConfig
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type AuthConfig struct {
	JWTSecret      []byte
	CookieHashKey  []byte
	CookieBlockKey []byte
	CookieSecure   bool
}

type HashingConfig struct {
	Workers     int
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
}

type EventsConfig struct {
	// Backend is "none", "memory", "rabbitmq" or "pubsub".
	Backend  string
	Channel  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	PrefetchCount   int
	QueueDurable    bool
	QueueAutoDelete bool
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

// LoadConfig reads configuration from the environment. The JWT secret and
// cookie hash key have no defaults; a missing one is an error.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		ServerPort: getEnvInt("SERVER_PORT", 8000, collect),
		APIVersion: getEnv("API_VERSION", "v1"),
		LogLevel:   getEnvLevel("LOG_LEVEL", slog.LevelInfo, collect),
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432, collect),
			User:     getEnv("DB_USER", "accounts"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "accounts_db"),
			UseSSL:   getEnvBool("DB_SSL", false, collect),
		},
		Auth: AuthConfig{
			JWTSecret:      []byte(strings.TrimSpace(os.Getenv("JWT_SECRET"))),
			CookieHashKey:  []byte(strings.TrimSpace(os.Getenv("COOKIE_HASH_KEY"))),
			CookieBlockKey: []byte(strings.TrimSpace(os.Getenv("COOKIE_BLOCK_KEY"))),
			CookieSecure:   getEnvBool("COOKIE_SECURE", false, collect),
		},
		Hashing: HashingConfig{
			Workers:     getEnvInt("HASH_WORKERS", 0, collect),
			MemoryKB:    uint32(getEnvUint("HASH_MEMORY_KB", 19*1024, math.MaxUint32, collect)),
			Time:        uint32(getEnvUint("HASH_TIME", 2, math.MaxUint32, collect)),
			Parallelism: uint8(getEnvUint("HASH_PARALLELISM", 1, math.MaxUint8, collect)),
		},
		Events: EventsConfig{
			Backend: strings.ToLower(getEnv("EVENTS_BACKEND", "none")),
			Channel: getEnv("EVENTS_CHANNEL", "account-events"),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10, collect),
				QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true, collect),
				QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false, collect),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			},
		},
	}

	collect(cfg.validate())
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if len(c.Auth.JWTSecret) == 0 {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if len(c.Auth.CookieHashKey) < 32 {
		errs = append(errs, errors.New("COOKIE_HASH_KEY is required and must be at least 32 bytes"))
	}
	switch len(c.Auth.CookieBlockKey) {
	case 0, 16, 24, 32:
	default:
		errs = append(errs, errors.New("COOKIE_BLOCK_KEY must be 16, 24 or 32 bytes"))
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver))
	}
	switch c.Events.Backend {
	case "none", "memory", "rabbitmq", "pubsub":
	default:
		errs = append(errs, fmt.Errorf("unknown EVENTS_BACKEND %q", c.Events.Backend))
	}
	if strings.Trim(c.APIVersion, "/") == "" {
		errs = append(errs, errors.New("API_VERSION must not be empty"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, collect func(error)) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		collect(fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}

// getEnvUint parses a non-negative integer no larger than limit.
func getEnvUint(key string, defaultValue, limit uint64, collect func(error)) uint64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	value, err := strconv.ParseUint(strings.TrimSpace(valueStr), 10, 64)
	if err == nil && value > limit {
		err = fmt.Errorf("%d exceeds maximum %d", value, limit)
	}
	if err != nil {
		collect(fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool, collect func(error)) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		collect(fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}

func getEnvLevel(key string, defaultValue slog.Level, collect func(error)) slog.Level {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(valueStr))); err != nil {
		collect(fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return level
}
