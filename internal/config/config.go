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
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	CacheBackendPostgres = "postgres"
	CacheBackendRedis    = "redis"
	CacheBackendMemory   = "memory"

	FetcherModeLive    = "live"
	FetcherModeFixture = "fixture"
)

// Config - структура для хранения конфигурации приложения
type Config struct {
	DatabaseURL   string `env:"DATABASE_URL"`
	HTTPPort      string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DBMaxConns    int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	// Redis Config
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`
	RedisPool int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	// Cache Config
	CacheBackend       string        `env:"CACHE_BACKEND" envDefault:"postgres"`
	CacheSweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"1h"`
	CacheTTL           CacheTTLs

	// External fetchers
	FetcherMode        string        `env:"FETCHER_MODE" envDefault:"fixture"`
	FetcherTimeout     time.Duration `env:"FETCHER_TIMEOUT" envDefault:"10s"`
	MapboxToken        string        `env:"MAPBOX_TOKEN"`
	MapboxTimeout      time.Duration `env:"MAPBOX_TIMEOUT" envDefault:"5s"`
	SocialFeedURL      string        `env:"SOCIAL_FEED_URL"`
	OfficialUpdatesURL string        `env:"OFFICIAL_UPDATES_URL"`

	// Event bus
	EventBusBufferSize int      `env:"EVENTBUS_BUFFER_SIZE" envDefault:"64"`
	KafkaBrokers       []string `env:"KAFKA_BROKERS"`
	KafkaEventsTopic   string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"disaster-events"`

	// Webhook Config
	WebhookURL        string        `env:"WEBHOOK_URL"`
	WebhookSecret     string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout    time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
	WebhookMaxRetries int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"3"`
	WebhookBaseDelay  time.Duration `env:"WEBHOOK_BASE_DELAY" envDefault:"1s"`

	// Geo search
	NearbyDefaultRadiusMeters float64 `env:"NEARBY_DEFAULT_RADIUS_METERS" envDefault:"10000"`
	SeedResourcesOnEmpty      bool    `env:"SEED_RESOURCES_ON_EMPTY" envDefault:"false"`

	// API Keys for authentication
	APIKeys []string `env:"API_KEYS"`
}

// CacheTTLs - сроки жизни кэша для каждого внешнего источника
type CacheTTLs struct {
	Social   time.Duration `env:"CACHE_TTL_SOCIAL" envDefault:"5m"`
	Official time.Duration `env:"CACHE_TTL_OFFICIAL" envDefault:"30m"`
	Analysis time.Duration `env:"CACHE_TTL_ANALYSIS" envDefault:"1h"`
	Image    time.Duration `env:"CACHE_TTL_IMAGE" envDefault:"2h"`
	Geocode  time.Duration `env:"CACHE_TTL_GEOCODE" envDefault:"24h"`
	Incident time.Duration `env:"CACHE_TTL_INCIDENT" envDefault:"5m"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		StorageDriver:      getEnv("STORAGE_DRIVER", StorageDriverPostgres),
		DBMaxConns:         int32(getEnvAsInt("DB_MAX_CONNS", 10)),
		MigrationsDir:      getEnv("MIGRATIONS_DIR", "migrations"),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvAsInt("REDIS_DB", 0),
		RedisPool:          getEnvAsInt("REDIS_POOL_SIZE", 10),
		CacheBackend:       getEnv("CACHE_BACKEND", CacheBackendPostgres),
		CacheSweepInterval: getEnvAsDuration("CACHE_SWEEP_INTERVAL", time.Hour),
		CacheTTL: CacheTTLs{
			Social:   getEnvAsDuration("CACHE_TTL_SOCIAL", 5*time.Minute),
			Official: getEnvAsDuration("CACHE_TTL_OFFICIAL", 30*time.Minute),
			Analysis: getEnvAsDuration("CACHE_TTL_ANALYSIS", time.Hour),
			Image:    getEnvAsDuration("CACHE_TTL_IMAGE", 2*time.Hour),
			Geocode:  getEnvAsDuration("CACHE_TTL_GEOCODE", 24*time.Hour),
			Incident: getEnvAsDuration("CACHE_TTL_INCIDENT", 5*time.Minute),
		},
		FetcherMode:               getEnv("FETCHER_MODE", FetcherModeFixture),
		FetcherTimeout:            getEnvAsDuration("FETCHER_TIMEOUT", 10*time.Second),
		MapboxToken:               os.Getenv("MAPBOX_TOKEN"),
		MapboxTimeout:             getEnvAsDuration("MAPBOX_TIMEOUT", 5*time.Second),
		SocialFeedURL:             os.Getenv("SOCIAL_FEED_URL"),
		OfficialUpdatesURL:        os.Getenv("OFFICIAL_UPDATES_URL"),
		EventBusBufferSize:        getEnvAsInt("EVENTBUS_BUFFER_SIZE", 64),
		KafkaBrokers:              getEnvAsList("KAFKA_BROKERS"),
		KafkaEventsTopic:          getEnv("KAFKA_EVENTS_TOPIC", "disaster-events"),
		WebhookURL:                os.Getenv("WEBHOOK_URL"),
		WebhookSecret:             os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeout:            getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookMaxRetries:         getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookBaseDelay:          getEnvAsDuration("WEBHOOK_BASE_DELAY", time.Second),
		NearbyDefaultRadiusMeters: getEnvAsFloat("NEARBY_DEFAULT_RADIUS_METERS", 10000),
		SeedResourcesOnEmpty:      getEnvAsBool("SEED_RESOURCES_ON_EMPTY", false),
		APIKeys:                   getEnvAsList("API_KEYS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}

	switch c.CacheBackend {
	case CacheBackendPostgres, CacheBackendRedis, CacheBackendMemory:
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.CacheBackend)
	}

	switch c.FetcherMode {
	case FetcherModeLive:
		if c.MapboxToken == "" {
			return fmt.Errorf("FETCHER_MODE=live requires MAPBOX_TOKEN")
		}
	case FetcherModeFixture:
	default:
		return fmt.Errorf("unsupported FETCHER_MODE %q", c.FetcherMode)
	}

	if c.UsesPostgres() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if c.CacheSweepInterval <= 0 {
		return fmt.Errorf("CACHE_SWEEP_INTERVAL must be positive")
	}
	if c.EventBusBufferSize <= 0 {
		return fmt.Errorf("EVENTBUS_BUFFER_SIZE must be positive")
	}
	if c.NearbyDefaultRadiusMeters <= 0 {
		return fmt.Errorf("NEARBY_DEFAULT_RADIUS_METERS must be positive")
	}
	return nil
}

// UsesPostgres сообщает, нужен ли пул соединений PostgreSQL
func (c *Config) UsesPostgres() bool {
	return c.StorageDriver == StorageDriverPostgres || c.CacheBackend == CacheBackendPostgres
}

// UsesRedis сообщает, нужен ли клиент Redis (кэш или очередь вебхуков)
func (c *Config) UsesRedis() bool {
	return c.CacheBackend == CacheBackendRedis || c.WebhookURL != ""
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int или значение по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}

// getEnvAsList разбирает список значений, разделённых запятыми
func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			values = append(values, item)
		}
	}
	return values
}
