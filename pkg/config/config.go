package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Ledger        LedgerConfig
	Catalog       CatalogConfig
	Uploads       UploadsConfig
	Notifications NotificationsConfig
	Idempotency   IdempotencyConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LedgerConfig holds the listing and points policy knobs.
type LedgerConfig struct {
	MinPoints        int
	MaxPoints        int
	MaxImages        int
	PlaceholderImage string
	WelcomeBonus     int
}

// CatalogConfig governs caching of public catalog queries.
type CatalogConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
	FeaturedSize int
}

// UploadsConfig controls where item photos are written and served from.
type UploadsConfig struct {
	StorageDir       string
	PublicPath       string
	MaxFileSizeBytes int64
}

// NotificationsConfig toggles the websocket feed and its worker pool.
type NotificationsConfig struct {
	Enabled      bool
	Workers      int
	TicketSecret string
	TicketTTL    time.Duration
}

// IdempotencyConfig locates the replay store for Idempotency-Key requests.
type IdempotencyConfig struct {
	DBPath string
	TTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Ledger = LedgerConfig{
		MinPoints:        v.GetInt("LEDGER_MIN_POINTS"),
		MaxPoints:        v.GetInt("LEDGER_MAX_POINTS"),
		MaxImages:        v.GetInt("LEDGER_MAX_IMAGES"),
		PlaceholderImage: v.GetString("LEDGER_PLACEHOLDER_IMAGE"),
		WelcomeBonus:     v.GetInt("LEDGER_WELCOME_BONUS"),
	}

	cfg.Catalog = CatalogConfig{
		CacheEnabled: v.GetBool("ENABLE_CATALOG_CACHE"),
		CacheTTL:     parseDuration(v.GetString("CATALOG_CACHE_TTL"), 2*time.Minute),
		FeaturedSize: v.GetInt("CATALOG_FEATURED_SIZE"),
	}

	maxUpload := v.GetInt64("UPLOADS_MAX_FILE_SIZE")
	if maxUpload <= 0 {
		maxUpload = 8 * 1024 * 1024
	}
	cfg.Uploads = UploadsConfig{
		StorageDir:       v.GetString("UPLOADS_STORAGE_DIR"),
		PublicPath:       v.GetString("UPLOADS_PUBLIC_PATH"),
		MaxFileSizeBytes: maxUpload,
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:      v.GetBool("ENABLE_NOTIFICATIONS"),
		Workers:      v.GetInt("NOTIFY_WORKERS"),
		TicketSecret: v.GetString("NOTIFY_TICKET_SECRET"),
		TicketTTL:    parseDuration(v.GetString("NOTIFY_TICKET_TTL"), time.Minute),
	}

	cfg.Idempotency = IdempotencyConfig{
		DBPath: v.GetString("IDEMPOTENCY_DB_PATH"),
		TTL:    parseDuration(v.GetString("IDEMPOTENCY_TTL"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "rewear")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "rewear-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LEDGER_MIN_POINTS", 10)
	v.SetDefault("LEDGER_MAX_POINTS", 200)
	v.SetDefault("LEDGER_MAX_IMAGES", 5)
	v.SetDefault("LEDGER_PLACEHOLDER_IMAGE", "https://images.pexels.com/photos/996329/pexels-photo-996329.jpeg?w=400&h=400&fit=crop")
	v.SetDefault("LEDGER_WELCOME_BONUS", 50)

	v.SetDefault("ENABLE_CATALOG_CACHE", false)
	v.SetDefault("CATALOG_CACHE_TTL", "2m")
	v.SetDefault("CATALOG_FEATURED_SIZE", 4)

	v.SetDefault("UPLOADS_STORAGE_DIR", "./uploads")
	v.SetDefault("UPLOADS_PUBLIC_PATH", "/uploads")
	v.SetDefault("UPLOADS_MAX_FILE_SIZE", 8*1024*1024)

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_TICKET_SECRET", "dev_ticket_secret")
	v.SetDefault("NOTIFY_TICKET_TTL", "1m")

	v.SetDefault("IDEMPOTENCY_DB_PATH", "./data/idempotency.db")
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
