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

// Zero-limit policies accepted by QUOTA_ZERO_LIMIT_POLICY.
const (
	ZeroLimitUnbounded = "unbounded"
	ZeroLimitBlocked   = "blocked"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Quota      QuotaConfig
	HoursCache HoursCacheConfig
	Reports    ReportsConfig
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
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// QuotaConfig tunes the admission engine.
type QuotaConfig struct {
	// LockTimeout bounds the wait for the per (student, category) lock.
	LockTimeout time.Duration
	// CascadeBatchSize is the page size used when walking sibling activities.
	CascadeBatchSize int
	// ZeroLimitPolicy decides whether a limit of 0 means "no cap" or "always blocked".
	ZeroLimitPolicy string
}

// HoursCacheConfig governs the per-student aggregate hours cache.
type HoursCacheConfig struct {
	Enabled             bool
	TTL                 time.Duration
	InvalidationWorkers int
	InvalidationRetries int
}

// ReportsConfig toggles the student hours export endpoints.
type ReportsConfig struct {
	Enabled bool
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
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
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	batch := v.GetInt("QUOTA_CASCADE_BATCH_SIZE")
	if batch <= 0 {
		batch = 100
	}
	policy := strings.ToLower(strings.TrimSpace(v.GetString("QUOTA_ZERO_LIMIT_POLICY")))
	switch policy {
	case ZeroLimitUnbounded, ZeroLimitBlocked:
	default:
		return nil, errors.New("QUOTA_ZERO_LIMIT_POLICY must be \"unbounded\" or \"blocked\"")
	}
	cfg.Quota = QuotaConfig{
		LockTimeout:      parseDuration(v.GetString("QUOTA_LOCK_TIMEOUT"), 5*time.Second),
		CascadeBatchSize: batch,
		ZeroLimitPolicy:  policy,
	}

	cfg.HoursCache = HoursCacheConfig{
		Enabled:             v.GetBool("ENABLE_HOURS_CACHE"),
		TTL:                 parseDuration(v.GetString("HOURS_CACHE_TTL"), 5*time.Minute),
		InvalidationWorkers: v.GetInt("HOURS_INVALIDATION_WORKERS"),
		InvalidationRetries: v.GetInt("HOURS_INVALIDATION_RETRIES"),
	}

	cfg.Reports = ReportsConfig{
		Enabled: v.GetBool("ENABLE_REPORTS"),
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
	v.SetDefault("DB_NAME", "activity_hours")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "activity-hours-api")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("QUOTA_LOCK_TIMEOUT", "5s")
	v.SetDefault("QUOTA_CASCADE_BATCH_SIZE", 100)
	v.SetDefault("QUOTA_ZERO_LIMIT_POLICY", ZeroLimitUnbounded)

	v.SetDefault("ENABLE_HOURS_CACHE", true)
	v.SetDefault("HOURS_CACHE_TTL", "5m")
	v.SetDefault("HOURS_INVALIDATION_WORKERS", 2)
	v.SetDefault("HOURS_INVALIDATION_RETRIES", 3)

	v.SetDefault("ENABLE_REPORTS", true)
}

// isMissingFile tolerates the absent .env: SetConfigFile reports an os error
// rather than ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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
