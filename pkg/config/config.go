package config

import (
	"errors"
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

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Approvals  ApprovalsConfig
	Generation GenerationConfig
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
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ApprovalsConfig tunes the approval workflow.
type ApprovalsConfig struct {
	AutoApproveSubmitter bool
	RollupCacheTTL       time.Duration
	DispatchLedgerTTL    time.Duration
}

// GenerationConfig points at the external text generation collaborator.
type GenerationConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Workers       int
	QueueBuffer   int
	Retries       int
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
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Approvals = ApprovalsConfig{
		AutoApproveSubmitter: v.GetBool("APPROVAL_AUTO_APPROVE_SUBMITTER"),
		RollupCacheTTL:       parseDuration(v.GetString("APPROVAL_ROLLUP_CACHE_TTL"), 30*time.Second),
		DispatchLedgerTTL:    parseDuration(v.GetString("APPROVAL_DISPATCH_LEDGER_TTL"), 30*24*time.Hour),
	}

	rate := v.GetFloat64("GENERATION_RATE_PER_SECOND")
	if rate <= 0 {
		rate = 2
	}
	cfg.Generation = GenerationConfig{
		BaseURL:       strings.TrimRight(v.GetString("GENERATION_BASE_URL"), "/"),
		Timeout:       parseDuration(v.GetString("GENERATION_TIMEOUT"), 30*time.Second),
		RatePerSecond: rate,
		Workers:       v.GetInt("GENERATION_WORKERS"),
		QueueBuffer:   v.GetInt("GENERATION_QUEUE_BUFFER"),
		Retries:       v.GetInt("GENERATION_RETRIES"),
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
	v.SetDefault("DB_NAME", "sma_curriculum")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("APPROVAL_AUTO_APPROVE_SUBMITTER", false)
	v.SetDefault("APPROVAL_ROLLUP_CACHE_TTL", "30s")
	v.SetDefault("APPROVAL_DISPATCH_LEDGER_TTL", "720h")

	v.SetDefault("GENERATION_BASE_URL", "http://localhost:8000")
	v.SetDefault("GENERATION_TIMEOUT", "30s")
	v.SetDefault("GENERATION_RATE_PER_SECOND", 2)
	v.SetDefault("GENERATION_WORKERS", 2)
	v.SetDefault("GENERATION_QUEUE_BUFFER", 256)
	v.SetDefault("GENERATION_RETRIES", 1)
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
