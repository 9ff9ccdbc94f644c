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

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Scheduling SchedulingConfig
	Cache      CacheConfig
	Realtime   RealtimeConfig
	Exports    ExportsConfig
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

// SchedulingConfig holds the campus calendar rules applied to tutoring sessions.
type SchedulingConfig struct {
	Timezone      string
	HorizonDays   int
	DayOpens      string
	DayCloses     string
	MinSeats      int
	MaxSeats      int
	SweepEnabled  bool
	SweepInterval time.Duration
}

// CacheConfig toggles the Redis-backed session snapshot cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// RealtimeConfig gates the WebSocket seat feed.
type RealtimeConfig struct {
	Enabled    bool
	BufferSize int
}

// ExportsConfig gates roster exports.
type ExportsConfig struct {
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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

	cfg.Scheduling = SchedulingConfig{
		Timezone:      v.GetString("CAMPUS_TIMEZONE"),
		HorizonDays:   v.GetInt("SESSION_HORIZON_DAYS"),
		DayOpens:      v.GetString("SESSION_DAY_OPENS"),
		DayCloses:     v.GetString("SESSION_DAY_CLOSES"),
		MinSeats:      v.GetInt("SESSION_MIN_SEATS"),
		MaxSeats:      v.GetInt("SESSION_MAX_SEATS"),
		SweepEnabled:  v.GetBool("ENABLE_RECONCILE_SWEEP"),
		SweepInterval: parseDuration(v.GetString("RECONCILE_SWEEP_INTERVAL"), time.Minute),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_SESSION_CACHE"),
		TTL:     parseDuration(v.GetString("SESSION_CACHE_TTL"), 30*time.Second),
	}

	cfg.Realtime = RealtimeConfig{
		Enabled:    v.GetBool("ENABLE_REALTIME"),
		BufferSize: v.GetInt("REALTIME_BUFFER"),
	}

	cfg.Exports = ExportsConfig{
		Enabled: v.GetBool("ENABLE_EXPORTS"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_tutoring")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "campus-tutoring-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CAMPUS_TIMEZONE", "Europe/Paris")
	v.SetDefault("SESSION_HORIZON_DAYS", 180)
	v.SetDefault("SESSION_DAY_OPENS", "08:30")
	v.SetDefault("SESSION_DAY_CLOSES", "21:00")
	v.SetDefault("SESSION_MIN_SEATS", 1)
	v.SetDefault("SESSION_MAX_SEATS", 40)
	v.SetDefault("ENABLE_RECONCILE_SWEEP", true)
	v.SetDefault("RECONCILE_SWEEP_INTERVAL", "1m")

	v.SetDefault("ENABLE_SESSION_CACHE", false)
	v.SetDefault("SESSION_CACHE_TTL", "30s")

	v.SetDefault("ENABLE_REALTIME", false)
	v.SetDefault("REALTIME_BUFFER", 64)

	v.SetDefault("ENABLE_EXPORTS", true)
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
