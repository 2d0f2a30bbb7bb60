package config

import (
	"errors"
	"fmt"
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
	Env  string
	Port int

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Tenant    TenantConfig
	Cache     CacheConfig
	Reconcile ReconcileConfig
	GatePass  GatePassConfig
	Purposes  PurposeConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MigrateOnStart bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// TenantConfig describes how tenant-local calendar days are computed.
type TenantConfig struct {
	Timezone string
}

// CacheConfig toggles caching of reconciled daily reports.
type CacheConfig struct {
	Enabled   bool
	ReportTTL time.Duration
}

// ReconcileConfig governs the scheduled and on-demand report pipeline.
type ReconcileConfig struct {
	Enabled    bool
	Cron       string
	Workers    int
	Retries    int
	RetryDelay time.Duration
	RunTimeout time.Duration
}

// GatePassConfig holds tenant business rules for gate passes.
type GatePassConfig struct {
	DailyThrottle bool
}

// PurposeConfig maps report modules to their fallback purpose ids.
type PurposeConfig struct {
	Defaults map[string]int64
}

// DefaultFor returns the configured fallback purpose id for module, if any.
func (p PurposeConfig) DefaultFor(module string) (int64, bool) {
	id, ok := p.Defaults[strings.ToLower(module)]
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

var purposeModules = []string{"visitor", "staff", "student", "bus", "gatepass"}

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

	cfg.Database = DatabaseConfig{
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetInt("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSL_MODE"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		MigrateOnStart: v.GetBool("MIGRATE_ON_START"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Tenant = TenantConfig{Timezone: v.GetString("TENANT_TIMEZONE")}

	cfg.Cache = CacheConfig{
		Enabled:   v.GetBool("CACHE_ENABLED"),
		ReportTTL: parseDuration(v.GetString("REPORT_CACHE_TTL"), 15*time.Minute),
	}

	cfg.Reconcile = ReconcileConfig{
		Enabled:    v.GetBool("RECONCILE_ENABLED"),
		Cron:       v.GetString("RECONCILE_CRON"),
		Workers:    v.GetInt("REPORT_WORKERS"),
		Retries:    v.GetInt("REPORT_RETRIES"),
		RetryDelay: parseDuration(v.GetString("REPORT_RETRY_DELAY"), 5*time.Second),
		RunTimeout: parseDuration(v.GetString("RECONCILE_RUN_TIMEOUT"), 30*time.Minute),
	}

	cfg.GatePass = GatePassConfig{DailyThrottle: v.GetBool("GATEPASS_DAILY_THROTTLE")}

	cfg.Purposes = PurposeConfig{Defaults: make(map[string]int64, len(purposeModules))}
	for _, module := range purposeModules {
		key := fmt.Sprintf("PURPOSE_DEFAULT_%s_ID", strings.ToUpper(module))
		if id := v.GetInt64(key); id > 0 {
			cfg.Purposes.Defaults[module] = id
		}
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "visit_tracker")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("MIGRATE_ON_START", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("TENANT_TIMEZONE", "Asia/Jakarta")

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REPORT_CACHE_TTL", "15m")

	v.SetDefault("RECONCILE_ENABLED", true)
	v.SetDefault("RECONCILE_CRON", "5 0 * * *")
	v.SetDefault("REPORT_WORKERS", 1)
	v.SetDefault("REPORT_RETRIES", 3)
	v.SetDefault("REPORT_RETRY_DELAY", "5s")
	v.SetDefault("RECONCILE_RUN_TIMEOUT", "30m")

	v.SetDefault("GATEPASS_DAILY_THROTTLE", true)
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
