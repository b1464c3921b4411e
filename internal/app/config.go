package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the campuslink backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Inbox       InboxConfig       `mapstructure:"inbox"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Admission   AdmissionConfig   `mapstructure:"admission"`
	Realtime    RealtimeConfig    `mapstructure:"realtime"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Bootstrap   BootstrapConfig   `mapstructure:"bootstrap"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	port := s.Port
	if port <= 0 {
		port = 8000
	}
	return fmt.Sprintf(":%d", port)
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// InboxConfig selects where notifications are stored.
type InboxConfig struct {
	Backend       string      `mapstructure:"backend"`
	RetentionDays int         `mapstructure:"retention_days"`
	MongoDB       MongoConfig `mapstructure:"mongodb"`
}

// MongoConfig holds document store settings used when the inbox backend is mongodb.
type MongoConfig struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT       JWTSettings       `mapstructure:"jwt"`
	Local     LocalAuthSettings `mapstructure:"local"`
	RateLimit RateLimitSettings `mapstructure:"login_rate_limit"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// LocalAuthSettings defines controls for the local auth provider.
type LocalAuthSettings struct {
	LockoutThreshold int           `mapstructure:"lockout_threshold"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
}

// RateLimitSettings bounds login attempts per client address.
type RateLimitSettings struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	Store    string        `mapstructure:"store"`
}

// AdmissionConfig controls live login approval.
type AdmissionConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	GatedRoles    []string      `mapstructure:"gated_roles"`
	OperatorRoles []string      `mapstructure:"operator_roles"`
	RequestTTL    time.Duration `mapstructure:"request_ttl"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
}

// RealtimeConfig tunes the websocket hub.
type RealtimeConfig struct {
	SendBuffer     int      `mapstructure:"send_buffer"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// BootstrapConfig seeds the first operator account.
type BootstrapConfig struct {
	AdminUsername string `mapstructure:"admin_username"`
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
}

// MaintenanceConfig schedules background jobs.
type MaintenanceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	RetentionSweep string `mapstructure:"retention_schedule"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("CAMPUSLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	// "gated_roles: []" means role gating is off; keep it distinct from an unset key.
	if config.Admission.GatedRoles == nil && v.InConfig("admission.gated_roles") {
		config.Admission.GatedRoles = []string{}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/campuslink.sqlite")

	v.SetDefault("inbox.backend", "sql")
	v.SetDefault("inbox.retention_days", 90)
	v.SetDefault("inbox.mongodb.uri", "")
	v.SetDefault("inbox.mongodb.database", "campuslink")
	v.SetDefault("inbox.mongodb.collection", "notifications")
	v.SetDefault("inbox.mongodb.timeout", "10s")

	v.SetDefault("auth.jwt.issuer", "campuslink")
	v.SetDefault("auth.jwt.access_token_ttl", "12h")
	v.SetDefault("auth.local.lockout_threshold", 5)
	v.SetDefault("auth.local.lockout_duration", "15m")
	v.SetDefault("auth.login_rate_limit.requests", 10)
	v.SetDefault("auth.login_rate_limit.window", "1m")
	v.SetDefault("auth.login_rate_limit.store", RateStoreMemory)

	v.SetDefault("admission.enabled", true)
	v.SetDefault("admission.gated_roles", []string{"staff"})
	v.SetDefault("admission.operator_roles", []string{"admin"})
	v.SetDefault("admission.request_ttl", "5m")
	v.SetDefault("admission.sweep_schedule", "@every 15s")

	v.SetDefault("realtime.send_buffer", 64)
	v.SetDefault("realtime.allowed_origins", []string{})

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("bootstrap.admin_username", "admin")
	v.SetDefault("bootstrap.admin_email", "")
	v.SetDefault("bootstrap.admin_password", "")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.retention_schedule", "@daily")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
