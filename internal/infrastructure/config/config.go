package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/stockroom/backend/internal/domain/identity"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Tenancy   TenancyConfig
	Registry  RegistryConfig
	Ledger    LedgerConfig
	Redis     RedisConfig
	Journal   JournalConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig describes the shared connection target that every tenant
// partition hangs off. A tenant's database is the target plus the tenant slug.
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	SSLMode         string
	NamePrefix      string // prepended to the tenant slug to form the database name
	SQLiteDir       string // directory holding one file per tenant when Driver is sqlite
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// TenancyConfig holds multi-tenant admission settings
type TenancyConfig struct {
	DefaultTenant string // tenant used when none is requested and for legacy principals
}

// RegistryConfig holds tenant handle lifecycle settings
type RegistryConfig struct {
	DialTimeout         time.Duration
	DialRetries         int
	HealthCheckInterval time.Duration // minimum time between liveness pings of a cached handle
	AutoMigrate         bool
	CreateDatabases     bool // create a missing postgres tenant database on first dial
}

// LedgerConfig holds inventory ledger tuning
type LedgerConfig struct {
	MaxConflictRetries int // optimistic-lock retries per stock mutation
	MaxBarcodeAttempts int // candidates tried when allocating a unique barcode
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JournalConfig selects where partial transfers are recorded for reconciliation
type JournalConfig struct {
	Backend   string // memory, redis
	KeyPrefix string
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret                string
	Issuer                string
	AccessTokenExpiration time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	LogsEnabled       bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	ExportInterval    time.Duration
	DBTraceEnabled    bool
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with INV_ prefix (e.g., INV_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("INV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("registry.auto_migrate", true)
	v.SetDefault("registry.create_databases", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			SSLMode:         v.GetString("database.sslmode"),
			NamePrefix:      v.GetString("database.name_prefix"),
			SQLiteDir:       v.GetString("database.sqlite_dir"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Tenancy: TenancyConfig{
			DefaultTenant: v.GetString("tenancy.default_tenant"),
		},
		Registry: RegistryConfig{
			DialTimeout:         v.GetDuration("registry.dial_timeout"),
			DialRetries:         v.GetInt("registry.dial_retries"),
			HealthCheckInterval: v.GetDuration("registry.health_check_interval"),
			AutoMigrate:         v.GetBool("registry.auto_migrate"),
			CreateDatabases:     v.GetBool("registry.create_databases"),
		},
		Ledger: LedgerConfig{
			MaxConflictRetries: v.GetInt("ledger.max_conflict_retries"),
			MaxBarcodeAttempts: v.GetInt("ledger.max_barcode_attempts"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Journal: JournalConfig{
			Backend:   v.GetString("journal.backend"),
			KeyPrefix: v.GetString("journal.key_prefix"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			Issuer:                v.GetString("jwt.issuer"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "inventory-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.NamePrefix == "" {
		cfg.Database.NamePrefix = "inventory_"
	}
	if cfg.Database.SQLiteDir == "" {
		cfg.Database.SQLiteDir = "data"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Tenancy.DefaultTenant == "" {
		cfg.Tenancy.DefaultTenant = "default"
	}
	if cfg.Registry.DialTimeout == 0 {
		cfg.Registry.DialTimeout = 5 * time.Second
	}
	if cfg.Registry.DialRetries == 0 {
		cfg.Registry.DialRetries = 2
	}
	if cfg.Registry.HealthCheckInterval == 0 {
		cfg.Registry.HealthCheckInterval = 15 * time.Second
	}
	if cfg.Ledger.MaxConflictRetries == 0 {
		cfg.Ledger.MaxConflictRetries = 5
	}
	if cfg.Ledger.MaxBarcodeAttempts == 0 {
		cfg.Ledger.MaxBarcodeAttempts = 1000
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = "memory"
	}
	if cfg.Journal.KeyPrefix == "" {
		cfg.Journal.KeyPrefix = "inventory:partial-transfers"
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "inventory-backend"
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 15 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "inventory-backend"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 60 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	tenant, err := identity.NormalizeTenantSlug(c.Tenancy.DefaultTenant)
	if err != nil {
		return fmt.Errorf("tenancy.default_tenant: %w", err)
	}
	c.Tenancy.DefaultTenant = tenant
	if c.Registry.DialRetries < 0 {
		return fmt.Errorf("registry.dial_retries cannot be negative")
	}
	if c.Ledger.MaxConflictRetries < 0 {
		return fmt.Errorf("ledger.max_conflict_retries cannot be negative")
	}
	switch c.Journal.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("journal.backend must be memory or redis, got %q", c.Journal.Backend)
	}

	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// TenantDatabaseName returns the database name of a tenant partition
func (d *DatabaseConfig) TenantDatabaseName(tenant string) string {
	return d.NamePrefix + tenant
}

// MaintenanceDSN returns the postgres connection string of the server's
// maintenance database, used to create tenant databases.
func (d *DatabaseConfig) MaintenanceDSN() string {
	return d.postgresURL("postgres")
}

// TenantDSN returns the connection string of a tenant partition: the shared
// connection target with the tenant's database appended.
func (d *DatabaseConfig) TenantDSN(tenant string) string {
	if d.Driver == "sqlite" {
		return filepath.Join(d.SQLiteDir, d.TenantDatabaseName(tenant)+".db") + "?_busy_timeout=5000&_foreign_keys=on"
	}
	return d.postgresURL(d.TenantDatabaseName(tenant))
}

func (d *DatabaseConfig) postgresURL(database string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   database,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
