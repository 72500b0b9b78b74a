package tenant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stockroom/backend/internal/infrastructure/config"
	"github.com/stockroom/backend/internal/infrastructure/persistence/models"
	"github.com/stockroom/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	pgInvalidCatalogName = "3D000"
	pgDuplicateDatabase  = "42P04"
)

// Dialer opens the partition of one tenant. Implementations must return a
// connection that has answered a ping and carries the tenant schema.
type Dialer interface {
	Dial(ctx context.Context, tenant string) (*gorm.DB, error)
}

// GormDialer dials tenant partitions derived from the shared database target.
type GormDialer struct {
	db         config.DatabaseConfig
	registry   config.RegistryConfig
	gormLogger gormlogger.Interface
	tracing    bool
	logger     *zap.Logger
}

// DialerOption configures a GormDialer
type DialerOption func(*GormDialer)

// WithGormLogger sets the logger used by dialed connections
func WithGormLogger(l gormlogger.Interface) DialerOption {
	return func(d *GormDialer) {
		d.gormLogger = l
	}
}

// WithTracing registers the otelgorm plugin on dialed connections
func WithTracing(enabled bool) DialerOption {
	return func(d *GormDialer) {
		d.tracing = enabled
	}
}

// WithDialLogger sets the logger for dial attempts
func WithDialLogger(l *zap.Logger) DialerOption {
	return func(d *GormDialer) {
		d.logger = l
	}
}

// NewGormDialer creates a dialer for the configured driver
func NewGormDialer(dbCfg config.DatabaseConfig, regCfg config.RegistryConfig, opts ...DialerOption) *GormDialer {
	d := &GormDialer{
		db:         dbCfg,
		registry:   regCfg,
		gormLogger: gormlogger.Discard,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial opens, pings and migrates the tenant's partition. Each attempt is
// bounded by the dial timeout; failed attempts are retried with exponential
// backoff up to the configured number of retries.
func (d *GormDialer) Dial(ctx context.Context, tenant string) (*gorm.DB, error) {
	var db *gorm.DB
	attempt := 0
	operation := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, d.registry.DialTimeout)
		defer cancel()
		var err error
		db, err = d.open(attemptCtx, tenant)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.registry.DialRetries)), ctx)

	notify := func(err error, next time.Duration) {
		d.logger.Warn("Tenant dial failed, retrying",
			zap.String("tenant", tenant),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	}
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}
	return db, nil
}

func (d *GormDialer) open(ctx context.Context, tenant string) (*gorm.DB, error) {
	dialector, err := d.dialector(tenant)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 d.gormLogger,
		TranslateError:         true,
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	err = sqlDB.PingContext(ctx)
	if err != nil && d.registry.CreateDatabases && isMissingDatabase(err) {
		if err = d.createDatabase(ctx, d.db.TenantDatabaseName(tenant)); err == nil {
			err = sqlDB.PingContext(ctx)
		}
	}
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping tenant database: %w", err)
	}

	if d.db.Driver == "sqlite" {
		// One writer at a time keeps sqlite from reporting SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(d.db.MaxOpenConns)
		sqlDB.SetMaxIdleConns(d.db.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(d.db.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(d.db.ConnMaxIdleTime) * time.Minute)

	if d.tracing {
		if err := telemetry.InstrumentDB(db, tenant, d.db.TenantDatabaseName(tenant)); err != nil {
			_ = sqlDB.Close()
			return nil, backoff.Permanent(fmt.Errorf("failed to instrument tenant database: %w", err))
		}
	}

	if d.registry.AutoMigrate {
		if err := db.WithContext(ctx).AutoMigrate(models.TenantSchema()...); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to migrate tenant database: %w", err)
		}
	}

	d.logger.Info("Tenant database opened",
		zap.String("tenant", tenant),
		zap.String("database", d.db.TenantDatabaseName(tenant)),
	)
	return db, nil
}

func (d *GormDialer) dialector(tenant string) (gorm.Dialector, error) {
	switch d.db.Driver {
	case "postgres":
		return postgres.Open(d.db.TenantDSN(tenant)), nil
	case "sqlite":
		if err := os.MkdirAll(d.db.SQLiteDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
		return sqlite.Open(d.db.TenantDSN(tenant)), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", d.db.Driver)
}

// createDatabase creates a tenant database through the maintenance database.
// Losing a creation race to another process is not an error.
func (d *GormDialer) createDatabase(ctx context.Context, name string) error {
	admin, err := gorm.Open(postgres.Open(d.db.MaintenanceDSN()), &gorm.Config{
		Logger:               d.gormLogger,
		DisableAutomaticPing: true,
	})
	if err != nil {
		return err
	}
	sqlDB, err := admin.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var exists bool
	if err := admin.WithContext(ctx).
		Raw("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = ?)", name).
		Scan(&exists).Error; err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = admin.WithContext(ctx).Exec("CREATE DATABASE " + pgx.Identifier{name}.Sanitize()).Error
	if hasPgCode(err, pgDuplicateDatabase) {
		return nil
	}
	if err == nil {
		d.logger.Info("Tenant database created", zap.String("database", name))
	}
	return err
}

func isMissingDatabase(err error) bool {
	return hasPgCode(err, pgInvalidCatalogName)
}

func hasPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
