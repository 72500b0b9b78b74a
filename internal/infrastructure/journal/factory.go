package journal

import (
	"fmt"

	"github.com/stockroom/backend/internal/domain/catalog"
	"github.com/stockroom/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Journal is a reconciliation journal that owns resources to release
type Journal interface {
	catalog.ReconciliationJournal
	Close() error
}

// Factory creates the journal selected by configuration
type Factory struct {
	journalConfig         config.JournalConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to the
// in-memory journal. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new Factory
func NewFactory(journalCfg config.JournalConfig, redisCfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		journalConfig:         journalCfg,
		redisConfig:           redisCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create builds the configured journal
func (f *Factory) Create() (Journal, error) {
	if f.journalConfig.Backend != "redis" {
		f.logger.Info("Using in-memory reconciliation journal")
		return NewInMemoryJournal(), nil
	}

	j, err := NewRedisJournal(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}, f.journalConfig.KeyPrefix)
	if err == nil {
		f.logger.Info("Using Redis reconciliation journal", zap.String("key", j.key))
		return j, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for reconciliation journal but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory reconciliation journal. "+
		"Partial transfers will not survive a restart.",
		zap.Error(err),
	)
	return NewInMemoryJournal(), nil
}
