// Package tenant owns the per-tenant storage partitions: dialing them,
// caching one live handle per tenant and closing them at shutdown.
package tenant

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stockroom/backend/internal/domain/catalog"
	"github.com/stockroom/backend/internal/infrastructure/persistence"
	"gorm.io/gorm"
)

// Handle is an open connection to one tenant's partition together with the
// repositories bound to it. A Handle is shared by all requests for its tenant.
type Handle struct {
	tenant    string
	db        *gorm.DB
	openedAt  time.Time
	checkedAt atomic.Int64 // unix nanos of the last successful liveness check

	products   *persistence.GormProductRepository
	categories *persistence.GormCategoryRepository

	closeOnce sync.Once
	closeErr  error
}

// NewHandle wraps an open partition connection.
func NewHandle(tenant string, db *gorm.DB, now time.Time) *Handle {
	h := &Handle{
		tenant:     tenant,
		db:         db,
		openedAt:   now,
		products:   persistence.NewGormProductRepository(db),
		categories: persistence.NewGormCategoryRepository(db),
	}
	h.checkedAt.Store(now.UnixNano())
	return h
}

// Tenant returns the tenant slug the handle belongs to
func (h *Handle) Tenant() string {
	return h.tenant
}

// DB returns the partition's GORM connection
func (h *Handle) DB() *gorm.DB {
	return h.db
}

// OpenedAt returns when the partition was dialed
func (h *Handle) OpenedAt() time.Time {
	return h.openedAt
}

// Products returns the product repository of this partition
func (h *Handle) Products() catalog.ProductRepository {
	return h.products
}

// Categories returns the category repository of this partition
func (h *Handle) Categories() catalog.CategoryRepository {
	return h.categories
}

// Ping checks that the partition still answers.
func (h *Handle) Ping(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Stats returns the partition's connection pool statistics
func (h *Handle) Stats() (persistence.ConnectionStats, error) {
	return persistence.PoolStats(h.db)
}

// Close closes the partition connection. Later calls return the first result.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		sqlDB, err := h.db.DB()
		if err != nil {
			h.closeErr = fmt.Errorf("failed to get underlying sql.DB: %w", err)
			return
		}
		h.closeErr = sqlDB.Close()
	})
	return h.closeErr
}

func (h *Handle) lastChecked() time.Time {
	return time.Unix(0, h.checkedAt.Load())
}

func (h *Handle) markChecked(t time.Time) {
	h.checkedAt.Store(t.UnixNano())
}
