package tenant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stockroom/backend/internal/domain/identity"
	"github.com/stockroom/backend/internal/domain/shared"
	"github.com/stockroom/backend/internal/infrastructure/config"
	"github.com/stockroom/backend/internal/infrastructure/persistence"
	"github.com/stockroom/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrRegistryClosed is returned by Acquire after ShutdownAll.
var ErrRegistryClosed = shared.NewKindError(shared.KindConnection, "Tenant registry is shut down")

// HandleStatus is the observed liveness of one cached handle
type HandleStatus struct {
	Tenant   string                       `json:"tenant"`
	Live     bool                         `json:"live"`
	OpenedAt time.Time                    `json:"opened_at"`
	Error    string                       `json:"error,omitempty"`
	Pool     *persistence.ConnectionStats `json:"pool,omitempty"`
}

// Registry caches one Handle per tenant. Concurrent acquirers of a tenant
// that is not cached yet share a single dial and its result. Failed dials
// are not cached.
type Registry struct {
	dialer         Dialer
	healthInterval time.Duration
	pingTimeout    time.Duration
	logger         *zap.Logger
	metrics        *telemetry.InventoryMetrics
	now            func() time.Time

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
	group   singleflight.Group
}

// Option configures a Registry
type Option func(*Registry)

// WithMetrics records dials, evictions and acquire latency
func WithMetrics(m *telemetry.InventoryMetrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty registry. The caller owns it and must call
// ShutdownAll once at process exit.
func NewRegistry(dialer Dialer, cfg config.RegistryConfig, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		dialer:         dialer,
		healthInterval: cfg.HealthCheckInterval,
		pingTimeout:    cfg.DialTimeout,
		logger:         logger.Named("tenant_registry"),
		now:            time.Now,
		handles:        make(map[string]*Handle),
	}
	if r.pingTimeout <= 0 {
		r.pingTimeout = 5 * time.Second
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire returns the live handle of tenant, dialing it if needed. A cached
// handle that fails its liveness check is evicted and replaced. Storage that
// cannot be reached surfaces as a CONNECTION_ERROR.
func (r *Registry) Acquire(ctx context.Context, tenant string) (*Handle, error) {
	start := r.now()
	defer func() { r.metrics.RecordAcquire(ctx, r.now().Sub(start)) }()

	slug, err := identity.NormalizeTenantSlug(tenant)
	if err != nil {
		return nil, err
	}

	h, err := r.cached(slug)
	if err != nil {
		return nil, err
	}
	if h != nil {
		if r.isLive(ctx, h) {
			return h, nil
		}
		r.logger.Warn("Cached tenant handle is dead, replacing it", zap.String("tenant", slug))
		r.evictHandle(ctx, h)
	}

	ch := r.group.DoChan(slug, func() (any, error) {
		return r.create(slug)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	case <-ctx.Done():
		return nil, shared.WrapKind(shared.KindConnection,
			fmt.Sprintf("Gave up waiting for tenant %q", slug), ctx.Err())
	}
}

// Evict removes the tenant's handle, closing it. Evicting an unknown tenant
// is a no-op.
func (r *Registry) Evict(ctx context.Context, tenant string) error {
	slug, err := identity.NormalizeTenantSlug(tenant)
	if err != nil {
		return err
	}
	r.mu.Lock()
	h, ok := r.handles[slug]
	if ok {
		delete(r.handles, slug)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	r.metrics.RecordEviction(ctx, slug)
	r.logger.Info("Tenant handle evicted", zap.String("tenant", slug))
	return h.Close()
}

// ShutdownAll closes every cached handle and refuses later acquires. It is
// safe to call more than once and tolerates handles that are already closed.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	handles := r.handles
	r.handles = make(map[string]*Handle)
	r.mu.Unlock()

	var errs []error
	for slug, h := range handles {
		r.metrics.RecordEviction(ctx, slug)
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tenant %q: %w", slug, err))
		}
	}
	r.logger.Info("Tenant registry shut down", zap.Int("closed_handles", len(handles)))
	return errors.Join(errs...)
}

// Status pings every cached handle and reports its liveness, sorted by tenant.
// Dead handles are reported, not evicted.
func (r *Registry) Status(ctx context.Context) []HandleStatus {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	statuses := make([]HandleStatus, len(handles))
	var wg sync.WaitGroup
	for i, h := range handles {
		wg.Add(1)
		go func(i int, h *Handle) {
			defer wg.Done()
			pingCtx, cancel := context.WithTimeout(ctx, r.pingTimeout)
			defer cancel()
			st := HandleStatus{Tenant: h.Tenant(), OpenedAt: h.OpenedAt(), Live: true}
			if err := h.Ping(pingCtx); err != nil {
				st.Live = false
				st.Error = err.Error()
			} else {
				h.markChecked(r.now())
				if stats, err := h.Stats(); err == nil {
					st.Pool = &stats
				}
			}
			statuses[i] = st
		}(i, h)
	}
	wg.Wait()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Tenant < statuses[j].Tenant })
	return statuses
}

// Len returns the number of cached handles
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (r *Registry) cached(slug string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	return r.handles[slug], nil
}

// isLive pings h unless it was checked within the health interval.
func (r *Registry) isLive(ctx context.Context, h *Handle) bool {
	now := r.now()
	if r.healthInterval > 0 && now.Sub(h.lastChecked()) < r.healthInterval {
		return true
	}
	pingCtx, cancel := context.WithTimeout(ctx, r.pingTimeout)
	defer cancel()
	if err := h.Ping(pingCtx); err != nil {
		return false
	}
	h.markChecked(now)
	return true
}

// evictHandle removes h only if it is still the cached handle of its tenant.
func (r *Registry) evictHandle(ctx context.Context, h *Handle) {
	r.mu.Lock()
	current, ok := r.handles[h.Tenant()]
	if ok && current == h {
		delete(r.handles, h.Tenant())
	}
	r.mu.Unlock()
	if ok && current == h {
		r.metrics.RecordEviction(ctx, h.Tenant())
		if err := h.Close(); err != nil {
			r.logger.Debug("Closing dead tenant handle failed", zap.String("tenant", h.Tenant()), zap.Error(err))
		}
	}
}

// create runs inside the single-flight group for slug. The dial is detached
// from any caller's context so one caller giving up does not fail the others.
func (r *Registry) create(slug string) (*Handle, error) {
	h, err := r.cached(slug)
	if err != nil {
		return nil, err
	}
	if h != nil {
		return h, nil
	}

	ctx := context.Background()
	db, err := r.dialer.Dial(ctx, slug)
	r.metrics.RecordDial(ctx, slug, err)
	if err != nil {
		r.logger.Error("Cannot reach tenant storage", zap.String("tenant", slug), zap.Error(err))
		if shared.IsKind(err, shared.KindConnection) {
			return nil, err
		}
		return nil, shared.WrapKind(shared.KindConnection,
			fmt.Sprintf("Cannot reach storage of tenant %q", slug), err)
	}

	h = NewHandle(slug, db, r.now())

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = h.Close()
		return nil, ErrRegistryClosed
	}
	r.handles[slug] = h
	r.mu.Unlock()

	r.logger.Info("Tenant handle registered", zap.String("tenant", slug))
	return h, nil
}
