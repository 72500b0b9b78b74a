package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// InventoryMetrics holds the ledger, transfer and tenant registry instruments.
// A nil *InventoryMetrics records nothing, so callers never need to check.
type InventoryMetrics struct {
	movements      *Counter
	conflicts      *Counter
	transfers      *Counter
	dials          *Counter
	evictions      *Counter
	openHandles    *UpDownCounter
	acquireLatency *Histogram
}

// NewInventoryMetrics creates the inventory instruments on meter.
func NewInventoryMetrics(meter metric.Meter) (*InventoryMetrics, error) {
	m := &InventoryMetrics{}
	var err error
	if m.movements, err = NewCounter(meter, "inventory.stock_movements",
		"Stock movements appended to product ledgers", "{movement}"); err != nil {
		return nil, err
	}
	if m.conflicts, err = NewCounter(meter, "inventory.version_conflicts",
		"Optimistic-lock conflicts on product writes", "{conflict}"); err != nil {
		return nil, err
	}
	if m.transfers, err = NewCounter(meter, "inventory.transfers",
		"Cross-tenant transfers by outcome", "{transfer}"); err != nil {
		return nil, err
	}
	if m.dials, err = NewCounter(meter, "inventory.tenant.dials",
		"Tenant partition connection attempts", "{dial}"); err != nil {
		return nil, err
	}
	if m.evictions, err = NewCounter(meter, "inventory.tenant.evictions",
		"Tenant handles evicted from the registry", "{handle}"); err != nil {
		return nil, err
	}
	if m.openHandles, err = NewUpDownCounter(meter, "inventory.tenant.open_handles",
		"Tenant handles currently cached", "{handle}"); err != nil {
		return nil, err
	}
	if m.acquireLatency, err = NewHistogram(meter, HistogramOpts{
		Name:        "inventory.tenant.acquire_duration",
		Description: "Time to hand out a tenant handle",
		Unit:        "s",
		Boundaries:  []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordMovement counts one appended movement.
func (m *InventoryMetrics) RecordMovement(ctx context.Context, tenant, direction string) {
	if m == nil {
		return
	}
	m.movements.Inc(ctx, AttrTenant.String(tenant), AttrDirection.String(direction))
}

// RecordConflict counts one lost optimistic-lock race.
func (m *InventoryMetrics) RecordConflict(ctx context.Context, tenant string) {
	if m == nil {
		return
	}
	m.conflicts.Inc(ctx, AttrTenant.String(tenant))
}

// RecordTransfer counts one transfer by outcome.
func (m *InventoryMetrics) RecordTransfer(ctx context.Context, source, destination, outcome string) {
	if m == nil {
		return
	}
	m.transfers.Inc(ctx, AttrSource.String(source), AttrDestination.String(destination), AttrOutcome.String(outcome))
}

// RecordDial counts one partition dial and its result.
func (m *InventoryMetrics) RecordDial(ctx context.Context, tenant string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.dials.Inc(ctx, AttrTenant.String(tenant), AttrResult.String(result))
	if err == nil {
		m.openHandles.Add(ctx, 1)
	}
}

// RecordEviction counts one handle leaving the registry.
func (m *InventoryMetrics) RecordEviction(ctx context.Context, tenant string) {
	if m == nil {
		return
	}
	m.evictions.Inc(ctx, AttrTenant.String(tenant))
	m.openHandles.Add(ctx, -1)
}

// RecordAcquire records how long an acquire took.
func (m *InventoryMetrics) RecordAcquire(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.acquireLatency.RecordDuration(ctx, d)
}
