// Package transfer moves or copies a product between two tenant partitions.
// There is no transaction spanning partitions: the destination is written
// first and the source is only deleted once the copy exists, so a failure
// can duplicate a product but never lose it.
package transfer

import (
	"context"
	"time"

	"github.com/stockroom/backend/internal/application/inventory"
	"github.com/stockroom/backend/internal/domain/catalog"
	"github.com/stockroom/backend/internal/domain/shared"
	"github.com/stockroom/backend/internal/infrastructure/logger"
	"github.com/stockroom/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Outcome is how a transfer ended
type Outcome string

const (
	// OutcomeMoved means the destination copy exists and the source is gone.
	OutcomeMoved Outcome = "moved"
	// OutcomeCopied means the source was kept on request.
	OutcomeCopied Outcome = "copied"
	// OutcomePartial means the destination copy exists but the source could
	// not be deleted. The product now lives in both tenants until reconciled.
	OutcomePartial Outcome = "partial_transfer"
)

// Request represents a request to transfer a product to another tenant
type Request struct {
	Barcode           string `json:"barcode" binding:"required,max=100"`
	DestinationTenant string `json:"destination_tenant" binding:"required"`
	KeepOriginal      bool   `json:"keep_original"`
	Actor             string `json:"-"`
}

// Result describes a completed transfer
type Result struct {
	Outcome            Outcome                   `json:"outcome"`
	SourceTenant       string                    `json:"source_tenant"`
	SourceBarcode      string                    `json:"source_barcode"`
	DestinationTenant  string                    `json:"destination_tenant"`
	DestinationBarcode string                    `json:"destination_barcode"`
	Product            inventory.ProductResponse `json:"product"`
	SourceError        string                    `json:"source_error,omitempty"`

	sourceErr error
}

// Err reports a partial transfer as a PARTIAL_TRANSFER error wrapping the
// failed source delete. Moved and copied results yield nil.
func (r *Result) Err() error {
	if r.Outcome != OutcomePartial {
		return nil
	}
	return shared.WrapKind(shared.KindPartialTransfer, "Product copied but the source could not be removed", r.sourceErr)
}

// Ledger is the part of the ledger service a transfer drives
type Ledger interface {
	Load(ctx context.Context, p inventory.Partition, barcode string, withHistory bool) (*catalog.Product, error)
	ImportCopy(ctx context.Context, p inventory.Partition, source *catalog.Product, note, actor string) (*catalog.Product, error)
	DeleteProduct(ctx context.Context, p inventory.Partition, barcode string, expectedVersion int) error
}

// Orchestrator runs cross-tenant transfers
type Orchestrator struct {
	ledger  Ledger
	journal catalog.ReconciliationJournal
	metrics *telemetry.InventoryMetrics
	now     func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithMetrics counts transfers by outcome
func WithMetrics(m *telemetry.InventoryMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator creates a new Orchestrator. Partial transfers are written
// to journal.
func NewOrchestrator(ledger Ledger, journal catalog.ReconciliationJournal, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:  ledger,
		journal: journal,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Transfer copies the product to dst under the first free variant of its
// barcode and, unless req.KeepOriginal is set, deletes it from src. The copy
// carries the descriptive fields and current stock, no category, and a
// single add movement noting its origin.
//
// A failure before the copy exists returns an error and leaves src
// untouched. A failed source delete is not an error: the result carries
// OutcomePartial and the transfer is journaled for reconciliation.
func (o *Orchestrator) Transfer(ctx context.Context, src, dst inventory.Partition, req Request) (_ *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "transfer.product",
		telemetry.AttrSource.String(src.Tenant()),
		telemetry.AttrDestination.String(dst.Tenant()),
		telemetry.AttrBarcode.String(req.Barcode),
	)
	defer func() { telemetry.EndSpan(span, err) }()
	log := logger.L(ctx).With(
		zap.String("source_tenant", src.Tenant()),
		zap.String("destination_tenant", dst.Tenant()),
		zap.String("barcode", req.Barcode),
	)

	if src.Tenant() == dst.Tenant() {
		return nil, shared.NewKindError(shared.KindInvalidInput, "Source and destination tenant must differ")
	}

	source, err := o.ledger.Load(ctx, src, req.Barcode, false)
	if err != nil {
		return nil, err
	}

	note := catalog.TransferredFromNote(src.Tenant(), source.Barcode)
	copied, err := o.ledger.ImportCopy(ctx, dst, source, note, req.Actor)
	if err != nil {
		log.Warn("Transfer aborted before destination write", zap.Error(err))
		o.metrics.RecordTransfer(ctx, src.Tenant(), dst.Tenant(), "failed")
		return nil, err
	}

	result := &Result{
		Outcome:            OutcomeCopied,
		SourceTenant:       src.Tenant(),
		SourceBarcode:      source.Barcode,
		DestinationTenant:  dst.Tenant(),
		DestinationBarcode: copied.Barcode,
		Product:            inventory.ToProductResponse(dst.Tenant(), copied),
	}

	if !req.KeepOriginal {
		// The copy exists; the delete runs to completion even if the caller
		// goes away. It only removes the source as it was copied, so stock
		// booked in the meantime turns the transfer partial instead of
		// vanishing.
		detached := context.WithoutCancel(ctx)
		if delErr := o.ledger.DeleteProduct(detached, src, source.Barcode, source.Version); delErr != nil {
			o.recordPartial(detached, log, result, req.Actor, delErr)
		} else {
			result.Outcome = OutcomeMoved
		}
	}

	span.SetAttributes(telemetry.AttrOutcome.String(string(result.Outcome)))
	o.metrics.RecordTransfer(ctx, src.Tenant(), dst.Tenant(), string(result.Outcome))
	log.Info("Product transferred",
		zap.String("outcome", string(result.Outcome)),
		zap.String("destination_barcode", result.DestinationBarcode),
		zap.Int64("stock", copied.CurrentStock),
	)
	return result, nil
}

func (o *Orchestrator) recordPartial(ctx context.Context, log *zap.Logger, result *Result, actor string, cause error) {
	result.Outcome = OutcomePartial
	result.SourceError = cause.Error()
	result.sourceErr = cause

	log.Error("Partial transfer: destination written, source delete failed",
		zap.String("destination_barcode", result.DestinationBarcode),
		zap.Error(cause),
	)

	if o.journal == nil {
		return
	}
	entry := catalog.PartialTransfer{
		SourceTenant:       result.SourceTenant,
		SourceBarcode:      result.SourceBarcode,
		DestinationTenant:  result.DestinationTenant,
		DestinationBarcode: result.DestinationBarcode,
		Actor:              actor,
		Reason:             cause.Error(),
		OccurredAt:         o.now().UTC(),
	}
	if err := o.journal.Record(ctx, entry); err != nil {
		log.Error("Failed to journal partial transfer", zap.Error(err))
	}
}

// PartialTransfers lists transfers awaiting reconciliation
func (o *Orchestrator) PartialTransfers(ctx context.Context) ([]catalog.PartialTransfer, error) {
	if o.journal == nil {
		return []catalog.PartialTransfer{}, nil
	}
	return o.journal.List(ctx)
}
