package catalog

import (
	"context"
	"time"
)

// PartialTransfer records a transfer whose destination copy was created but
// whose source product could not be deleted. Both tenants then hold the
// product until an operator reconciles them.
type PartialTransfer struct {
	SourceTenant       string    `json:"source_tenant"`
	SourceBarcode      string    `json:"source_barcode"`
	DestinationTenant  string    `json:"destination_tenant"`
	DestinationBarcode string    `json:"destination_barcode"`
	Actor              string    `json:"actor"`
	Reason             string    `json:"reason"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// ReconciliationJournal keeps partial transfers for manual follow-up
type ReconciliationJournal interface {
	Record(ctx context.Context, entry PartialTransfer) error
	List(ctx context.Context) ([]PartialTransfer, error)
}
