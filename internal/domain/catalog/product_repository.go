package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/stockroom/backend/internal/domain/shared"
)

// ProductRepository persists products and their ledgers inside one tenant
// partition. Every mutation that touches the counter also appends to the
// ledger in the same transaction, guarded by the aggregate version.
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)
	FindByBarcode(ctx context.Context, barcode string) (*Product, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]Product, error)
	Count(ctx context.Context, filter shared.Filter) (int64, error)
	ExistsByBarcode(ctx context.Context, barcode string) (bool, error)
	FindMovements(ctx context.Context, productID uuid.UUID) ([]StockMovement, error)

	// Create inserts the product and its seeded history. Returns a
	// DUPLICATE_BARCODE error when the barcode is taken.
	Create(ctx context.Context, product *Product) error

	// AppendMovement inserts the movement and writes the product's counter
	// only if the stored version still equals expectedVersion. Returns a
	// CONCURRENCY_CONFLICT error otherwise.
	AppendMovement(ctx context.Context, product *Product, movement *StockMovement, expectedVersion int) error

	// UpdateFields writes descriptive fields and barcode under the same
	// version check as AppendMovement.
	UpdateFields(ctx context.Context, product *Product, expectedVersion int) error

	// Delete removes the product together with its history. A positive
	// expectedVersion makes the delete conditional on the stored version and
	// yields a CONCURRENCY_CONFLICT error when it moved on.
	Delete(ctx context.Context, id uuid.UUID, expectedVersion int) error
}

// CategoryRepository is the narrow category surface the ledger needs
type CategoryRepository interface {
	Create(ctx context.Context, category *Category) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	FindAll(ctx context.Context) ([]Category, error)
}
