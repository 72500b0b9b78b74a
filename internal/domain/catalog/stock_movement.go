package catalog

import (
	"time"

	"github.com/google/uuid"
)

// MovementDirection is the sign of a stock movement
type MovementDirection string

const (
	MovementAdd    MovementDirection = "add"
	MovementRemove MovementDirection = "remove"
)

// StockMovement is one immutable entry of a product's ledger. Supplier is set
// for adds and Location for removes.
type StockMovement struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Sequence  int
	Direction MovementDirection
	Quantity  int64
	Note      string
	Supplier  string
	Location  string
	Actor     string
	CreatedAt time.Time
}

// Signed returns the quantity with the movement's sign applied
func (m StockMovement) Signed() int64 {
	if m.Direction == MovementRemove {
		return -m.Quantity
	}
	return m.Quantity
}

// Counterpart returns the supplier of an add or the location of a remove
func (m StockMovement) Counterpart() string {
	if m.Direction == MovementRemove {
		return m.Location
	}
	return m.Supplier
}

// LedgerBalance recomputes the stock implied by a movement history.
// Only used for audits; the running counter is maintained incrementally.
func LedgerBalance(movements []StockMovement) int64 {
	var total int64
	for _, m := range movements {
		total += m.Signed()
	}
	return total
}
