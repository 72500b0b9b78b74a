package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockroom/backend/internal/domain/shared"
)

const (
	maxBarcodeLength = 100
	maxNameLength    = 200
	defaultUnit      = "pcs"
)

// ProductFields holds the descriptive, non-ledger attributes of a product.
type ProductFields struct {
	Name         string
	BuyingPrice  decimal.Decimal
	SellingPrice decimal.Decimal
	Unit         string
	CategoryID   *uuid.UUID
}

// Product is the aggregate root of the inventory ledger. CurrentStock is the
// running counter over History and is only changed together with an append.
type Product struct {
	shared.BaseAggregateRoot
	Barcode       string
	Name          string
	CurrentStock  int64
	BuyingPrice   decimal.Decimal
	SellingPrice  decimal.Decimal
	Unit          string
	CategoryID    *uuid.UUID
	MovementCount int // sequence of the last appended movement

	// History is loaded explicitly; see ProductRepository.FindMovements.
	History []StockMovement
}

// NewProduct creates a product with an empty history. A positive
// initialQuantity seeds the history with one synthetic add movement so the
// counter and the ledger agree from the start.
func NewProduct(barcode string, fields ProductFields, initialQuantity int64, actor string) (*Product, error) {
	if err := ValidateBarcode(barcode); err != nil {
		return nil, err
	}
	if err := validateFields(&fields); err != nil {
		return nil, err
	}
	if initialQuantity < 0 {
		return nil, shared.NewKindError(shared.KindInvalidInput, "Initial quantity cannot be negative")
	}

	p := &Product{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Barcode:           barcode,
		Name:              fields.Name,
		BuyingPrice:       fields.BuyingPrice,
		SellingPrice:      fields.SellingPrice,
		Unit:              fields.Unit,
		CategoryID:        fields.CategoryID,
		History:           make([]StockMovement, 0, 1),
	}

	if initialQuantity > 0 {
		if _, err := p.AddStock(initialQuantity, "initial stock", "", actor); err != nil {
			return nil, err
		}
		// A brand new aggregate is inserted, not updated.
		p.Version = 1
	}

	return p, nil
}

// Fields returns the descriptive attributes of the product.
func (p *Product) Fields() ProductFields {
	return ProductFields{
		Name:         p.Name,
		BuyingPrice:  p.BuyingPrice,
		SellingPrice: p.SellingPrice,
		Unit:         p.Unit,
		CategoryID:   p.CategoryID,
	}
}

// AddStock appends an add movement and increments the counter.
func (p *Product) AddStock(quantity int64, note, supplier, actor string) (*StockMovement, error) {
	if quantity <= 0 {
		return nil, shared.NewKindError(shared.KindInvalidInput, "Quantity must be positive")
	}
	m := p.newMovement(MovementAdd, quantity, note, actor)
	m.Supplier = supplier
	p.CurrentStock += quantity
	p.append(m)
	return m, nil
}

// RemoveStock appends a remove movement and decrements the counter. A removal
// larger than the current stock is rejected and leaves the product untouched.
func (p *Product) RemoveStock(quantity int64, note, location, actor string) (*StockMovement, error) {
	if quantity <= 0 {
		return nil, shared.NewKindError(shared.KindInvalidInput, "Quantity must be positive")
	}
	if quantity > p.CurrentStock {
		return nil, shared.NewKindError(shared.KindInsufficientStock,
			fmt.Sprintf("Cannot remove %d from %q: only %d in stock", quantity, p.Barcode, p.CurrentStock))
	}
	m := p.newMovement(MovementRemove, quantity, note, actor)
	m.Location = location
	p.CurrentStock -= quantity
	p.append(m)
	return m, nil
}

// UpdateFields replaces the descriptive attributes. The ledger is untouched.
func (p *Product) UpdateFields(fields ProductFields) error {
	if err := validateFields(&fields); err != nil {
		return err
	}
	p.Name = fields.Name
	p.BuyingPrice = fields.BuyingPrice
	p.SellingPrice = fields.SellingPrice
	p.Unit = fields.Unit
	p.CategoryID = fields.CategoryID
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

// ChangeBarcode sets a new barcode. Uniqueness is checked by the caller
// against the tenant's storage.
func (p *Product) ChangeBarcode(barcode string) error {
	if err := ValidateBarcode(barcode); err != nil {
		return err
	}
	if barcode == p.Barcode {
		return nil
	}
	p.Barcode = barcode
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

// CopyAs builds a new aggregate carrying this product's descriptive fields
// and current stock under a different barcode. History is not portable across
// aggregate identities, so the copy starts with a single add movement noted
// with its origin (none when there is no stock to carry).
func (p *Product) CopyAs(barcode string, keepCategory bool, note, actor string) (*Product, error) {
	fields := p.Fields()
	if !keepCategory {
		fields.CategoryID = nil
	}
	cp, err := NewProduct(barcode, fields, 0, actor)
	if err != nil {
		return nil, err
	}
	if p.CurrentStock > 0 {
		if _, err := cp.AddStock(p.CurrentStock, note, "", actor); err != nil {
			return nil, err
		}
		cp.Version = 1
	}
	return cp, nil
}

func (p *Product) newMovement(direction MovementDirection, quantity int64, note, actor string) *StockMovement {
	return &StockMovement{
		ID:        uuid.New(),
		ProductID: p.ID,
		Sequence:  p.MovementCount + 1,
		Direction: direction,
		Quantity:  quantity,
		Note:      note,
		Actor:     actor,
		CreatedAt: time.Now(),
	}
}

func (p *Product) append(m *StockMovement) {
	p.MovementCount = m.Sequence
	p.History = append(p.History, *m)
	p.UpdatedAt = m.CreatedAt
	p.IncrementVersion()
}

// ValidateBarcode checks the barcode shape; uniqueness is a storage concern.
func ValidateBarcode(barcode string) error {
	if strings.TrimSpace(barcode) == "" {
		return shared.NewKindError(shared.KindInvalidInput, "Barcode cannot be empty")
	}
	if barcode != strings.TrimSpace(barcode) {
		return shared.NewKindError(shared.KindInvalidInput, "Barcode cannot have leading or trailing spaces")
	}
	if len(barcode) > maxBarcodeLength {
		return shared.NewKindError(shared.KindInvalidInput, "Barcode cannot exceed 100 characters")
	}
	return nil
}

func validateFields(f *ProductFields) error {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return shared.NewKindError(shared.KindInvalidInput, "Product name cannot be empty")
	}
	if len(f.Name) > maxNameLength {
		return shared.NewKindError(shared.KindInvalidInput, "Product name cannot exceed 200 characters")
	}
	if f.BuyingPrice.IsNegative() || f.SellingPrice.IsNegative() {
		return shared.NewKindError(shared.KindInvalidInput, "Prices cannot be negative")
	}
	if f.Unit == "" {
		f.Unit = defaultUnit
	}
	return nil
}
