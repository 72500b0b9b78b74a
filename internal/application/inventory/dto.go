package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockroom/backend/internal/domain/catalog"
)

// ProductResponse represents a product in API responses
type ProductResponse struct {
	ID            uuid.UUID          `json:"id"`
	Tenant        string             `json:"tenant"`
	Barcode       string             `json:"barcode"`
	Name          string             `json:"name"`
	CurrentStock  int64              `json:"current_stock"`
	BuyingPrice   decimal.Decimal    `json:"buying_price"`
	SellingPrice  decimal.Decimal    `json:"selling_price"`
	Unit          string             `json:"unit"`
	CategoryID    *uuid.UUID         `json:"category_id,omitempty"`
	MovementCount int                `json:"movement_count"`
	History       []MovementResponse `json:"history,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Version       int                `json:"version"`
}

// MovementResponse represents one ledger entry in API responses
type MovementResponse struct {
	ID        uuid.UUID `json:"id"`
	Sequence  int       `json:"sequence"`
	Direction string    `json:"direction"`
	Quantity  int64     `json:"quantity"`
	Note      string    `json:"note,omitempty"`
	Supplier  string    `json:"supplier,omitempty"`
	Location  string    `json:"location,omitempty"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// StockChangeResponse is the result of an add or remove
type StockChangeResponse struct {
	Product  ProductResponse  `json:"product"`
	Movement MovementResponse `json:"movement"`
}

// LedgerAuditResponse compares a product's counter with its history
type LedgerAuditResponse struct {
	Barcode       string `json:"barcode"`
	CurrentStock  int64  `json:"current_stock"`
	LedgerBalance int64  `json:"ledger_balance"`
	Movements     int    `json:"movements"`
	Consistent    bool   `json:"consistent"`
}

// CategoryResponse represents a category in API responses
type CategoryResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateProductRequest represents a request to create a product
type CreateProductRequest struct {
	Barcode         string           `json:"barcode" binding:"required,max=100"`
	Name            string           `json:"name" binding:"required,max=200"`
	BuyingPrice     *decimal.Decimal `json:"buying_price"`
	SellingPrice    *decimal.Decimal `json:"selling_price"`
	Unit            string           `json:"unit" binding:"max=20"`
	CategoryID      *uuid.UUID       `json:"category_id"`
	InitialQuantity int64            `json:"initial_quantity" binding:"min=0"`
	Actor           string           `json:"-"`
}

// UpdateProductRequest represents a request to update a product's
// descriptive fields. Nil fields are left unchanged.
type UpdateProductRequest struct {
	Barcode       *string          `json:"barcode" binding:"omitempty,max=100"`
	Name          *string          `json:"name" binding:"omitempty,max=200"`
	BuyingPrice   *decimal.Decimal `json:"buying_price"`
	SellingPrice  *decimal.Decimal `json:"selling_price"`
	Unit          *string          `json:"unit" binding:"omitempty,max=20"`
	CategoryID    *uuid.UUID       `json:"category_id"`
	ClearCategory bool             `json:"clear_category"`
}

// StockRequest represents a request to add or remove stock. Counterpart is
// the supplier of an add or the location of a remove.
type StockRequest struct {
	Quantity    int64  `json:"quantity" binding:"required,min=1"`
	Note        string `json:"note" binding:"max=500"`
	Counterpart string `json:"counterpart" binding:"max=200"`
	Actor       string `json:"-"`
}

// CreateCategoryRequest represents a request to create a category
type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

// ProductListFilter represents filter options for the product list
type ProductListFilter struct {
	Search     string     `form:"search"`
	CategoryID *uuid.UUID `form:"category_id"`
	InStock    *bool      `form:"in_stock"`
	Page       int        `form:"page" binding:"omitempty,min=1"`
	PageSize   int        `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy    string     `form:"order_by"`
	OrderDir   string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

func (r CreateProductRequest) fields() catalog.ProductFields {
	f := catalog.ProductFields{
		Name:       r.Name,
		Unit:       r.Unit,
		CategoryID: r.CategoryID,
	}
	if r.BuyingPrice != nil {
		f.BuyingPrice = *r.BuyingPrice
	}
	if r.SellingPrice != nil {
		f.SellingPrice = *r.SellingPrice
	}
	return f
}

// apply merges the request into the product's current fields
func (r UpdateProductRequest) apply(f catalog.ProductFields) catalog.ProductFields {
	if r.Name != nil {
		f.Name = *r.Name
	}
	if r.BuyingPrice != nil {
		f.BuyingPrice = *r.BuyingPrice
	}
	if r.SellingPrice != nil {
		f.SellingPrice = *r.SellingPrice
	}
	if r.Unit != nil {
		f.Unit = *r.Unit
	}
	if r.CategoryID != nil {
		f.CategoryID = r.CategoryID
	}
	if r.ClearCategory {
		f.CategoryID = nil
	}
	return f
}

// ToProductResponse converts a domain product to a response. History is
// included when it has been loaded.
func ToProductResponse(tenant string, p *catalog.Product) ProductResponse {
	resp := ProductResponse{
		ID:            p.ID,
		Tenant:        tenant,
		Barcode:       p.Barcode,
		Name:          p.Name,
		CurrentStock:  p.CurrentStock,
		BuyingPrice:   p.BuyingPrice,
		SellingPrice:  p.SellingPrice,
		Unit:          p.Unit,
		CategoryID:    p.CategoryID,
		MovementCount: p.MovementCount,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		Version:       p.Version,
	}
	if len(p.History) > 0 {
		resp.History = ToMovementResponses(p.History)
	}
	return resp
}

// ToMovementResponse converts a domain movement to a response
func ToMovementResponse(m catalog.StockMovement) MovementResponse {
	return MovementResponse{
		ID:        m.ID,
		Sequence:  m.Sequence,
		Direction: string(m.Direction),
		Quantity:  m.Quantity,
		Note:      m.Note,
		Supplier:  m.Supplier,
		Location:  m.Location,
		Actor:     m.Actor,
		CreatedAt: m.CreatedAt,
	}
}

// ToMovementResponses converts a history to responses
func ToMovementResponses(movements []catalog.StockMovement) []MovementResponse {
	out := make([]MovementResponse, len(movements))
	for i := range movements {
		out[i] = ToMovementResponse(movements[i])
	}
	return out
}

// ToCategoryResponse converts a domain category to a response
func ToCategoryResponse(c *catalog.Category) CategoryResponse {
	return CategoryResponse{
		ID:        c.ID,
		Name:      c.Name,
		CreatedAt: c.CreatedAt,
	}
}
