package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockroom/backend/internal/domain/catalog"
)

// ProductModel is the persistence model for the Product aggregate.
// Each tenant partition holds its own products table, so the barcode index
// is unique per tenant.
type ProductModel struct {
	AggregateModel
	Barcode       string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_product_barcode"`
	Name          string          `gorm:"type:varchar(200);not null"`
	CurrentStock  int64           `gorm:"not null;default:0"`
	BuyingPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	SellingPrice  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Unit          string          `gorm:"type:varchar(20);not null"`
	CategoryID    *uuid.UUID      `gorm:"type:uuid;index"`
	MovementCount int             `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product without history.
func (m *ProductModel) ToDomain() *catalog.Product {
	return &catalog.Product{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Barcode:           m.Barcode,
		Name:              m.Name,
		CurrentStock:      m.CurrentStock,
		BuyingPrice:       m.BuyingPrice,
		SellingPrice:      m.SellingPrice,
		Unit:              m.Unit,
		CategoryID:        m.CategoryID,
		MovementCount:     m.MovementCount,
	}
}

// FromDomain populates the persistence model from a domain Product.
func (m *ProductModel) FromDomain(p *catalog.Product) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.Barcode = p.Barcode
	m.Name = p.Name
	m.CurrentStock = p.CurrentStock
	m.BuyingPrice = p.BuyingPrice
	m.SellingPrice = p.SellingPrice
	m.Unit = p.Unit
	m.CategoryID = p.CategoryID
	m.MovementCount = p.MovementCount
}

// ProductModelFromDomain creates a new persistence model from a domain Product.
func ProductModelFromDomain(p *catalog.Product) *ProductModel {
	m := &ProductModel{}
	m.FromDomain(p)
	return m
}

// StockMovementModel is one row of a product's ledger. Rows are inserted and
// deleted, never updated.
type StockMovementModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_movement_product_seq,priority:1"`
	Sequence  int       `gorm:"not null;uniqueIndex:idx_movement_product_seq,priority:2"`
	Direction string    `gorm:"type:varchar(10);not null"`
	Quantity  int64     `gorm:"not null"`
	Note      string    `gorm:"type:text"`
	Supplier  string    `gorm:"type:varchar(200)"`
	Location  string    `gorm:"type:varchar(200)"`
	Actor     string    `gorm:"type:varchar(100);not null"`
	CreatedAt time.Time `gorm:"not null"`

	Product *ProductModel `gorm:"foreignKey:ProductID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (StockMovementModel) TableName() string {
	return "stock_movements"
}

// ToDomain converts the persistence model to a domain StockMovement.
func (m *StockMovementModel) ToDomain() catalog.StockMovement {
	return catalog.StockMovement{
		ID:        m.ID,
		ProductID: m.ProductID,
		Sequence:  m.Sequence,
		Direction: catalog.MovementDirection(m.Direction),
		Quantity:  m.Quantity,
		Note:      m.Note,
		Supplier:  m.Supplier,
		Location:  m.Location,
		Actor:     m.Actor,
		CreatedAt: m.CreatedAt,
	}
}

// StockMovementModelFromDomain creates a persistence model from a domain StockMovement.
func StockMovementModelFromDomain(s *catalog.StockMovement) *StockMovementModel {
	return &StockMovementModel{
		ID:        s.ID,
		ProductID: s.ProductID,
		Sequence:  s.Sequence,
		Direction: string(s.Direction),
		Quantity:  s.Quantity,
		Note:      s.Note,
		Supplier:  s.Supplier,
		Location:  s.Location,
		Actor:     s.Actor,
		CreatedAt: s.CreatedAt,
	}
}

// CategoryModel is the persistence model for the Category entity.
type CategoryModel struct {
	BaseModel
	Name string `gorm:"type:varchar(100);not null;uniqueIndex:idx_category_name"`
}

// TableName returns the table name for GORM
func (CategoryModel) TableName() string {
	return "categories"
}

// ToDomain converts the persistence model to a domain Category.
func (m *CategoryModel) ToDomain() *catalog.Category {
	return &catalog.Category{
		BaseEntity: m.BaseModel.ToDomain(),
		Name:       m.Name,
	}
}

// CategoryModelFromDomain creates a persistence model from a domain Category.
func CategoryModelFromDomain(c *catalog.Category) *CategoryModel {
	m := &CategoryModel{}
	m.FromDomainBaseEntity(c.BaseEntity)
	m.Name = c.Name
	return m
}

// TenantSchema lists the models every tenant partition is migrated with.
// The schema is static and identical across tenants.
func TenantSchema() []any {
	return []any{
		&CategoryModel{},
		&ProductModel{},
		&StockMovementModel{},
	}
}
