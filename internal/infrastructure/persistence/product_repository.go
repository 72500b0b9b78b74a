package persistence

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/stockroom/backend/internal/domain/catalog"
	"github.com/stockroom/backend/internal/domain/shared"
	"github.com/stockroom/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormProductRepository implements catalog.ProductRepository on one tenant
// partition.
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindByID finds a product by its ID. History is not loaded.
func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByBarcode finds a product by its barcode. History is not loaded.
func (r *GormProductRepository) FindByBarcode(ctx context.Context, barcode string) (*catalog.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).Where("barcode = ?", barcode).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindAll finds products matching the filter
func (r *GormProductRepository) FindAll(ctx context.Context, filter shared.Filter) ([]catalog.Product, error) {
	var rows []models.ProductModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.ProductModel{}), filter)
	if err := query.Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	products := make([]catalog.Product, len(rows))
	for i := range rows {
		products[i] = *rows[i].ToDomain()
	}
	return products, nil
}

// Count counts products matching the filter, ignoring pagination
func (r *GormProductRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.ProductModel{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, translateError(err)
	}
	return count, nil
}

// ExistsByBarcode checks if a product with the given barcode exists
func (r *GormProductRepository) ExistsByBarcode(ctx context.Context, barcode string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ProductModel{}).
		Where("barcode = ?", barcode).
		Count(&count).Error; err != nil {
		return false, translateError(err)
	}
	return count > 0, nil
}

// FindMovements returns a product's ledger in append order
func (r *GormProductRepository) FindMovements(ctx context.Context, productID uuid.UUID) ([]catalog.StockMovement, error) {
	var rows []models.StockMovementModel
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	movements := make([]catalog.StockMovement, len(rows))
	for i := range rows {
		movements[i] = rows[i].ToDomain()
	}
	return movements, nil
}

// Create inserts the product together with its seeded history
func (r *GormProductRepository) Create(ctx context.Context, product *catalog.Product) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.ProductModelFromDomain(product)).Error; err != nil {
			return err
		}
		for i := range product.History {
			if err := tx.Create(models.StockMovementModelFromDomain(&product.History[i])).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return translateError(err)
}

// AppendMovement writes the product's new counter and inserts the movement in
// one transaction. The update only matches while the stored version equals
// expectedVersion.
func (r *GormProductRepository) AppendMovement(ctx context.Context, product *catalog.Product, movement *catalog.StockMovement, expectedVersion int) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ProductModel{}).
			Where("id = ? AND version = ?", product.ID, expectedVersion).
			Updates(map[string]any{
				"current_stock":  product.CurrentStock,
				"movement_count": product.MovementCount,
				"version":        product.Version,
				"updated_at":     product.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.conflictOrMissing(tx, product.ID)
		}
		if err := tx.Create(models.StockMovementModelFromDomain(movement)).Error; err != nil {
			if isUniqueViolation(err) {
				return shared.ErrConcurrencyConflict
			}
			return err
		}
		return nil
	})
	return translateError(err)
}

// UpdateFields writes the descriptive fields and barcode under the same
// version check as AppendMovement. The ledger is not touched.
func (r *GormProductRepository) UpdateFields(ctx context.Context, product *catalog.Product, expectedVersion int) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ProductModel{}).
			Where("id = ? AND version = ?", product.ID, expectedVersion).
			Updates(map[string]any{
				"barcode":       product.Barcode,
				"name":          product.Name,
				"buying_price":  product.BuyingPrice,
				"selling_price": product.SellingPrice,
				"unit":          product.Unit,
				"category_id":   product.CategoryID,
				"version":       product.Version,
				"updated_at":    product.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return r.conflictOrMissing(tx, product.ID)
		}
		return nil
	})
	return translateError(err)
}

// Delete removes the product together with its history. With a positive
// expectedVersion the product row is only deleted while its version matches.
func (r *GormProductRepository) Delete(ctx context.Context, id uuid.UUID, expectedVersion int) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&models.StockMovementModel{}).Error; err != nil {
			return err
		}
		query := tx.Where("id = ?", id)
		if expectedVersion > 0 {
			query = query.Where("version = ?", expectedVersion)
		}
		result := query.Delete(&models.ProductModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if expectedVersion > 0 {
				return r.conflictOrMissing(tx, id)
			}
			return shared.ErrNotFound
		}
		return nil
	})
	return translateError(err)
}

// conflictOrMissing tells a lost version race from a product deleted underneath.
func (r *GormProductRepository) conflictOrMissing(tx *gorm.DB, id uuid.UUID) error {
	var count int64
	if err := tx.Model(&models.ProductModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.ErrNotFound
	}
	return shared.ErrConcurrencyConflict
}

// applyFilter applies filter options to the query
func (r *GormProductRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	orderBy := ValidateSortField(filter.OrderBy, ProductSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	return query.Order(orderBy + " " + orderDir).Order("barcode ASC")
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormProductRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(barcode) LIKE ?", pattern, pattern)
	}

	for key, value := range filter.Filters {
		switch key {
		case "category_id":
			if value == nil {
				query = query.Where("category_id IS NULL")
			} else {
				query = query.Where("category_id = ?", value)
			}
		case "in_stock":
			if value == true {
				query = query.Where("current_stock > 0")
			} else {
				query = query.Where("current_stock = 0")
			}
		}
	}

	return query
}

// Ensure GormProductRepository implements ProductRepository
var _ catalog.ProductRepository = (*GormProductRepository)(nil)
