package catalog

import (
	"strings"

	"github.com/stockroom/backend/internal/domain/shared"
)

// Category groups products within one tenant. Category IDs mean nothing
// outside the tenant that owns them.
type Category struct {
	shared.BaseEntity
	Name string
}

// NewCategory creates a new category
func NewCategory(name string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewKindError(shared.KindInvalidInput, "Category name cannot be empty")
	}
	if len(name) > 100 {
		return nil, shared.NewKindError(shared.KindInvalidInput, "Category name cannot exceed 100 characters")
	}
	return &Category{
		BaseEntity: shared.NewBaseEntity(),
		Name:       name,
	}, nil
}
