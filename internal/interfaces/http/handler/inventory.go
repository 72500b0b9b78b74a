package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/stockroom/backend/internal/application/inventory"
)

// InventoryHandler exposes the product ledger of the request's tenant
type InventoryHandler struct {
	BaseHandler
	ledger *inventory.LedgerService
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(ledger *inventory.LedgerService) *InventoryHandler {
	return &InventoryHandler{ledger: ledger}
}

// RegisterRoutes registers the ledger routes on a tenant-scoped group
func (h *InventoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	products := rg.Group("/products")
	products.GET("", h.ListProducts)
	products.POST("", h.CreateProduct)
	products.GET("/:barcode", h.GetProduct)
	products.PUT("/:barcode", h.UpdateProduct)
	products.DELETE("/:barcode", h.DeleteProduct)
	products.POST("/:barcode/add-stock", h.AddStock)
	products.POST("/:barcode/remove-stock", h.RemoveStock)
	products.POST("/:barcode/duplicate", h.DuplicateProduct)
	products.GET("/:barcode/movements", h.ListMovements)
	products.GET("/:barcode/audit", h.VerifyLedger)

	rg.GET("/barcodes/unique", h.GenerateUniqueBarcode)
	rg.GET("/categories", h.ListCategories)
	rg.POST("/categories", h.CreateCategory)
}

// ListProducts godoc
// @Summary      List products
// @Tags         inventory
// @Param        X-Tenant-ID header string false "Tenant slug"
// @Router       /products [get]
func (h *InventoryHandler) ListProducts(c *gin.Context) {
	p, ok := h.partition(c)
	if !ok {
		return
	}
	var filter inventory.ProductListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, err)
		return
	}
	page, err := h.ledger.ListProducts(c.Request.Context(), p, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

// CreateProduct godoc
// @Summary      Create a product
// @Tags         inventory
// @Router       /products [post]
func (h *InventoryHandler) CreateProduct(c *gin.Context) {
	p, ok := h.partition(c)
	if !ok {
		return
	}
	var req inventory.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	req.Actor = actor(c)

	product, err := h.ledger.CreateProduct(c.Request.Context(), p, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, product)
}

// GetProduct returns one product; ?history=true includes its ledger
func (h *InventoryHandler) GetProduct(c *gin.Context) {
	p, ok := h.partition(c)
	if !ok {
		return
	}
	product, err := h.ledger.GetProduct(c.Request.Context(), p, c.Param("barcode"), c.Query("history") == "true")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}

// UpdateProduct godoc
// @Summary      Update descriptive fields or barcode
// @Tags         inventory
// @Router       /products/{barcode} [put]
func (h *InventoryHandler) UpdateProduct(c *gin.Context) {
	p, ok := h.partition(c)
	if !ok {
		return
	}
	var req inventory.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	product, err := h.ledger.UpdateProduct(c.Request.Context(), p, c.Param("barcode"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, product)
}

// DeleteProduct removes a product and its history
func (h *InventoryHandler) DeleteProduct(c *gin.Context) {
	p, ok := h.partition(c)
	if !ok {
		return
	}
	if err := h.ledger.DeleteProduct(c.Request.Context(), p, c.Param("barcode"), 0); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// AddStock godoc
// @Summary      Append an add movement
// @Tags         inventory
// @Router       /products/{barcode}/add-stock [post]
func (h *InventoryHandler) AddStock(c *gin.Context) {
	h.stock(c, h.ledger.AddStock)
}

// RemoveStock godoc
// @Summary      Append a remove movement
// @Tags         inventory
// @Router       /products/{barcode}/remove-stock [post]
func (h *InventoryHandler) RemoveStock(c *gin.Context) {
	h.stock(c, h.ledger.RemoveStock)
}

type stockOp func(ctx context.Context, p inventory.Partition, barcode string, req inventory.StockRequest) (*inventory.StockChangeResponse, error)

func (h *InventoryHandler) stock(c *gin.Context, op stockOp) {
	p, ok := h.partition(c)
	if !ok {
		return
	}
	var req inventory.StockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	req.Actor = actor(c)

	result, err := op(c.Request.Context(), p, c.Param("barcode"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// DuplicateProduct copies a product under the next free barcode variant
func (h *InventoryHandler) DuplicateProduct(c *gin.Context) {
	p, ok := h.partition(c)
	if !ok {
		return
	}
	product, err := h.ledger.DuplicateProduct(c.Request.Context(), p, c.Param("barcode"), actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, product)
}

// ListMovements returns a product's ledger
func (h *InventoryHandler) ListMovements(c *gin.Context) {
	p, ok := h.partition(c)
	if !ok {
		return
	}
	movements, err := h.ledger.ListMovements(c.Request.Context(), p, c.Param("barcode"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, movements)
}

// VerifyLedger compares a product's counter with its ledger
func (h *InventoryHandler) VerifyLedger(c *gin.Context) {
	p, ok := h.partition(c)
	if !ok {
		return
	}
	audit, err := h.ledger.VerifyLedger(c.Request.Context(), p, c.Param("barcode"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, audit)
}

// GenerateUniqueBarcode returns the first free variant of ?base=
func (h *InventoryHandler) GenerateUniqueBarcode(c *gin.Context) {
	p, ok := h.partition(c)
	if !ok {
		return
	}
	barcode, err := h.ledger.GenerateUniqueBarcode(c.Request.Context(), p, c.Query("base"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"barcode": barcode})
}

// ListCategories returns the tenant's categories
func (h *InventoryHandler) ListCategories(c *gin.Context) {
	p, ok := h.partition(c)
	if !ok {
		return
	}
	categories, err := h.ledger.ListCategories(c.Request.Context(), p)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, categories)
}

// CreateCategory creates a category
func (h *InventoryHandler) CreateCategory(c *gin.Context) {
	p, ok := h.partition(c)
	if !ok {
		return
	}
	var req inventory.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	category, err := h.ledger.CreateCategory(c.Request.Context(), p, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, category)
}
