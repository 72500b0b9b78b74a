package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockroom/backend/internal/domain/catalog"
	"github.com/stockroom/backend/internal/domain/shared"
	"github.com/stockroom/backend/internal/infrastructure/config"
	"github.com/stockroom/backend/internal/infrastructure/persistence/models"
	"github.com/stockroom/backend/internal/infrastructure/persistence/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newPartition(t *testing.T, slug string) *tenant.Handle {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.TenantSchema()...))

	h := tenant.NewHandle(slug, db, time.Now())
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func newLedger() *LedgerService {
	return NewLedgerService(config.LedgerConfig{MaxConflictRetries: 5, MaxBarcodeAttempts: 50})
}

func createReq(barcode string, qty int64) CreateProductRequest {
	price := decimal.NewFromInt(3)
	return CreateProductRequest{
		Barcode:         barcode,
		Name:            "Widget " + barcode,
		SellingPrice:    &price,
		InitialQuantity: qty,
		Actor:           "alice",
	}
}

// flakyProducts fails the first conflicts appends with a version conflict.
type flakyProducts struct {
	catalog.ProductRepository
	mu        sync.Mutex
	conflicts int
	appends   int
}

func (f *flakyProducts) AppendMovement(ctx context.Context, p *catalog.Product, m *catalog.StockMovement, expected int) error {
	f.mu.Lock()
	f.appends++
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return shared.ErrConcurrencyConflict
	}
	f.mu.Unlock()
	return f.ProductRepository.AppendMovement(ctx, p, m, expected)
}

type flakyPartition struct {
	*tenant.Handle
	products *flakyProducts
}

func (p flakyPartition) Products() catalog.ProductRepository {
	return p.products
}

func TestLedgerService_CreateProduct(t *testing.T) {
	ctx := context.Background()
	s := newLedger()
	p := newPartition(t, "acme")

	t.Run("seeds history from the initial quantity", func(t *testing.T) {
		resp, err := s.CreateProduct(ctx, p, createReq("B123", 10))
		require.NoError(t, err)
		assert.Equal(t, "acme", resp.Tenant)
		assert.Equal(t, int64(10), resp.CurrentStock)
		require.Len(t, resp.History, 1)
		assert.Equal(t, "add", resp.History[0].Direction)
	})

	t.Run("zero quantity starts with an empty history", func(t *testing.T) {
		resp, err := s.CreateProduct(ctx, p, createReq("EMPTY", 0))
		require.NoError(t, err)
		assert.Zero(t, resp.CurrentStock)
		assert.Empty(t, resp.History)
	})

	t.Run("taken barcode is rejected", func(t *testing.T) {
		_, err := s.CreateProduct(ctx, p, createReq("B123", 1))
		assert.True(t, shared.IsKind(err, shared.KindDuplicateBarcode))
	})

	t.Run("same barcode is free in another tenant", func(t *testing.T) {
		_, err := s.CreateProduct(ctx, newPartition(t, "globex"), createReq("B123", 1))
		assert.NoError(t, err)
	})

	t.Run("unknown category is rejected", func(t *testing.T) {
		req := createReq("CAT", 0)
		missing := uuid.New()
		req.CategoryID = &missing
		_, err := s.CreateProduct(ctx, p, req)
		assert.True(t, shared.IsKind(err, shared.KindInvalidInput))
	})

	t.Run("known category is accepted", func(t *testing.T) {
		cat, err := s.CreateCategory(ctx, p, CreateCategoryRequest{Name: "Tools"})
		require.NoError(t, err)
		req := createReq("CAT", 0)
		req.CategoryID = &cat.ID
		resp, err := s.CreateProduct(ctx, p, req)
		require.NoError(t, err)
		assert.Equal(t, cat.ID, *resp.CategoryID)
	})
}

func TestLedgerService_StockMovements(t *testing.T) {
	ctx := context.Background()
	s := newLedger()
	p := newPartition(t, "acme")
	_, err := s.CreateProduct(ctx, p, createReq("B1", 5))
	require.NoError(t, err)

	ops := []struct {
		add bool
		qty int64
	}{{true, 3}, {false, 4}, {true, 10}, {false, 14}, {true, 1}}
	for _, op := range ops {
		req := StockRequest{Quantity: op.qty, Counterpart: "dock", Actor: "bob"}
		if op.add {
			_, err = s.AddStock(ctx, p, "B1", req)
		} else {
			_, err = s.RemoveStock(ctx, p, "B1", req)
		}
		require.NoError(t, err)
	}

	audit, err := s.VerifyLedger(ctx, p, "B1")
	require.NoError(t, err)
	assert.True(t, audit.Consistent)
	assert.Equal(t, int64(1), audit.CurrentStock)
	assert.Equal(t, 6, audit.Movements)

	t.Run("removal beyond stock changes nothing", func(t *testing.T) {
		_, err := s.RemoveStock(ctx, p, "B1", StockRequest{Quantity: 2, Actor: "bob"})
		assert.True(t, shared.IsKind(err, shared.KindInsufficientStock))

		got, err := s.GetProduct(ctx, p, "B1", true)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.CurrentStock)
		assert.Len(t, got.History, 6)
	})

	t.Run("non-positive quantity is invalid", func(t *testing.T) {
		_, err := s.AddStock(ctx, p, "B1", StockRequest{Quantity: 0})
		assert.True(t, shared.IsKind(err, shared.KindInvalidInput))
	})

	t.Run("unknown barcode is not found", func(t *testing.T) {
		_, err := s.AddStock(ctx, p, "nope", StockRequest{Quantity: 1})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("movements carry counterpart and order", func(t *testing.T) {
		movements, err := s.ListMovements(ctx, p, "B1")
		require.NoError(t, err)
		require.Len(t, movements, 6)
		for i, m := range movements {
			assert.Equal(t, i+1, m.Sequence)
		}
		assert.Equal(t, "dock", movements[1].Supplier)
		assert.Equal(t, "dock", movements[2].Location)
	})
}

func TestLedgerService_ConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	s := newLedger()
	p := newPartition(t, "acme")
	_, err := s.CreateProduct(ctx, p, createReq("HOT", 100))
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, p, createReq("COLD", 0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 60)
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := s.AddStock(ctx, p, "HOT", StockRequest{Quantity: 2, Actor: "a"})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := s.RemoveStock(ctx, p, "HOT", StockRequest{Quantity: 3, Actor: "b"})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := s.AddStock(ctx, p, "COLD", StockRequest{Quantity: 1, Actor: "c"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	hot, err := s.VerifyLedger(ctx, p, "HOT")
	require.NoError(t, err)
	assert.True(t, hot.Consistent)
	assert.Equal(t, int64(80), hot.CurrentStock)
	assert.Equal(t, 41, hot.Movements)

	cold, err := s.VerifyLedger(ctx, p, "COLD")
	require.NoError(t, err)
	assert.Equal(t, int64(20), cold.CurrentStock)
	assert.Zero(t, s.locks.size())
}

func TestLedgerService_ConflictRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("retries lost races", func(t *testing.T) {
		h := newPartition(t, "acme")
		s := newLedger()
		_, err := s.CreateProduct(ctx, h, createReq("B1", 1))
		require.NoError(t, err)

		flaky := &flakyProducts{ProductRepository: h.Products(), conflicts: 2}
		resp, err := s.AddStock(ctx, flakyPartition{Handle: h, products: flaky}, "B1", StockRequest{Quantity: 4, Actor: "a"})
		require.NoError(t, err)
		assert.Equal(t, int64(5), resp.Product.CurrentStock)
		assert.Equal(t, 3, flaky.appends)
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		h := newPartition(t, "acme")
		s := NewLedgerService(config.LedgerConfig{MaxConflictRetries: 1, MaxBarcodeAttempts: 10})
		_, err := s.CreateProduct(ctx, h, createReq("B1", 1))
		require.NoError(t, err)

		flaky := &flakyProducts{ProductRepository: h.Products(), conflicts: 5}
		_, err = s.AddStock(ctx, flakyPartition{Handle: h, products: flaky}, "B1", StockRequest{Quantity: 4, Actor: "a"})
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 2, flaky.appends)

		got, err := s.GetProduct(ctx, h, "B1", false)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.CurrentStock)
	})
}

func TestLedgerService_GenerateUniqueBarcode(t *testing.T) {
	ctx := context.Background()
	s := newLedger()
	p := newPartition(t, "acme")

	free, err := s.GenerateUniqueBarcode(ctx, p, "X")
	require.NoError(t, err)
	assert.Equal(t, "X", free)

	_, err = s.CreateProduct(ctx, p, createReq("X", 0))
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, p, createReq("X(1)", 0))
	require.NoError(t, err)

	first, err := s.GenerateUniqueBarcode(ctx, p, "X")
	require.NoError(t, err)
	second, err := s.GenerateUniqueBarcode(ctx, p, "X")
	require.NoError(t, err)
	assert.Equal(t, "X(2)", first)
	assert.Equal(t, first, second, "generation must not reserve")

	t.Run("exhausted variants", func(t *testing.T) {
		tiny := NewLedgerService(config.LedgerConfig{MaxBarcodeAttempts: 2})
		_, err := tiny.GenerateUniqueBarcode(ctx, p, "X")
		assert.True(t, shared.IsKind(err, shared.KindDuplicateBarcode))
	})

	t.Run("invalid base", func(t *testing.T) {
		_, err := s.GenerateUniqueBarcode(ctx, p, " ")
		assert.True(t, shared.IsKind(err, shared.KindInvalidInput))
	})
}

func TestLedgerService_DuplicateProduct(t *testing.T) {
	ctx := context.Background()
	s := newLedger()
	p := newPartition(t, "acme")
	_, err := s.CreateProduct(ctx, p, createReq("B1", 7))
	require.NoError(t, err)
	_, err = s.AddStock(ctx, p, "B1", StockRequest{Quantity: 3, Actor: "a"})
	require.NoError(t, err)

	first, err := s.DuplicateProduct(ctx, p, "B1", "carol")
	require.NoError(t, err)
	assert.Equal(t, "B1(1)", first.Barcode)
	assert.Equal(t, int64(10), first.CurrentStock)
	require.Len(t, first.History, 1)
	assert.Equal(t, "duplicated from B1", first.History[0].Note)
	assert.Equal(t, "carol", first.History[0].Actor)

	second, err := s.DuplicateProduct(ctx, p, "B1", "carol")
	require.NoError(t, err)
	assert.Equal(t, "B1(2)", second.Barcode)

	source, err := s.GetProduct(ctx, p, "B1", true)
	require.NoError(t, err)
	assert.Len(t, source.History, 2)

	_, err = s.DuplicateProduct(ctx, p, "missing", "carol")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestLedgerService_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newLedger()
	p := newPartition(t, "acme")
	_, err := s.CreateProduct(ctx, p, createReq("B1", 2))
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, p, createReq("B2", 0))
	require.NoError(t, err)

	t.Run("renames and rebarcodes", func(t *testing.T) {
		name, barcode := "Gadget", "G1"
		resp, err := s.UpdateProduct(ctx, p, "B1", UpdateProductRequest{Name: &name, Barcode: &barcode})
		require.NoError(t, err)
		assert.Equal(t, "G1", resp.Barcode)
		assert.Equal(t, "Gadget", resp.Name)
		assert.Equal(t, int64(2), resp.CurrentStock)

		_, err = s.GetProduct(ctx, p, "B1", false)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("taken barcode is a duplicate", func(t *testing.T) {
		barcode := "B2"
		_, err := s.UpdateProduct(ctx, p, "G1", UpdateProductRequest{Barcode: &barcode})
		assert.True(t, shared.IsKind(err, shared.KindDuplicateBarcode))
	})

	t.Run("negative price is invalid", func(t *testing.T) {
		price := decimal.NewFromInt(-1)
		_, err := s.UpdateProduct(ctx, p, "G1", UpdateProductRequest{BuyingPrice: &price})
		assert.True(t, shared.IsKind(err, shared.KindInvalidInput))
	})

	t.Run("delete removes product and history", func(t *testing.T) {
		require.NoError(t, s.DeleteProduct(ctx, p, "G1", 0))
		_, err := s.ListMovements(ctx, p, "G1")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.ErrorIs(t, s.DeleteProduct(ctx, p, "G1", 0), shared.ErrNotFound)
	})
}

func TestLedgerService_ListProducts(t *testing.T) {
	ctx := context.Background()
	s := newLedger()
	p := newPartition(t, "acme")
	for i, b := range []string{"A", "B", "C"} {
		_, err := s.CreateProduct(ctx, p, createReq(b, int64(i)))
		require.NoError(t, err)
	}

	page, err := s.ListProducts(ctx, p, ProductListFilter{PageSize: 2, OrderBy: "barcode", OrderDir: "asc"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "A", page.Items[0].Barcode)

	inStock := true
	page, err = s.ListProducts(ctx, p, ProductListFilter{InStock: &inStock})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	categories, err := s.ListCategories(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, categories)
}
