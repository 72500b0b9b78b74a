package persistence

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockroom/backend/internal/domain/catalog"
	"github.com/stockroom/backend/internal/domain/shared"
	"github.com/stockroom/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newSQLiteDB opens a private in-memory partition with the tenant schema.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.TenantSchema()...))
	return db
}

func newProduct(t *testing.T, barcode string, qty int64) *catalog.Product {
	t.Helper()
	p, err := catalog.NewProduct(barcode, catalog.ProductFields{
		Name:         "Green Tea " + barcode,
		BuyingPrice:  decimal.NewFromFloat(1.25),
		SellingPrice: decimal.NewFromFloat(2.5),
	}, qty, "alice")
	require.NoError(t, err)
	return p
}

func TestGormProductRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewGormProductRepository(newSQLiteDB(t))

	p := newProduct(t, "B123", 10)
	require.NoError(t, repo.Create(ctx, p))

	t.Run("finds by barcode and id", func(t *testing.T) {
		got, err := repo.FindByBarcode(ctx, "B123")
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, int64(10), got.CurrentStock)
		assert.Equal(t, 1, got.MovementCount)
		assert.Equal(t, 1, got.Version)
		assert.True(t, decimal.NewFromFloat(2.5).Equal(got.SellingPrice))

		byID, err := repo.FindByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "B123", byID.Barcode)
	})

	t.Run("loads the seeded history", func(t *testing.T) {
		movements, err := repo.FindMovements(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, movements, 1)
		assert.Equal(t, catalog.MovementAdd, movements[0].Direction)
		assert.Equal(t, int64(10), movements[0].Quantity)
		assert.Equal(t, "alice", movements[0].Actor)
	})

	t.Run("reports missing products", func(t *testing.T) {
		_, err := repo.FindByBarcode(ctx, "nope")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("rejects duplicate barcode", func(t *testing.T) {
		err := repo.Create(ctx, newProduct(t, "B123", 0))
		require.Error(t, err)
		assert.True(t, shared.IsKind(err, shared.KindDuplicateBarcode))

		exists, err := repo.ExistsByBarcode(ctx, "B123")
		require.NoError(t, err)
		assert.True(t, exists)
		count, err := repo.Count(ctx, shared.Filter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestGormProductRepository_AppendMovement(t *testing.T) {
	ctx := context.Background()

	t.Run("writes counter and movement together", func(t *testing.T) {
		repo := NewGormProductRepository(newSQLiteDB(t))
		require.NoError(t, repo.Create(ctx, newProduct(t, "B1", 3)))

		p, err := repo.FindByBarcode(ctx, "B1")
		require.NoError(t, err)
		expected := p.Version
		m, err := p.RemoveStock(2, "sold", "front desk", "bob")
		require.NoError(t, err)
		require.NoError(t, repo.AppendMovement(ctx, p, m, expected))

		stored, err := repo.FindByBarcode(ctx, "B1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.CurrentStock)
		assert.Equal(t, 2, stored.Version)

		movements, err := repo.FindMovements(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, movements, 2)
		assert.Equal(t, "front desk", movements[1].Location)
		assert.Equal(t, stored.CurrentStock, catalog.LedgerBalance(movements))
	})

	t.Run("stale version is a conflict and writes nothing", func(t *testing.T) {
		repo := NewGormProductRepository(newSQLiteDB(t))
		require.NoError(t, repo.Create(ctx, newProduct(t, "B1", 3)))

		first, _ := repo.FindByBarcode(ctx, "B1")
		second, _ := repo.FindByBarcode(ctx, "B1")

		m1, _ := first.AddStock(1, "", "", "alice")
		require.NoError(t, repo.AppendMovement(ctx, first, m1, 1))

		m2, _ := second.AddStock(5, "", "", "bob")
		err := repo.AppendMovement(ctx, second, m2, 1)
		require.Error(t, err)
		assert.True(t, shared.IsKind(err, shared.KindConcurrencyConflict))

		stored, _ := repo.FindByBarcode(ctx, "B1")
		assert.Equal(t, int64(4), stored.CurrentStock)
		movements, _ := repo.FindMovements(ctx, stored.ID)
		assert.Len(t, movements, 2)
	})

	t.Run("deleted product is not found", func(t *testing.T) {
		repo := NewGormProductRepository(newSQLiteDB(t))
		p := newProduct(t, "B1", 0)
		require.NoError(t, repo.Create(ctx, p))
		require.NoError(t, repo.Delete(ctx, p.ID, 0))

		m, _ := p.AddStock(1, "", "", "alice")
		err := repo.AppendMovement(ctx, p, m, 1)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormProductRepository_AppendMovementConflict_Postgres(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)
	repo := NewGormProductRepository(db)

	p := newProduct(t, "B1", 0)
	m, _ := p.AddStock(1, "", "", "alice")

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "products" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "products" WHERE id = \$1`).
		WithArgs(p.ID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err = repo.AppendMovement(context.Background(), p, m, 1)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormProductRepository_UpdateFields(t *testing.T) {
	ctx := context.Background()
	repo := NewGormProductRepository(newSQLiteDB(t))
	require.NoError(t, repo.Create(ctx, newProduct(t, "B1", 2)))
	require.NoError(t, repo.Create(ctx, newProduct(t, "B2", 0)))

	t.Run("renames without touching the ledger", func(t *testing.T) {
		p, _ := repo.FindByBarcode(ctx, "B1")
		expected := p.Version
		fields := p.Fields()
		fields.Name = "Oolong"
		require.NoError(t, p.UpdateFields(fields))
		require.NoError(t, repo.UpdateFields(ctx, p, expected))

		stored, _ := repo.FindByBarcode(ctx, "B1")
		assert.Equal(t, "Oolong", stored.Name)
		assert.Equal(t, int64(2), stored.CurrentStock)
	})

	t.Run("taken barcode is a duplicate", func(t *testing.T) {
		p, _ := repo.FindByBarcode(ctx, "B1")
		expected := p.Version
		require.NoError(t, p.ChangeBarcode("B2"))
		err := repo.UpdateFields(ctx, p, expected)
		assert.True(t, shared.IsKind(err, shared.KindDuplicateBarcode))
	})
}

func TestGormProductRepository_Delete(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	repo := NewGormProductRepository(db)
	p := newProduct(t, "B1", 4)
	require.NoError(t, repo.Create(ctx, p))

	require.NoError(t, repo.Delete(ctx, p.ID, 0))

	var remaining int64
	require.NoError(t, db.Model(&models.StockMovementModel{}).Where("product_id = ?", p.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)
	assert.ErrorIs(t, repo.Delete(ctx, p.ID, 0), shared.ErrNotFound)
}

func TestGormProductRepository_DeleteAtVersion(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	repo := NewGormProductRepository(db)
	p := newProduct(t, "B1", 4)
	require.NoError(t, repo.Create(ctx, p))
	read := p.Version

	m, _ := p.AddStock(5, "late delivery", "", "bob")
	require.NoError(t, repo.AppendMovement(ctx, p, m, read))

	err := repo.Delete(ctx, p.ID, read)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	stored, err := repo.FindByBarcode(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), stored.CurrentStock)
	movements, err := repo.FindMovements(ctx, stored.ID)
	require.NoError(t, err)
	assert.Len(t, movements, 2)

	require.NoError(t, repo.Delete(ctx, p.ID, stored.Version))
	assert.ErrorIs(t, repo.Delete(ctx, p.ID, stored.Version), shared.ErrNotFound)
}

func TestGormProductRepository_FindAll(t *testing.T) {
	ctx := context.Background()
	repo := NewGormProductRepository(newSQLiteDB(t))
	for _, b := range []string{"A1", "A2", "B1"} {
		qty := int64(0)
		if b != "A2" {
			qty = 5
		}
		require.NoError(t, repo.Create(ctx, newProduct(t, b, qty)))
	}

	t.Run("paginates with stable order", func(t *testing.T) {
		page, err := repo.FindAll(ctx, shared.Filter{Page: 1, PageSize: 2, OrderBy: "barcode", OrderDir: "asc"})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "A1", page[0].Barcode)
		assert.Equal(t, "A2", page[1].Barcode)
	})

	t.Run("searches name and barcode", func(t *testing.T) {
		found, err := repo.FindAll(ctx, shared.Filter{Search: "a"})
		require.NoError(t, err)
		assert.Len(t, found, 3)

		found, err = repo.FindAll(ctx, shared.Filter{Search: "b1"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "B1", found[0].Barcode)
	})

	t.Run("filters by stock", func(t *testing.T) {
		count, err := repo.Count(ctx, shared.Filter{Filters: map[string]any{"in_stock": true}})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}

func TestGormCategoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormCategoryRepository(newSQLiteDB(t))

	drinks, err := catalog.NewCategory("Drinks")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, drinks))
	snacks, _ := catalog.NewCategory("Snacks")
	require.NoError(t, repo.Create(ctx, snacks))

	exists, err := repo.Exists(ctx, drinks.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.Exists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, exists)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Drinks", all[0].Name)

	dup, _ := catalog.NewCategory("Drinks")
	err = repo.Create(ctx, dup)
	assert.True(t, shared.IsKind(err, shared.KindInvalidInput))
}
