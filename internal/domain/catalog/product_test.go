package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockroom/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFields() ProductFields {
	return ProductFields{
		Name:         "Green Tea 500ml",
		BuyingPrice:  decimal.NewFromFloat(1.20),
		SellingPrice: decimal.NewFromFloat(2.50),
		Unit:         "bottle",
	}
}

func TestNewProduct(t *testing.T) {
	t.Run("creates product with empty history when no initial quantity", func(t *testing.T) {
		p, err := NewProduct("B123", testFields(), 0, "alice")
		require.NoError(t, err)

		assert.Equal(t, "B123", p.Barcode)
		assert.Equal(t, "Green Tea 500ml", p.Name)
		assert.Equal(t, int64(0), p.CurrentStock)
		assert.Empty(t, p.History)
		assert.Equal(t, 0, p.MovementCount)
		assert.Equal(t, 1, p.GetVersion())
		assert.NotEqual(t, uuid.Nil, p.ID)
	})

	t.Run("seeds one add movement for initial quantity", func(t *testing.T) {
		p, err := NewProduct("B123", testFields(), 10, "alice")
		require.NoError(t, err)

		require.Len(t, p.History, 1)
		assert.Equal(t, MovementAdd, p.History[0].Direction)
		assert.Equal(t, int64(10), p.History[0].Quantity)
		assert.Equal(t, 1, p.History[0].Sequence)
		assert.Equal(t, p.ID, p.History[0].ProductID)
		assert.Equal(t, int64(10), p.CurrentStock)
		assert.Equal(t, LedgerBalance(p.History), p.CurrentStock)
		assert.Equal(t, 1, p.GetVersion())
	})

	t.Run("defaults unit", func(t *testing.T) {
		f := testFields()
		f.Unit = ""
		p, err := NewProduct("B1", f, 0, "alice")
		require.NoError(t, err)
		assert.Equal(t, "pcs", p.Unit)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		_, err := NewProduct("", testFields(), 0, "alice")
		assert.True(t, shared.IsKind(err, shared.KindInvalidInput))

		_, err = NewProduct(" B1", testFields(), 0, "alice")
		assert.True(t, shared.IsKind(err, shared.KindInvalidInput))

		f := testFields()
		f.Name = "  "
		_, err = NewProduct("B1", f, 0, "alice")
		assert.True(t, shared.IsKind(err, shared.KindInvalidInput))

		f = testFields()
		f.SellingPrice = decimal.NewFromInt(-1)
		_, err = NewProduct("B1", f, 0, "alice")
		assert.True(t, shared.IsKind(err, shared.KindInvalidInput))

		_, err = NewProduct("B1", testFields(), -5, "alice")
		assert.True(t, shared.IsKind(err, shared.KindInvalidInput))
	})
}

func TestProduct_StockMovements(t *testing.T) {
	t.Run("counter tracks signed sum of movements", func(t *testing.T) {
		p, err := NewProduct("B123", testFields(), 5, "alice")
		require.NoError(t, err)

		steps := []struct {
			add bool
			qty int64
		}{
			{true, 7}, {false, 3}, {true, 1}, {false, 10}, {true, 4},
		}
		for _, s := range steps {
			if s.add {
				_, err = p.AddStock(s.qty, "", "ACME", "alice")
			} else {
				_, err = p.RemoveStock(s.qty, "", "shelf 4", "alice")
			}
			require.NoError(t, err)
			assert.Equal(t, LedgerBalance(p.History), p.CurrentStock)
		}
		assert.Equal(t, int64(4), p.CurrentStock)
		assert.Len(t, p.History, 6)
		for i, m := range p.History {
			assert.Equal(t, i+1, m.Sequence)
		}
	})

	t.Run("records counterpart by direction", func(t *testing.T) {
		p, _ := NewProduct("B123", testFields(), 0, "alice")
		add, err := p.AddStock(3, "restock", "ACME", "bob")
		require.NoError(t, err)
		assert.Equal(t, "ACME", add.Counterpart())
		assert.Equal(t, "bob", add.Actor)

		rm, err := p.RemoveStock(1, "sold", "front desk", "bob")
		require.NoError(t, err)
		assert.Equal(t, "front desk", rm.Counterpart())
		assert.Equal(t, int64(-1), rm.Signed())
	})

	t.Run("rejects removal beyond stock without side effects", func(t *testing.T) {
		p, _ := NewProduct("B123", testFields(), 2, "alice")
		version := p.Version

		_, err := p.RemoveStock(3, "", "", "alice")
		require.Error(t, err)
		assert.True(t, shared.IsKind(err, shared.KindInsufficientStock))
		assert.Equal(t, int64(2), p.CurrentStock)
		assert.Len(t, p.History, 1)
		assert.Equal(t, version, p.Version)
	})

	t.Run("rejects non-positive quantities", func(t *testing.T) {
		p, _ := NewProduct("B123", testFields(), 2, "alice")
		_, err := p.AddStock(0, "", "", "alice")
		assert.True(t, shared.IsKind(err, shared.KindInvalidInput))
		_, err = p.RemoveStock(-1, "", "", "alice")
		assert.True(t, shared.IsKind(err, shared.KindInvalidInput))
		assert.Equal(t, int64(2), p.CurrentStock)
	})

	t.Run("each append bumps the version once", func(t *testing.T) {
		p, _ := NewProduct("B123", testFields(), 0, "alice")
		_, _ = p.AddStock(1, "", "", "alice")
		assert.Equal(t, 2, p.Version)
		_, _ = p.RemoveStock(1, "", "", "alice")
		assert.Equal(t, 3, p.Version)
	})
}

func TestProduct_CopyAs(t *testing.T) {
	categoryID := uuid.New()
	f := testFields()
	f.CategoryID = &categoryID
	src, err := NewProduct("B123", f, 4, "alice")
	require.NoError(t, err)
	_, err = src.AddStock(6, "", "ACME", "alice")
	require.NoError(t, err)

	t.Run("keeps category within a tenant", func(t *testing.T) {
		cp, err := src.CopyAs("B123(1)", true, DuplicatedFromNote("B123"), "bob")
		require.NoError(t, err)

		assert.NotEqual(t, src.ID, cp.ID)
		assert.Equal(t, "B123(1)", cp.Barcode)
		assert.Equal(t, src.Name, cp.Name)
		assert.True(t, src.SellingPrice.Equal(cp.SellingPrice))
		assert.Equal(t, &categoryID, cp.CategoryID)
		assert.Equal(t, int64(10), cp.CurrentStock)
		require.Len(t, cp.History, 1)
		assert.Equal(t, "duplicated from B123", cp.History[0].Note)
		assert.Equal(t, cp.ID, cp.History[0].ProductID)
		assert.Equal(t, 1, cp.Version)
	})

	t.Run("drops category across tenants", func(t *testing.T) {
		cp, err := src.CopyAs("B123", false, TransferredFromNote("acme", "B123"), "bob")
		require.NoError(t, err)
		assert.Nil(t, cp.CategoryID)
		assert.Equal(t, "transferred from acme/B123", cp.History[0].Note)
	})

	t.Run("empty stock copies with empty history", func(t *testing.T) {
		empty, _ := NewProduct("E1", testFields(), 0, "alice")
		cp, err := empty.CopyAs("E1(1)", true, DuplicatedFromNote("E1"), "bob")
		require.NoError(t, err)
		assert.Empty(t, cp.History)
		assert.Equal(t, int64(0), cp.CurrentStock)
	})
}

func TestProduct_UpdateFieldsAndBarcode(t *testing.T) {
	p, _ := NewProduct("B123", testFields(), 3, "alice")

	f := testFields()
	f.Name = "Green Tea 1L"
	require.NoError(t, p.UpdateFields(f))
	assert.Equal(t, "Green Tea 1L", p.Name)
	assert.Equal(t, int64(3), p.CurrentStock)

	require.NoError(t, p.ChangeBarcode("B124"))
	assert.Equal(t, "B124", p.Barcode)
	assert.Error(t, p.ChangeBarcode(""))
}

func TestBarcodeCandidate(t *testing.T) {
	assert.Equal(t, "X", BarcodeCandidate("X", 0))
	assert.Equal(t, "X(1)", BarcodeCandidate("X", 1))
	assert.Equal(t, "X(12)", BarcodeCandidate("X", 12))
	assert.Equal(t, "X(1)(1)", BarcodeCandidate("X(1)", 1))
}
