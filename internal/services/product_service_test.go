// internal/services/product_service_test.go
package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ozstock/reseller-backend/internal/models"
	"github.com/ozstock/reseller-backend/internal/utils"
)

func defaultSearchParams() ProductSearchParams {
	return ProductSearchParams{
		PaginationParams: utils.PaginationParams{
			Page:  1,
			Limit: 20,
			Sort:  "created_at",
			Order: "desc",
		},
	}
}

func seedCatalog(t *testing.T, db *gorm.DB, userID uuid.UUID) []models.Product {
	t.Helper()

	// SKUs are globally unique; derive a prefix per owner so two catalogs
	// can coexist in one test database.
	prefix := userID.String()[:8]

	products := []models.Product{
		{
			UserID: userID, SKU: "AMZ-" + prefix + "-1", SupplierASIN: "B000000001",
			Title: "Sonos Era 100 Speaker", Brand: "Sonos", Category: "Audio",
			SupplierPrice: 299, ResalePrice: 449, Currency: "AUD",
			StockStatus: models.StockStatusInStock, IsActive: true,
		},
		{
			UserID: userID, SKU: "AMZ-" + prefix + "-2", SupplierASIN: "B000000002",
			Title: "Anker PowerCore 20000", Brand: "Anker", Category: "Electronics",
			SupplierPrice: 89, ResalePrice: 135, Currency: "AUD",
			StockStatus: models.StockStatusLimitedStock, IsActive: true,
		},
		{
			UserID: userID, SKU: "AMZ-" + prefix + "-3", SupplierASIN: "B000000003",
			Title: "Anker Soundcore Earbuds", Brand: "Anker", Category: "Audio",
			SupplierPrice: 59, ResalePrice: 95, Currency: "AUD",
			StockStatus: models.StockStatusOutOfStock, IsActive: false,
		},
	}
	for i := range products {
		require.NoError(t, db.Create(&products[i]).Error)
	}
	return products
}

func TestListProductsScopesAndFilters(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	seedCatalog(t, db, userID)
	seedCatalog(t, db, uuid.New()) // someone else's catalog

	_, total, err := NewProductService(db).ListProducts(userID, defaultSearchParams())
	require.NoError(t, err)
	assert.Equal(t, int64(3), total, "listing is scoped to the owner")

	svc := NewProductService(db)

	params := defaultSearchParams()
	params.ActiveOnly = true
	active, total, err := svc.ListProducts(userID, params)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, p := range active {
		assert.True(t, p.IsActive)
	}

	params = defaultSearchParams()
	params.Brand = "anker"
	_, total, err = svc.ListProducts(userID, params)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total, "brand filter is case-insensitive")

	params = defaultSearchParams()
	limited := models.StockStatusLimitedStock
	params.StockStatus = &limited
	byStock, total, err := svc.ListProducts(userID, params)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, "Anker PowerCore 20000", byStock[0].Title)

	params = defaultSearchParams()
	params.Search = "soundcore"
	bySearch, total, err := svc.ListProducts(userID, params)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, "B000000003", bySearch[0].SupplierASIN)

	params = defaultSearchParams()
	params.Category = "Audio"
	_, total, err = svc.ListProducts(userID, params)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestListProductsPaginationAndSort(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	seedCatalog(t, db, userID)
	svc := NewProductService(db)

	params := defaultSearchParams()
	params.Limit = 2
	params.Sort = "supplier_price"
	params.Order = "asc"

	page1, total, err := svc.ListProducts(userID, params)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page1, 2)
	assert.Equal(t, "Anker Soundcore Earbuds", page1[0].Title)

	params.Page = 2
	page2, _, err := svc.ListProducts(userID, params)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "Sonos Era 100 Speaker", page2[0].Title)
}

func TestGetProductOwnership(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	products := seedCatalog(t, db, userID)
	svc := NewProductService(db)

	found, err := svc.GetProduct(products[0].ID, userID)
	require.NoError(t, err)
	assert.Equal(t, products[0].SKU, found.SKU)

	_, err = svc.GetProduct(products[0].ID, uuid.New())
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.GetProduct(uuid.New(), userID)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestDeactivateProducts(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	products := seedCatalog(t, db, userID)
	svc := NewProductService(db)

	// One foreign id mixed in: it must not be touched.
	affected, err := svc.DeactivateProducts(userID, []uuid.UUID{products[0].ID, products[1].ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	var remaining int64
	require.NoError(t, db.Model(&models.Product{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&remaining).Error)
	assert.Zero(t, remaining)

	affected, err = svc.DeactivateProducts(userID, nil)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestGetPriceHistoryOrdering(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	products := seedCatalog(t, db, userID)
	svc := NewProductService(db)

	for _, price := range []float64{250, 275, 299} {
		require.NoError(t, db.Create(&models.PriceHistoryEntry{
			ProductID:     products[0].ID,
			SupplierPrice: price,
			ResalePrice:   price * 1.5,
			StockStatus:   models.StockStatusInStock,
		}).Error)
	}

	entries, err := svc.GetPriceHistory(products[0].ID, userID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	all, err := svc.GetPriceHistory(products[0].ID, userID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.GetPriceHistory(products[0].ID, uuid.New(), 10)
	assert.ErrorIs(t, err, ErrProductNotFound)
}
