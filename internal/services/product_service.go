// internal/services/product_service.go
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ozstock/reseller-backend/internal/models"
	"github.com/ozstock/reseller-backend/internal/utils"
)

var ErrProductNotFound = errors.New("product not found")

// ProductService is the read/maintenance surface over the stored catalog.
// All queries are scoped to the owning user.
type ProductService struct {
	db *gorm.DB
}

type ProductSearchParams struct {
	utils.PaginationParams
	StockStatus *models.StockStatus
	ActiveOnly  bool
	Brand       string
}

func NewProductService(db *gorm.DB) *ProductService {
	return &ProductService{db: db}
}

func (s *ProductService) ListProducts(userID uuid.UUID, params ProductSearchParams) ([]models.Product, int64, error) {
	query := s.db.Model(&models.Product{}).Where("user_id = ?", userID)

	if params.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	if params.StockStatus != nil {
		query = query.Where("stock_status = ?", *params.StockStatus)
	}

	if params.Brand != "" {
		query = query.Where("LOWER(brand) = ?", strings.ToLower(params.Brand))
	}

	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(brand) LIKE ? OR supplier_asin LIKE ?",
			searchTerm, searchTerm, "%"+params.Search+"%")
	}

	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}

	// Get total count
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	// Apply sorting and pagination
	allowedSortFields := []string{"created_at", "updated_at", "title", "supplier_price", "resale_price", "last_synced_at", "error_count"}
	query = utils.ApplySort(query, params.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, params.PaginationParams)

	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch products: %w", err)
	}

	return products, total, nil
}

func (s *ProductService) GetProduct(id, userID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.Where("id = ? AND user_id = ?", id, userID).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &product, nil
}

// DeactivateProducts soft-deactivates the given products. Records are
// never hard-deleted; deactivated products simply drop out of active
// listings and future sync runs.
func (s *ProductService) DeactivateProducts(userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.db.Model(&models.Product{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to deactivate products: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// GetPriceHistory returns a product's price observations, newest first.
func (s *ProductService) GetPriceHistory(productID, userID uuid.UUID, limit int) ([]models.PriceHistoryEntry, error) {
	if _, err := s.GetProduct(productID, userID); err != nil {
		return nil, err
	}

	if limit < 1 || limit > 500 {
		limit = 100
	}

	var entries []models.PriceHistoryEntry
	if err := s.db.Where("product_id = ?", productID).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch price history: %w", err)
	}

	return entries, nil
}
