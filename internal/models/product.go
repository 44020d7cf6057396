// internal/models/product.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrorThreshold is the consecutive-failure count at which a product is
// automatically deactivated. A successful sync resets the counter.
const ErrorThreshold = 10

type Product struct {
	BaseModel
	UserID        uuid.UUID   `json:"user_id" gorm:"type:uuid;not null;index"`
	SKU           string      `json:"sku" gorm:"size:64;not null;uniqueIndex"`
	SupplierASIN  string      `json:"supplier_asin" gorm:"size:20;not null;index"`
	SupplierURL   string      `json:"supplier_url" gorm:"size:512"`
	Title         string      `json:"title" gorm:"size:255;not null"`
	Brand         string      `json:"brand" gorm:"size:128"`
	Category      string      `json:"category" gorm:"size:100;index"`
	Description   string      `json:"description" gorm:"type:text"`
	SupplierPrice float64     `json:"supplier_price" gorm:"type:decimal(10,2)"`
	ResalePrice   float64     `json:"resale_price" gorm:"type:decimal(10,2)"`
	Currency      string      `json:"currency" gorm:"size:3;default:'AUD'"`
	StockStatus   StockStatus `json:"stock_status" gorm:"type:varchar(20);default:'in_stock';index"`
	StockQuantity *int        `json:"stock_quantity,omitempty"`
	Features      StringList  `json:"features" gorm:"type:jsonb"`
	Images        StringList  `json:"images" gorm:"type:jsonb"`
	RatingAverage float64     `json:"rating_average" gorm:"type:decimal(3,2);default:0"`
	RatingCount   int64       `json:"rating_count" gorm:"default:0"`
	ErrorCount    int         `json:"error_count" gorm:"default:0"`
	IsActive      bool        `json:"is_active" gorm:"default:true;index"`
	LastSyncedAt  *time.Time  `json:"last_synced_at,omitempty"`

	// Relationships
	PriceHistory []PriceHistoryEntry `json:"price_history,omitempty" gorm:"foreignKey:ProductID"`
}

// Deactivated reports whether the error counter has crossed the threshold.
func (p *Product) Deactivated() bool {
	return p.ErrorCount >= ErrorThreshold
}

// PriceHistoryEntry is append-only: one row per observed supplier price
// change, never updated or deleted by the sync pipeline.
type PriceHistoryEntry struct {
	ID            uuid.UUID   `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ProductID     uuid.UUID   `json:"product_id" gorm:"type:uuid;not null;index"`
	SupplierPrice float64     `json:"supplier_price" gorm:"type:decimal(10,2);not null"`
	ResalePrice   float64     `json:"resale_price" gorm:"type:decimal(10,2);not null"`
	StockStatus   StockStatus `json:"stock_status" gorm:"type:varchar(20)"`
	RecordedAt    time.Time   `json:"recorded_at" gorm:"autoCreateTime;index"`
}

func (e *PriceHistoryEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
