// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// Postgres assigns ids via gen_random_uuid(); the hook covers databases
// without that default, like the sqlite test database.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// StringList stores an ordered list of strings as a JSON column. Unlike a
// native text[] column it round-trips unchanged through both postgres and
// the sqlite test database.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return nil
}

// Enums
type StockStatus string

const (
	StockStatusInStock      StockStatus = "in_stock"
	StockStatusOutOfStock   StockStatus = "out_of_stock"
	StockStatusLimitedStock StockStatus = "limited_stock"
)

type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusCancelled SyncStatus = "cancelled"
	SyncStatusFailed    SyncStatus = "failed"
)

// Terminal reports whether a session status can no longer change.
func (s SyncStatus) Terminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusCancelled || s == SyncStatusFailed
}

type SyncLogAction string

const (
	SyncLogActionProcessing SyncLogAction = "processing"
	SyncLogActionSuccess    SyncLogAction = "success"
	SyncLogActionError      SyncLogAction = "error"
)
