// internal/models/sync.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncSession is one bulk-refresh execution. Counters only grow while the
// session is running; once the status leaves running they are frozen.
type SyncSession struct {
	BaseModel
	UserID         uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	TotalProducts  int        `json:"total_products" gorm:"not null"`
	ProcessedCount int        `json:"processed_count" gorm:"default:0"`
	UpdatedCount   int        `json:"updated_count" gorm:"default:0"`
	FailedCount    int        `json:"failed_count" gorm:"default:0"`
	Status         SyncStatus `json:"status" gorm:"type:varchar(20);default:'running';index"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty" gorm:"size:500"`

	// Relationships
	Logs []SyncLogEntry `json:"logs,omitempty" gorm:"foreignKey:SessionID"`
}

// SyncLogEntry is the per-item audit trail of a session. Writes are
// best-effort; a failed insert is never escalated to the sync itself.
type SyncLogEntry struct {
	ID        uuid.UUID     `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SessionID uuid.UUID     `json:"session_id" gorm:"type:uuid;not null;index"`
	ProductID *uuid.UUID    `json:"product_id,omitempty" gorm:"type:uuid;index"`
	Action    SyncLogAction `json:"action" gorm:"type:varchar(20);not null"`
	Message   string        `json:"message" gorm:"type:text"`
	CreatedAt time.Time     `json:"created_at"`
}

func (e *SyncLogEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
