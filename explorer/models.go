package explorer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Identity status values kept in the snapshot table.
const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
)

// HistoryEntry is one committed registry event touching an identifier.
type HistoryEntry struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	EventID      string    `gorm:"uniqueIndex;size:64" json:"eventId"`
	Height       uint64    `gorm:"index" json:"height"`
	Position     int       `json:"position"`
	Type         string    `gorm:"index" json:"type"`
	Label        string    `json:"label"`
	JIDHash      string    `gorm:"column:jid_hash;index;size:64" json:"jidHash"`
	Actor        string    `gorm:"index" json:"actor,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	ReasonHash   string    `json:"reasonHash,omitempty"`
	Timestamp    uint64    `json:"timestamp"`
	CreatedAt    time.Time `json:"indexedAt"`
}

// BeforeCreate assigns the primary key.
func (h *HistoryEntry) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// IdentitySnapshot is the latest known status of an identifier hash.
type IdentitySnapshot struct {
	JIDHash      string    `gorm:"column:jid_hash;primaryKey;size:64" json:"jidHash"`
	Owner        string    `gorm:"index" json:"owner"`
	Status       string    `gorm:"index" json:"status"`
	RegisteredAt uint64    `json:"registeredAt"`
	UpdatedAt    uint64    `json:"updatedAt"`
	Height       uint64    `json:"height"`
	IndexedAt    time.Time `gorm:"autoUpdateTime" json:"indexedAt"`
}

// AutoMigrate creates or updates the explorer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&HistoryEntry{}, &IdentitySnapshot{})
}
