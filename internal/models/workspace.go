package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Workspace is the tenant boundary. Every core entity belongs to exactly one
// workspace and all reads/writes are filtered by workspace id.
type Workspace struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string    `gorm:"not null" json:"name" validate:"required"`
	OwnerID uuid.UUID `gorm:"type:uuid;index;not null" json:"owner_id" validate:"required"`

	// Pipeline health thresholds, in whole days.
	DaysUntilStale   int `gorm:"not null;default:7" json:"days_until_stale"`
	DaysUntilRotting int `gorm:"not null;default:14" json:"days_until_rotting"`

	// AutoLearnPricing gates the pricing-learning hook for this workspace.
	AutoLearnPricing bool `gorm:"not null;default:true" json:"auto_learn_pricing"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w *Workspace) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
