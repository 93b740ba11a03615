package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role controls what a user may do inside their workspace.
type Role string

const (
	RoleOwner      Role = "OWNER"
	RoleManager    Role = "MANAGER"
	RoleTeamMember Role = "TEAM_MEMBER"
)

// CanApproveCompletions reports whether this role may approve or reject a
// team-member-submitted completion.
func (r Role) CanApproveCompletions() bool {
	return r == RoleOwner || r == RoleManager
}

// User represents a workspace member.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;index;not null" json:"workspace_id" validate:"required"`
	Email       string    `gorm:"uniqueIndex;not null" json:"email" validate:"required,email"`
	Name        string    `gorm:"not null" json:"name" validate:"required"`
	Role        Role      `gorm:"type:varchar(16);not null;default:'TEAM_MEMBER'" json:"role" validate:"required,oneof=OWNER MANAGER TEAM_MEMBER"`

	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
