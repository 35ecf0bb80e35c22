package user

import (
	"time"

	"github.com/google/uuid"
)

// Roles a user can hold.
const (
	RoleAdmin    = "admin"
	RoleIT       = "it"
	RoleEmployee = "employee"
)

// User is an account in the directory. Accounts are deactivated, never hard
// deleted, while anything still references them.
type User struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Email        string     `json:"email" gorm:"uniqueIndex;not null"`
	DisplayName  *string    `json:"display_name,omitempty"`
	PasswordHash string     `json:"-" gorm:"not null"`
	Role         string     `json:"role" gorm:"not null;default:employee"`
	IsActive     bool       `json:"is_active" gorm:"not null;default:true"`
	OrgID        *uuid.UUID `json:"org_id,omitempty" gorm:"type:uuid"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty" gorm:"type:uuid"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleIT, RoleEmployee:
		return true
	}
	return false
}
