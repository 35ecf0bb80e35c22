package directory

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the top of the directory forest.
type Organization struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"not null"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Organization) TableName() string {
	return "organizations"
}

// Department belongs to one organization and may nest under a parent
// department of the same organization. The parent chain must stay acyclic.
type Department struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	OrgID     uuid.UUID  `json:"org_id" gorm:"type:uuid;index;not null"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty" gorm:"type:uuid"`
	Name      string     `json:"name" gorm:"not null"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Department) TableName() string {
	return "departments"
}
