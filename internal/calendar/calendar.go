package calendar

import (
	"time"

	"github.com/google/uuid"
)

// Member roles. Membership grants read/listing; event mutation stays with
// the calendar owner whatever the member role says.
const (
	MemberRoleViewer = "viewer"
	MemberRoleEditor = "editor"
	MemberRoleOwner  = "owner"
)

// Calendar is a named container of events with a single owner.
type Calendar struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string     `json:"name" gorm:"not null"`
	Timezone  string     `json:"timezone" gorm:"not null;default:UTC"`
	Color     string     `json:"color"`
	OwnerID   uuid.UUID  `json:"owner_id" gorm:"type:uuid;index;not null"`
	OrgID     *uuid.UUID `json:"org_id,omitempty" gorm:"type:uuid"`
	IsActive  bool       `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Calendar) TableName() string {
	return "calendars"
}

// Member is a sharing row on a calendar.
type Member struct {
	CalendarID uuid.UUID `json:"calendar_id" gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	Role       string    `json:"role" gorm:"not null;default:viewer"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Member) TableName() string {
	return "calendar_members"
}

func ValidMemberRole(role string) bool {
	switch role {
	case MemberRoleViewer, MemberRoleEditor, MemberRoleOwner:
		return true
	}
	return false
}
