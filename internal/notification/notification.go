package notification

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeEventInvited        = "event_invited"
	TypeEventUpdated        = "event_updated"
	TypeEventCancelled      = "event_cancelled"
	TypeEventReminder       = "event_reminder"
	TypeParticipantResponse = "participant_response"
	TypeAdminAnnouncement   = "admin_announcement"
)

// Notification is a per-user inbox record. Soft-delete is terminal: a
// deleted row never reappears in listings and cannot be undeleted.
type Notification struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;index;not null"`
	EventID   *uuid.UUID `json:"event_id,omitempty" gorm:"type:uuid;index"`
	Type      string     `json:"type" gorm:"not null"`
	Title     string     `json:"title" gorm:"not null"`
	Message   string     `json:"message" gorm:"not null"`
	IsRead    bool       `json:"is_read" gorm:"not null;default:false"`
	IsDeleted bool       `json:"is_deleted" gorm:"not null;default:false"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}

// AdminNotification is a broadcast announcement targeted at users and/or
// departments. ExpiresAt is derived from DisplayDurationHours at creation
// time; zero duration means the announcement never expires.
type AdminNotification struct {
	ID                   uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	Title                string      `json:"title" gorm:"not null"`
	Message              string      `json:"message" gorm:"not null"`
	CreatedBy            uuid.UUID   `json:"created_by" gorm:"type:uuid;not null"`
	TargetUserIDs        UUIDList    `json:"target_user_ids" gorm:"type:jsonb"`
	TargetDepartmentIDs  UUIDList    `json:"target_department_ids" gorm:"type:jsonb"`
	DisplayDurationHours int         `json:"display_duration_hours" gorm:"not null;default:0"`
	ExpiresAt            *time.Time  `json:"expires_at,omitempty"`
	IsActive             bool        `json:"is_active" gorm:"not null;default:true"`
	CreatedAt            time.Time   `json:"created_at"`
	Dismissals           []Dismissal `json:"-" gorm:"foreignKey:NotificationID"`
}

func (AdminNotification) TableName() string {
	return "admin_notifications"
}

// Expired reports whether the announcement has passed its display window.
func (n *AdminNotification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

type Dismissal struct {
	NotificationID uuid.UUID `json:"notification_id" gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	DismissedAt    time.Time `json:"dismissed_at"`
}

func (Dismissal) TableName() string {
	return "admin_notification_dismissals"
}

// PushSubscription is a web-push endpoint registered by a browser session.
type PushSubscription struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	Endpoint  string    `json:"endpoint" gorm:"not null"`
	P256DH    string    `json:"-" gorm:"column:p256dh"`
	Auth      string    `json:"-"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
}

func (PushSubscription) TableName() string {
	return "push_subscriptions"
}
