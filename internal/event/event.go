package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal/recurrence"
)

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

const (
	ResponseNeedsAction = "needs_action"
	ResponseAccepted    = "accepted"
	ResponseDeclined    = "declined"
)

// Attachment size ceiling, per file and per event in total.
const MaxAttachmentBytes = 20 << 20

// Event is a single occurrence on a calendar. Rows belonging to a series
// carry RecurrenceParentID = root event id; the root's own parent is null.
// StartsAt/EndsAt are stored as naive instants.
type Event struct {
	ID                 uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	CalendarID         uuid.UUID        `json:"calendar_id" gorm:"type:uuid;index;not null"`
	RoomID             *uuid.UUID       `json:"room_id,omitempty" gorm:"type:uuid;index"`
	Title              string           `json:"title" gorm:"not null"`
	Description        string           `json:"description,omitempty"`
	Location           string           `json:"location,omitempty"`
	Timezone           string           `json:"timezone" gorm:"not null;default:UTC"`
	StartsAt           time.Time        `json:"starts_at" gorm:"index;not null"`
	EndsAt             time.Time        `json:"ends_at" gorm:"not null"`
	AllDay             bool             `json:"all_day" gorm:"not null;default:false"`
	Status             string           `json:"status" gorm:"not null;default:confirmed"`
	RecurrenceRule     *recurrence.Rule `json:"recurrence_rule,omitempty" gorm:"type:jsonb;serializer:json"`
	RecurrenceParentID *uuid.UUID       `json:"recurrence_parent_id,omitempty" gorm:"type:uuid;index"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`

	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:EventID"`
}

func (Event) TableName() string {
	return "events"
}

// IsSeriesRoot reports whether the event anchors a recurrence series.
func (e *Event) IsSeriesRoot() bool {
	return e.RecurrenceRule != nil && e.RecurrenceParentID == nil
}

// Duration is the event length; series shifts preserve it.
func (e *Event) Duration() time.Duration {
	return e.EndsAt.Sub(e.StartsAt)
}

type Participant struct {
	EventID        uuid.UUID `json:"event_id" gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	ResponseStatus string    `json:"response_status" gorm:"not null;default:needs_action"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Participant) TableName() string {
	return "event_participants"
}

type Attachment struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	EventID    uuid.UUID `json:"event_id" gorm:"type:uuid;index;not null"`
	FileName   string    `json:"file_name" gorm:"not null"`
	StoredPath string    `json:"-" gorm:"not null"`
	SizeBytes  int64     `json:"size_bytes" gorm:"not null"`
	MimeType   string    `json:"mime_type"`
	UploadedBy uuid.UUID `json:"uploaded_by" gorm:"type:uuid;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Attachment) TableName() string {
	return "event_attachments"
}

type Comment struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	EventID   uuid.UUID `json:"event_id" gorm:"type:uuid;index;not null"`
	AuthorID  uuid.UUID `json:"author_id" gorm:"type:uuid;not null"`
	Body      string    `json:"body" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Comment) TableName() string {
	return "event_comments"
}

func ValidResponseStatus(s string) bool {
	switch s {
	case ResponseNeedsAction, ResponseAccepted, ResponseDeclined:
		return true
	}
	return false
}
