package event

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal/recurrence"
)

// Update scope selects whether a mutation applies to one occurrence or
// to the whole series.
const (
	ScopeSingle = "single"
	ScopeSeries = "series"
)

// CreateEventDTO represents the request payload for creating an event.
type CreateEventDTO struct {
	CalendarID     uuid.UUID        `json:"calendar_id" validate:"required"`
	RoomID         *uuid.UUID       `json:"room_id,omitempty"`
	Title          string           `json:"title" validate:"required,min=1,max=300"`
	Description    string           `json:"description,omitempty"`
	Location       string           `json:"location,omitempty"`
	Timezone       string           `json:"timezone,omitempty"`
	StartsAt       time.Time        `json:"starts_at" validate:"required"`
	EndsAt         time.Time        `json:"ends_at" validate:"required"`
	AllDay         bool             `json:"all_day"`
	ParticipantIDs []uuid.UUID      `json:"participant_ids,omitempty"`
	RecurrenceRule *recurrence.Rule `json:"recurrence_rule,omitempty"`
	// SkipUserIDs opts the listed users out of the conflict check for
	// this single interval. Used by slot booking.
	SkipUserIDs []uuid.UUID `json:"skip_user_ids,omitempty"`
}

// Validate validates the CreateEventDTO.
func (dto CreateEventDTO) Validate() error {
	if dto.CalendarID == uuid.Nil {
		return errors.New("calendar_id is required")
	}
	if dto.Title == "" {
		return errors.New("title is required")
	}
	if len(dto.Title) > 300 {
		return errors.New("title must be less than 300 characters")
	}
	if dto.StartsAt.IsZero() || dto.EndsAt.IsZero() {
		return errors.New("starts_at and ends_at are required")
	}
	if dto.EndsAt.Before(dto.StartsAt) {
		return errors.New("ends_at must not be before starts_at")
	}
	if dto.RecurrenceRule != nil {
		if err := dto.RecurrenceRule.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// UpdateEventDTO carries the mutable fields of an event. Nil pointers
// mean "leave unchanged"; ParticipantIDs replaces the whole set when
// present.
type UpdateEventDTO struct {
	Title          *string          `json:"title,omitempty"`
	Description    *string          `json:"description,omitempty"`
	Location       *string          `json:"location,omitempty"`
	Timezone       *string          `json:"timezone,omitempty"`
	StartsAt       *time.Time       `json:"starts_at,omitempty"`
	EndsAt         *time.Time       `json:"ends_at,omitempty"`
	AllDay         *bool            `json:"all_day,omitempty"`
	RoomID         *uuid.UUID       `json:"room_id,omitempty"`
	ClearRoom      bool             `json:"clear_room,omitempty"`
	Status         *string          `json:"status,omitempty"`
	ParticipantIDs *[]uuid.UUID     `json:"participant_ids,omitempty"`
	RecurrenceRule *recurrence.Rule `json:"recurrence_rule,omitempty"`
}

// Validate validates the UpdateEventDTO for the given scope.
func (dto UpdateEventDTO) Validate(scope string) error {
	if scope != ScopeSingle && scope != ScopeSeries {
		return errors.New("scope must be 'single' or 'series'")
	}
	if scope == ScopeSeries && dto.StartsAt == nil {
		return errors.New("starts_at is required for a series update")
	}
	if dto.StartsAt != nil && dto.EndsAt != nil && dto.EndsAt.Before(*dto.StartsAt) {
		return errors.New("ends_at must not be before starts_at")
	}
	if dto.Title != nil && *dto.Title == "" {
		return errors.New("title must not be empty")
	}
	if dto.Status != nil && *dto.Status != StatusConfirmed && *dto.Status != StatusCancelled {
		return errors.New("status must be 'confirmed' or 'cancelled'")
	}
	if dto.RecurrenceRule != nil {
		if err := dto.RecurrenceRule.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ParticipantStatusDTO updates the caller's own response on an event.
type ParticipantStatusDTO struct {
	ResponseStatus string `json:"response_status" validate:"required,oneof=needs_action accepted declined"`
}

func (dto ParticipantStatusDTO) Validate() error {
	if !ValidResponseStatus(dto.ResponseStatus) {
		return errors.New("response_status must be one of 'needs_action', 'accepted', 'declined'")
	}
	return nil
}

// CreateCommentDTO adds a comment to an event.
type CreateCommentDTO struct {
	Body string `json:"body" validate:"required,min=1,max=2000"`
}

func (dto CreateCommentDTO) Validate() error {
	if dto.Body == "" {
		return errors.New("body is required")
	}
	if len(dto.Body) > 2000 {
		return errors.New("body must be less than 2000 characters")
	}
	return nil
}

// ListEventsQuery filters event listings.
type ListEventsQuery struct {
	CalendarID *uuid.UUID
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
