package calendar

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal/availability"
	"github.com/teamplan/scheduler/internal/event"
)

// CreateCalendarDTO represents the request for creating a calendar.
type CreateCalendarDTO struct {
	Name     string `json:"name" validate:"required,min=1,max=200"`
	Timezone string `json:"timezone,omitempty"`
	Color    string `json:"color,omitempty"`
}

func (dto CreateCalendarDTO) Validate() error {
	if dto.Name == "" {
		return errors.New("name is required")
	}
	if len(dto.Name) > 200 {
		return errors.New("name must be less than 200 characters")
	}
	return nil
}

// UpdateCalendarDTO mutates calendar metadata.
type UpdateCalendarDTO struct {
	Name     *string `json:"name,omitempty"`
	Timezone *string `json:"timezone,omitempty"`
	Color    *string `json:"color,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func (dto UpdateCalendarDTO) Validate() error {
	if dto.Name != nil && *dto.Name == "" {
		return errors.New("name must not be empty")
	}
	return nil
}

// MemberDTO adds or updates a calendar member.
type MemberDTO struct {
	Role string `json:"role" validate:"required,oneof=viewer editor owner"`
}

func (dto MemberDTO) Validate() error {
	if !ValidMemberRole(dto.Role) {
		return errors.New("role must be one of 'viewer', 'editor', 'owner'")
	}
	return nil
}

// MemberAvailability is the union of a member's real events and the
// virtual intervals expanded from their weekly schedule.
type MemberAvailability struct {
	UserID           uuid.UUID                      `json:"user_id"`
	From             time.Time                      `json:"from"`
	To               time.Time                      `json:"to"`
	Events           []*event.Event                 `json:"events"`
	VirtualIntervals []availability.VirtualInterval `json:"virtual_intervals"`
}

// ConflictEntry is one overlapping cluster found by the conflicts
// enumeration endpoint.
type ConflictEntry struct {
	Type          string         `json:"type"`
	ResourceID    uuid.UUID      `json:"resource_id"`
	ResourceLabel string         `json:"resource_label"`
	SlotStart     time.Time      `json:"slot_start"`
	SlotEnd       time.Time      `json:"slot_end"`
	Events        []*event.Event `json:"events"`
}
