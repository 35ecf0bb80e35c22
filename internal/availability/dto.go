package availability

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// UpsertScheduleDTO replaces the caller's weekly availability template.
type UpsertScheduleDTO struct {
	Timezone string         `json:"timezone"`
	Schedule WeeklySchedule `json:"schedule" validate:"required"`
}

func (dto UpsertScheduleDTO) Validate() error {
	if dto.Schedule == nil {
		return errors.New("schedule is required")
	}
	if _, err := resolveLocation(dto.Timezone); err != nil {
		return errors.New("unknown timezone")
	}
	return ValidateSchedule(dto.Schedule)
}

// CreateSlotDTO publishes a bookable window for a named process.
type CreateSlotDTO struct {
	ProcessName string    `json:"process_name" validate:"required,min=1,max=200"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at" validate:"required"`
}

func (dto CreateSlotDTO) Validate() error {
	if dto.ProcessName == "" {
		return errors.New("process_name is required")
	}
	if len(dto.ProcessName) > 200 {
		return errors.New("process_name must be less than 200 characters")
	}
	if dto.StartsAt.IsZero() || dto.EndsAt.IsZero() {
		return errors.New("starts_at and ends_at are required")
	}
	if !dto.EndsAt.After(dto.StartsAt) {
		return errors.New("ends_at must be after starts_at")
	}
	return nil
}

// BookSlotDTO claims an available slot. The resulting event lands on the
// booker's calendar with the slot owner invited.
type BookSlotDTO struct {
	CalendarID uuid.UUID `json:"calendar_id" validate:"required"`
	Title      string    `json:"title,omitempty"`
}

func (dto BookSlotDTO) Validate() error {
	if dto.CalendarID == uuid.Nil {
		return errors.New("calendar_id is required")
	}
	if len(dto.Title) > 300 {
		return errors.New("title must be less than 300 characters")
	}
	return nil
}

// ListSlotsQuery filters published slots.
type ListSlotsQuery struct {
	UserID      *uuid.UUID
	ProcessName string
	From        *time.Time
	To          *time.Time
	OnlyOpen    bool
}
