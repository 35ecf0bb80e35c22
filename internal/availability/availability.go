package availability

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SlotTemplate is one working window inside a weekly schedule day,
// wall-clock times in the schedule's timezone.
type SlotTemplate struct {
	Start string `json:"start"` // "HH:MM"
	End   string `json:"end"`   // "HH:MM"
	Label string `json:"label,omitempty"`
}

// WeeklySchedule maps lowercase weekday names ("monday".."sunday") to the
// ordered slots of that day. Absent days mean unavailable all day.
type WeeklySchedule map[string][]SlotTemplate

// Value serializes the schedule as JSON for storage.
func (s WeeklySchedule) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan deserializes the schedule from its JSON column.
func (s *WeeklySchedule) Scan(value interface{}) error {
	if value == nil {
		*s = WeeklySchedule{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	}
	return errors.New("availability: unsupported schedule column type")
}

// UserSchedule is a user's weekly availability template.
type UserSchedule struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID      `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	Timezone  string         `json:"timezone" gorm:"not null;default:UTC"`
	Schedule  WeeklySchedule `json:"schedule" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (UserSchedule) TableName() string {
	return "user_availability_schedules"
}

// Slot statuses.
const (
	SlotStatusAvailable = "available"
	SlotStatusBooked    = "booked"
	SlotStatusCancelled = "cancelled"
)

// Slot is a bookable availability window published by a user for a named
// process (interview, one-on-one, review round).
type Slot struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID  `json:"user_id" gorm:"type:uuid;index;not null"`
	ProcessName string     `json:"process_name" gorm:"not null"`
	StartsAt    time.Time  `json:"starts_at" gorm:"not null"`
	EndsAt      time.Time  `json:"ends_at" gorm:"not null"`
	Status      string     `json:"status" gorm:"not null;default:available"`
	BookedBy    *uuid.UUID `json:"booked_by,omitempty" gorm:"type:uuid"`
	BookedAt    *time.Time `json:"booked_at,omitempty"`
	EventID     *uuid.UUID `json:"event_id,omitempty" gorm:"type:uuid"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Slot) TableName() string {
	return "availability_slots"
}

func parseClock(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("availability: bad clock value %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("availability: clock value %q out of range", s)
	}
	return hour, minute, nil
}

// ValidateSchedule checks weekday names, clock formats and slot ordering.
func ValidateSchedule(s WeeklySchedule) error {
	for day, slots := range s {
		if !validWeekday(day) {
			return fmt.Errorf("availability: unknown weekday %q", day)
		}
		for _, slot := range slots {
			startH, startM, err := parseClock(slot.Start)
			if err != nil {
				return err
			}
			endH, endM, err := parseClock(slot.End)
			if err != nil {
				return err
			}
			if endH*60+endM <= startH*60+startM {
				return fmt.Errorf("availability: slot %s-%s on %s ends before it starts", slot.Start, slot.End, day)
			}
		}
	}
	return nil
}

func validWeekday(name string) bool {
	switch name {
	case "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday":
		return true
	}
	return false
}

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
	time.Sunday:    "sunday",
}
