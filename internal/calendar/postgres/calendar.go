package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/calendar"
	"github.com/teamplan/scheduler/internal/event"
)

// CalendarRepository implements the calendar.Repository interface using
// GORM.
type CalendarRepository struct {
	db *gorm.DB
}

func NewCalendarRepository(db *gorm.DB) calendar.Repository {
	return &CalendarRepository{db: db}
}

func (r *CalendarRepository) Create(ctx context.Context, cal *calendar.Calendar) error {
	return r.db.WithContext(ctx).Create(cal).Error
}

func (r *CalendarRepository) GetByID(ctx context.Context, id uuid.UUID) (*calendar.Calendar, error) {
	var cal calendar.Calendar
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&cal).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrCalendarNotFound
		}
		return nil, err
	}
	return &cal, nil
}

// ListVisible returns calendars the user owns or is listed as a member
// of, active first.
func (r *CalendarRepository) ListVisible(ctx context.Context, userID uuid.UUID) ([]*calendar.Calendar, error) {
	var calendars []*calendar.Calendar
	err := r.db.WithContext(ctx).
		Where(
			"owner_id = ? OR id IN (?)",
			userID,
			r.db.Model(&calendar.Member{}).Select("calendar_id").Where("user_id = ?", userID),
		).
		Order("is_active DESC, name ASC").
		Find(&calendars).Error
	return calendars, err
}

func (r *CalendarRepository) Update(ctx context.Context, cal *calendar.Calendar) error {
	return r.db.WithContext(ctx).Save(cal).Error
}

func (r *CalendarRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("calendar_id = ?", id).Delete(&calendar.Member{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&calendar.Calendar{}).Error
	})
}

func (r *CalendarRepository) UpsertMember(ctx context.Context, m *calendar.Member) error {
	db := r.db.WithContext(ctx)
	var existing calendar.Member
	err := db.Where("calendar_id = ? AND user_id = ?", m.CalendarID, m.UserID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return db.Create(m).Error
	}
	if err != nil {
		return err
	}
	return db.Model(&calendar.Member{}).
		Where("calendar_id = ? AND user_id = ?", m.CalendarID, m.UserID).
		Update("role", m.Role).Error
}

func (r *CalendarRepository) GetMember(ctx context.Context, calendarID, userID uuid.UUID) (*calendar.Member, error) {
	var m calendar.Member
	err := r.db.WithContext(ctx).
		Where("calendar_id = ? AND user_id = ?", calendarID, userID).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.NewNotFoundError("calendar member not found", internal.ErrCodeUserNotFound)
		}
		return nil, err
	}
	return &m, nil
}

func (r *CalendarRepository) ListMembers(ctx context.Context, calendarID uuid.UUID) ([]*calendar.Member, error) {
	var members []*calendar.Member
	err := r.db.WithContext(ctx).
		Where("calendar_id = ?", calendarID).
		Order("created_at ASC").
		Find(&members).Error
	return members, err
}

func (r *CalendarRepository) RemoveMember(ctx context.Context, calendarID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("calendar_id = ? AND user_id = ?", calendarID, userID).
		Delete(&calendar.Member{}).Error
}

func (r *CalendarRepository) GetOwnerID(ctx context.Context, calendarID uuid.UUID) (uuid.UUID, error) {
	var cal calendar.Calendar
	err := r.db.WithContext(ctx).Select("id", "owner_id").Where("id = ?", calendarID).First(&cal).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return uuid.Nil, internal.ErrCalendarNotFound
		}
		return uuid.Nil, err
	}
	return cal.OwnerID, nil
}

// EventReadRepository implements calendar.EventStore on the events
// tables. Kept beside the calendar repository because only the calendar
// read models use it.
type EventReadRepository struct {
	db *gorm.DB
}

func NewEventReadRepository(db *gorm.DB) calendar.EventStore {
	return &EventReadRepository{db: db}
}

func (r *EventReadRepository) ListUserEvents(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*event.Event, error) {
	var events []*event.Event
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("events.status <> ?", event.StatusCancelled).
		Where("events.starts_at < ? AND events.ends_at > ?", to, from).
		Where(
			"events.id IN (?) OR events.calendar_id IN (?)",
			r.db.Model(&event.Participant{}).Select("event_id").Where("user_id = ?", userID),
			r.db.Model(&calendar.Calendar{}).Select("id").Where("owner_id = ?", userID),
		).
		Order("events.starts_at ASC").
		Find(&events).Error
	return events, err
}

func (r *EventReadRepository) ListCalendarEvents(ctx context.Context, calendarID uuid.UUID, from, to time.Time) ([]*event.Event, error) {
	var events []*event.Event
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("calendar_id = ?", calendarID).
		Where("status <> ?", event.StatusCancelled).
		Where("starts_at < ? AND ends_at > ?", to, from).
		Order("starts_at ASC").
		Find(&events).Error
	return events, err
}
