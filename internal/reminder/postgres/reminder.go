package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/teamplan/scheduler/internal/event"
	"github.com/teamplan/scheduler/internal/reminder"
)

// ReminderRepository implements the reminder.EventSource interface
// using GORM.
type ReminderRepository struct {
	db *gorm.DB
}

func NewReminderRepository(db *gorm.DB) reminder.EventSource {
	return &ReminderRepository{db: db}
}

func (r *ReminderRepository) ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]*event.Event, error) {
	var events []*event.Event
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("status <> ?", event.StatusCancelled).
		Where("starts_at >= ? AND starts_at <= ?", from, to).
		Order("starts_at ASC").
		Find(&events).Error
	return events, err
}
