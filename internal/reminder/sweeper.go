package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal/event"
	"github.com/teamplan/scheduler/internal/notification"
)

// Stored event times are naive values interpreted as Moscow local time,
// so the sweep window is computed on the Moscow wall clock.
const moscowOffset = 3 * time.Hour

// EventSource lists upcoming events for the sweep.
type EventSource interface {
	// ListConfirmedStartingBetween returns non-cancelled events with
	// starts_at in [from, to], participants loaded.
	ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]*event.Event, error)
}

// Notifier emits reminder notifications and answers the idempotence
// check.
type Notifier interface {
	Emit(ctx context.Context, userID uuid.UUID, kind, title, message string, eventID *uuid.UUID) (*notification.Notification, error)
	HasReminder(ctx context.Context, userID, eventID uuid.UUID) (bool, error)
}

// Sweeper materializes event_reminder notifications for events starting
// about five minutes out. Runs every minute; the per-(user, event)
// existence check makes overlapping or repeated ticks harmless.
type Sweeper struct {
	events   EventSource
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewSweeper(events EventSource, notifier Notifier, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		events:   events,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Sweep selects events starting in [now+4m, now+6m] on the Moscow wall
// clock and emits one reminder per non-declined participant that does
// not already have one.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := moscowWallClock(s.now())
	from := now.Add(4 * time.Minute)
	to := now.Add(6 * time.Minute)

	events, err := s.events.ListConfirmedStartingBetween(ctx, from, to)
	if err != nil {
		return err
	}

	for _, ev := range events {
		for _, p := range ev.Participants {
			if p.ResponseStatus == event.ResponseDeclined {
				continue
			}
			exists, err := s.notifier.HasReminder(ctx, p.UserID, ev.ID)
			if err != nil {
				s.logger.Error("reminder existence check failed", "event_id", ev.ID, "user_id", p.UserID, "error", err)
				continue
			}
			if exists {
				continue
			}

			message := fmt.Sprintf("Через 5 минут: «%s»", ev.Title)
			if _, err := s.notifier.Emit(ctx, p.UserID, notification.TypeEventReminder, "Напоминание", message, &ev.ID); err != nil {
				s.logger.Error("reminder emit failed", "event_id", ev.ID, "user_id", p.UserID, "error", err)
			}
		}
	}
	return nil
}

// moscowWallClock re-labels the instant's Moscow wall-clock reading as
// a naive value, matching how event times are stored.
func moscowWallClock(t time.Time) time.Time {
	m := t.UTC().Add(moscowOffset)
	return time.Date(m.Year(), m.Month(), m.Day(), m.Hour(), m.Minute(), m.Second(), 0, time.UTC)
}
