package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal/event"
	"github.com/teamplan/scheduler/internal/notification"
)

// Notifier is the notification emit surface the handlers call.
type Notifier interface {
	Emit(ctx context.Context, userID uuid.UUID, kind, title, message string, eventID *uuid.UUID) (*notification.Notification, error)
}

// Sweeper runs one reminder sweep pass.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// RegisterHandlers binds the scheduling task types to their executors.
// Handlers accept that a retried task may emit a duplicate notification
// row; operators prefer duplicates to loss.
func RegisterHandlers(pool *Pool, notifier Notifier, sweeper Sweeper) {
	pool.Handle(TypeEventInvited, notifyHandler(notifier, notification.TypeEventInvited,
		"Новое приглашение",
		func(p event.NotifyPayload) string {
			return fmt.Sprintf("Вас пригласили на событие «%s»", p.EventTitle)
		}))
	pool.Handle(TypeEventUpdated, notifyHandler(notifier, notification.TypeEventUpdated,
		"Событие изменено",
		func(p event.NotifyPayload) string {
			return fmt.Sprintf("Событие «%s» было изменено", p.EventTitle)
		}))
	pool.Handle(TypeEventCancelled, notifyHandler(notifier, notification.TypeEventCancelled,
		"Событие отменено",
		func(p event.NotifyPayload) string {
			return fmt.Sprintf("Событие «%s» отменено", p.EventTitle)
		}))
	pool.Handle(TypeParticipantResponse, notifyHandler(notifier, notification.TypeParticipantResponse,
		"Ответ участника",
		func(p event.NotifyPayload) string {
			return fmt.Sprintf("Участник изменил ответ на «%s»: %s → %s", p.EventTitle, p.OldStatus, p.NewStatus)
		}))
	pool.Handle(TypeReminderSweep, func(ctx context.Context, _ *Task) error {
		return sweeper.Sweep(ctx)
	})
}

func notifyHandler(notifier Notifier, kind, title string, message func(event.NotifyPayload) string) HandlerFunc {
	return func(ctx context.Context, task *Task) error {
		var payload event.NotifyPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			// Malformed payloads never become valid; drop instead of retry.
			return nil
		}
		eventID := payload.EventID
		_, err := notifier.Emit(ctx, payload.UserID, kind, title, message(payload), &eventID)
		return err
	}
}
