package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task type names. The event_* and participant_response types carry an
// event.NotifyPayload; reminder_sweep has no payload.
const (
	TypeEventInvited        = "event_invited"
	TypeEventUpdated        = "event_updated"
	TypeEventCancelled      = "event_cancelled"
	TypeParticipantResponse = "participant_response"
	TypeReminderSweep       = "reminder_sweep"
)

// Task is one unit of asynchronous work. Delivery is at least once;
// handlers must tolerate duplicate invocation.
type Task struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	// claim is the raw redis list entry this task was dequeued as; Ack
	// removes exactly this entry from the processing list.
	claim string
}
