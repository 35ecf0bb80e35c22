package event

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal"
)

// ConflictKind names the resource a conflict witness refers to.
type ConflictKind string

const (
	ConflictRoom        ConflictKind = "room"
	ConflictParticipant ConflictKind = "participant"
)

// ConflictWitness is the single existing event returned to explain a
// refused booking. It is a witness, not the complete conflict set.
type ConflictWitness struct {
	Kind      ConflictKind `json:"kind"`
	Event     Event        `json:"event"`
	RoomName  string       `json:"room_name,omitempty"`
	UserID    *uuid.UUID   `json:"user_id,omitempty"`
	UserLabel string       `json:"user_label,omitempty"`
}

// Detail renders the localized human-readable refusal message.
func (w *ConflictWitness) Detail() string {
	switch w.Kind {
	case ConflictRoom:
		return fmt.Sprintf("Переговорка занята событием «%s»", w.Event.Title)
	case ConflictParticipant:
		if w.UserLabel != "" {
			return fmt.Sprintf("Пользователь %s занят событием «%s»", w.UserLabel, w.Event.Title)
		}
		return fmt.Sprintf("Участник занят событием «%s»", w.Event.Title)
	}
	return "Конфликт расписания"
}

// AppError maps the witness onto the transport error taxonomy.
func (w *ConflictWitness) AppError() *internal.AppError {
	code := internal.ErrCodeParticipantConflict
	if w.Kind == ConflictRoom {
		code = internal.ErrCodeRoomConflict
	}
	return internal.NewConflictError(w.Detail(), code).WithDetails(map[string]any{
		"kind":            string(w.Kind),
		"event_id":        w.Event.ID,
		"event_title":     w.Event.Title,
		"event_starts_at": w.Event.StartsAt,
		"event_ends_at":   w.Event.EndsAt,
	})
}

// CheckParams describes one candidate interval to validate.
type CheckParams struct {
	CalendarID     uuid.UUID
	StartsAt       time.Time
	EndsAt         time.Time
	RoomID         *uuid.UUID
	ParticipantIDs []uuid.UUID
	ExcludeEventID *uuid.UUID
	// SkipUserIDs lets a slot booker opt in to their own busy interval.
	SkipUserIDs []uuid.UUID
}

// ConflictStore is the persistence surface the oracle queries. Both
// methods use half-open overlap: existing.starts_at < ends AND
// existing.ends_at > starts. Implementations must run on the caller's
// transaction so the check and the subsequent write are atomic.
type ConflictStore interface {
	// FirstRoomOverlap returns the first confirmed event in the room
	// overlapping [starts, ends), or nil.
	FirstRoomOverlap(ctx context.Context, roomID uuid.UUID, starts, ends time.Time, exclude *uuid.UUID) (*Event, error)

	// FirstBusyOverlap returns the first confirmed event overlapping
	// [starts, ends) where any of userIDs is an invited participant or
	// owns the event's calendar, together with the responsible user.
	FirstBusyOverlap(ctx context.Context, userIDs []uuid.UUID, starts, ends time.Time, exclude *uuid.UUID) (*Event, *uuid.UUID, error)
}

// Oracle decides whether a candidate interval collides with existing
// events. A user is considered busy whenever they own the calendar of an
// overlapping event or are invited to one, regardless of which calendar
// the candidate targets.
type Oracle struct {
	store ConflictStore
}

func NewOracle(store ConflictStore) *Oracle {
	return &Oracle{store: store}
}

// Check returns a witness for the first conflict found, or nil when the
// interval is free. The room is checked before participants.
func (o *Oracle) Check(ctx context.Context, p CheckParams) (*ConflictWitness, error) {
	if !p.StartsAt.Before(p.EndsAt) {
		return nil, nil
	}

	if p.RoomID != nil {
		hit, err := o.store.FirstRoomOverlap(ctx, *p.RoomID, p.StartsAt, p.EndsAt, p.ExcludeEventID)
		if err != nil {
			return nil, err
		}
		if hit != nil {
			return &ConflictWitness{Kind: ConflictRoom, Event: *hit}, nil
		}
	}

	candidates := filterSkipped(p.ParticipantIDs, p.SkipUserIDs)
	if len(candidates) == 0 {
		return nil, nil
	}

	hit, userID, err := o.store.FirstBusyOverlap(ctx, candidates, p.StartsAt, p.EndsAt, p.ExcludeEventID)
	if err != nil {
		return nil, err
	}
	if hit != nil {
		return &ConflictWitness{Kind: ConflictParticipant, Event: *hit, UserID: userID}, nil
	}
	return nil, nil
}

// Overlaps reports half-open interval intersection.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

func filterSkipped(ids, skip []uuid.UUID) []uuid.UUID {
	if len(skip) == 0 {
		return ids
	}
	skipped := make(map[uuid.UUID]struct{}, len(skip))
	for _, id := range skip {
		skipped[id] = struct{}{}
	}
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := skipped[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
