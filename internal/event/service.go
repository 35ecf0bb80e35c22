package event

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/notification"
	"github.com/teamplan/scheduler/internal/recurrence"
)

// Repository defines the data access methods for events. All mutating
// methods called inside InTransaction must observe the transaction.
type Repository interface {
	ConflictStore

	// InTransaction runs fn against a transaction-scoped repository.
	// The conflict checks and writes of one scheduling operation share
	// this transaction so exclusion holds against concurrent writers.
	InTransaction(ctx context.Context, fn func(tx Repository) error) error

	// AcquireScheduleLocks serializes concurrent mutations touching the
	// same calendar, room or participants. Keys must be pre-sorted by
	// the caller to avoid deadlock; backends without advisory locks may
	// no-op and rely on row locks.
	AcquireScheduleLocks(ctx context.Context, keys []uuid.UUID) error

	Create(ctx context.Context, ev *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	ListSeries(ctx context.Context, rootID uuid.UUID) ([]*Event, error)
	List(ctx context.Context, q ListEventsQuery) ([]*Event, error)
	Update(ctx context.Context, ev *Event) error

	// DeleteCascade removes the events and their participants,
	// attachments, comments and derived notifications.
	DeleteCascade(ctx context.Context, ids []uuid.UUID) error

	AddParticipants(ctx context.Context, eventID uuid.UUID, userIDs []uuid.UUID) error
	RemoveParticipants(ctx context.Context, eventID uuid.UUID, userIDs []uuid.UUID) error
	GetParticipants(ctx context.Context, eventID uuid.UUID) ([]Participant, error)
	GetParticipant(ctx context.Context, eventID, userID uuid.UUID) (*Participant, error)
	UpdateParticipantStatus(ctx context.Context, eventID, userID uuid.UUID, status string) error

	CreateAttachment(ctx context.Context, att *Attachment) error
	GetAttachment(ctx context.Context, eventID, attachmentID uuid.UUID) (*Attachment, error)
	ListAttachments(ctx context.Context, eventID uuid.UUID) ([]*Attachment, error)
	SumAttachmentBytes(ctx context.Context, eventID uuid.UUID) (int64, error)
	DeleteAttachment(ctx context.Context, attachmentID uuid.UUID) error

	CreateComment(ctx context.Context, c *Comment) error
	ListComments(ctx context.Context, eventID uuid.UUID) ([]*Comment, error)
}

// CalendarStore resolves calendar ownership for the owner-only rules.
type CalendarStore interface {
	GetOwnerID(ctx context.Context, calendarID uuid.UUID) (uuid.UUID, error)
}

// TaskEnqueuer submits asynchronous work after a mutation commits.
// Enqueue failures never fail the mutation.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload any) error
}

// RoomAccessChecker enforces the room allow-lists on booking.
type RoomAccessChecker interface {
	CheckAccess(ctx context.Context, roomID, userID uuid.UUID) error
}

// Service handles event scheduling business logic.
type Service struct {
	repo      Repository
	calendars CalendarStore
	rooms     RoomAccessChecker
	queue     TaskEnqueuer
	files     FileStore
	logger    *slog.Logger
}

func NewService(repo Repository, calendars CalendarStore, rooms RoomAccessChecker, queue TaskEnqueuer, files FileStore, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		calendars: calendars,
		rooms:     rooms,
		queue:     queue,
		files:     files,
		logger:    logger,
	}
}

// pendingTask is derived work held until the transaction commits.
type pendingTask struct {
	taskType string
	payload  any
}

// NotifyPayload is the payload shape of the event_* and
// participant_response task types.
type NotifyPayload struct {
	UserID     uuid.UUID  `json:"user_id"`
	EventID    uuid.UUID  `json:"event_id"`
	ActorID    uuid.UUID  `json:"actor_id"`
	EventTitle string     `json:"event_title"`
	StartsAt   time.Time  `json:"starts_at"`
	OldStatus  string     `json:"old_status,omitempty"`
	NewStatus  string     `json:"new_status,omitempty"`
	EventIDs   uuid.UUIDs `json:"event_ids,omitempty"`
}

// CreateEvent creates an event, optionally fanning a recurrence rule out
// into child events, all within one transaction. Any conflict aborts the
// whole series.
func (s *Service) CreateEvent(ctx context.Context, actorID uuid.UUID, dto CreateEventDTO) (*Event, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	ownerID, err := s.calendars.GetOwnerID(ctx, dto.CalendarID)
	if err != nil {
		return nil, err
	}
	if ownerID != actorID {
		return nil, internal.ErrNotCalendarOwner
	}
	if dto.RoomID != nil && s.rooms != nil {
		if err := s.rooms.CheckAccess(ctx, *dto.RoomID, actorID); err != nil {
			return nil, err
		}
	}

	tz := dto.Timezone
	if tz == "" {
		tz = "UTC"
	}
	starts, ends := dto.StartsAt.UTC(), dto.EndsAt.UTC()
	participants := dedupIDs(dto.ParticipantIDs)

	root := &Event{
		ID:             uuid.New(),
		CalendarID:     dto.CalendarID,
		RoomID:         dto.RoomID,
		Title:          dto.Title,
		Description:    dto.Description,
		Location:       dto.Location,
		Timezone:       tz,
		StartsAt:       starts,
		EndsAt:         ends,
		AllDay:         dto.AllDay,
		Status:         StatusConfirmed,
		RecurrenceRule: dto.RecurrenceRule,
	}

	busyIDs := withOwner(participants, ownerID)

	var pending []pendingTask
	err = s.repo.InTransaction(ctx, func(tx Repository) error {
		if err := tx.AcquireScheduleLocks(ctx, lockKeys(dto.CalendarID, dto.RoomID, busyIDs)); err != nil {
			return err
		}

		oracle := NewOracle(tx)
		check := CheckParams{
			CalendarID:     dto.CalendarID,
			StartsAt:       starts,
			EndsAt:         ends,
			RoomID:         dto.RoomID,
			ParticipantIDs: busyIDs,
			SkipUserIDs:    dto.SkipUserIDs,
		}
		witness, err := oracle.Check(ctx, check)
		if err != nil {
			return err
		}
		if witness != nil {
			return witness.AppError()
		}

		if err := tx.Create(ctx, root); err != nil {
			return err
		}
		if err := tx.AddParticipants(ctx, root.ID, participants); err != nil {
			return err
		}

		if dto.RecurrenceRule != nil {
			occurrences, err := recurrence.Expand(starts, *dto.RecurrenceRule)
			if err != nil {
				return internal.NewValidationError(err.Error(), internal.ErrCodeInvalidRecurrence)
			}
			duration := ends.Sub(starts)
			for _, occ := range occurrences {
				occCheck := check
				occCheck.StartsAt, occCheck.EndsAt = occ, occ.Add(duration)
				witness, err := oracle.Check(ctx, occCheck)
				if err != nil {
					return err
				}
				if witness != nil {
					return witness.AppError()
				}
				child := &Event{
					ID:                 uuid.New(),
					CalendarID:         root.CalendarID,
					RoomID:             root.RoomID,
					Title:              root.Title,
					Description:        root.Description,
					Location:           root.Location,
					Timezone:           root.Timezone,
					StartsAt:           occ,
					EndsAt:             occ.Add(duration),
					AllDay:             root.AllDay,
					Status:             root.Status,
					RecurrenceParentID: &root.ID,
				}
				if err := tx.Create(ctx, child); err != nil {
					return err
				}
				if err := tx.AddParticipants(ctx, child.ID, participants); err != nil {
					return err
				}
			}
		}

		for _, userID := range participants {
			if userID == actorID {
				continue
			}
			pending = append(pending, pendingTask{
				taskType: notification.TypeEventInvited,
				payload: NotifyPayload{
					UserID:     userID,
					EventID:    root.ID,
					ActorID:    actorID,
					EventTitle: root.Title,
					StartsAt:   root.StartsAt,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, pending)
	return s.repo.GetByID(ctx, root.ID)
}

// GetEvent returns one event with its participants.
func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	return s.repo.GetByID(ctx, id)
}

// ListEvents lists events matching the query.
func (s *Service) ListEvents(ctx context.Context, q ListEventsQuery) ([]*Event, error) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}
	return s.repo.List(ctx, q)
}

// UpdateEvent applies a mutation to one event or, with scope=series, a
// wall-clock shift to every event in the series.
func (s *Service) UpdateEvent(ctx context.Context, actorID, eventID uuid.UUID, scope string, dto UpdateEventDTO) (*Event, error) {
	if err := dto.Validate(scope); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	ev, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, ev.CalendarID, actorID); err != nil {
		return nil, err
	}
	if dto.RoomID != nil && s.rooms != nil {
		if err := s.rooms.CheckAccess(ctx, *dto.RoomID, actorID); err != nil {
			return nil, err
		}
	}

	var pending []pendingTask
	if scope == ScopeSeries {
		pending, err = s.updateSeries(ctx, actorID, ev, dto)
	} else {
		pending, err = s.updateSingle(ctx, actorID, ev, dto)
	}
	if err != nil {
		return nil, err
	}

	s.flush(ctx, pending)
	return s.repo.GetByID(ctx, eventID)
}

func (s *Service) updateSingle(ctx context.Context, actorID uuid.UUID, ev *Event, dto UpdateEventDTO) ([]pendingTask, error) {
	var pending []pendingTask
	err := s.repo.InTransaction(ctx, func(tx Repository) error {
		current, err := tx.GetParticipants(ctx, ev.ID)
		if err != nil {
			return err
		}
		currentIDs := make([]uuid.UUID, 0, len(current))
		for _, p := range current {
			currentIDs = append(currentIDs, p.UserID)
		}

		next := applyUpdate(ev, dto)
		targetIDs := currentIDs
		if dto.ParticipantIDs != nil {
			targetIDs = dedupIDs(*dto.ParticipantIDs)
		}

		busyIDs := withOwner(targetIDs, actorID)
		if err := tx.AcquireScheduleLocks(ctx, lockKeys(next.CalendarID, next.RoomID, busyIDs)); err != nil {
			return err
		}

		witness, err := NewOracle(tx).Check(ctx, CheckParams{
			CalendarID:     next.CalendarID,
			StartsAt:       next.StartsAt,
			EndsAt:         next.EndsAt,
			RoomID:         next.RoomID,
			ParticipantIDs: busyIDs,
			ExcludeEventID: &ev.ID,
		})
		if err != nil {
			return err
		}
		if witness != nil {
			return witness.AppError()
		}

		if err := tx.Update(ctx, next); err != nil {
			return err
		}

		// Participant diff. Existing rows keep their accepted/declined
		// responses; only membership changes.
		added, removed := diffIDs(currentIDs, targetIDs)
		if len(added) > 0 {
			if err := tx.AddParticipants(ctx, ev.ID, added); err != nil {
				return err
			}
		}
		if len(removed) > 0 {
			if err := tx.RemoveParticipants(ctx, ev.ID, removed); err != nil {
				return err
			}
		}

		addedSet := idSet(added)
		for _, userID := range targetIDs {
			if userID == actorID {
				continue
			}
			taskType := notification.TypeEventUpdated
			if _, ok := addedSet[userID]; ok {
				taskType = notification.TypeEventInvited
			}
			pending = append(pending, pendingTask{
				taskType: taskType,
				payload: NotifyPayload{
					UserID:     userID,
					EventID:    ev.ID,
					ActorID:    actorID,
					EventTitle: next.Title,
					StartsAt:   next.StartsAt,
				},
			})
		}
		*ev = *next
		return nil
	})
	return pending, err
}

func (s *Service) updateSeries(ctx context.Context, actorID uuid.UUID, ev *Event, dto UpdateEventDTO) ([]pendingTask, error) {
	rootID := ev.ID
	if ev.RecurrenceParentID != nil {
		rootID = *ev.RecurrenceParentID
	}
	root, err := s.repo.GetByID(ctx, rootID)
	if err != nil {
		return nil, err
	}
	delta := dto.StartsAt.UTC().Sub(root.StartsAt)

	var pending []pendingTask
	err = s.repo.InTransaction(ctx, func(tx Repository) error {
		series, err := tx.ListSeries(ctx, rootID)
		if err != nil {
			return err
		}

		// Validate every shifted occurrence before touching any row so
		// a late conflict aborts the whole series.
		oracle := NewOracle(tx)
		notified := map[uuid.UUID]struct{}{}
		for _, member := range series {
			participants, err := tx.GetParticipants(ctx, member.ID)
			if err != nil {
				return err
			}
			ids := make([]uuid.UUID, 0, len(participants))
			for _, p := range participants {
				ids = append(ids, p.UserID)
				notified[p.UserID] = struct{}{}
			}
			busyIDs := withOwner(ids, actorID)
			if err := tx.AcquireScheduleLocks(ctx, lockKeys(member.CalendarID, member.RoomID, busyIDs)); err != nil {
				return err
			}
			witness, err := oracle.Check(ctx, CheckParams{
				CalendarID:     member.CalendarID,
				StartsAt:       member.StartsAt.Add(delta),
				EndsAt:         member.EndsAt.Add(delta),
				RoomID:         member.RoomID,
				ParticipantIDs: busyIDs,
				ExcludeEventID: &member.ID,
			})
			if err != nil {
				return err
			}
			if witness != nil {
				return witness.AppError()
			}
		}

		for _, member := range series {
			member.StartsAt = member.StartsAt.Add(delta)
			member.EndsAt = member.EndsAt.Add(delta)
			applyMetadata(member, dto)
			if err := tx.Update(ctx, member); err != nil {
				return err
			}
		}

		for userID := range notified {
			if userID == actorID {
				continue
			}
			pending = append(pending, pendingTask{
				taskType: notification.TypeEventUpdated,
				payload: NotifyPayload{
					UserID:     userID,
					EventID:    rootID,
					ActorID:    actorID,
					EventTitle: root.Title,
					StartsAt:   root.StartsAt.Add(delta),
				},
			})
		}
		return nil
	})
	return pending, err
}

// DeleteEvent hard-deletes one event or the whole series, cascading into
// participants, attachments, comments and derived notifications.
func (s *Service) DeleteEvent(ctx context.Context, actorID, eventID uuid.UUID, scope string) error {
	if scope != ScopeSingle && scope != ScopeSeries {
		return internal.NewValidationError("scope must be 'single' or 'series'", internal.ErrCodeValidationFailed)
	}

	ev, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, ev.CalendarID, actorID); err != nil {
		return err
	}

	var pending []pendingTask
	err = s.repo.InTransaction(ctx, func(tx Repository) error {
		targets := []*Event{ev}
		if scope == ScopeSeries {
			rootID := ev.ID
			if ev.RecurrenceParentID != nil {
				rootID = *ev.RecurrenceParentID
			}
			targets, err = tx.ListSeries(ctx, rootID)
			if err != nil {
				return err
			}
		}

		ids := make([]uuid.UUID, 0, len(targets))
		former := map[uuid.UUID]struct{}{}
		for _, target := range targets {
			ids = append(ids, target.ID)
			participants, err := tx.GetParticipants(ctx, target.ID)
			if err != nil {
				return err
			}
			for _, p := range participants {
				former[p.UserID] = struct{}{}
			}
		}

		if err := tx.DeleteCascade(ctx, ids); err != nil {
			return err
		}

		for userID := range former {
			if userID == actorID {
				continue
			}
			pending = append(pending, pendingTask{
				taskType: notification.TypeEventCancelled,
				payload: NotifyPayload{
					UserID:     userID,
					EventID:    ev.ID,
					ActorID:    actorID,
					EventTitle: ev.Title,
					StartsAt:   ev.StartsAt,
					EventIDs:   ids,
				},
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.flush(ctx, pending)
	return nil
}

// UpdateParticipantStatus lets a participant change their own response.
// Calendar access is not required; being on the participant list is.
func (s *Service) UpdateParticipantStatus(ctx context.Context, actorID, eventID, userID uuid.UUID, dto ParticipantStatusDTO) error {
	if err := dto.Validate(); err != nil {
		return internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	if actorID != userID {
		return internal.NewForbiddenError("participants may only change their own response", internal.ErrCodeNotEventParticipant)
	}

	ev, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	participant, err := s.repo.GetParticipant(ctx, eventID, userID)
	if err != nil {
		return err
	}

	old := participant.ResponseStatus
	if old == dto.ResponseStatus {
		return nil
	}
	if err := s.repo.UpdateParticipantStatus(ctx, eventID, userID, dto.ResponseStatus); err != nil {
		return err
	}

	ownerID, err := s.calendars.GetOwnerID(ctx, ev.CalendarID)
	if err != nil {
		s.logger.Warn("participant response recorded but owner lookup failed", "event_id", eventID, "error", err)
		return nil
	}
	if ownerID != userID {
		s.flush(ctx, []pendingTask{{
			taskType: notification.TypeParticipantResponse,
			payload: NotifyPayload{
				UserID:     ownerID,
				EventID:    eventID,
				ActorID:    userID,
				EventTitle: ev.Title,
				StartsAt:   ev.StartsAt,
				OldStatus:  old,
				NewStatus:  dto.ResponseStatus,
			},
		}})
	}
	return nil
}

func (s *Service) requireOwner(ctx context.Context, calendarID, actorID uuid.UUID) error {
	ownerID, err := s.calendars.GetOwnerID(ctx, calendarID)
	if err != nil {
		return err
	}
	if ownerID != actorID {
		return internal.ErrNotCalendarOwner
	}
	return nil
}

// flush submits derived tasks after the commit. Failures are logged and
// swallowed; they never undo the mutation.
func (s *Service) flush(ctx context.Context, pending []pendingTask) {
	for _, task := range pending {
		if err := s.queue.Enqueue(ctx, task.taskType, task.payload); err != nil {
			s.logger.Error("task enqueue failed", "task_type", task.taskType, "error", err)
		}
	}
}

func applyUpdate(ev *Event, dto UpdateEventDTO) *Event {
	next := *ev
	applyMetadata(&next, dto)
	if dto.StartsAt != nil {
		next.StartsAt = dto.StartsAt.UTC()
	}
	if dto.EndsAt != nil {
		next.EndsAt = dto.EndsAt.UTC()
	}
	if dto.AllDay != nil {
		next.AllDay = *dto.AllDay
	}
	if dto.ClearRoom {
		next.RoomID = nil
	} else if dto.RoomID != nil {
		next.RoomID = dto.RoomID
	}
	if dto.Status != nil {
		next.Status = *dto.Status
	}
	if dto.RecurrenceRule != nil {
		next.RecurrenceRule = dto.RecurrenceRule
	}
	return &next
}

func applyMetadata(ev *Event, dto UpdateEventDTO) {
	if dto.Title != nil {
		ev.Title = *dto.Title
	}
	if dto.Description != nil {
		ev.Description = *dto.Description
	}
	if dto.Location != nil {
		ev.Location = *dto.Location
	}
	if dto.Timezone != nil {
		ev.Timezone = *dto.Timezone
	}
}

// withOwner adds the calendar owner to the busy-check candidate set. The
// owner holds every event in their calendar, so their busy interval counts
// even when they are not an invited participant.
func withOwner(ids []uuid.UUID, ownerID uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids)+1)
	out = append(out, ids...)
	out = append(out, ownerID)
	return dedupIDs(out)
}

func dedupIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func diffIDs(current, target []uuid.UUID) (added, removed []uuid.UUID) {
	currentSet := idSet(current)
	targetSet := idSet(target)
	for _, id := range target {
		if _, ok := currentSet[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range current {
		if _, ok := targetSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

func idSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// lockKeys builds the sorted advisory-lock key set for one mutation:
// the calendar, the room when present, and every participant.
func lockKeys(calendarID uuid.UUID, roomID *uuid.UUID, participantIDs []uuid.UUID) []uuid.UUID {
	keys := make(uuid.UUIDs, 0, len(participantIDs)+2)
	keys = append(keys, calendarID)
	if roomID != nil {
		keys = append(keys, *roomID)
	}
	keys = append(keys, participantIDs...)
	keys = dedupIDs(keys)
	sortIDs(keys)
	return keys
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
