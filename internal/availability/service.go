package availability

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/event"
)

// Repository defines the data access methods for schedules and slots.
type Repository interface {
	UpsertSchedule(ctx context.Context, s *UserSchedule) error
	// GetSchedule returns nil, nil when the user has no stored template.
	GetSchedule(ctx context.Context, userID uuid.UUID) (*UserSchedule, error)

	CreateSlot(ctx context.Context, slot *Slot) error
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListSlots(ctx context.Context, q ListSlotsQuery) ([]*Slot, error)

	// ClaimSlot flips an available slot to booked in one conditional
	// update. Returns false when another booker got there first.
	ClaimSlot(ctx context.Context, id, bookerID uuid.UUID, at time.Time) (bool, error)
	ReleaseSlot(ctx context.Context, id uuid.UUID) error
	SetSlotEvent(ctx context.Context, id, eventID uuid.UUID) error
	CancelSlot(ctx context.Context, id uuid.UUID) error
}

// EventScheduler books the backing calendar event for a claimed slot.
type EventScheduler interface {
	CreateEvent(ctx context.Context, actorID uuid.UUID, dto event.CreateEventDTO) (*event.Event, error)
}

type Service struct {
	repo   Repository
	events EventScheduler
	logger *slog.Logger
}

func NewService(repo Repository, events EventScheduler, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: events,
		logger: logger,
	}
}

// UpsertSchedule replaces the user's weekly template wholesale.
func (s *Service) UpsertSchedule(ctx context.Context, userID uuid.UUID, dto UpsertScheduleDTO) (*UserSchedule, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	tz := dto.Timezone
	if tz == "" {
		tz = "UTC"
	}
	sched := &UserSchedule{
		ID:       uuid.New(),
		UserID:   userID,
		Timezone: tz,
		Schedule: dto.Schedule,
	}
	if err := s.repo.UpsertSchedule(ctx, sched); err != nil {
		return nil, internal.NewInternalError("failed to save availability schedule", err)
	}
	return s.repo.GetSchedule(ctx, userID)
}

func (s *Service) GetSchedule(ctx context.Context, userID uuid.UUID) (*UserSchedule, error) {
	return s.repo.GetSchedule(ctx, userID)
}

// ExpandUser materializes the user's virtual intervals over [from, to).
// A user with no stored template is unavailable for the whole window.
func (s *Service) ExpandUser(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]VirtualInterval, error) {
	if !to.After(from) {
		return nil, internal.NewValidationError("to must be after from", internal.ErrCodeInvalidInterval)
	}
	sched, err := s.repo.GetSchedule(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return Expand(userID, WeeklySchedule{}, "UTC", from, to)
	}
	intervals, err := Expand(userID, sched.Schedule, sched.Timezone, from, to)
	if err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	return intervals, nil
}

// CreateSlot publishes a bookable window owned by the caller.
func (s *Service) CreateSlot(ctx context.Context, ownerID uuid.UUID, dto CreateSlotDTO) (*Slot, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	slot := &Slot{
		ID:          uuid.New(),
		UserID:      ownerID,
		ProcessName: dto.ProcessName,
		StartsAt:    dto.StartsAt.UTC(),
		EndsAt:      dto.EndsAt.UTC(),
		Status:      SlotStatusAvailable,
	}
	if err := s.repo.CreateSlot(ctx, slot); err != nil {
		return nil, internal.NewInternalError("failed to create slot", err)
	}
	return slot, nil
}

func (s *Service) ListSlots(ctx context.Context, q ListSlotsQuery) ([]*Slot, error) {
	return s.repo.ListSlots(ctx, q)
}

// BookSlot claims the slot for the booker and schedules the backing
// event on the booker's calendar with the slot owner invited. The booker
// is opted out of the busy check so booking over their own template is
// allowed; the slot owner is still protected by the participant check.
func (s *Service) BookSlot(ctx context.Context, bookerID, slotID uuid.UUID, dto BookSlotDTO) (*Slot, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.Status != SlotStatusAvailable {
		return nil, internal.ErrSlotAlreadyBooked
	}
	if slot.UserID == bookerID {
		return nil, internal.NewValidationError("cannot book your own slot", internal.ErrCodeValidationFailed)
	}

	now := time.Now().UTC()
	claimed, err := s.repo.ClaimSlot(ctx, slotID, bookerID, now)
	if err != nil {
		return nil, internal.NewInternalError("failed to claim slot", err)
	}
	if !claimed {
		return nil, internal.ErrSlotAlreadyBooked
	}

	title := dto.Title
	if title == "" {
		title = slot.ProcessName
	}
	ev, err := s.events.CreateEvent(ctx, bookerID, event.CreateEventDTO{
		CalendarID:     dto.CalendarID,
		Title:          title,
		StartsAt:       slot.StartsAt,
		EndsAt:         slot.EndsAt,
		ParticipantIDs: []uuid.UUID{slot.UserID},
		SkipUserIDs:    []uuid.UUID{bookerID},
	})
	if err != nil {
		if relErr := s.repo.ReleaseSlot(ctx, slotID); relErr != nil {
			s.logger.Error("failed to release slot after booking failure", "slot_id", slotID, "error", relErr)
		}
		return nil, err
	}
	if err := s.repo.SetSlotEvent(ctx, slotID, ev.ID); err != nil {
		s.logger.Error("failed to link slot to event", "slot_id", slotID, "event_id", ev.ID, "error", err)
	}

	s.logger.Info("slot booked", "slot_id", slotID, "booked_by", bookerID, "event_id", ev.ID)
	return s.repo.GetSlot(ctx, slotID)
}

// CancelSlot withdraws a published slot. Owner-only; an already-booked
// slot can still be withdrawn, its event stays on the calendars until
// the owner cancels it there.
func (s *Service) CancelSlot(ctx context.Context, actorID, slotID uuid.UUID) error {
	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	if slot.UserID != actorID {
		return internal.NewForbiddenError("only the slot owner may cancel it", internal.ErrCodeNotCalendarOwner)
	}
	if slot.Status == SlotStatusCancelled {
		return nil
	}
	if err := s.repo.CancelSlot(ctx, slotID); err != nil {
		return internal.NewInternalError("failed to cancel slot", err)
	}
	return nil
}
