package calendar

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/availability"
	"github.com/teamplan/scheduler/internal/event"
)

// Repository defines the data access methods for calendars.
type Repository interface {
	Create(ctx context.Context, cal *Calendar) error
	GetByID(ctx context.Context, id uuid.UUID) (*Calendar, error)
	ListVisible(ctx context.Context, userID uuid.UUID) ([]*Calendar, error)
	Update(ctx context.Context, cal *Calendar) error
	Delete(ctx context.Context, id uuid.UUID) error

	UpsertMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, calendarID, userID uuid.UUID) (*Member, error)
	ListMembers(ctx context.Context, calendarID uuid.UUID) ([]*Member, error)
	RemoveMember(ctx context.Context, calendarID, userID uuid.UUID) error

	GetOwnerID(ctx context.Context, calendarID uuid.UUID) (uuid.UUID, error)
}

// EventStore is the slice of event storage the availability and
// conflicts endpoints read.
type EventStore interface {
	// ListUserEvents returns events in [from, to) where the user is an
	// invited participant or owns the event's calendar.
	ListUserEvents(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*event.Event, error)

	// ListCalendarEvents returns the calendar's events in [from, to)
	// with participants loaded.
	ListCalendarEvents(ctx context.Context, calendarID uuid.UUID, from, to time.Time) ([]*event.Event, error)
}

// ScheduleStore loads weekly availability templates.
type ScheduleStore interface {
	GetSchedule(ctx context.Context, userID uuid.UUID) (*availability.UserSchedule, error)
}

// RoomLookup resolves room names for conflict labels.
type RoomLookup interface {
	GetRoomName(ctx context.Context, id uuid.UUID) (string, error)
}

// UserLookup resolves user labels for conflict entries.
type UserLookup interface {
	GetUserLabel(ctx context.Context, id uuid.UUID) (string, error)
}

// Service handles calendar sharing and read-model logic. Event mutation
// stays owner-only regardless of membership role.
type Service struct {
	repo      Repository
	events    EventStore
	schedules ScheduleStore
	rooms     RoomLookup
	users     UserLookup
	logger    *slog.Logger
}

func NewService(repo Repository, events EventStore, schedules ScheduleStore, rooms RoomLookup, users UserLookup, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		events:    events,
		schedules: schedules,
		rooms:     rooms,
		users:     users,
		logger:    logger,
	}
}

// CreateCalendar creates the calendar and enrolls the creator as an
// owner-role member.
func (s *Service) CreateCalendar(ctx context.Context, actorID uuid.UUID, dto CreateCalendarDTO) (*Calendar, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	tz := dto.Timezone
	if tz == "" {
		tz = "UTC"
	}
	cal := &Calendar{
		ID:       uuid.New(),
		Name:     dto.Name,
		Timezone: tz,
		Color:    dto.Color,
		OwnerID:  actorID,
		IsActive: true,
	}
	if err := s.repo.Create(ctx, cal); err != nil {
		return nil, err
	}
	member := &Member{CalendarID: cal.ID, UserID: actorID, Role: MemberRoleOwner}
	if err := s.repo.UpsertMember(ctx, member); err != nil {
		return nil, err
	}
	return cal, nil
}

func (s *Service) GetCalendar(ctx context.Context, actorID, calendarID uuid.UUID) (*Calendar, error) {
	cal, err := s.repo.GetByID(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, calendarID, actorID, cal.OwnerID); err != nil {
		return nil, err
	}
	return cal, nil
}

// ListCalendars returns calendars the caller owns or is a member of.
func (s *Service) ListCalendars(ctx context.Context, actorID uuid.UUID) ([]*Calendar, error) {
	return s.repo.ListVisible(ctx, actorID)
}

func (s *Service) UpdateCalendar(ctx context.Context, actorID, calendarID uuid.UUID, dto UpdateCalendarDTO) (*Calendar, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	cal, err := s.repo.GetByID(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	if cal.OwnerID != actorID {
		return nil, internal.ErrNotCalendarOwner
	}

	if dto.Name != nil {
		cal.Name = *dto.Name
	}
	if dto.Timezone != nil {
		cal.Timezone = *dto.Timezone
	}
	if dto.Color != nil {
		cal.Color = *dto.Color
	}
	if dto.IsActive != nil {
		cal.IsActive = *dto.IsActive
	}
	if err := s.repo.Update(ctx, cal); err != nil {
		return nil, err
	}
	return cal, nil
}

func (s *Service) DeleteCalendar(ctx context.Context, actorID, calendarID uuid.UUID) error {
	cal, err := s.repo.GetByID(ctx, calendarID)
	if err != nil {
		return err
	}
	if cal.OwnerID != actorID {
		return internal.ErrNotCalendarOwner
	}
	return s.repo.Delete(ctx, calendarID)
}

// AddMember shares the calendar with a user. Owner-only.
func (s *Service) AddMember(ctx context.Context, actorID, calendarID, userID uuid.UUID, dto MemberDTO) (*Member, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	if err := s.requireOwner(ctx, calendarID, actorID); err != nil {
		return nil, err
	}

	member := &Member{CalendarID: calendarID, UserID: userID, Role: dto.Role}
	if err := s.repo.UpsertMember(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

func (s *Service) GetMember(ctx context.Context, actorID, calendarID, userID uuid.UUID) (*Member, error) {
	if err := s.requireOwner(ctx, calendarID, actorID); err != nil {
		return nil, err
	}
	return s.repo.GetMember(ctx, calendarID, userID)
}

func (s *Service) ListMembers(ctx context.Context, actorID, calendarID uuid.UUID) ([]*Member, error) {
	cal, err := s.repo.GetByID(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, calendarID, actorID, cal.OwnerID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, calendarID)
}

func (s *Service) RemoveMember(ctx context.Context, actorID, calendarID, userID uuid.UUID) error {
	if err := s.requireOwner(ctx, calendarID, actorID); err != nil {
		return err
	}
	return s.repo.RemoveMember(ctx, calendarID, userID)
}

// MemberAvailability unions the member's real events with the virtual
// intervals expanded from their weekly schedule.
func (s *Service) MemberAvailability(ctx context.Context, actorID, calendarID, userID uuid.UUID, from, to time.Time) (*MemberAvailability, error) {
	cal, err := s.repo.GetByID(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, calendarID, actorID, cal.OwnerID); err != nil {
		return nil, err
	}

	events, err := s.events.ListUserEvents(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	result := &MemberAvailability{
		UserID:           userID,
		From:             from,
		To:               to,
		Events:           events,
		VirtualIntervals: []availability.VirtualInterval{},
	}

	schedule, err := s.schedules.GetSchedule(ctx, userID)
	if err != nil {
		return nil, err
	}
	if schedule != nil {
		intervals, err := availability.Expand(userID, schedule.Schedule, schedule.Timezone, from, to)
		if err != nil {
			return nil, err
		}
		result.VirtualIntervals = intervals
	}
	return result, nil
}

// ListConflicts enumerates overlapping event clusters in the calendar's
// window, grouped by the shared resource. The scheduler refuses new
// conflicts, so entries here surface rows that predate a rule change or
// were written by imports.
func (s *Service) ListConflicts(ctx context.Context, actorID, calendarID uuid.UUID, from, to time.Time) ([]ConflictEntry, error) {
	cal, err := s.repo.GetByID(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, calendarID, actorID, cal.OwnerID); err != nil {
		return nil, err
	}

	events, err := s.events.ListCalendarEvents(ctx, calendarID, from, to)
	if err != nil {
		return nil, err
	}

	entries := []ConflictEntry{}

	byRoom := map[uuid.UUID][]*event.Event{}
	for _, ev := range events {
		if ev.RoomID != nil {
			byRoom[*ev.RoomID] = append(byRoom[*ev.RoomID], ev)
		}
	}
	for roomID, roomEvents := range byRoom {
		for _, cluster := range overlapClusters(roomEvents) {
			label := roomID.String()
			if name, err := s.rooms.GetRoomName(ctx, roomID); err == nil {
				label = name
			}
			entries = append(entries, ConflictEntry{
				Type:          "room",
				ResourceID:    roomID,
				ResourceLabel: label,
				SlotStart:     cluster.start,
				SlotEnd:       cluster.end,
				Events:        cluster.events,
			})
		}
	}

	byUser := map[uuid.UUID][]*event.Event{}
	for _, ev := range events {
		byUser[cal.OwnerID] = append(byUser[cal.OwnerID], ev)
		for _, p := range ev.Participants {
			if p.UserID != cal.OwnerID {
				byUser[p.UserID] = append(byUser[p.UserID], ev)
			}
		}
	}
	for userID, userEvents := range byUser {
		for _, cluster := range overlapClusters(userEvents) {
			label := userID.String()
			if name, err := s.users.GetUserLabel(ctx, userID); err == nil {
				label = name
			}
			entries = append(entries, ConflictEntry{
				Type:          "participant",
				ResourceID:    userID,
				ResourceLabel: label,
				SlotStart:     cluster.start,
				SlotEnd:       cluster.end,
				Events:        cluster.events,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SlotStart.Before(entries[j].SlotStart)
	})
	return entries, nil
}

// GetOwnerID exposes ownership lookups to the event scheduler.
func (s *Service) GetOwnerID(ctx context.Context, calendarID uuid.UUID) (uuid.UUID, error) {
	return s.repo.GetOwnerID(ctx, calendarID)
}

func (s *Service) requireOwner(ctx context.Context, calendarID, actorID uuid.UUID) error {
	ownerID, err := s.repo.GetOwnerID(ctx, calendarID)
	if err != nil {
		return err
	}
	if ownerID != actorID {
		return internal.ErrNotCalendarOwner
	}
	return nil
}

// requireMember grants the owner and every member read access.
func (s *Service) requireMember(ctx context.Context, calendarID, actorID, ownerID uuid.UUID) error {
	if actorID == ownerID {
		return nil
	}
	if _, err := s.repo.GetMember(ctx, calendarID, actorID); err != nil {
		return internal.NewForbiddenError("not a member of this calendar", internal.ErrCodeNotCalendarOwner)
	}
	return nil
}

type cluster struct {
	start  time.Time
	end    time.Time
	events []*event.Event
}

// overlapClusters sweeps events sorted by start and groups maximal runs
// of mutually reachable overlaps, keeping only clusters with at least
// two events.
func overlapClusters(events []*event.Event) []cluster {
	if len(events) < 2 {
		return nil
	}
	sorted := make([]*event.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartsAt.Before(sorted[j].StartsAt)
	})

	var clusters []cluster
	current := cluster{start: sorted[0].StartsAt, end: sorted[0].EndsAt, events: []*event.Event{sorted[0]}}
	for _, ev := range sorted[1:] {
		if ev.StartsAt.Before(current.end) {
			current.events = append(current.events, ev)
			if ev.EndsAt.After(current.end) {
				current.end = ev.EndsAt
			}
			continue
		}
		if len(current.events) > 1 {
			clusters = append(clusters, current)
		}
		current = cluster{start: ev.StartsAt, end: ev.EndsAt, events: []*event.Event{ev}}
	}
	if len(current.events) > 1 {
		clusters = append(clusters, current)
	}
	return clusters
}
