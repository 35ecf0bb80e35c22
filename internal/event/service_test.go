package event_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/event"
	"github.com/teamplan/scheduler/internal/notification"
	"github.com/teamplan/scheduler/internal/recurrence"
)

// Mock repository for testing. Conflict queries run the same half-open
// overlap predicate the real store uses.
type mockEventRepository struct {
	events       map[uuid.UUID]*event.Event
	participants map[uuid.UUID][]event.Participant
	owners       map[uuid.UUID]uuid.UUID // calendar -> owner, shared with mockCalendarStore

	attachments map[uuid.UUID]*event.Attachment
	comments    map[uuid.UUID][]*event.Comment

	createError error
	txError     error
	lockedKeys  [][]uuid.UUID
}

func newMockEventRepository(owners map[uuid.UUID]uuid.UUID) *mockEventRepository {
	return &mockEventRepository{
		events:       make(map[uuid.UUID]*event.Event),
		participants: make(map[uuid.UUID][]event.Participant),
		owners:       owners,
		attachments:  make(map[uuid.UUID]*event.Attachment),
		comments:     make(map[uuid.UUID][]*event.Comment),
	}
}

func (m *mockEventRepository) InTransaction(ctx context.Context, fn func(tx event.Repository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(m)
}

func (m *mockEventRepository) AcquireScheduleLocks(ctx context.Context, keys []uuid.UUID) error {
	m.lockedKeys = append(m.lockedKeys, keys)
	return nil
}

func (m *mockEventRepository) Create(ctx context.Context, ev *event.Event) error {
	if m.createError != nil {
		return m.createError
	}
	copied := *ev
	m.events[ev.ID] = &copied
	return nil
}

func (m *mockEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*event.Event, error) {
	ev, ok := m.events[id]
	if !ok {
		return nil, internal.ErrEventNotFound
	}
	copied := *ev
	copied.Participants = append([]event.Participant(nil), m.participants[id]...)
	return &copied, nil
}

func (m *mockEventRepository) ListSeries(ctx context.Context, rootID uuid.UUID) ([]*event.Event, error) {
	var out []*event.Event
	for _, ev := range m.events {
		if ev.ID == rootID || (ev.RecurrenceParentID != nil && *ev.RecurrenceParentID == rootID) {
			copied := *ev
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (m *mockEventRepository) List(ctx context.Context, q event.ListEventsQuery) ([]*event.Event, error) {
	var out []*event.Event
	for _, ev := range m.events {
		if q.CalendarID != nil && ev.CalendarID != *q.CalendarID {
			continue
		}
		copied := *ev
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (m *mockEventRepository) Update(ctx context.Context, ev *event.Event) error {
	copied := *ev
	m.events[ev.ID] = &copied
	return nil
}

func (m *mockEventRepository) DeleteCascade(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(m.events, id)
		delete(m.participants, id)
		delete(m.comments, id)
	}
	return nil
}

func (m *mockEventRepository) AddParticipants(ctx context.Context, eventID uuid.UUID, userIDs []uuid.UUID) error {
	for _, userID := range userIDs {
		exists := false
		for _, p := range m.participants[eventID] {
			if p.UserID == userID {
				exists = true
				break
			}
		}
		if !exists {
			m.participants[eventID] = append(m.participants[eventID], event.Participant{
				EventID:        eventID,
				UserID:         userID,
				ResponseStatus: event.ResponseNeedsAction,
			})
		}
	}
	return nil
}

func (m *mockEventRepository) RemoveParticipants(ctx context.Context, eventID uuid.UUID, userIDs []uuid.UUID) error {
	drop := make(map[uuid.UUID]struct{}, len(userIDs))
	for _, id := range userIDs {
		drop[id] = struct{}{}
	}
	var kept []event.Participant
	for _, p := range m.participants[eventID] {
		if _, ok := drop[p.UserID]; !ok {
			kept = append(kept, p)
		}
	}
	m.participants[eventID] = kept
	return nil
}

func (m *mockEventRepository) GetParticipants(ctx context.Context, eventID uuid.UUID) ([]event.Participant, error) {
	return append([]event.Participant(nil), m.participants[eventID]...), nil
}

func (m *mockEventRepository) GetParticipant(ctx context.Context, eventID, userID uuid.UUID) (*event.Participant, error) {
	for _, p := range m.participants[eventID] {
		if p.UserID == userID {
			copied := p
			return &copied, nil
		}
	}
	return nil, internal.NewNotFoundError("user is not a participant of this event", internal.ErrCodeNotEventParticipant)
}

func (m *mockEventRepository) UpdateParticipantStatus(ctx context.Context, eventID, userID uuid.UUID, status string) error {
	for i, p := range m.participants[eventID] {
		if p.UserID == userID {
			m.participants[eventID][i].ResponseStatus = status
		}
	}
	return nil
}

func (m *mockEventRepository) CreateAttachment(ctx context.Context, att *event.Attachment) error {
	copied := *att
	m.attachments[att.ID] = &copied
	return nil
}

func (m *mockEventRepository) GetAttachment(ctx context.Context, eventID, attachmentID uuid.UUID) (*event.Attachment, error) {
	att, ok := m.attachments[attachmentID]
	if !ok || att.EventID != eventID {
		return nil, internal.NewNotFoundError("attachment not found", internal.ErrCodeAttachmentNotFound)
	}
	copied := *att
	return &copied, nil
}

func (m *mockEventRepository) ListAttachments(ctx context.Context, eventID uuid.UUID) ([]*event.Attachment, error) {
	var out []*event.Attachment
	for _, att := range m.attachments {
		if att.EventID == eventID {
			copied := *att
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockEventRepository) SumAttachmentBytes(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var total int64
	for _, att := range m.attachments {
		if att.EventID == eventID {
			total += att.SizeBytes
		}
	}
	return total, nil
}

func (m *mockEventRepository) DeleteAttachment(ctx context.Context, attachmentID uuid.UUID) error {
	delete(m.attachments, attachmentID)
	return nil
}

func (m *mockEventRepository) CreateComment(ctx context.Context, c *event.Comment) error {
	copied := *c
	m.comments[c.EventID] = append(m.comments[c.EventID], &copied)
	return nil
}

func (m *mockEventRepository) ListComments(ctx context.Context, eventID uuid.UUID) ([]*event.Comment, error) {
	return append([]*event.Comment(nil), m.comments[eventID]...), nil
}

func (m *mockEventRepository) FirstRoomOverlap(ctx context.Context, roomID uuid.UUID, starts, ends time.Time, exclude *uuid.UUID) (*event.Event, error) {
	for _, ev := range m.events {
		if ev.RoomID == nil || *ev.RoomID != roomID || ev.Status == event.StatusCancelled {
			continue
		}
		if exclude != nil && ev.ID == *exclude {
			continue
		}
		if ev.StartsAt.Before(ends) && ev.EndsAt.After(starts) {
			copied := *ev
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockEventRepository) FirstBusyOverlap(ctx context.Context, userIDs []uuid.UUID, starts, ends time.Time, exclude *uuid.UUID) (*event.Event, *uuid.UUID, error) {
	for _, ev := range m.events {
		if ev.Status == event.StatusCancelled {
			continue
		}
		if exclude != nil && ev.ID == *exclude {
			continue
		}
		if !ev.StartsAt.Before(ends) || !ev.EndsAt.After(starts) {
			continue
		}
		for _, candidate := range userIDs {
			for _, p := range m.participants[ev.ID] {
				if p.UserID == candidate {
					copied := *ev
					hit := candidate
					return &copied, &hit, nil
				}
			}
			if m.owners[ev.CalendarID] == candidate {
				copied := *ev
				hit := candidate
				return &copied, &hit, nil
			}
		}
	}
	return nil, nil, nil
}

type mockCalendarStore struct {
	owners map[uuid.UUID]uuid.UUID
}

func (m *mockCalendarStore) GetOwnerID(ctx context.Context, calendarID uuid.UUID) (uuid.UUID, error) {
	owner, ok := m.owners[calendarID]
	if !ok {
		return uuid.Nil, internal.ErrCalendarNotFound
	}
	return owner, nil
}

type enqueuedTask struct {
	taskType string
	payload  event.NotifyPayload
}

type mockQueue struct {
	tasks        []enqueuedTask
	enqueueError error
}

func (m *mockQueue) Enqueue(ctx context.Context, taskType string, payload any) error {
	if m.enqueueError != nil {
		return m.enqueueError
	}
	m.tasks = append(m.tasks, enqueuedTask{taskType: taskType, payload: payload.(event.NotifyPayload)})
	return nil
}

func (m *mockQueue) ofType(taskType string) []enqueuedTask {
	var out []enqueuedTask
	for _, t := range m.tasks {
		if t.taskType == taskType {
			out = append(out, t)
		}
	}
	return out
}

type mockRoomAccess struct {
	denied map[uuid.UUID]struct{}
}

func (m *mockRoomAccess) CheckAccess(ctx context.Context, roomID, userID uuid.UUID) error {
	if _, ok := m.denied[roomID]; ok {
		return internal.ErrRoomAccessDenied
	}
	return nil
}

var _ = Describe("EventService", func() {
	var (
		svc        *event.Service
		repo       *mockEventRepository
		queue      *mockQueue
		roomAccess *mockRoomAccess
		logger     *slog.Logger

		ownerID    uuid.UUID
		aliceID    uuid.UUID
		bobID      uuid.UUID
		calendarID uuid.UUID
		roomID     uuid.UUID
		base       time.Time
	)

	BeforeEach(func() {
		ownerID = uuid.New()
		aliceID = uuid.New()
		bobID = uuid.New()
		calendarID = uuid.New()
		roomID = uuid.New()
		base = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

		owners := map[uuid.UUID]uuid.UUID{calendarID: ownerID}
		repo = newMockEventRepository(owners)
		queue = &mockQueue{}
		roomAccess = &mockRoomAccess{denied: map[uuid.UUID]struct{}{}}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = event.NewService(repo, &mockCalendarStore{owners: owners}, roomAccess, queue, nil, logger)
	})

	Describe("CreateEvent", func() {
		Context("with participants", func() {
			It("creates the event and enqueues invitations for everyone but the actor", func() {
				ev, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID:     calendarID,
					Title:          "Планёрка",
					StartsAt:       base,
					EndsAt:         base.Add(time.Hour),
					ParticipantIDs: []uuid.UUID{ownerID, aliceID, bobID},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Status).To(Equal(event.StatusConfirmed))
				Expect(ev.Participants).To(HaveLen(3))

				invited := queue.ofType(notification.TypeEventInvited)
				Expect(invited).To(HaveLen(2))
				for _, task := range invited {
					Expect(task.payload.UserID).NotTo(Equal(ownerID))
					Expect(task.payload.EventID).To(Equal(ev.ID))
				}
			})

			It("rejects creation by a non-owner", func() {
				_, err := svc.CreateEvent(context.Background(), aliceID, event.CreateEventDTO{
					CalendarID: calendarID,
					Title:      "Чужое событие",
					StartsAt:   base,
					EndsAt:     base.Add(time.Hour),
				})
				Expect(err).To(MatchError(internal.ErrNotCalendarOwner))
			})
		})

		Context("when the room is already taken", func() {
			It("returns a conflict naming the blocking event", func() {
				_, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID: calendarID,
					RoomID:     &roomID,
					Title:      "Демо",
					StartsAt:   base,
					EndsAt:     base.Add(time.Hour),
				})
				Expect(err).NotTo(HaveOccurred())

				_, err = svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID: calendarID,
					RoomID:     &roomID,
					Title:      "Вторая встреча",
					StartsAt:   base.Add(30 * time.Minute),
					EndsAt:     base.Add(90 * time.Minute),
				})
				Expect(err).To(HaveOccurred())

				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(internal.ErrCodeRoomConflict))
				Expect(appErr.Message).To(Equal("Переговорка занята событием «Демо»"))
			})

			It("allows back-to-back bookings sharing a boundary instant", func() {
				_, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID: calendarID,
					RoomID:     &roomID,
					Title:      "Первая",
					StartsAt:   base,
					EndsAt:     base.Add(time.Hour),
				})
				Expect(err).NotTo(HaveOccurred())

				_, err = svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID: calendarID,
					RoomID:     &roomID,
					Title:      "Вторая",
					StartsAt:   base.Add(time.Hour),
					EndsAt:     base.Add(2 * time.Hour),
				})
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when a participant owns an overlapping event's calendar", func() {
			It("returns a participant conflict", func() {
				aliceCalendar := uuid.New()
				repo.owners[aliceCalendar] = aliceID

				_, err := svc.CreateEvent(context.Background(), aliceID, event.CreateEventDTO{
					CalendarID: aliceCalendar,
					Title:      "Личное",
					StartsAt:   base,
					EndsAt:     base.Add(time.Hour),
				})
				Expect(err).NotTo(HaveOccurred())

				_, err = svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID:     calendarID,
					Title:          "Синк",
					StartsAt:       base.Add(15 * time.Minute),
					EndsAt:         base.Add(45 * time.Minute),
					ParticipantIDs: []uuid.UUID{aliceID},
				})
				Expect(err).To(HaveOccurred())

				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(internal.ErrCodeParticipantConflict))
			})

			It("honors skip_user_ids for the booker's own busy interval", func() {
				aliceCalendar := uuid.New()
				repo.owners[aliceCalendar] = aliceID

				_, err := svc.CreateEvent(context.Background(), aliceID, event.CreateEventDTO{
					CalendarID: aliceCalendar,
					Title:      "Личное",
					StartsAt:   base,
					EndsAt:     base.Add(time.Hour),
				})
				Expect(err).NotTo(HaveOccurred())

				_, err = svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID:     calendarID,
					Title:          "Интервью",
					StartsAt:       base.Add(15 * time.Minute),
					EndsAt:         base.Add(45 * time.Minute),
					ParticipantIDs: []uuid.UUID{aliceID},
					SkipUserIDs:    []uuid.UUID{aliceID},
				})
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when the calendar owner is already busy", func() {
			It("rejects a second overlapping event in the owner's own calendar", func() {
				_, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID: calendarID,
					Title:      "Первая встреча",
					StartsAt:   base,
					EndsAt:     base.Add(time.Hour),
				})
				Expect(err).NotTo(HaveOccurred())

				_, err = svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID: calendarID,
					Title:      "Вторая встреча",
					StartsAt:   base.Add(30 * time.Minute),
					EndsAt:     base.Add(90 * time.Minute),
				})
				Expect(err).To(HaveOccurred())

				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(internal.ErrCodeParticipantConflict))
			})

			It("lets skip_user_ids opt the owner out, as slot booking does", func() {
				_, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID: calendarID,
					Title:      "Своя встреча",
					StartsAt:   base,
					EndsAt:     base.Add(time.Hour),
				})
				Expect(err).NotTo(HaveOccurred())

				_, err = svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID:  calendarID,
					Title:       "Интервью",
					StartsAt:    base.Add(30 * time.Minute),
					EndsAt:      base.Add(90 * time.Minute),
					SkipUserIDs: []uuid.UUID{ownerID},
				})
				Expect(err).NotTo(HaveOccurred())
			})

			It("rejects moving an event onto the owner's other booking", func() {
				first, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID: calendarID,
					Title:      "Утренняя",
					StartsAt:   base,
					EndsAt:     base.Add(time.Hour),
				})
				Expect(err).NotTo(HaveOccurred())
				_, err = svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID: calendarID,
					Title:      "Дневная",
					StartsAt:   base.Add(2 * time.Hour),
					EndsAt:     base.Add(3 * time.Hour),
				})
				Expect(err).NotTo(HaveOccurred())

				newStart := base.Add(150 * time.Minute)
				newEnd := base.Add(210 * time.Minute)
				_, err = svc.UpdateEvent(context.Background(), ownerID, first.ID, event.ScopeSingle, event.UpdateEventDTO{
					StartsAt: &newStart,
					EndsAt:   &newEnd,
				})
				Expect(err).To(HaveOccurred())
				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(internal.ErrCodeParticipantConflict))
			})
		})

		Context("with a weekly recurrence rule", func() {
			It("materializes the requested number of occurrences including the base", func() {
				count := 3
				ev, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID: calendarID,
					Title:      "Еженедельный синк",
					StartsAt:   base,
					EndsAt:     base.Add(time.Hour),
					RecurrenceRule: &recurrence.Rule{
						Frequency: recurrence.FrequencyWeekly,
						Interval:  1,
						Count:     &count,
					},
				})
				Expect(err).NotTo(HaveOccurred())

				series, err := repo.ListSeries(context.Background(), ev.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(series).To(HaveLen(3))
				Expect(series[1].StartsAt).To(Equal(base.AddDate(0, 0, 7)))
				Expect(series[2].StartsAt).To(Equal(base.AddDate(0, 0, 14)))
				for _, member := range series[1:] {
					Expect(member.RecurrenceParentID).NotTo(BeNil())
					Expect(*member.RecurrenceParentID).To(Equal(ev.ID))
				}
			})

			It("aborts the whole series when a later occurrence conflicts", func() {
				_, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID: calendarID,
					RoomID:     &roomID,
					Title:      "Блокер",
					StartsAt:   base.AddDate(0, 0, 7),
					EndsAt:     base.AddDate(0, 0, 7).Add(time.Hour),
				})
				Expect(err).NotTo(HaveOccurred())
				before := len(repo.events)

				count := 3
				_, err = svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID: calendarID,
					RoomID:     &roomID,
					Title:      "Серия",
					StartsAt:   base,
					EndsAt:     base.Add(time.Hour),
					RecurrenceRule: &recurrence.Rule{
						Frequency: recurrence.FrequencyWeekly,
						Interval:  1,
						Count:     &count,
					},
				})
				Expect(err).To(HaveOccurred())
				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(internal.ErrCodeRoomConflict))
				Expect(len(repo.events)).To(BeNumerically(">=", before))
			})
		})

		Context("when room access is denied", func() {
			It("refuses the booking before any conflict check", func() {
				roomAccess.denied[roomID] = struct{}{}
				_, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID: calendarID,
					RoomID:     &roomID,
					Title:      "Закрытая комната",
					StartsAt:   base,
					EndsAt:     base.Add(time.Hour),
				})
				Expect(err).To(MatchError(internal.ErrRoomAccessDenied))
			})
		})

		Context("when the queue is down", func() {
			It("still creates the event", func() {
				queue.enqueueError = errors.New("broker unreachable")
				ev, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
					CalendarID:     calendarID,
					Title:          "Без уведомлений",
					StartsAt:       base,
					EndsAt:         base.Add(time.Hour),
					ParticipantIDs: []uuid.UUID{aliceID},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(repo.events).To(HaveKey(ev.ID))
			})
		})
	})

	Describe("UpdateEvent", func() {
		var evID uuid.UUID

		BeforeEach(func() {
			ev, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
				CalendarID:     calendarID,
				Title:          "Обсуждение",
				StartsAt:       base,
				EndsAt:         base.Add(time.Hour),
				ParticipantIDs: []uuid.UUID{aliceID},
			})
			Expect(err).NotTo(HaveOccurred())
			evID = ev.ID
			queue.tasks = nil
		})

		It("applies field changes and notifies existing participants as updated", func() {
			title := "Перенесённое обсуждение"
			newStart := base.Add(2 * time.Hour)
			newEnd := base.Add(3 * time.Hour)
			ev, err := svc.UpdateEvent(context.Background(), ownerID, evID, event.ScopeSingle, event.UpdateEventDTO{
				Title:    &title,
				StartsAt: &newStart,
				EndsAt:   &newEnd,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Title).To(Equal(title))
			Expect(ev.StartsAt).To(Equal(newStart))

			updated := queue.ofType(notification.TypeEventUpdated)
			Expect(updated).To(HaveLen(1))
			Expect(updated[0].payload.UserID).To(Equal(aliceID))
		})

		It("invites newly added participants and keeps existing responses", func() {
			Expect(repo.UpdateParticipantStatus(context.Background(), evID, aliceID, event.ResponseAccepted)).To(Succeed())

			ids := []uuid.UUID{aliceID, bobID}
			_, err := svc.UpdateEvent(context.Background(), ownerID, evID, event.ScopeSingle, event.UpdateEventDTO{
				ParticipantIDs: &ids,
			})
			Expect(err).NotTo(HaveOccurred())

			p, err := repo.GetParticipant(context.Background(), evID, aliceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.ResponseStatus).To(Equal(event.ResponseAccepted))

			Expect(queue.ofType(notification.TypeEventInvited)).To(HaveLen(1))
			Expect(queue.ofType(notification.TypeEventUpdated)).To(HaveLen(1))
		})

		It("rejects an overlapping move", func() {
			_, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
				CalendarID: calendarID,
				RoomID:     &roomID,
				Title:      "Занято",
				StartsAt:   base.Add(4 * time.Hour),
				EndsAt:     base.Add(5 * time.Hour),
			})
			Expect(err).NotTo(HaveOccurred())

			newStart := base.Add(4 * time.Hour)
			newEnd := base.Add(5 * time.Hour)
			_, err = svc.UpdateEvent(context.Background(), ownerID, evID, event.ScopeSingle, event.UpdateEventDTO{
				StartsAt: &newStart,
				EndsAt:   &newEnd,
				RoomID:   &roomID,
			})
			Expect(err).To(HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeRoomConflict))
		})
	})

	Describe("series updates", func() {
		var rootID uuid.UUID

		BeforeEach(func() {
			count := 3
			ev, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
				CalendarID: calendarID,
				Title:      "Серия",
				StartsAt:   base,
				EndsAt:     base.Add(time.Hour),
				RecurrenceRule: &recurrence.Rule{
					Frequency: recurrence.FrequencyWeekly,
					Interval:  1,
					Count:     &count,
				},
				ParticipantIDs: []uuid.UUID{aliceID},
			})
			Expect(err).NotTo(HaveOccurred())
			rootID = ev.ID
			queue.tasks = nil
		})

		It("shifts every member by the same delta, preserving durations", func() {
			newStart := base.Add(90 * time.Minute)
			_, err := svc.UpdateEvent(context.Background(), ownerID, rootID, event.ScopeSeries, event.UpdateEventDTO{
				StartsAt: &newStart,
			})
			Expect(err).NotTo(HaveOccurred())

			series, err := repo.ListSeries(context.Background(), rootID)
			Expect(err).NotTo(HaveOccurred())
			Expect(series).To(HaveLen(3))
			for i, member := range series {
				expected := base.Add(90 * time.Minute).AddDate(0, 0, 7*i)
				Expect(member.StartsAt).To(Equal(expected))
				Expect(member.EndsAt.Sub(member.StartsAt)).To(Equal(time.Hour))
			}

			updated := queue.ofType(notification.TypeEventUpdated)
			Expect(updated).To(HaveLen(1))
			Expect(updated[0].payload.UserID).To(Equal(aliceID))
		})

		It("resolves the root when called on a child occurrence", func() {
			series, err := repo.ListSeries(context.Background(), rootID)
			Expect(err).NotTo(HaveOccurred())
			child := series[1]

			newStart := base.Add(30 * time.Minute)
			_, err = svc.UpdateEvent(context.Background(), ownerID, child.ID, event.ScopeSeries, event.UpdateEventDTO{
				StartsAt: &newStart,
			})
			Expect(err).NotTo(HaveOccurred())

			root, err := repo.GetByID(context.Background(), rootID)
			Expect(err).NotTo(HaveOccurred())
			Expect(root.StartsAt).To(Equal(base.Add(30 * time.Minute)))
		})

		It("requires starts_at for series scope", func() {
			title := "Только название"
			_, err := svc.UpdateEvent(context.Background(), ownerID, rootID, event.ScopeSeries, event.UpdateEventDTO{
				Title: &title,
			})
			Expect(err).To(HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeValidationFailed))
		})
	})

	Describe("DeleteEvent", func() {
		It("removes the whole series and notifies former participants", func() {
			count := 2
			ev, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
				CalendarID: calendarID,
				Title:      "Отменяемая серия",
				StartsAt:   base,
				EndsAt:     base.Add(time.Hour),
				RecurrenceRule: &recurrence.Rule{
					Frequency: recurrence.FrequencyWeekly,
					Interval:  1,
					Count:     &count,
				},
				ParticipantIDs: []uuid.UUID{aliceID, bobID},
			})
			Expect(err).NotTo(HaveOccurred())
			queue.tasks = nil

			Expect(svc.DeleteEvent(context.Background(), ownerID, ev.ID, event.ScopeSeries)).To(Succeed())
			Expect(repo.events).To(BeEmpty())

			cancelled := queue.ofType(notification.TypeEventCancelled)
			Expect(cancelled).To(HaveLen(2))
		})

		It("refuses deletion by a non-owner", func() {
			ev, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
				CalendarID: calendarID,
				Title:      "Чужое",
				StartsAt:   base,
				EndsAt:     base.Add(time.Hour),
			})
			Expect(err).NotTo(HaveOccurred())

			err = svc.DeleteEvent(context.Background(), aliceID, ev.ID, event.ScopeSingle)
			Expect(err).To(MatchError(internal.ErrNotCalendarOwner))
		})
	})

	Describe("UpdateParticipantStatus", func() {
		var evID uuid.UUID

		BeforeEach(func() {
			ev, err := svc.CreateEvent(context.Background(), ownerID, event.CreateEventDTO{
				CalendarID:     calendarID,
				Title:          "Встреча",
				StartsAt:       base,
				EndsAt:         base.Add(time.Hour),
				ParticipantIDs: []uuid.UUID{aliceID},
			})
			Expect(err).NotTo(HaveOccurred())
			evID = ev.ID
			queue.tasks = nil
		})

		It("records the response and notifies the owner", func() {
			err := svc.UpdateParticipantStatus(context.Background(), aliceID, evID, aliceID, event.ParticipantStatusDTO{
				ResponseStatus: event.ResponseAccepted,
			})
			Expect(err).NotTo(HaveOccurred())

			p, err := repo.GetParticipant(context.Background(), evID, aliceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.ResponseStatus).To(Equal(event.ResponseAccepted))

			responses := queue.ofType(notification.TypeParticipantResponse)
			Expect(responses).To(HaveLen(1))
			Expect(responses[0].payload.UserID).To(Equal(ownerID))
			Expect(responses[0].payload.OldStatus).To(Equal(event.ResponseNeedsAction))
			Expect(responses[0].payload.NewStatus).To(Equal(event.ResponseAccepted))
		})

		It("is a no-op when the status does not change", func() {
			err := svc.UpdateParticipantStatus(context.Background(), aliceID, evID, aliceID, event.ParticipantStatusDTO{
				ResponseStatus: event.ResponseNeedsAction,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(queue.tasks).To(BeEmpty())
		})

		It("forbids changing someone else's response", func() {
			err := svc.UpdateParticipantStatus(context.Background(), bobID, evID, aliceID, event.ParticipantStatusDTO{
				ResponseStatus: event.ResponseDeclined,
			})
			Expect(err).To(HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeNotEventParticipant))
		})

		It("rejects a non-participant", func() {
			err := svc.UpdateParticipantStatus(context.Background(), bobID, evID, bobID, event.ParticipantStatusDTO{
				ResponseStatus: event.ResponseDeclined,
			})
			Expect(err).To(HaveOccurred())
		})
	})
})
