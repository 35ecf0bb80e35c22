package availability_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/availability"
	"github.com/teamplan/scheduler/internal/event"
)

type mockSlotRepository struct {
	schedules map[uuid.UUID]*availability.UserSchedule
	slots     map[uuid.UUID]*availability.Slot

	claimRejected bool
	released      []uuid.UUID
	setEventError error
}

func newMockSlotRepository() *mockSlotRepository {
	return &mockSlotRepository{
		schedules: make(map[uuid.UUID]*availability.UserSchedule),
		slots:     make(map[uuid.UUID]*availability.Slot),
	}
}

func (m *mockSlotRepository) UpsertSchedule(ctx context.Context, s *availability.UserSchedule) error {
	m.schedules[s.UserID] = s
	return nil
}

func (m *mockSlotRepository) GetSchedule(ctx context.Context, userID uuid.UUID) (*availability.UserSchedule, error) {
	return m.schedules[userID], nil
}

func (m *mockSlotRepository) CreateSlot(ctx context.Context, slot *availability.Slot) error {
	copied := *slot
	m.slots[slot.ID] = &copied
	return nil
}

func (m *mockSlotRepository) GetSlot(ctx context.Context, id uuid.UUID) (*availability.Slot, error) {
	slot, ok := m.slots[id]
	if !ok {
		return nil, internal.ErrSlotNotFound
	}
	copied := *slot
	return &copied, nil
}

func (m *mockSlotRepository) ListSlots(ctx context.Context, q availability.ListSlotsQuery) ([]*availability.Slot, error) {
	var out []*availability.Slot
	for _, slot := range m.slots {
		if q.OnlyOpen && slot.Status != availability.SlotStatusAvailable {
			continue
		}
		copied := *slot
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockSlotRepository) ClaimSlot(ctx context.Context, id, bookerID uuid.UUID, at time.Time) (bool, error) {
	slot, ok := m.slots[id]
	if !ok || m.claimRejected || slot.Status != availability.SlotStatusAvailable {
		return false, nil
	}
	slot.Status = availability.SlotStatusBooked
	slot.BookedBy = &bookerID
	slot.BookedAt = &at
	return true, nil
}

func (m *mockSlotRepository) ReleaseSlot(ctx context.Context, id uuid.UUID) error {
	m.released = append(m.released, id)
	if slot, ok := m.slots[id]; ok {
		slot.Status = availability.SlotStatusAvailable
		slot.BookedBy = nil
		slot.BookedAt = nil
		slot.EventID = nil
	}
	return nil
}

func (m *mockSlotRepository) SetSlotEvent(ctx context.Context, id, eventID uuid.UUID) error {
	if m.setEventError != nil {
		return m.setEventError
	}
	if slot, ok := m.slots[id]; ok {
		slot.EventID = &eventID
	}
	return nil
}

func (m *mockSlotRepository) CancelSlot(ctx context.Context, id uuid.UUID) error {
	if slot, ok := m.slots[id]; ok {
		slot.Status = availability.SlotStatusCancelled
	}
	return nil
}

type mockScheduler struct {
	created     []event.CreateEventDTO
	createError error
}

func (m *mockScheduler) CreateEvent(ctx context.Context, actorID uuid.UUID, dto event.CreateEventDTO) (*event.Event, error) {
	if m.createError != nil {
		return nil, m.createError
	}
	m.created = append(m.created, dto)
	return &event.Event{ID: uuid.New(), CalendarID: dto.CalendarID, Title: dto.Title}, nil
}

var _ = Describe("AvailabilityService", func() {
	var (
		repo      *mockSlotRepository
		scheduler *mockScheduler
		svc       *availability.Service

		ownerID    uuid.UUID
		bookerID   uuid.UUID
		calendarID uuid.UUID
		startsAt   time.Time
	)

	BeforeEach(func() {
		repo = newMockSlotRepository()
		scheduler = &mockScheduler{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = availability.NewService(repo, scheduler, logger)

		ownerID = uuid.New()
		bookerID = uuid.New()
		calendarID = uuid.New()
		startsAt = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	})

	publishSlot := func() *availability.Slot {
		slot, err := svc.CreateSlot(context.Background(), ownerID, availability.CreateSlotDTO{
			ProcessName: "Интервью",
			StartsAt:    startsAt,
			EndsAt:      startsAt.Add(time.Hour),
		})
		Expect(err).NotTo(HaveOccurred())
		return slot
	}

	Describe("UpsertSchedule", func() {
		It("defaults the timezone to UTC", func() {
			sched, err := svc.UpsertSchedule(context.Background(), ownerID, availability.UpsertScheduleDTO{
				Schedule: availability.WeeklySchedule{
					"monday": {{Start: "09:00", End: "18:00"}},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(sched.Timezone).To(Equal("UTC"))
		})

		It("rejects an unknown timezone", func() {
			_, err := svc.UpsertSchedule(context.Background(), ownerID, availability.UpsertScheduleDTO{
				Timezone: "Mars/Olympus",
			})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ExpandUser", func() {
		It("treats a user with no template as fully unavailable", func() {
			intervals, err := svc.ExpandUser(context.Background(), ownerID, startsAt, startsAt.AddDate(0, 0, 7))
			Expect(err).NotTo(HaveOccurred())
			Expect(intervals).NotTo(BeEmpty())
			for _, iv := range intervals {
				Expect(iv.Kind).To(Equal(availability.VirtualUnavailable))
			}
		})

		It("rejects an inverted window", func() {
			_, err := svc.ExpandUser(context.Background(), ownerID, startsAt, startsAt.Add(-time.Hour))
			Expect(err).To(HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidInterval))
		})
	})

	Describe("CreateSlot", func() {
		It("publishes an open slot with UTC-normalized bounds", func() {
			msk := time.FixedZone("MSK", 3*3600)
			slot, err := svc.CreateSlot(context.Background(), ownerID, availability.CreateSlotDTO{
				ProcessName: "Интервью",
				StartsAt:    time.Date(2026, 9, 1, 13, 0, 0, 0, msk),
				EndsAt:      time.Date(2026, 9, 1, 14, 0, 0, 0, msk),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(slot.Status).To(Equal(availability.SlotStatusAvailable))
			Expect(slot.StartsAt).To(Equal(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)))
		})

		It("rejects an empty interval", func() {
			_, err := svc.CreateSlot(context.Background(), ownerID, availability.CreateSlotDTO{
				ProcessName: "Интервью",
				StartsAt:    startsAt,
				EndsAt:      startsAt,
			})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("BookSlot", func() {
		It("claims the slot and schedules the backing event", func() {
			slot := publishSlot()

			booked, err := svc.BookSlot(context.Background(), bookerID, slot.ID, availability.BookSlotDTO{
				CalendarID: calendarID,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(booked.Status).To(Equal(availability.SlotStatusBooked))
			Expect(booked.BookedBy).NotTo(BeNil())
			Expect(*booked.BookedBy).To(Equal(bookerID))
			Expect(booked.EventID).NotTo(BeNil())

			Expect(scheduler.created).To(HaveLen(1))
			dto := scheduler.created[0]
			Expect(dto.CalendarID).To(Equal(calendarID))
			Expect(dto.Title).To(Equal("Интервью"))
			Expect(dto.ParticipantIDs).To(ConsistOf([]uuid.UUID{ownerID}))
			Expect(dto.SkipUserIDs).To(ConsistOf([]uuid.UUID{bookerID}))
		})

		It("uses the custom title when given", func() {
			slot := publishSlot()
			_, err := svc.BookSlot(context.Background(), bookerID, slot.ID, availability.BookSlotDTO{
				CalendarID: calendarID,
				Title:      "Интервью с Алисой",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(scheduler.created[0].Title).To(Equal("Интервью с Алисой"))
		})

		It("refuses a double booking", func() {
			slot := publishSlot()
			_, err := svc.BookSlot(context.Background(), bookerID, slot.ID, availability.BookSlotDTO{CalendarID: calendarID})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.BookSlot(context.Background(), uuid.New(), slot.ID, availability.BookSlotDTO{CalendarID: calendarID})
			Expect(err).To(MatchError(internal.ErrSlotAlreadyBooked))
		})

		It("loses the race when the conditional claim fails", func() {
			slot := publishSlot()
			repo.claimRejected = true

			_, err := svc.BookSlot(context.Background(), bookerID, slot.ID, availability.BookSlotDTO{CalendarID: calendarID})
			Expect(err).To(MatchError(internal.ErrSlotAlreadyBooked))
		})

		It("refuses booking one's own slot", func() {
			slot := publishSlot()
			_, err := svc.BookSlot(context.Background(), ownerID, slot.ID, availability.BookSlotDTO{CalendarID: calendarID})
			Expect(err).To(HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeValidationFailed))
		})

		It("releases the claim when event creation fails", func() {
			slot := publishSlot()
			scheduler.createError = internal.NewConflictError("Участник занят событием «Синк»", internal.ErrCodeParticipantConflict)

			_, err := svc.BookSlot(context.Background(), bookerID, slot.ID, availability.BookSlotDTO{CalendarID: calendarID})
			Expect(err).To(HaveOccurred())
			Expect(repo.released).To(ConsistOf([]uuid.UUID{slot.ID}))

			reloaded, err := repo.GetSlot(context.Background(), slot.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded.Status).To(Equal(availability.SlotStatusAvailable))
		})

		It("keeps the booking when only the event link fails", func() {
			slot := publishSlot()
			repo.setEventError = errors.New("db hiccup")

			booked, err := svc.BookSlot(context.Background(), bookerID, slot.ID, availability.BookSlotDTO{CalendarID: calendarID})
			Expect(err).NotTo(HaveOccurred())
			Expect(booked.Status).To(Equal(availability.SlotStatusBooked))
			Expect(booked.EventID).To(BeNil())
		})

		It("requires a calendar", func() {
			slot := publishSlot()
			_, err := svc.BookSlot(context.Background(), bookerID, slot.ID, availability.BookSlotDTO{})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("CancelSlot", func() {
		It("lets only the owner cancel", func() {
			slot := publishSlot()
			err := svc.CancelSlot(context.Background(), bookerID, slot.ID)
			Expect(err).To(HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeNotCalendarOwner))
		})

		It("cancels and stays idempotent", func() {
			slot := publishSlot()
			Expect(svc.CancelSlot(context.Background(), ownerID, slot.ID)).To(Succeed())
			Expect(svc.CancelSlot(context.Background(), ownerID, slot.ID)).To(Succeed())

			reloaded, err := repo.GetSlot(context.Background(), slot.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded.Status).To(Equal(availability.SlotStatusCancelled))
		})
	})
})
