package event_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/event"
)

// Scripted store: returns a fixed witness per resource regardless of the
// interval, so precedence and skip filtering can be tested in isolation.
type scriptedConflictStore struct {
	roomHit *event.Event
	busyHit *event.Event
	busyBy  *uuid.UUID

	busyQueries [][]uuid.UUID
}

func (s *scriptedConflictStore) FirstRoomOverlap(ctx context.Context, roomID uuid.UUID, starts, ends time.Time, exclude *uuid.UUID) (*event.Event, error) {
	return s.roomHit, nil
}

func (s *scriptedConflictStore) FirstBusyOverlap(ctx context.Context, userIDs []uuid.UUID, starts, ends time.Time, exclude *uuid.UUID) (*event.Event, *uuid.UUID, error) {
	s.busyQueries = append(s.busyQueries, userIDs)
	if s.busyHit == nil {
		return nil, nil, nil
	}
	return s.busyHit, s.busyBy, nil
}

var _ = Describe("ConflictOracle", func() {
	var (
		store  *scriptedConflictStore
		oracle *event.Oracle

		roomID  uuid.UUID
		aliceID uuid.UUID
		starts  time.Time
		ends    time.Time
	)

	BeforeEach(func() {
		store = &scriptedConflictStore{}
		oracle = event.NewOracle(store)
		roomID = uuid.New()
		aliceID = uuid.New()
		starts = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
		ends = starts.Add(time.Hour)
	})

	It("returns nil for a free interval", func() {
		witness, err := oracle.Check(context.Background(), event.CheckParams{
			CalendarID:     uuid.New(),
			StartsAt:       starts,
			EndsAt:         ends,
			RoomID:         &roomID,
			ParticipantIDs: []uuid.UUID{aliceID},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(witness).To(BeNil())
	})

	It("skips the check entirely for an empty interval", func() {
		store.roomHit = &event.Event{ID: uuid.New(), Title: "Занято"}
		witness, err := oracle.Check(context.Background(), event.CheckParams{
			StartsAt: starts,
			EndsAt:   starts,
			RoomID:   &roomID,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(witness).To(BeNil())
	})

	It("reports the room before any participant", func() {
		store.roomHit = &event.Event{ID: uuid.New(), Title: "Демо"}
		store.busyHit = &event.Event{ID: uuid.New(), Title: "Синк"}
		store.busyBy = &aliceID

		witness, err := oracle.Check(context.Background(), event.CheckParams{
			StartsAt:       starts,
			EndsAt:         ends,
			RoomID:         &roomID,
			ParticipantIDs: []uuid.UUID{aliceID},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(witness).NotTo(BeNil())
		Expect(witness.Kind).To(Equal(event.ConflictRoom))
		Expect(witness.Detail()).To(Equal("Переговорка занята событием «Демо»"))
	})

	It("reports a busy participant when the room is free", func() {
		store.busyHit = &event.Event{ID: uuid.New(), Title: "Синк"}
		store.busyBy = &aliceID

		witness, err := oracle.Check(context.Background(), event.CheckParams{
			StartsAt:       starts,
			EndsAt:         ends,
			ParticipantIDs: []uuid.UUID{aliceID},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(witness).NotTo(BeNil())
		Expect(witness.Kind).To(Equal(event.ConflictParticipant))
		Expect(witness.UserID).NotTo(BeNil())
		Expect(*witness.UserID).To(Equal(aliceID))
		Expect(witness.Detail()).To(Equal("Участник занят событием «Синк»"))
	})

	It("names the participant when a label is attached", func() {
		w := &event.ConflictWitness{
			Kind:      event.ConflictParticipant,
			Event:     event.Event{Title: "Синк"},
			UserLabel: "Алиса Иванова",
		}
		Expect(w.Detail()).To(Equal("Пользователь Алиса Иванова занят событием «Синк»"))
	})

	It("filters skipped users out of the busy query", func() {
		bobID := uuid.New()
		_, err := oracle.Check(context.Background(), event.CheckParams{
			StartsAt:       starts,
			EndsAt:         ends,
			ParticipantIDs: []uuid.UUID{aliceID, bobID},
			SkipUserIDs:    []uuid.UUID{aliceID},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.busyQueries).To(HaveLen(1))
		Expect(store.busyQueries[0]).To(ConsistOf([]uuid.UUID{bobID}))
	})

	It("skips the busy query when every participant is skipped", func() {
		store.busyHit = &event.Event{ID: uuid.New(), Title: "Синк"}
		store.busyBy = &aliceID

		witness, err := oracle.Check(context.Background(), event.CheckParams{
			StartsAt:       starts,
			EndsAt:         ends,
			ParticipantIDs: []uuid.UUID{aliceID},
			SkipUserIDs:    []uuid.UUID{aliceID},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(witness).To(BeNil())
		Expect(store.busyQueries).To(BeEmpty())
	})

	It("carries the blocking event in the mapped error details", func() {
		blocking := event.Event{ID: uuid.New(), Title: "Демо", StartsAt: starts, EndsAt: ends}
		w := &event.ConflictWitness{Kind: event.ConflictRoom, Event: blocking}

		appErr := w.AppError()
		Expect(appErr.Code).To(Equal(internal.ErrCodeRoomConflict))
		details, ok := appErr.Details.(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(details["event_id"]).To(Equal(blocking.ID))
		Expect(details["event_title"]).To(Equal("Демо"))
	})
})

var _ = Describe("Overlaps", func() {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	It("treats intervals as half-open", func() {
		// [10:00, 11:00) against [11:00, 12:00): boundary touch is free.
		Expect(event.Overlaps(base, base.Add(time.Hour), base.Add(time.Hour), base.Add(2*time.Hour))).To(BeFalse())
		Expect(event.Overlaps(base.Add(time.Hour), base.Add(2*time.Hour), base, base.Add(time.Hour))).To(BeFalse())
	})

	It("detects partial and full containment", func() {
		Expect(event.Overlaps(base, base.Add(time.Hour), base.Add(30*time.Minute), base.Add(90*time.Minute))).To(BeTrue())
		Expect(event.Overlaps(base, base.Add(2*time.Hour), base.Add(30*time.Minute), base.Add(time.Hour))).To(BeTrue())
		Expect(event.Overlaps(base.Add(30*time.Minute), base.Add(time.Hour), base, base.Add(2*time.Hour))).To(BeTrue())
	})

	It("rejects disjoint intervals", func() {
		Expect(event.Overlaps(base, base.Add(time.Hour), base.Add(2*time.Hour), base.Add(3*time.Hour))).To(BeFalse())
	})
})
