package notification_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/notification"
)

type mockNotificationRepository struct {
	notifications map[uuid.UUID]*notification.Notification
	admin         map[uuid.UUID]*notification.AdminNotification
	dismissals    map[uuid.UUID][]*notification.Dismissal
	subscriptions map[uuid.UUID][]*notification.PushSubscription

	createError error
}

func newMockNotificationRepository() *mockNotificationRepository {
	return &mockNotificationRepository{
		notifications: make(map[uuid.UUID]*notification.Notification),
		admin:         make(map[uuid.UUID]*notification.AdminNotification),
		dismissals:    make(map[uuid.UUID][]*notification.Dismissal),
		subscriptions: make(map[uuid.UUID][]*notification.PushSubscription),
	}
}

func (m *mockNotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	if m.createError != nil {
		return m.createError
	}
	copied := *n
	m.notifications[n.ID] = &copied
	return nil
}

func (m *mockNotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	n, ok := m.notifications[id]
	if !ok {
		return nil, internal.NewNotFoundError("notification not found", internal.ErrCodeUserNotFound)
	}
	copied := *n
	return &copied, nil
}

func (m *mockNotificationRepository) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*notification.Notification, error) {
	var out []*notification.Notification
	for _, n := range m.notifications {
		if n.UserID != userID || n.IsDeleted {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		copied := *n
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockNotificationRepository) MarkRead(ctx context.Context, id uuid.UUID, readAt time.Time) error {
	if n, ok := m.notifications[id]; ok {
		n.IsRead = true
		n.ReadAt = &readAt
	}
	return nil
}

func (m *mockNotificationRepository) MarkDeleted(ctx context.Context, id uuid.UUID, deletedAt time.Time) error {
	if n, ok := m.notifications[id]; ok {
		n.IsDeleted = true
		n.DeletedAt = &deletedAt
	}
	return nil
}

func (m *mockNotificationRepository) ExistsReminder(ctx context.Context, userID, eventID uuid.UUID) (bool, error) {
	for _, n := range m.notifications {
		if n.UserID == userID && n.EventID != nil && *n.EventID == eventID && n.Type == notification.TypeEventReminder {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockNotificationRepository) CreateAdmin(ctx context.Context, n *notification.AdminNotification) error {
	copied := *n
	m.admin[n.ID] = &copied
	return nil
}

func (m *mockNotificationRepository) GetAdmin(ctx context.Context, id uuid.UUID) (*notification.AdminNotification, error) {
	n, ok := m.admin[id]
	if !ok {
		return nil, internal.NewNotFoundError("announcement not found", internal.ErrCodeUserNotFound)
	}
	copied := *n
	return &copied, nil
}

func (m *mockNotificationRepository) ListActiveAdmin(ctx context.Context, now time.Time) ([]*notification.AdminNotification, error) {
	var out []*notification.AdminNotification
	for _, n := range m.admin {
		if !n.IsActive {
			continue
		}
		if n.ExpiresAt != nil && n.ExpiresAt.Before(now) {
			continue
		}
		copied := *n
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockNotificationRepository) DeactivateAdmin(ctx context.Context, id uuid.UUID) error {
	if n, ok := m.admin[id]; ok {
		n.IsActive = false
	}
	return nil
}

func (m *mockNotificationRepository) CreateDismissal(ctx context.Context, d *notification.Dismissal) error {
	m.dismissals[d.UserID] = append(m.dismissals[d.UserID], d)
	return nil
}

func (m *mockNotificationRepository) ListDismissals(ctx context.Context, userID uuid.UUID) ([]*notification.Dismissal, error) {
	return m.dismissals[userID], nil
}

func (m *mockNotificationRepository) CreateSubscription(ctx context.Context, sub *notification.PushSubscription) error {
	copied := *sub
	m.subscriptions[sub.UserID] = append(m.subscriptions[sub.UserID], &copied)
	return nil
}

func (m *mockNotificationRepository) ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]*notification.PushSubscription, error) {
	return m.subscriptions[userID], nil
}

func (m *mockNotificationRepository) DeactivateSubscription(ctx context.Context, id uuid.UUID) error {
	for _, subs := range m.subscriptions {
		for _, sub := range subs {
			if sub.ID == id {
				sub.IsActive = false
			}
		}
	}
	return nil
}

type recordingPublisher struct {
	published [][]byte
	failWith  error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if p.failWith != nil {
		return p.failWith
	}
	p.published = append(p.published, payload)
	return nil
}

type recordingPushSender struct {
	sent     []uuid.UUID
	failWith error
}

func (p *recordingPushSender) Send(ctx context.Context, sub *notification.PushSubscription, payload []byte) error {
	if p.failWith != nil {
		return p.failWith
	}
	p.sent = append(p.sent, sub.ID)
	return nil
}

var _ = Describe("NotificationService", func() {
	var (
		repo      *mockNotificationRepository
		publisher *recordingPublisher
		push      *recordingPushSender
		svc       *notification.Service

		aliceID uuid.UUID
		bobID   uuid.UUID
	)

	BeforeEach(func() {
		repo = newMockNotificationRepository()
		publisher = &recordingPublisher{}
		push = &recordingPushSender{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = notification.NewService(repo, publisher, push, logger)

		aliceID = uuid.New()
		bobID = uuid.New()
	})

	Describe("Emit", func() {
		It("stores the row and publishes the payload", func() {
			n, err := svc.Emit(context.Background(), aliceID, notification.TypeEventInvited, "Приглашение", "Вас пригласили", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.notifications).To(HaveKey(n.ID))

			Expect(publisher.published).To(HaveLen(1))
			var payload notification.Payload
			Expect(json.Unmarshal(publisher.published[0], &payload)).To(Succeed())
			Expect(payload.UserID).To(Equal(aliceID))
			Expect(payload.Type).To(Equal(notification.TypeEventInvited))
			Expect(payload.Title).To(Equal("Приглашение"))
		})

		It("survives a publish failure once the row is durable", func() {
			publisher.failWith = errors.New("redis down")
			n, err := svc.Emit(context.Background(), aliceID, notification.TypeEventUpdated, "Изменение", "Событие перенесено", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.notifications).To(HaveKey(n.ID))
		})

		It("fails when the row cannot be stored", func() {
			repo.createError = errors.New("insert failed")
			_, err := svc.Emit(context.Background(), aliceID, notification.TypeEventInvited, "Приглашение", "Вас пригласили", nil)
			Expect(err).To(HaveOccurred())
			Expect(publisher.published).To(BeEmpty())
		})

		It("pushes to active subscriptions only", func() {
			active := &notification.PushSubscription{ID: uuid.New(), UserID: aliceID, Endpoint: "https://push/1", IsActive: true}
			stale := &notification.PushSubscription{ID: uuid.New(), UserID: aliceID, Endpoint: "https://push/2", IsActive: false}
			repo.subscriptions[aliceID] = []*notification.PushSubscription{active, stale}

			_, err := svc.Emit(context.Background(), aliceID, notification.TypeEventInvited, "Приглашение", "Вас пригласили", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(push.sent).To(ConsistOf([]uuid.UUID{active.ID}))
		})
	})

	Describe("inbox", func() {
		It("lets only the recipient mark a notification read", func() {
			n, err := svc.Emit(context.Background(), aliceID, notification.TypeEventInvited, "Приглашение", "Вас пригласили", nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.MarkRead(context.Background(), bobID, n.ID)).To(HaveOccurred())
			Expect(svc.MarkRead(context.Background(), aliceID, n.ID)).To(Succeed())
			Expect(svc.MarkRead(context.Background(), aliceID, n.ID)).To(Succeed())
		})

		It("hides soft-deleted rows from the inbox", func() {
			n, err := svc.Emit(context.Background(), aliceID, notification.TypeEventInvited, "Приглашение", "Вас пригласили", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.Delete(context.Background(), aliceID, n.ID)).To(Succeed())

			list, err := svc.List(context.Background(), aliceID, false, 50, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(BeEmpty())
		})
	})

	Describe("HasReminder", func() {
		It("reports an existing reminder for the pair", func() {
			eventID := uuid.New()
			_, err := svc.Emit(context.Background(), aliceID, notification.TypeEventReminder, "Напоминание", "Через 5 минут: «Синк»", &eventID)
			Expect(err).NotTo(HaveOccurred())

			exists, err := svc.HasReminder(context.Background(), aliceID, eventID)
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())

			exists, err = svc.HasReminder(context.Background(), bobID, eventID)
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})
	})

	Describe("admin announcements", func() {
		adminID := uuid.New()

		It("derives expires_at from the display duration", func() {
			n, err := svc.CreateAdmin(context.Background(), adminID, notification.CreateAdminDTO{
				Title:                "Регламентные работы",
				Message:              "Сервис будет недоступен в субботу",
				DisplayDurationHours: 24,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(n.ExpiresAt).NotTo(BeNil())
			Expect(n.ExpiresAt.Sub(n.CreatedAt)).To(Equal(24 * time.Hour))
		})

		It("leaves expires_at empty without a duration", func() {
			n, err := svc.CreateAdmin(context.Background(), adminID, notification.CreateAdminDTO{
				Title:   "Объявление",
				Message: "Без срока",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(n.ExpiresAt).To(BeNil())
		})

		It("shows untargeted announcements to everyone", func() {
			_, err := svc.CreateAdmin(context.Background(), adminID, notification.CreateAdminDTO{
				Title:   "Всем",
				Message: "Общее объявление",
			})
			Expect(err).NotTo(HaveOccurred())

			visible, err := svc.ListAdminForUser(context.Background(), aliceID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(visible).To(HaveLen(1))
		})

		It("targets listed users and departments", func() {
			deptID := uuid.New()
			_, err := svc.CreateAdmin(context.Background(), adminID, notification.CreateAdminDTO{
				Title:         "Прицельно",
				Message:       "Только для Алисы",
				TargetUserIDs: notification.UUIDList{aliceID},
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.CreateAdmin(context.Background(), adminID, notification.CreateAdminDTO{
				Title:               "Для отдела",
				Message:             "Только для отдела",
				TargetDepartmentIDs: notification.UUIDList{deptID},
			})
			Expect(err).NotTo(HaveOccurred())

			aliceSees, err := svc.ListAdminForUser(context.Background(), aliceID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(aliceSees).To(HaveLen(1))
			Expect(aliceSees[0].Title).To(Equal("Прицельно"))

			bobSees, err := svc.ListAdminForUser(context.Background(), bobID, &deptID)
			Expect(err).NotTo(HaveOccurred())
			Expect(bobSees).To(HaveLen(1))
			Expect(bobSees[0].Title).To(Equal("Для отдела"))
		})

		It("hides dismissed announcements from that user only", func() {
			n, err := svc.CreateAdmin(context.Background(), adminID, notification.CreateAdminDTO{
				Title:   "Всем",
				Message: "Общее объявление",
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Dismiss(context.Background(), aliceID, n.ID)).To(Succeed())

			aliceSees, err := svc.ListAdminForUser(context.Background(), aliceID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(aliceSees).To(BeEmpty())

			bobSees, err := svc.ListAdminForUser(context.Background(), bobID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(bobSees).To(HaveLen(1))
		})

		It("retires an announcement on deactivation", func() {
			n, err := svc.CreateAdmin(context.Background(), adminID, notification.CreateAdminDTO{
				Title:   "Временно",
				Message: "Скоро снимем",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.DeactivateAdmin(context.Background(), n.ID)).To(Succeed())

			visible, err := svc.ListAdminForUser(context.Background(), aliceID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(visible).To(BeEmpty())
		})
	})

	Describe("push subscriptions", func() {
		It("unsubscribes only the caller's own endpoint", func() {
			var dto notification.SubscribeDTO
			dto.Endpoint = "https://push.example/ep"
			sub, err := svc.Subscribe(context.Background(), aliceID, dto)
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Unsubscribe(context.Background(), bobID, sub.ID)).To(HaveOccurred())
			Expect(svc.Unsubscribe(context.Background(), aliceID, sub.ID)).To(Succeed())

			subs, err := repo.ListSubscriptions(context.Background(), aliceID)
			Expect(err).NotTo(HaveOccurred())
			Expect(subs[0].IsActive).To(BeFalse())
		})
	})
})
