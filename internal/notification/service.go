package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal"
)

// Channel is the pub/sub channel notification payloads are published on.
const Channel = "notifications"

// Repository defines the data access methods for notifications.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, readAt time.Time) error
	MarkDeleted(ctx context.Context, id uuid.UUID, deletedAt time.Time) error
	ExistsReminder(ctx context.Context, userID, eventID uuid.UUID) (bool, error)

	CreateAdmin(ctx context.Context, n *AdminNotification) error
	GetAdmin(ctx context.Context, id uuid.UUID) (*AdminNotification, error)
	ListActiveAdmin(ctx context.Context, now time.Time) ([]*AdminNotification, error)
	DeactivateAdmin(ctx context.Context, id uuid.UUID) error
	CreateDismissal(ctx context.Context, d *Dismissal) error
	ListDismissals(ctx context.Context, userID uuid.UUID) ([]*Dismissal, error)

	CreateSubscription(ctx context.Context, sub *PushSubscription) error
	ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]*PushSubscription, error)
	DeactivateSubscription(ctx context.Context, id uuid.UUID) error
}

// Publisher fans a committed notification out to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// PushSender delivers web-push messages, best effort.
type PushSender interface {
	Send(ctx context.Context, sub *PushSubscription, payload []byte) error
}

// Payload is the JSON object published on the pub/sub channel.
type Payload struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	EventID   *uuid.UUID `json:"event_id,omitempty"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}

// Service records and fans out user notifications.
type Service struct {
	repo      Repository
	publisher Publisher
	push      PushSender
	logger    *slog.Logger
}

func NewService(repo Repository, publisher Publisher, push PushSender, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		push:      push,
		logger:    logger,
	}
}

// Emit stores a notification and publishes it. The row is durable once
// Emit returns nil; publish and web-push failures are logged and do not
// undo it. Emit is not idempotent; reminder callers guard with
// HasReminder first.
func (s *Service) Emit(ctx context.Context, userID uuid.UUID, kind, title, message string, eventID *uuid.UUID) (*Notification, error) {
	n := &Notification{
		ID:        uuid.New(),
		UserID:    userID,
		EventID:   eventID,
		Type:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(Payload{
		ID:        n.ID,
		UserID:    n.UserID,
		EventID:   n.EventID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	})
	if err == nil && s.publisher != nil {
		if err := s.publisher.Publish(ctx, Channel, payload); err != nil {
			s.logger.Error("notification publish failed", "notification_id", n.ID, "error", err)
		}
	}

	if s.push != nil {
		s.fanOutPush(ctx, userID, payload)
	}
	return n, nil
}

// HasReminder reports whether an event_reminder row already exists for
// (user, event). The reminder sweeper uses it as its idempotence guard.
func (s *Service) HasReminder(ctx context.Context, userID, eventID uuid.UUID) (bool, error) {
	return s.repo.ExistsReminder(ctx, userID, eventID)
}

func (s *Service) fanOutPush(ctx context.Context, userID uuid.UUID, payload []byte) {
	subs, err := s.repo.ListSubscriptions(ctx, userID)
	if err != nil {
		s.logger.Warn("push subscription lookup failed", "user_id", userID, "error", err)
		return
	}
	for _, sub := range subs {
		if !sub.IsActive {
			continue
		}
		if err := s.push.Send(ctx, sub, payload); err != nil {
			s.logger.Warn("web push delivery failed", "subscription_id", sub.ID, "error", err)
		}
	}
}

// List returns the user's inbox, excluding soft-deleted rows.
func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListForUser(ctx, userID, unreadOnly, limit, offset)
}

// MarkRead flips is_read. Only the recipient may do it.
func (s *Service) MarkRead(ctx context.Context, actorID, id uuid.UUID) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != actorID {
		return internal.NewForbiddenError("not your notification", internal.ErrCodeValidationFailed)
	}
	if n.IsRead {
		return nil
	}
	return s.repo.MarkRead(ctx, id, time.Now().UTC())
}

// Delete soft-deletes the row. The deletion is terminal.
func (s *Service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != actorID {
		return internal.NewForbiddenError("not your notification", internal.ErrCodeValidationFailed)
	}
	if n.IsDeleted {
		return nil
	}
	return s.repo.MarkDeleted(ctx, id, time.Now().UTC())
}

// CreateAdmin publishes an announcement to the targeted users and
// departments. A positive display duration derives expires_at.
func (s *Service) CreateAdmin(ctx context.Context, actorID uuid.UUID, dto CreateAdminDTO) (*AdminNotification, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	now := time.Now().UTC()
	n := &AdminNotification{
		ID:                   uuid.New(),
		Title:                dto.Title,
		Message:              dto.Message,
		CreatedBy:            actorID,
		TargetUserIDs:        dto.TargetUserIDs,
		TargetDepartmentIDs:  dto.TargetDepartmentIDs,
		DisplayDurationHours: dto.DisplayDurationHours,
		IsActive:             true,
		CreatedAt:            now,
	}
	if dto.DisplayDurationHours > 0 {
		expires := now.Add(time.Duration(dto.DisplayDurationHours) * time.Hour)
		n.ExpiresAt = &expires
	}
	if err := s.repo.CreateAdmin(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// ListAdminForUser returns active, unexpired announcements targeting
// the user directly or via their department, minus dismissed ones.
func (s *Service) ListAdminForUser(ctx context.Context, userID uuid.UUID, departmentID *uuid.UUID) ([]*AdminNotification, error) {
	now := time.Now().UTC()
	all, err := s.repo.ListActiveAdmin(ctx, now)
	if err != nil {
		return nil, err
	}
	dismissals, err := s.repo.ListDismissals(ctx, userID)
	if err != nil {
		return nil, err
	}
	dismissed := make(map[uuid.UUID]struct{}, len(dismissals))
	for _, d := range dismissals {
		dismissed[d.NotificationID] = struct{}{}
	}

	var visible []*AdminNotification
	for _, n := range all {
		if _, ok := dismissed[n.ID]; ok {
			continue
		}
		if !s.targets(n, userID, departmentID) {
			continue
		}
		visible = append(visible, n)
	}
	return visible, nil
}

// targets applies the announcement targeting rules: empty target lists
// mean everyone.
func (s *Service) targets(n *AdminNotification, userID uuid.UUID, departmentID *uuid.UUID) bool {
	if len(n.TargetUserIDs) == 0 && len(n.TargetDepartmentIDs) == 0 {
		return true
	}
	if n.TargetUserIDs.Contains(userID) {
		return true
	}
	return departmentID != nil && n.TargetDepartmentIDs.Contains(*departmentID)
}

// Dismiss hides an announcement for one user.
func (s *Service) Dismiss(ctx context.Context, userID, notificationID uuid.UUID) error {
	if _, err := s.repo.GetAdmin(ctx, notificationID); err != nil {
		return err
	}
	return s.repo.CreateDismissal(ctx, &Dismissal{
		NotificationID: notificationID,
		UserID:         userID,
		DismissedAt:    time.Now().UTC(),
	})
}

// DeactivateAdmin retires an announcement early.
func (s *Service) DeactivateAdmin(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeactivateAdmin(ctx, id)
}

// Subscribe registers a web-push endpoint for the user.
func (s *Service) Subscribe(ctx context.Context, userID uuid.UUID, dto SubscribeDTO) (*PushSubscription, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	sub := &PushSubscription{
		ID:       uuid.New(),
		UserID:   userID,
		Endpoint: dto.Endpoint,
		P256DH:   dto.Keys.P256DH,
		Auth:     dto.Keys.Auth,
		IsActive: true,
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Unsubscribe deactivates one of the caller's push endpoints.
func (s *Service) Unsubscribe(ctx context.Context, userID, subscriptionID uuid.UUID) error {
	subs, err := s.repo.ListSubscriptions(ctx, userID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if sub.ID == subscriptionID {
			return s.repo.DeactivateSubscription(ctx, subscriptionID)
		}
	}
	return internal.NewNotFoundError("push subscription not found", internal.ErrCodeUserNotFound)
}
