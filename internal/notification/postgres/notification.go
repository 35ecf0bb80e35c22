package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/notification"
)

// NotificationRepository implements the notification.Repository
// interface using GORM.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) notification.Repository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	var n notification.Notification
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.NewNotFoundError("notification not found", internal.ErrCodeValidationFailed)
		}
		return nil, err
	}
	return &n, nil
}

// ListForUser excludes soft-deleted rows; deletion is terminal.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*notification.Notification, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND is_deleted = ?", userID, false)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	var notifications []*notification.Notification
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&notifications).Error
	return notifications, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id uuid.UUID, readAt time.Time) error {
	return r.db.WithContext(ctx).Model(&notification.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_read": true, "read_at": readAt}).Error
}

func (r *NotificationRepository) MarkDeleted(ctx context.Context, id uuid.UUID, deletedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&notification.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_at": deletedAt}).Error
}

func (r *NotificationRepository) ExistsReminder(ctx context.Context, userID, eventID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&notification.Notification{}).
		Where("user_id = ? AND event_id = ? AND type = ?", userID, eventID, notification.TypeEventReminder).
		Count(&count).Error
	return count > 0, err
}

func (r *NotificationRepository) CreateAdmin(ctx context.Context, n *notification.AdminNotification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *NotificationRepository) GetAdmin(ctx context.Context, id uuid.UUID) (*notification.AdminNotification, error) {
	var n notification.AdminNotification
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.NewNotFoundError("announcement not found", internal.ErrCodeValidationFailed)
		}
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) ListActiveAdmin(ctx context.Context, now time.Time) ([]*notification.AdminNotification, error) {
	var notifications []*notification.AdminNotification
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at DESC").
		Find(&notifications).Error
	return notifications, err
}

func (r *NotificationRepository) DeactivateAdmin(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&notification.AdminNotification{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

func (r *NotificationRepository) CreateDismissal(ctx context.Context, d *notification.Dismissal) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&notification.Dismissal{}).
		Where("notification_id = ? AND user_id = ?", d.NotificationID, d.UserID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *NotificationRepository) ListDismissals(ctx context.Context, userID uuid.UUID) ([]*notification.Dismissal, error) {
	var dismissals []*notification.Dismissal
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&dismissals).Error
	return dismissals, err
}

func (r *NotificationRepository) CreateSubscription(ctx context.Context, sub *notification.PushSubscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *NotificationRepository) ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]*notification.PushSubscription, error) {
	var subs []*notification.PushSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Find(&subs).Error
	return subs, err
}

func (r *NotificationRepository) DeactivateSubscription(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&notification.PushSubscription{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}
