package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/availability"
)

// AvailabilityRepository implements availability.Repository using GORM.
type AvailabilityRepository struct {
	db *gorm.DB
}

func NewAvailabilityRepository(db *gorm.DB) availability.Repository {
	return &AvailabilityRepository{db: db}
}

// UpsertSchedule replaces the user's template in place, keeping the
// original row id when one exists.
func (r *AvailabilityRepository) UpsertSchedule(ctx context.Context, s *availability.UserSchedule) error {
	var existing availability.UserSchedule
	err := r.db.WithContext(ctx).Where("user_id = ?", s.UserID).First(&existing).Error
	if err == nil {
		existing.Timezone = s.Timezone
		existing.Schedule = s.Schedule
		return r.db.WithContext(ctx).Save(&existing).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *AvailabilityRepository) GetSchedule(ctx context.Context, userID uuid.UUID) (*availability.UserSchedule, error) {
	var s availability.UserSchedule
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *AvailabilityRepository) CreateSlot(ctx context.Context, slot *availability.Slot) error {
	return r.db.WithContext(ctx).Create(slot).Error
}

func (r *AvailabilityRepository) GetSlot(ctx context.Context, id uuid.UUID) (*availability.Slot, error) {
	var slot availability.Slot
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&slot).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrSlotNotFound
		}
		return nil, err
	}
	return &slot, nil
}

func (r *AvailabilityRepository) ListSlots(ctx context.Context, q availability.ListSlotsQuery) ([]*availability.Slot, error) {
	query := r.db.WithContext(ctx).Model(&availability.Slot{})
	if q.UserID != nil {
		query = query.Where("user_id = ?", *q.UserID)
	}
	if q.ProcessName != "" {
		query = query.Where("process_name = ?", q.ProcessName)
	}
	if q.From != nil {
		query = query.Where("ends_at > ?", *q.From)
	}
	if q.To != nil {
		query = query.Where("starts_at < ?", *q.To)
	}
	if q.OnlyOpen {
		query = query.Where("status = ?", availability.SlotStatusAvailable)
	}
	var slots []*availability.Slot
	err := query.Order("starts_at ASC").Find(&slots).Error
	return slots, err
}

// ClaimSlot is the single point of contention for concurrent bookings:
// the status predicate makes the update a compare-and-swap.
func (r *AvailabilityRepository) ClaimSlot(ctx context.Context, id, bookerID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&availability.Slot{}).
		Where("id = ? AND status = ?", id, availability.SlotStatusAvailable).
		Updates(map[string]interface{}{
			"status":    availability.SlotStatusBooked,
			"booked_by": bookerID,
			"booked_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *AvailabilityRepository) ReleaseSlot(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&availability.Slot{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    availability.SlotStatusAvailable,
			"booked_by": nil,
			"booked_at": nil,
			"event_id":  nil,
		}).Error
}

func (r *AvailabilityRepository) SetSlotEvent(ctx context.Context, id, eventID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&availability.Slot{}).
		Where("id = ?", id).
		Update("event_id", eventID).Error
}

func (r *AvailabilityRepository) CancelSlot(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&availability.Slot{}).
		Where("id = ?", id).
		Update("status", availability.SlotStatusCancelled).Error
}
