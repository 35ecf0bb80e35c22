package postgres

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/calendar"
	"github.com/teamplan/scheduler/internal/event"
	"github.com/teamplan/scheduler/internal/notification"
)

// EventRepository implements the event.Repository interface using GORM.
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *gorm.DB) event.Repository {
	return &EventRepository{db: db}
}

// InTransaction runs fn against a transaction-scoped repository. Nested
// calls reuse the surrounding transaction.
func (r *EventRepository) InTransaction(ctx context.Context, fn func(tx event.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&EventRepository{db: tx})
	})
}

// AcquireScheduleLocks takes per-key transaction-scoped advisory locks.
// Keys arrive pre-sorted; sqlite (used in tests) has no advisory locks
// and serializes writes on its own, so the call degrades to a no-op.
func (r *EventRepository) AcquireScheduleLocks(ctx context.Context, keys []uuid.UUID) error {
	if r.db.Dialector.Name() != "postgres" {
		return nil
	}
	for _, key := range keys {
		if err := r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", lockKey(key)).Error; err != nil {
			return err
		}
	}
	return nil
}

func lockKey(id uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(id[:])
	return int64(h.Sum64())
}

func (r *EventRepository) Create(ctx context.Context, ev *event.Event) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*event.Event, error) {
	var ev event.Event
	err := r.db.WithContext(ctx).Preload("Participants").Where("id = ?", id).First(&ev).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrEventNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// ListSeries returns the root event plus every child, ordered by start.
func (r *EventRepository) ListSeries(ctx context.Context, rootID uuid.UUID) ([]*event.Event, error) {
	var events []*event.Event
	err := r.db.WithContext(ctx).
		Where("id = ? OR recurrence_parent_id = ?", rootID, rootID).
		Order("starts_at ASC").
		Find(&events).Error
	return events, err
}

func (r *EventRepository) List(ctx context.Context, q event.ListEventsQuery) ([]*event.Event, error) {
	query := r.db.WithContext(ctx).Model(&event.Event{}).Preload("Participants")
	if q.CalendarID != nil {
		query = query.Where("calendar_id = ?", *q.CalendarID)
	}
	if q.From != nil {
		query = query.Where("ends_at > ?", *q.From)
	}
	if q.To != nil {
		query = query.Where("starts_at < ?", *q.To)
	}
	var events []*event.Event
	err := query.Order("starts_at ASC").Limit(q.Limit).Offset(q.Offset).Find(&events).Error
	return events, err
}

func (r *EventRepository) Update(ctx context.Context, ev *event.Event) error {
	return r.db.WithContext(ctx).Omit("Participants").Save(ev).Error
}

// DeleteCascade removes events together with their participants,
// attachments, comments and derived notifications.
func (r *EventRepository) DeleteCascade(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	if err := db.Where("event_id IN ?", ids).Delete(&event.Participant{}).Error; err != nil {
		return err
	}
	if err := db.Where("event_id IN ?", ids).Delete(&event.Attachment{}).Error; err != nil {
		return err
	}
	if err := db.Where("event_id IN ?", ids).Delete(&event.Comment{}).Error; err != nil {
		return err
	}
	if err := db.Where("event_id IN ?", ids).Delete(&notification.Notification{}).Error; err != nil {
		return err
	}
	return db.Where("id IN ?", ids).Delete(&event.Event{}).Error
}

// AddParticipants inserts rows with status needs_action, ignoring ids
// already present.
func (r *EventRepository) AddParticipants(ctx context.Context, eventID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	for _, userID := range userIDs {
		var count int64
		if err := db.Model(&event.Participant{}).
			Where("event_id = ? AND user_id = ?", eventID, userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		p := event.Participant{
			EventID:        eventID,
			UserID:         userID,
			ResponseStatus: event.ResponseNeedsAction,
		}
		if err := db.Create(&p).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *EventRepository) RemoveParticipants(ctx context.Context, eventID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("event_id = ? AND user_id IN ?", eventID, userIDs).
		Delete(&event.Participant{}).Error
}

func (r *EventRepository) GetParticipants(ctx context.Context, eventID uuid.UUID) ([]event.Participant, error) {
	var participants []event.Participant
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Find(&participants).Error
	return participants, err
}

func (r *EventRepository) GetParticipant(ctx context.Context, eventID, userID uuid.UUID) (*event.Participant, error) {
	var p event.Participant
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.NewNotFoundError("user is not a participant of this event", internal.ErrCodeNotEventParticipant)
		}
		return nil, err
	}
	return &p, nil
}

func (r *EventRepository) UpdateParticipantStatus(ctx context.Context, eventID, userID uuid.UUID, status string) error {
	return r.db.WithContext(ctx).Model(&event.Participant{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Update("response_status", status).Error
}

func (r *EventRepository) CreateAttachment(ctx context.Context, att *event.Attachment) error {
	return r.db.WithContext(ctx).Create(att).Error
}

func (r *EventRepository) GetAttachment(ctx context.Context, eventID, attachmentID uuid.UUID) (*event.Attachment, error) {
	var att event.Attachment
	err := r.db.WithContext(ctx).
		Where("id = ? AND event_id = ?", attachmentID, eventID).
		First(&att).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.NewNotFoundError("attachment not found", internal.ErrCodeAttachmentNotFound)
		}
		return nil, err
	}
	return &att, nil
}

func (r *EventRepository) ListAttachments(ctx context.Context, eventID uuid.UUID) ([]*event.Attachment, error) {
	var atts []*event.Attachment
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Find(&atts).Error
	return atts, err
}

func (r *EventRepository) SumAttachmentBytes(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&event.Attachment{}).
		Where("event_id = ?", eventID).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&total).Error
	return total, err
}

func (r *EventRepository) DeleteAttachment(ctx context.Context, attachmentID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", attachmentID).Delete(&event.Attachment{}).Error
}

func (r *EventRepository) CreateComment(ctx context.Context, c *event.Comment) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *EventRepository) ListComments(ctx context.Context, eventID uuid.UUID) ([]*event.Comment, error) {
	var comments []*event.Comment
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Find(&comments).Error
	return comments, err
}

// FirstRoomOverlap finds the first confirmed event in the room whose
// half-open interval intersects [starts, ends). The row is locked on
// postgres so a concurrent writer blocks until this transaction ends.
func (r *EventRepository) FirstRoomOverlap(ctx context.Context, roomID uuid.UUID, starts, ends time.Time, exclude *uuid.UUID) (*event.Event, error) {
	query := r.db.WithContext(ctx).Model(&event.Event{}).
		Where("room_id = ?", roomID).
		Where("status <> ?", event.StatusCancelled).
		Where("starts_at < ? AND ends_at > ?", ends, starts)
	if exclude != nil {
		query = query.Where("id <> ?", *exclude)
	}
	query = r.lockRows(query)

	var hit event.Event
	err := query.Order("starts_at ASC").First(&hit).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &hit, nil
}

// FirstBusyOverlap applies the busy-everywhere rule: a user is busy for
// any overlapping event they are invited to or whose calendar they own.
// Returns the witness event and the responsible user, resolved first via
// the participant rows and otherwise via calendar ownership.
func (r *EventRepository) FirstBusyOverlap(ctx context.Context, userIDs []uuid.UUID, starts, ends time.Time, exclude *uuid.UUID) (*event.Event, *uuid.UUID, error) {
	if len(userIDs) == 0 {
		return nil, nil, nil
	}
	query := r.db.WithContext(ctx).Model(&event.Event{}).
		Where("events.status <> ?", event.StatusCancelled).
		Where("events.starts_at < ? AND events.ends_at > ?", ends, starts).
		Where(
			"events.id IN (?) OR events.calendar_id IN (?)",
			r.db.Model(&event.Participant{}).Select("event_id").Where("user_id IN ?", userIDs),
			r.db.Model(&calendar.Calendar{}).Select("id").Where("owner_id IN ?", userIDs),
		)
	if exclude != nil {
		query = query.Where("events.id <> ?", *exclude)
	}
	query = r.lockRows(query)

	var hit event.Event
	err := query.Order("events.starts_at ASC").First(&hit).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	userID, err := r.resolveBusyUser(ctx, &hit, userIDs)
	if err != nil {
		return nil, nil, err
	}
	return &hit, userID, nil
}

// resolveBusyUser names the candidate responsible for the witness.
func (r *EventRepository) resolveBusyUser(ctx context.Context, hit *event.Event, userIDs []uuid.UUID) (*uuid.UUID, error) {
	var p event.Participant
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND user_id IN ?", hit.ID, userIDs).
		First(&p).Error
	if err == nil {
		return &p.UserID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	var cal calendar.Calendar
	err = r.db.WithContext(ctx).
		Where("id = ? AND owner_id IN ?", hit.CalendarID, userIDs).
		First(&cal).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cal.OwnerID, nil
}

// lockRows adds FOR UPDATE on postgres so conflict checks hold row locks
// until commit. Sqlite serializes writers already.
func (r *EventRepository) lockRows(query *gorm.DB) *gorm.DB {
	if r.db.Dialector.Name() == "postgres" {
		return query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return query
}
