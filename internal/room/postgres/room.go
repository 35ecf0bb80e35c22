package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/room"
)

// RoomRepository implements the room.Repository interface using GORM.
type RoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) room.Repository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(ctx context.Context, rm *room.Room) error {
	return r.db.WithContext(ctx).Create(rm).Error
}

func (r *RoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*room.Room, error) {
	var rm room.Room
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rm).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrRoomNotFound
		}
		return nil, err
	}
	return &rm, nil
}

func (r *RoomRepository) List(ctx context.Context) ([]*room.Room, error) {
	var rooms []*room.Room
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&rooms).Error
	return rooms, err
}

func (r *RoomRepository) Update(ctx context.Context, rm *room.Room) error {
	return r.db.WithContext(ctx).Save(rm).Error
}

func (r *RoomRepository) GrantAccess(ctx context.Context, access *room.Access) error {
	return r.db.WithContext(ctx).Create(access).Error
}

func (r *RoomRepository) RevokeAccess(ctx context.Context, accessID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", accessID).Delete(&room.Access{}).Error
}

func (r *RoomRepository) ListAccess(ctx context.Context, roomID uuid.UUID) ([]*room.Access, error) {
	var rows []*room.Access
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
