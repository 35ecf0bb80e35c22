package room

import (
	"time"

	"github.com/google/uuid"
)

// Room is a bookable meeting room.
type Room struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"not null"`
	Location  string    `json:"location"`
	Capacity  int       `json:"capacity" gorm:"not null;default:1"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Room) TableName() string {
	return "rooms"
}

// Access grants booking rights on a room to exactly one of a user or a
// department. Rows with both or neither set are invalid.
type Access struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	RoomID       uuid.UUID  `json:"room_id" gorm:"type:uuid;index;not null"`
	UserID       *uuid.UUID `json:"user_id,omitempty" gorm:"type:uuid"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty" gorm:"type:uuid"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (Access) TableName() string {
	return "room_access"
}

// Valid reports whether the row names exactly one principal kind.
func (a Access) Valid() bool {
	return (a.UserID != nil) != (a.DepartmentID != nil)
}
