package room

import (
	"errors"

	"github.com/google/uuid"
)

// CreateRoomDTO represents the request for creating a room.
type CreateRoomDTO struct {
	Name     string `json:"name" validate:"required,min=1,max=200"`
	Location string `json:"location,omitempty"`
	Capacity int    `json:"capacity" validate:"required,min=1"`
}

func (dto CreateRoomDTO) Validate() error {
	if dto.Name == "" {
		return errors.New("name is required")
	}
	if len(dto.Name) > 200 {
		return errors.New("name must be less than 200 characters")
	}
	if dto.Capacity < 1 {
		return errors.New("capacity must be at least 1")
	}
	return nil
}

// UpdateRoomDTO mutates room metadata.
type UpdateRoomDTO struct {
	Name     *string `json:"name,omitempty"`
	Location *string `json:"location,omitempty"`
	Capacity *int    `json:"capacity,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func (dto UpdateRoomDTO) Validate() error {
	if dto.Name != nil && *dto.Name == "" {
		return errors.New("name must not be empty")
	}
	if dto.Capacity != nil && *dto.Capacity < 1 {
		return errors.New("capacity must be at least 1")
	}
	return nil
}

// GrantAccessDTO grants booking rights to exactly one of a user or a
// department.
type GrantAccessDTO struct {
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
}

func (dto GrantAccessDTO) Validate() error {
	if (dto.UserID != nil) == (dto.DepartmentID != nil) {
		return errors.New("exactly one of user_id or department_id must be set")
	}
	return nil
}
