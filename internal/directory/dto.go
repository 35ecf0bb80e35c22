package directory

import (
	"errors"

	"github.com/google/uuid"
)

// CreateOrganizationDTO represents the request for creating an organization.
type CreateOrganizationDTO struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

func (dto CreateOrganizationDTO) Validate() error {
	if dto.Name == "" {
		return errors.New("name is required")
	}
	if len(dto.Name) > 200 {
		return errors.New("name must be less than 200 characters")
	}
	return nil
}

// CreateDepartmentDTO represents the request for creating a department.
type CreateDepartmentDTO struct {
	OrgID    uuid.UUID  `json:"org_id" validate:"required"`
	Name     string     `json:"name" validate:"required,min=1,max=200"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
}

func (dto CreateDepartmentDTO) Validate() error {
	if dto.OrgID == uuid.Nil {
		return errors.New("org_id is required")
	}
	if dto.Name == "" {
		return errors.New("name is required")
	}
	if len(dto.Name) > 200 {
		return errors.New("name must be less than 200 characters")
	}
	return nil
}

// UpdateDepartmentDTO mutates a department. SetParent distinguishes
// "reparent to null" from "leave unchanged".
type UpdateDepartmentDTO struct {
	Name      *string    `json:"name,omitempty"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	SetParent bool       `json:"set_parent,omitempty"`
}

func (dto UpdateDepartmentDTO) Validate() error {
	if dto.Name != nil && *dto.Name == "" {
		return errors.New("name must not be empty")
	}
	return nil
}
