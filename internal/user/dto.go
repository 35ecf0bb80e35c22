package user

import (
	"errors"

	"github.com/google/uuid"
)

// UpdateProfileDTO carries the self-editable profile fields.
type UpdateProfileDTO struct {
	DisplayName *string `json:"display_name,omitempty"`
}

// AssignDTO places a user into an organization and department.
// Admin-only.
type AssignDTO struct {
	OrgID        *uuid.UUID `json:"org_id,omitempty"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
	Role         *string    `json:"role,omitempty"`
}

func (dto AssignDTO) Validate() error {
	if dto.Role != nil && !ValidRole(*dto.Role) {
		return errors.New("role must be one of 'admin', 'it', 'employee'")
	}
	return nil
}
