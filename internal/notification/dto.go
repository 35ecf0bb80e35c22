package notification

import "errors"

// CreateAdminDTO represents the request for creating an announcement.
type CreateAdminDTO struct {
	Title                string   `json:"title" validate:"required,min=1,max=300"`
	Message              string   `json:"message" validate:"required"`
	TargetUserIDs        UUIDList `json:"target_user_ids,omitempty"`
	TargetDepartmentIDs  UUIDList `json:"target_department_ids,omitempty"`
	DisplayDurationHours int      `json:"display_duration_hours"`
}

func (dto CreateAdminDTO) Validate() error {
	if dto.Title == "" {
		return errors.New("title is required")
	}
	if len(dto.Title) > 300 {
		return errors.New("title must be less than 300 characters")
	}
	if dto.Message == "" {
		return errors.New("message is required")
	}
	if dto.DisplayDurationHours < 0 {
		return errors.New("display_duration_hours must not be negative")
	}
	return nil
}

// SubscribeDTO registers a web-push endpoint.
type SubscribeDTO struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256DH string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (dto SubscribeDTO) Validate() error {
	if dto.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	return nil
}
