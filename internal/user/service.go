package user

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal"
)

// Repository defines the data access methods for users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, error)
	ListByDepartments(ctx context.Context, departmentIDs []uuid.UUID) ([]*User, error)
	Update(ctx context.Context, u *User) error
}

// Service handles user profile and directory membership logic.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.List(ctx, limit, offset)
}

// UpdateProfile mutates the caller's own profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, dto UpdateProfileDTO) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if dto.DisplayName != nil {
		u.DisplayName = dto.DisplayName
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Assign sets org, department and role. Caller must be an admin.
func (s *Service) Assign(ctx context.Context, actorRole string, userID uuid.UUID, dto AssignDTO) (*User, error) {
	if actorRole != RoleAdmin {
		return nil, internal.ErrAdminOnly
	}
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if dto.OrgID != nil {
		u.OrgID = dto.OrgID
	}
	if dto.DepartmentID != nil {
		u.DepartmentID = dto.DepartmentID
	}
	if dto.Role != nil {
		u.Role = *dto.Role
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user assignment updated", "user_id", userID)
	return u, nil
}

// Deactivate disables the account. Users are never hard-deleted while
// referenced by events or calendars.
func (s *Service) Deactivate(ctx context.Context, actorRole string, userID uuid.UUID) error {
	if actorRole != RoleAdmin {
		return internal.ErrAdminOnly
	}
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.IsActive {
		return nil
	}
	u.IsActive = false
	return s.repo.Update(ctx, u)
}
