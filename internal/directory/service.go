package directory

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal"
)

// Repository defines the data access methods for the directory.
type Repository interface {
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error)
	ListOrganizations(ctx context.Context) ([]*Organization, error)

	CreateDepartment(ctx context.Context, dept *Department) error
	GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error)
	ListDepartments(ctx context.Context, orgID uuid.UUID) ([]*Department, error)
	UpdateDepartment(ctx context.Context, dept *Department) error

	// SubtreeDepartmentIDs returns the ids of the department and every
	// descendant. Used to resolve department-scoped room access and
	// announcement targeting.
	SubtreeDepartmentIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

// Service handles organization and department logic. Departments form a
// forest per organization; the parent chain must stay acyclic.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) CreateOrganization(ctx context.Context, actorRole string, dto CreateOrganizationDTO) (*Organization, error) {
	if actorRole != "admin" {
		return nil, internal.ErrAdminOnly
	}
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	org := &Organization{ID: uuid.New(), Name: dto.Name}
	if err := s.repo.CreateOrganization(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

func (s *Service) ListOrganizations(ctx context.Context) ([]*Organization, error) {
	return s.repo.ListOrganizations(ctx)
}

func (s *Service) CreateDepartment(ctx context.Context, actorRole string, dto CreateDepartmentDTO) (*Department, error) {
	if actorRole != "admin" {
		return nil, internal.ErrAdminOnly
	}
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	if _, err := s.repo.GetOrganization(ctx, dto.OrgID); err != nil {
		return nil, err
	}
	if dto.ParentID != nil {
		parent, err := s.repo.GetDepartment(ctx, *dto.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.OrgID != dto.OrgID {
			return nil, internal.NewValidationError("parent department belongs to another organization", internal.ErrCodeValidationFailed)
		}
	}

	dept := &Department{ID: uuid.New(), OrgID: dto.OrgID, Name: dto.Name, ParentID: dto.ParentID}
	if err := s.repo.CreateDepartment(ctx, dept); err != nil {
		return nil, err
	}
	return dept, nil
}

func (s *Service) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	return s.repo.GetDepartment(ctx, id)
}

func (s *Service) ListDepartments(ctx context.Context, orgID uuid.UUID) ([]*Department, error) {
	return s.repo.ListDepartments(ctx, orgID)
}

// UpdateDepartment renames or reparents a department. Self-parenting is
// rejected outright and the new parent chain is walked upward to detect
// a cycle before commit.
func (s *Service) UpdateDepartment(ctx context.Context, actorRole string, id uuid.UUID, dto UpdateDepartmentDTO) (*Department, error) {
	if actorRole != "admin" {
		return nil, internal.ErrAdminOnly
	}
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	dept, err := s.repo.GetDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	if dto.Name != nil {
		dept.Name = *dto.Name
	}
	if dto.SetParent {
		if dto.ParentID != nil {
			if *dto.ParentID == id {
				return nil, internal.ErrDepartmentCycle
			}
			parent, err := s.repo.GetDepartment(ctx, *dto.ParentID)
			if err != nil {
				return nil, err
			}
			if parent.OrgID != dept.OrgID {
				return nil, internal.NewValidationError("parent department belongs to another organization", internal.ErrCodeValidationFailed)
			}
			if err := s.checkCycle(ctx, id, parent); err != nil {
				return nil, err
			}
		}
		dept.ParentID = dto.ParentID
	}

	if err := s.repo.UpdateDepartment(ctx, dept); err != nil {
		return nil, err
	}
	return dept, nil
}

// SubtreeDepartmentIDs exposes the descendant closure for other domains.
func (s *Service) SubtreeDepartmentIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	return s.repo.SubtreeDepartmentIDs(ctx, id)
}

// checkCycle walks from the candidate parent to the root; finding the
// department being reparented on the way means the move closes a loop.
func (s *Service) checkCycle(ctx context.Context, deptID uuid.UUID, parent *Department) error {
	seen := map[uuid.UUID]struct{}{deptID: {}}
	current := parent
	for current != nil {
		if _, ok := seen[current.ID]; ok {
			return internal.ErrDepartmentCycle
		}
		seen[current.ID] = struct{}{}
		if current.ParentID == nil {
			return nil
		}
		next, err := s.repo.GetDepartment(ctx, *current.ParentID)
		if err != nil {
			return err
		}
		current = next
	}
	return nil
}
