package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/directory"
)

// DirectoryRepository implements the directory.Repository interface
// using GORM.
type DirectoryRepository struct {
	db *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) directory.Repository {
	return &DirectoryRepository{db: db}
}

func (r *DirectoryRepository) CreateOrganization(ctx context.Context, org *directory.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *DirectoryRepository) GetOrganization(ctx context.Context, id uuid.UUID) (*directory.Organization, error) {
	var org directory.Organization
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.NewNotFoundError("organization not found", internal.ErrCodeOrgNotFound)
		}
		return nil, err
	}
	return &org, nil
}

func (r *DirectoryRepository) ListOrganizations(ctx context.Context) ([]*directory.Organization, error) {
	var orgs []*directory.Organization
	err := r.db.WithContext(ctx).Order("name ASC").Find(&orgs).Error
	return orgs, err
}

func (r *DirectoryRepository) CreateDepartment(ctx context.Context, dept *directory.Department) error {
	return r.db.WithContext(ctx).Create(dept).Error
}

func (r *DirectoryRepository) GetDepartment(ctx context.Context, id uuid.UUID) (*directory.Department, error) {
	var dept directory.Department
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dept).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.NewNotFoundError("department not found", internal.ErrCodeDepartmentNotFound)
		}
		return nil, err
	}
	return &dept, nil
}

func (r *DirectoryRepository) ListDepartments(ctx context.Context, orgID uuid.UUID) ([]*directory.Department, error) {
	var depts []*directory.Department
	err := r.db.WithContext(ctx).Where("org_id = ?", orgID).Order("name ASC").Find(&depts).Error
	return depts, err
}

func (r *DirectoryRepository) UpdateDepartment(ctx context.Context, dept *directory.Department) error {
	return r.db.WithContext(ctx).Save(dept).Error
}

// SubtreeDepartmentIDs walks the department forest breadth-first. Trees
// are shallow in practice, so per-level queries beat a recursive CTE
// that sqlite-backed tests could not run.
func (r *DirectoryRepository) SubtreeDepartmentIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{id}
	frontier := []uuid.UUID{id}
	for len(frontier) > 0 {
		var children []uuid.UUID
		err := r.db.WithContext(ctx).
			Model(&directory.Department{}).
			Where("parent_id IN ?", frontier).
			Pluck("id", &children).Error
		if err != nil {
			return nil, err
		}
		ids = append(ids, children...)
		frontier = children
	}
	return ids, nil
}
