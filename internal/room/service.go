package room

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/user"
)

// Repository defines the data access methods for rooms.
type Repository interface {
	Create(ctx context.Context, room *Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*Room, error)
	List(ctx context.Context) ([]*Room, error)
	Update(ctx context.Context, room *Room) error

	GrantAccess(ctx context.Context, access *Access) error
	RevokeAccess(ctx context.Context, accessID uuid.UUID) error
	ListAccess(ctx context.Context, roomID uuid.UUID) ([]*Access, error)
}

// DepartmentResolver expands a granted department into its subtree so
// access to a parent department covers every child.
type DepartmentResolver interface {
	SubtreeDepartmentIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

// UserStore loads the booking user's department membership.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// Service handles room management and booking access control.
type Service struct {
	repo        Repository
	users       UserStore
	departments DepartmentResolver
	logger      *slog.Logger
}

func NewService(repo Repository, users UserStore, departments DepartmentResolver, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		users:       users,
		departments: departments,
		logger:      logger,
	}
}

func (s *Service) CreateRoom(ctx context.Context, actorRole string, dto CreateRoomDTO) (*Room, error) {
	if actorRole != user.RoleAdmin && actorRole != user.RoleIT {
		return nil, internal.ErrAdminOnly
	}
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	room := &Room{
		ID:       uuid.New(),
		Name:     dto.Name,
		Location: dto.Location,
		Capacity: dto.Capacity,
		IsActive: true,
	}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *Service) GetRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListRooms(ctx context.Context) ([]*Room, error) {
	return s.repo.List(ctx)
}

func (s *Service) UpdateRoom(ctx context.Context, actorRole string, id uuid.UUID, dto UpdateRoomDTO) (*Room, error) {
	if actorRole != user.RoleAdmin && actorRole != user.RoleIT {
		return nil, internal.ErrAdminOnly
	}
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	room, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dto.Name != nil {
		room.Name = *dto.Name
	}
	if dto.Location != nil {
		room.Location = *dto.Location
	}
	if dto.Capacity != nil {
		room.Capacity = *dto.Capacity
	}
	if dto.IsActive != nil {
		room.IsActive = *dto.IsActive
	}
	if err := s.repo.Update(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *Service) GrantAccess(ctx context.Context, actorRole string, roomID uuid.UUID, dto GrantAccessDTO) (*Access, error) {
	if actorRole != user.RoleAdmin && actorRole != user.RoleIT {
		return nil, internal.ErrAdminOnly
	}
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	if _, err := s.repo.GetByID(ctx, roomID); err != nil {
		return nil, err
	}

	access := &Access{
		ID:           uuid.New(),
		RoomID:       roomID,
		UserID:       dto.UserID,
		DepartmentID: dto.DepartmentID,
	}
	if err := s.repo.GrantAccess(ctx, access); err != nil {
		return nil, err
	}
	return access, nil
}

func (s *Service) RevokeAccess(ctx context.Context, actorRole string, accessID uuid.UUID) error {
	if actorRole != user.RoleAdmin && actorRole != user.RoleIT {
		return internal.ErrAdminOnly
	}
	return s.repo.RevokeAccess(ctx, accessID)
}

func (s *Service) ListAccess(ctx context.Context, roomID uuid.UUID) ([]*Access, error) {
	return s.repo.ListAccess(ctx, roomID)
}

// CheckAccess decides whether the user may book the room. A room with
// no access rows is open to everyone; otherwise the user must be named
// directly or belong to a granted department's subtree.
func (s *Service) CheckAccess(ctx context.Context, roomID, userID uuid.UUID) error {
	room, err := s.repo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsActive {
		return internal.ErrRoomNotFound
	}

	rows, err := s.repo.ListAccess(ctx, roomID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	var deptRows []*Access
	for _, row := range rows {
		if row.UserID != nil && *row.UserID == userID {
			return nil
		}
		if row.DepartmentID != nil {
			deptRows = append(deptRows, row)
		}
	}
	if len(deptRows) == 0 {
		return internal.ErrRoomAccessDenied
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.DepartmentID == nil {
		return internal.ErrRoomAccessDenied
	}
	for _, row := range deptRows {
		subtree, err := s.departments.SubtreeDepartmentIDs(ctx, *row.DepartmentID)
		if err != nil {
			return err
		}
		for _, id := range subtree {
			if id == *u.DepartmentID {
				return nil
			}
		}
	}
	return internal.ErrRoomAccessDenied
}

// GetRoomName resolves a room label for conflict listings.
func (s *Service) GetRoomName(ctx context.Context, id uuid.UUID) (string, error) {
	room, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return room.Name, nil
}
