package user

import (
	"context"

	"github.com/google/uuid"
)

// Lookup exposes narrow read views of the user table consumed by other
// packages (conflict labels, announcement targeting).
type Lookup struct {
	repo Repository
}

func NewLookup(repo Repository) *Lookup {
	return &Lookup{repo: repo}
}

// GetUserLabel returns the display name when set, otherwise the email.
func (l *Lookup) GetUserLabel(ctx context.Context, id uuid.UUID) (string, error) {
	u, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName, nil
	}
	return u.Email, nil
}

// DepartmentOf returns the user's department id, nil when unassigned.
func (l *Lookup) DepartmentOf(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	u, err := l.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.DepartmentID, nil
}
