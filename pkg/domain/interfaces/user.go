package interfaces

import (
	"context"

	"github.com/secmon-lab/storynotes/pkg/domain/model"
)

// UserRepository persists users. Implementations must guarantee that at most one
// user exists per principal ID and per session token, returning ErrConflict otherwise.
type UserRepository interface {
	// GetByPrincipal retrieves the user linked to the principal
	GetByPrincipal(ctx context.Context, principalID model.PrincipalID) (*model.User, error)

	// GetBySessionToken retrieves the user that owns the session token
	GetBySessionToken(ctx context.Context, token model.SessionToken) (*model.User, error)

	// Create stores a new user. ID and timestamps are assigned when empty.
	Create(ctx context.Context, user *model.User) (*model.User, error)

	// Promote links an anonymous user to a principal. It fails with ErrConflict
	// when the user already has a principal or the principal belongs to another user.
	// displayName only fills an empty display name.
	Promote(ctx context.Context, id model.UserID, principalID model.PrincipalID, displayName string) (*model.User, error)
}
