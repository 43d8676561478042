package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
	"github.com/secmon-lab/storynotes/pkg/domain/model"
)

type userRepository struct {
	mu          sync.RWMutex
	users       map[model.UserID]*model.User
	byPrincipal map[model.PrincipalID]model.UserID
	bySession   map[model.SessionToken]model.UserID
}

func newUserRepository() *userRepository {
	return &userRepository{
		users:       make(map[model.UserID]*model.User),
		byPrincipal: make(map[model.PrincipalID]model.UserID),
		bySession:   make(map[model.SessionToken]model.UserID),
	}
}

func (r *userRepository) GetByPrincipal(ctx context.Context, principalID model.PrincipalID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPrincipal[principalID]
	if !ok {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("principal_id", principalID))
	}
	return r.users[id].Copy(), nil
}

func (r *userRepository) GetBySessionToken(ctx context.Context, token model.SessionToken) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySession[token]
	if !ok {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found for session")
	}
	return r.users[id].Copy(), nil
}

func (r *userRepository) Create(ctx context.Context, user *model.User) (*model.User, error) {
	if user.SessionToken == "" {
		return nil, goerr.New("session token is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	created := user.Copy()
	if created.ID == "" {
		created.ID = model.NewUserID()
	}
	if _, exists := r.users[created.ID]; exists {
		return nil, goerr.Wrap(interfaces.ErrConflict, "user already exists", goerr.V("id", created.ID))
	}
	if created.PrincipalID != "" {
		if _, exists := r.byPrincipal[created.PrincipalID]; exists {
			return nil, goerr.Wrap(interfaces.ErrConflict, "principal already linked", goerr.V("principal_id", created.PrincipalID))
		}
	}
	if _, exists := r.bySession[created.SessionToken]; exists {
		return nil, goerr.Wrap(interfaces.ErrConflict, "session token already used")
	}

	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	r.users[created.ID] = created
	r.bySession[created.SessionToken] = created.ID
	if created.PrincipalID != "" {
		r.byPrincipal[created.PrincipalID] = created.ID
	}

	return created.Copy(), nil
}

func (r *userRepository) Promote(ctx context.Context, id model.UserID, principalID model.PrincipalID, displayName string) (*model.User, error) {
	if principalID == "" {
		return nil, goerr.New("principal ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("id", id))
	}
	if !user.IsAnonymous() {
		return nil, goerr.Wrap(interfaces.ErrConflict, "user already promoted", goerr.V("id", id))
	}
	if _, exists := r.byPrincipal[principalID]; exists {
		return nil, goerr.Wrap(interfaces.ErrConflict, "principal already linked", goerr.V("principal_id", principalID))
	}

	user.PrincipalID = principalID
	if user.DisplayName == "" {
		user.DisplayName = displayName
	}
	user.UpdatedAt = time.Now().UTC()
	r.byPrincipal[principalID] = id

	return user.Copy(), nil
}
