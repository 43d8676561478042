package usecase

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
	"github.com/secmon-lab/storynotes/pkg/domain/model"
	"github.com/secmon-lab/storynotes/pkg/utils/logging"
)

// ResolveInput holds the trusted identity of a caller and its session cookie, if any
type ResolveInput struct {
	PrincipalID  model.PrincipalID
	DisplayName  string
	SessionToken model.SessionToken
}

// IdentityUseCase maps a caller to exactly one durable user
type IdentityUseCase struct {
	repo interfaces.Repository
}

func NewIdentityUseCase(repo interfaces.Repository) *IdentityUseCase {
	return &IdentityUseCase{repo: repo}
}

// Resolve returns the user of the caller and the session token to use for it.
//
// A principal that is already linked wins. Otherwise an anonymous user owning the
// session token is promoted in place, and if neither exists a new user is created.
// Uniqueness races are settled by the repository; the loser re-reads the winner.
func (uc *IdentityUseCase) Resolve(ctx context.Context, input ResolveInput) (*model.User, model.SessionToken, error) {
	if input.PrincipalID == "" {
		return nil, "", goerr.Wrap(ErrUnauthorized, "principal is required")
	}

	user, err := uc.repo.User().GetByPrincipal(ctx, input.PrincipalID)
	if err == nil {
		return user, tokenFor(user, input.SessionToken), nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, "", goerr.Wrap(err, "failed to look up user by principal", goerr.V(PrincipalIDKey, input.PrincipalID))
	}

	if input.SessionToken != "" {
		user, resolved, err := uc.promote(ctx, input)
		if err != nil {
			return nil, "", err
		}
		if resolved {
			return user, tokenFor(user, input.SessionToken), nil
		}
	}

	return uc.create(ctx, input)
}

// promote links the anonymous owner of the session token to the principal.
// resolved is false when the token does not lead to a promotable user.
func (uc *IdentityUseCase) promote(ctx context.Context, input ResolveInput) (*model.User, bool, error) {
	anon, err := uc.repo.User().GetBySessionToken(ctx, input.SessionToken)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, goerr.Wrap(err, "failed to look up user by session")
	}

	// Tokens of promoted users are no longer usable for promotion
	if !anon.IsAnonymous() {
		return nil, false, nil
	}

	promoted, err := uc.repo.User().Promote(ctx, anon.ID, input.PrincipalID, input.DisplayName)
	if err == nil {
		logging.From(ctx).Info("promoted anonymous user",
			"user_id", promoted.ID,
			"principal_id", promoted.PrincipalID,
		)
		return promoted, true, nil
	}
	if !errors.Is(err, interfaces.ErrConflict) {
		return nil, false, goerr.Wrap(err, "failed to promote user",
			goerr.V(UserIDKey, anon.ID),
			goerr.V(PrincipalIDKey, input.PrincipalID))
	}

	winner, err := uc.repo.User().GetByPrincipal(ctx, input.PrincipalID)
	if err == nil {
		return winner, true, nil
	}
	if errors.Is(err, interfaces.ErrNotFound) {
		// The anonymous user was promoted to another principal meanwhile
		return nil, false, nil
	}
	return nil, false, goerr.Wrap(err, "failed to re-read user after promotion conflict",
		goerr.V(PrincipalIDKey, input.PrincipalID))
}

func (uc *IdentityUseCase) create(ctx context.Context, input ResolveInput) (*model.User, model.SessionToken, error) {
	token, err := model.NewSessionToken()
	if err != nil {
		return nil, "", err
	}

	created, err := uc.repo.User().Create(ctx, &model.User{
		PrincipalID:  input.PrincipalID,
		DisplayName:  input.DisplayName,
		SessionToken: token,
	})
	if err == nil {
		logging.From(ctx).Info("created user",
			"user_id", created.ID,
			"principal_id", created.PrincipalID,
		)
		return created, token, nil
	}
	if !errors.Is(err, interfaces.ErrConflict) {
		return nil, "", goerr.Wrap(err, "failed to create user", goerr.V(PrincipalIDKey, input.PrincipalID))
	}

	winner, err := uc.repo.User().GetByPrincipal(ctx, input.PrincipalID)
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to re-read user after create conflict",
			goerr.V(PrincipalIDKey, input.PrincipalID))
	}
	return winner, tokenFor(winner, input.SessionToken), nil
}

// tokenFor keeps the caller's token and falls back to the one stored with the user
func tokenFor(user *model.User, inbound model.SessionToken) model.SessionToken {
	if inbound != "" {
		return inbound
	}
	return user.SessionToken
}
