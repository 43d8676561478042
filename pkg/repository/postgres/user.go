package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
	"github.com/secmon-lab/storynotes/pkg/domain/model"
)

const userColumns = `id, COALESCE(principal_id, ''), display_name, session_token, created_at, updated_at`

type userRepository struct {
	pool *pgxpool.Pool
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u           model.User
		id          string
		principalID string
		token       string
	)
	if err := row.Scan(&id, &principalID, &u.DisplayName, &token, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.ID = model.UserID(id)
	u.PrincipalID = model.PrincipalID(principalID)
	u.SessionToken = model.SessionToken(token)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

// nullable maps an empty principal to NULL so that the UNIQUE constraint ignores anonymous users
func nullable(principalID model.PrincipalID) *string {
	if principalID == "" {
		return nil
	}
	s := principalID.String()
	return &s
}

func (r *userRepository) GetByPrincipal(ctx context.Context, principalID model.PrincipalID) (*model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE principal_id = $1`, principalID.String())
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("principal_id", principalID))
		}
		return nil, goerr.Wrap(err, "failed to get user by principal", goerr.V("principal_id", principalID))
	}
	return user, nil
}

func (r *userRepository) GetBySessionToken(ctx context.Context, token model.SessionToken) (*model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE session_token = $1`, token.String())
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found for session")
		}
		return nil, goerr.Wrap(err, "failed to get user by session token")
	}
	return user, nil
}

func (r *userRepository) Create(ctx context.Context, user *model.User) (*model.User, error) {
	if user.SessionToken == "" {
		return nil, goerr.New("session token is required")
	}

	created := user.Copy()
	if created.ID == "" {
		created.ID = model.NewUserID()
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, principal_id, display_name, session_token, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		created.ID.String(), nullable(created.PrincipalID), created.DisplayName, created.SessionToken.String(), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, goerr.Wrap(interfaces.ErrConflict, "user already exists",
				goerr.V("id", created.ID),
				goerr.V("principal_id", created.PrincipalID))
		}
		return nil, goerr.Wrap(err, "failed to insert user", goerr.V("id", created.ID))
	}

	return created, nil
}

func (r *userRepository) Promote(ctx context.Context, id model.UserID, principalID model.PrincipalID, displayName string) (*model.User, error) {
	if principalID == "" {
		return nil, goerr.New("principal ID is required")
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE users
		 SET principal_id = $2,
		     display_name = CASE WHEN display_name = '' THEN $3 ELSE display_name END,
		     updated_at = $4
		 WHERE id = $1 AND principal_id IS NULL
		 RETURNING `+userColumns,
		id.String(), principalID.String(), displayName, time.Now().UTC(),
	)
	user, err := scanUser(row)
	if err == nil {
		return user, nil
	}

	if isUniqueViolation(err) {
		return nil, goerr.Wrap(interfaces.ErrConflict, "principal already linked", goerr.V("principal_id", principalID))
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, goerr.Wrap(err, "failed to promote user", goerr.V("id", id))
	}

	// No row matched: either the user does not exist or it is not anonymous anymore
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id.String()).Scan(&exists); err != nil {
		return nil, goerr.Wrap(err, "failed to check user", goerr.V("id", id))
	}
	if !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "user not found", goerr.V("id", id))
	}
	return nil, goerr.Wrap(interfaces.ErrConflict, "user already promoted", goerr.V("id", id))
}
