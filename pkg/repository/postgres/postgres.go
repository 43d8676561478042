package postgres

import (
	"context"
	"embed"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pressly/goose/v3"
	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
	"github.com/secmon-lab/storynotes/pkg/utils/safe"
)

//go:embed migrations/*.sql
var migrations embed.FS

// uniqueViolation is the SQLSTATE of unique_violation
const uniqueViolation = "23505"

type Postgres struct {
	pool  *pgxpool.Pool
	user  *userRepository
	story *storyRepository
}

var _ interfaces.Repository = &Postgres{}

// New connects to PostgreSQL. Call Migrate before serving requests.
func New(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, goerr.Wrap(err, "failed to connect to postgres")
	}

	return &Postgres{
		pool:  pool,
		user:  &userRepository{pool: pool},
		story: &storyRepository{pool: pool},
	}, nil
}

// Migrate applies the embedded schema migrations
func (p *Postgres) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(p.pool)
	// Closing the wrapper leaves the pool open
	defer safe.Close(ctx, db)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return goerr.Wrap(err, "failed to set goose dialect")
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return goerr.Wrap(err, "failed to apply migrations")
	}
	return nil
}

func (p *Postgres) User() interfaces.UserRepository {
	return p.user
}

func (p *Postgres) Story() interfaces.StoryRepository {
	return p.story
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
