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

const storyColumns = `id, user_id, title, raw_text, timeline, embedding, created_at, updated_at`

type storyRepository struct {
	pool *pgxpool.Pool
}

func scanStory(row pgx.Row) (*model.Story, error) {
	var (
		s        model.Story
		id       string
		userID   string
		timeline string
	)
	if err := row.Scan(&id, &userID, &s.Title, &s.RawText, &timeline, &s.Embedding, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.ID = model.StoryID(id)
	s.UserID = model.UserID(userID)
	if timeline != "" {
		s.Timeline = model.Timeline(timeline)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func embeddingOf(embedding []float32) []float32 {
	if embedding == nil {
		return []float32{}
	}
	return embedding
}

func (r *storyRepository) Create(ctx context.Context, story *model.Story) (*model.Story, error) {
	if story.UserID == "" {
		return nil, goerr.New("user ID is required")
	}

	created := story.Copy()
	if created.ID == "" {
		created.ID = model.NewStoryID()
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	// A plain INSERT never overwrites; the primary key rejects duplicates
	_, err := r.pool.Exec(ctx,
		`INSERT INTO stories (`+storyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		created.ID.String(), created.UserID.String(), created.Title, created.RawText,
		string(created.Timeline), embeddingOf(created.Embedding), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, goerr.Wrap(interfaces.ErrConflict, "story already exists", goerr.V("id", created.ID))
		}
		return nil, goerr.Wrap(err, "failed to insert story", goerr.V("id", created.ID))
	}

	return created, nil
}

func (r *storyRepository) Get(ctx context.Context, id model.StoryID) (*model.Story, error) {
	story, err := scanStory(r.pool.QueryRow(ctx, `SELECT `+storyColumns+` FROM stories WHERE id = $1`, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "story not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get story", goerr.V("id", id))
	}
	return story, nil
}

func (r *storyRepository) ListByUser(ctx context.Context, userID model.UserID) ([]*model.Story, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+storyColumns+` FROM stories WHERE user_id = $1 ORDER BY created_at, id`,
		userID.String(),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query stories", goerr.V("userID", userID))
	}
	defer rows.Close()

	stories := make([]*model.Story, 0)
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan story")
		}
		stories = append(stories, s)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate stories", goerr.V("userID", userID))
	}

	return stories, nil
}

func (r *storyRepository) UpdateRawText(ctx context.Context, id model.StoryID, rawText string) (*model.Story, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE stories SET raw_text = $2, updated_at = $3 WHERE id = $1 RETURNING `+storyColumns,
		id.String(), rawText, time.Now().UTC(),
	)
	return r.scanUpdated(row, id)
}

func (r *storyRepository) Replace(ctx context.Context, id model.StoryID, rawText string, artifacts *model.Artifacts) (*model.Story, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE stories
		 SET raw_text = $2, title = $3, timeline = $4, embedding = $5, updated_at = $6
		 WHERE id = $1
		 RETURNING `+storyColumns,
		id.String(), rawText, artifacts.Title, string(artifacts.Timeline), embeddingOf(artifacts.Embedding), time.Now().UTC(),
	)
	return r.scanUpdated(row, id)
}

func (r *storyRepository) scanUpdated(row pgx.Row, id model.StoryID) (*model.Story, error) {
	story, err := scanStory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "story not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to update story", goerr.V("id", id))
	}
	return story, nil
}

func (r *storyRepository) DeleteByUser(ctx context.Context, userID model.UserID) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM stories WHERE user_id = $1`, userID.String())
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete stories", goerr.V("userID", userID))
	}
	return int(tag.RowsAffected()), nil
}
