package interfaces

import (
	"context"

	"github.com/secmon-lab/storynotes/pkg/domain/model"
)

// StoryRepository persists stories. Every write stores all fields of a story at once.
type StoryRepository interface {
	// Create stores a new story. It never overwrites: an existing ID yields ErrConflict.
	Create(ctx context.Context, story *model.Story) (*model.Story, error)

	// Get retrieves a story by ID
	Get(ctx context.Context, id model.StoryID) (*model.Story, error)

	// ListByUser retrieves all stories owned by the user, oldest first
	ListByUser(ctx context.Context, userID model.UserID) ([]*model.Story, error)

	// UpdateRawText replaces the raw text and keeps the derived artifacts
	UpdateRawText(ctx context.Context, id model.StoryID, rawText string) (*model.Story, error)

	// Replace replaces the raw text together with all derived artifacts
	Replace(ctx context.Context, id model.StoryID, rawText string, artifacts *model.Artifacts) (*model.Story, error)

	// DeleteByUser deletes every story owned by the user and returns how many were deleted
	DeleteByUser(ctx context.Context, userID model.UserID) (int, error)
}
