package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
	"github.com/secmon-lab/storynotes/pkg/domain/model"
)

type storyRepository struct {
	mu      sync.RWMutex
	stories map[model.StoryID]*model.Story
}

func newStoryRepository() *storyRepository {
	return &storyRepository{
		stories: make(map[model.StoryID]*model.Story),
	}
}

func (r *storyRepository) Create(ctx context.Context, story *model.Story) (*model.Story, error) {
	if story.UserID == "" {
		return nil, goerr.New("user ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	created := story.Copy()
	if created.ID == "" {
		created.ID = model.NewStoryID()
	}
	if _, exists := r.stories[created.ID]; exists {
		return nil, goerr.Wrap(interfaces.ErrConflict, "story already exists", goerr.V("id", created.ID))
	}

	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	r.stories[created.ID] = created
	return created.Copy(), nil
}

func (r *storyRepository) Get(ctx context.Context, id model.StoryID) (*model.Story, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	story, exists := r.stories[id]
	if !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "story not found", goerr.V("id", id))
	}
	return story.Copy(), nil
}

func (r *storyRepository) ListByUser(ctx context.Context, userID model.UserID) ([]*model.Story, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Story, 0)
	for _, s := range r.stories {
		if s.UserID == userID {
			result = append(result, s.Copy())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (r *storyRepository) UpdateRawText(ctx context.Context, id model.StoryID, rawText string) (*model.Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	story, exists := r.stories[id]
	if !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "story not found", goerr.V("id", id))
	}

	story.RawText = rawText
	story.UpdatedAt = time.Now().UTC()
	return story.Copy(), nil
}

func (r *storyRepository) Replace(ctx context.Context, id model.StoryID, rawText string, artifacts *model.Artifacts) (*model.Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	story, exists := r.stories[id]
	if !exists {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "story not found", goerr.V("id", id))
	}

	replaced := story.Copy()
	replaced.RawText = rawText
	replaced.Title = artifacts.Title
	replaced.Timeline = artifacts.Timeline.Copy()
	replaced.Embedding = make([]float32, len(artifacts.Embedding))
	copy(replaced.Embedding, artifacts.Embedding)
	replaced.UpdatedAt = time.Now().UTC()

	r.stories[id] = replaced
	return replaced.Copy(), nil
}

func (r *storyRepository) DeleteByUser(ctx context.Context, userID model.UserID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, s := range r.stories {
		if s.UserID == userID {
			delete(r.stories, id)
			deleted++
		}
	}
	return deleted, nil
}
