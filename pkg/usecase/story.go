package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
	"github.com/secmon-lab/storynotes/pkg/domain/model"
	"github.com/secmon-lab/storynotes/pkg/utils/logging"
)

// MaxStoryBytes is the maximum size of a story's raw text
const MaxStoryBytes = 64 * 1024

// IngestInput is a story submission of an authenticated caller
type IngestInput struct {
	PrincipalID  model.PrincipalID
	DisplayName  string
	SessionToken model.SessionToken // Empty when the request carried no session cookie
	RawText      string
}

// IngestResult is the outcome of a successful ingestion
type IngestResult struct {
	User         *model.User
	Story        *model.Story
	SessionToken model.SessionToken

	// IssueCookie is true when the request carried no session token
	IssueCookie bool
}

// StoryTimeline is the decoded timeline of one story
type StoryTimeline struct {
	StoryID   model.StoryID
	Title     string
	CreatedAt time.Time
	Events    []model.TimelineEvent
}

type StoryUseCase struct {
	repo          interfaces.Repository
	identity      *IdentityUseCase
	derivation    *DerivationUseCase
	ingestTimeout time.Duration
}

func NewStoryUseCase(repo interfaces.Repository, identity *IdentityUseCase, derivation *DerivationUseCase, ingestTimeout time.Duration) *StoryUseCase {
	return &StoryUseCase{
		repo:          repo,
		identity:      identity,
		derivation:    derivation,
		ingestTimeout: ingestTimeout,
	}
}

// ValidateStory checks that the raw text is neither blank nor too long
func ValidateStory(rawText string) error {
	if strings.TrimSpace(rawText) == "" {
		return goerr.Wrap(ErrInvalidStory, "story is blank")
	}
	if len(rawText) > MaxStoryBytes {
		return goerr.Wrap(ErrInvalidStory, "story is too long",
			goerr.V("size", len(rawText)),
			goerr.V("max", MaxStoryBytes))
	}
	return nil
}

// Ingest resolves the caller, derives the artifacts of the story and stores it in one write.
// Errors carry the tag of the stage that failed.
func (uc *StoryUseCase) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if input.PrincipalID == "" {
		return nil, goerr.Wrap(ErrUnauthorized, "principal is required")
	}
	if err := ValidateStory(input.RawText); err != nil {
		return nil, err
	}

	if uc.ingestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.ingestTimeout)
		defer cancel()
	}

	user, token, err := uc.identity.Resolve(ctx, ResolveInput{
		PrincipalID:  input.PrincipalID,
		DisplayName:  input.DisplayName,
		SessionToken: input.SessionToken,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve identity",
			goerr.V(PrincipalIDKey, input.PrincipalID),
			goerr.T(ErrTagIdentity))
	}

	artifacts, err := uc.derivation.Derive(ctx, input.RawText)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to derive story artifacts",
			goerr.V(UserIDKey, user.ID),
			goerr.T(ErrTagDerivation))
	}

	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "ingestion timed out before persistence",
			goerr.V(UserIDKey, user.ID),
			goerr.T(ErrTagPersistence))
	}

	story, err := uc.repo.Story().Create(ctx, &model.Story{
		ID:        model.NewStoryID(),
		UserID:    user.ID,
		Title:     artifacts.Title,
		RawText:   input.RawText,
		Timeline:  artifacts.Timeline,
		Embedding: artifacts.Embedding,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to persist story",
			goerr.V(UserIDKey, user.ID),
			goerr.T(ErrTagPersistence))
	}

	logging.From(ctx).Info("story ingested",
		"story_id", story.ID,
		"user_id", user.ID,
		"timeline_bytes", len(story.Timeline),
	)

	return &IngestResult{
		User:         user,
		Story:        story,
		SessionToken: token,
		IssueCookie:  input.SessionToken == "",
	}, nil
}

// List returns the stories of the principal's user, oldest first.
// An unknown principal has no stories.
func (uc *StoryUseCase) List(ctx context.Context, principalID model.PrincipalID) ([]*model.Story, error) {
	user, err := uc.lookupUser(ctx, principalID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return []*model.Story{}, nil
		}
		return nil, err
	}

	stories, err := uc.repo.Story().ListByUser(ctx, user.ID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list stories", goerr.V(UserIDKey, user.ID))
	}
	return stories, nil
}

// Update replaces the raw text of an owned story. With rederive the artifacts are
// derived again and written together with the text.
func (uc *StoryUseCase) Update(ctx context.Context, principalID model.PrincipalID, id model.StoryID, rawText string, rederive bool) (*model.Story, error) {
	if err := ValidateStory(rawText); err != nil {
		return nil, err
	}

	story, err := uc.ownedStory(ctx, principalID, id)
	if err != nil {
		return nil, err
	}

	if !rederive {
		updated, err := uc.repo.Story().UpdateRawText(ctx, story.ID, rawText)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to update story", goerr.V(StoryIDKey, id))
		}
		return updated, nil
	}

	artifacts, err := uc.derivation.Derive(ctx, rawText)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to derive story artifacts", goerr.V(StoryIDKey, id))
	}

	replaced, err := uc.repo.Story().Replace(ctx, story.ID, rawText, artifacts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to replace story", goerr.V(StoryIDKey, id), goerr.T(ErrTagPersistence))
	}
	return replaced, nil
}

// DeleteAll deletes every story of the principal's user. The user itself is kept.
func (uc *StoryUseCase) DeleteAll(ctx context.Context, principalID model.PrincipalID) (int, error) {
	user, err := uc.lookupUser(ctx, principalID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	deleted, err := uc.repo.Story().DeleteByUser(ctx, user.ID)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete stories", goerr.V(UserIDKey, user.ID))
	}

	logging.From(ctx).Info("deleted stories", "user_id", user.ID, "count", deleted)
	return deleted, nil
}

// Timeline returns the decoded timeline of every story of the principal's user, oldest story first
func (uc *StoryUseCase) Timeline(ctx context.Context, principalID model.PrincipalID) ([]*StoryTimeline, error) {
	stories, err := uc.List(ctx, principalID)
	if err != nil {
		return nil, err
	}

	result := make([]*StoryTimeline, 0, len(stories))
	for _, s := range stories {
		events, err := s.Timeline.Events()
		if err != nil {
			// A broken timeline must not hide the others
			logging.From(ctx).Warn("skip undecodable timeline", "story_id", s.ID, "error", err.Error())
			events = []model.TimelineEvent{}
		}
		result = append(result, &StoryTimeline{
			StoryID:   s.ID,
			Title:     s.Title,
			CreatedAt: s.CreatedAt,
			Events:    events,
		})
	}

	return result, nil
}

func (uc *StoryUseCase) lookupUser(ctx context.Context, principalID model.PrincipalID) (*model.User, error) {
	if principalID == "" {
		return nil, goerr.Wrap(ErrUnauthorized, "principal is required")
	}

	user, err := uc.repo.User().GetByPrincipal(ctx, principalID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to look up user", goerr.V(PrincipalIDKey, principalID))
	}
	return user, nil
}

func (uc *StoryUseCase) ownedStory(ctx context.Context, principalID model.PrincipalID, id model.StoryID) (*model.Story, error) {
	user, err := uc.lookupUser(ctx, principalID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrStoryNotFound, "caller has no stories", goerr.V(StoryIDKey, id))
		}
		return nil, err
	}

	story, err := uc.repo.Story().Get(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrStoryNotFound, "story does not exist", goerr.V(StoryIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get story", goerr.V(StoryIDKey, id))
	}

	if story.UserID != user.ID {
		return nil, goerr.Wrap(ErrStoryNotFound, "story belongs to another user",
			goerr.V(StoryIDKey, id),
			goerr.V(UserIDKey, user.ID))
	}
	return story, nil
}
