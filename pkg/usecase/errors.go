package usecase

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// Sentinel errors for use case layer
var (
	// ErrUnauthorized is returned when the trusted principal is missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidStory is returned when the story text is blank or too long
	ErrInvalidStory = errors.New("invalid story")

	// ErrStoryNotFound is returned when a story does not exist or belongs to another user
	ErrStoryNotFound = errors.New("story not found")
)

// Tags identify the ingestion stage an error came from
var (
	ErrTagIdentity    = goerr.NewTag("identity")
	ErrTagDerivation  = goerr.NewTag("derivation")
	ErrTagPersistence = goerr.NewTag("persistence")
)

// Context keys for error values
const (
	PrincipalIDKey = "principal_id"
	UserIDKey      = "user_id"
	StoryIDKey     = "story_id"
)
