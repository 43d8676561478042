package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// EmbeddingDimension is the default dimension of story embedding vectors.
// Gemini text-embedding-004 uses 768 dimensions.
const EmbeddingDimension = 768

// StoryID is a ULID-based identifier for Story. ULIDs sort by creation time.
type StoryID string

// NewStoryID generates a new StoryID for the current time
func NewStoryID() StoryID {
	return StoryID(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String())
}

func (id StoryID) String() string {
	return string(id)
}

// Story is a piece of autobiographical text with its derived artifacts
type Story struct {
	ID        StoryID
	UserID    UserID
	Title     string // Empty when no good title could be derived
	RawText   string
	Timeline  Timeline
	Embedding []float32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Copy creates a deep copy of the story
func (s *Story) Copy() *Story {
	copied := *s
	if s.Timeline != nil {
		copied.Timeline = s.Timeline.Copy()
	}
	if s.Embedding != nil {
		copied.Embedding = make([]float32, len(s.Embedding))
		copy(copied.Embedding, s.Embedding)
	}
	return &copied
}

// Artifacts holds the values derived from a story's raw text
type Artifacts struct {
	Title     string
	Timeline  Timeline
	Embedding []float32
}
