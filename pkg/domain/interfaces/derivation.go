package interfaces

import (
	"context"

	"github.com/secmon-lab/storynotes/pkg/domain/model"
)

// Embedder converts text into a fixed-dimension embedding vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TimelineExtractor converts a narrative into a timeline of events
type TimelineExtractor interface {
	ExtractTimeline(ctx context.Context, text string) (model.Timeline, error)
}

// TitleGenerator summarizes text into a short title. An empty title is a valid result.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, text string) (string, error)
}
