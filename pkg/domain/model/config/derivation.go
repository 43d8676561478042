package config

import (
	"time"

	"github.com/secmon-lab/storynotes/pkg/domain/model"
)

// Default derivation settings
const (
	DefaultEmbeddingTimeout = 30 * time.Second
	DefaultTimelineTimeout  = 60 * time.Second
	DefaultTitleTimeout     = 30 * time.Second
)

// Derivation holds settings of the artifact derivation fan-out
type Derivation struct {
	Dimension        int
	EmbeddingTimeout time.Duration
	TimelineTimeout  time.Duration
	TitleTimeout     time.Duration

	// Empty prompts keep the built-in instructions
	TimelinePrompt string
	TitlePrompt    string
}

// DefaultDerivation returns the settings used when no configuration file is given
func DefaultDerivation() *Derivation {
	return &Derivation{
		Dimension:        model.EmbeddingDimension,
		EmbeddingTimeout: DefaultEmbeddingTimeout,
		TimelineTimeout:  DefaultTimelineTimeout,
		TitleTimeout:     DefaultTitleTimeout,
	}
}
