package usecase

import (
	"time"

	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
	"github.com/secmon-lab/storynotes/pkg/domain/model/config"
)

// DefaultIngestTimeout bounds identity resolution, derivation and persistence of one story
const DefaultIngestTimeout = 90 * time.Second

type UseCases struct {
	repo              interfaces.Repository
	embedder          interfaces.Embedder
	timelineExtractor interfaces.TimelineExtractor
	titleGenerator    interfaces.TitleGenerator
	derivationConfig  *config.Derivation
	ingestTimeout     time.Duration

	Identity   *IdentityUseCase
	Derivation *DerivationUseCase
	Story      *StoryUseCase
}

type Option func(*UseCases)

func WithEmbedder(embedder interfaces.Embedder) Option {
	return func(uc *UseCases) {
		uc.embedder = embedder
	}
}

func WithTimelineExtractor(extractor interfaces.TimelineExtractor) Option {
	return func(uc *UseCases) {
		uc.timelineExtractor = extractor
	}
}

func WithTitleGenerator(generator interfaces.TitleGenerator) Option {
	return func(uc *UseCases) {
		uc.titleGenerator = generator
	}
}

func WithDerivationConfig(cfg *config.Derivation) Option {
	return func(uc *UseCases) {
		uc.derivationConfig = cfg
	}
}

func WithIngestTimeout(timeout time.Duration) Option {
	return func(uc *UseCases) {
		uc.ingestTimeout = timeout
	}
}

func New(repo interfaces.Repository, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:             repo,
		derivationConfig: config.DefaultDerivation(),
		ingestTimeout:    DefaultIngestTimeout,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Identity = NewIdentityUseCase(repo)
	uc.Derivation = NewDerivationUseCase(uc.embedder, uc.timelineExtractor, uc.titleGenerator, uc.derivationConfig)
	uc.Story = NewStoryUseCase(repo, uc.Identity, uc.Derivation, uc.ingestTimeout)

	return uc
}
