package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
	"github.com/secmon-lab/storynotes/pkg/domain/model"
	"github.com/secmon-lab/storynotes/pkg/domain/model/config"
	"github.com/secmon-lab/storynotes/pkg/repository/memory"
	"github.com/secmon-lab/storynotes/pkg/usecase"
)

const testDimension = 4

var testTimeline = model.Timeline(`[{"description":"Moved to Berlin","time":"2019","date":"2019-01-01"},{"description":"Started a new job","time":"after the move"}]`)

// Timed-out legs keep running after Derive returns, so the mocks guard their
// functions with a mutex to let tests swap them between calls.

// mockEmbedder is a mock Embedder for testing
type mockEmbedder struct {
	mu      sync.Mutex
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) setEmbedFn(fn func(ctx context.Context, text string) ([]float32, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedFn = fn
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	fn := m.embedFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

// mockTimelineExtractor is a mock TimelineExtractor for testing
type mockTimelineExtractor struct {
	mu        sync.Mutex
	extractFn func(ctx context.Context, text string) (model.Timeline, error)
}

func (m *mockTimelineExtractor) setExtractFn(fn func(ctx context.Context, text string) (model.Timeline, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extractFn = fn
}

func (m *mockTimelineExtractor) ExtractTimeline(ctx context.Context, text string) (model.Timeline, error) {
	m.mu.Lock()
	fn := m.extractFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return testTimeline.Copy(), nil
}

// mockTitleGenerator is a mock TitleGenerator for testing
type mockTitleGenerator struct {
	mu         sync.Mutex
	generateFn func(ctx context.Context, text string) (string, error)
}

func (m *mockTitleGenerator) setGenerateFn(fn func(ctx context.Context, text string) (string, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateFn = fn
}

func (m *mockTitleGenerator) GenerateTitle(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	fn := m.generateFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return "A New Start in Berlin", nil
}

// failingStoryRepo fails every Create call
type failingStoryRepo struct {
	interfaces.StoryRepository
	err error
}

func (r *failingStoryRepo) Create(ctx context.Context, story *model.Story) (*model.Story, error) {
	return nil, r.err
}

// repoWithStory replaces the story repository of a Repository
type repoWithStory struct {
	interfaces.Repository
	story interfaces.StoryRepository
}

func (r *repoWithStory) Story() interfaces.StoryRepository {
	return r.story
}

func testDerivationConfig() *config.Derivation {
	return &config.Derivation{
		Dimension:        testDimension,
		EmbeddingTimeout: time.Second,
		TimelineTimeout:  time.Second,
		TitleTimeout:     time.Second,
	}
}

type fixture struct {
	repo     *memory.Memory
	embedder *mockEmbedder
	timeline *mockTimelineExtractor
	title    *mockTitleGenerator
	uc       *usecase.UseCases
}

func newFixture(opts ...usecase.Option) *fixture {
	f := &fixture{
		repo:     memory.New(),
		embedder: &mockEmbedder{},
		timeline: &mockTimelineExtractor{},
		title:    &mockTitleGenerator{},
	}
	opts = append([]usecase.Option{
		usecase.WithEmbedder(f.embedder),
		usecase.WithTimelineExtractor(f.timeline),
		usecase.WithTitleGenerator(f.title),
		usecase.WithDerivationConfig(testDerivationConfig()),
	}, opts...)
	f.uc = usecase.New(f.repo, opts...)
	return f
}
