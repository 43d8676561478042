package narrative

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
	"github.com/secmon-lab/storynotes/pkg/domain/model"
)

// Service derives embeddings, timelines and titles from a story through an LLM
type Service struct {
	llmClient      gollem.LLMClient
	dimension      int
	timelinePrompt string
	titlePrompt    string
}

var (
	_ interfaces.Embedder          = &Service{}
	_ interfaces.TimelineExtractor = &Service{}
	_ interfaces.TitleGenerator    = &Service{}
)

// Option is a functional option for Service configuration
type Option func(*Service)

// WithDimension sets the embedding dimension requested from the model
func WithDimension(dimension int) Option {
	return func(s *Service) {
		s.dimension = dimension
	}
}

// WithTimelinePrompt replaces the default timeline instructions. Empty keeps the default.
func WithTimelinePrompt(prompt string) Option {
	return func(s *Service) {
		if prompt != "" {
			s.timelinePrompt = prompt
		}
	}
}

// WithTitlePrompt replaces the default title instructions. Empty keeps the default.
func WithTitlePrompt(prompt string) Option {
	return func(s *Service) {
		if prompt != "" {
			s.titlePrompt = prompt
		}
	}
}

// New creates a new narrative service with the provided LLM client
func New(llmClient gollem.LLMClient, opts ...Option) (*Service, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	s := &Service{
		llmClient:      llmClient,
		dimension:      model.EmbeddingDimension,
		timelinePrompt: defaultTimelinePrompt,
		titlePrompt:    defaultTitlePrompt,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.dimension <= 0 {
		return nil, goerr.New("embedding dimension must be positive", goerr.V("dimension", s.dimension))
	}

	return s, nil
}

// Dimension returns the embedding dimension requested from the model
func (s *Service) Dimension() int {
	return s.dimension
}

// Embed generates an embedding vector for the text
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.llmClient.GenerateEmbedding(ctx, s.dimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}

	if len(embeddings) == 0 {
		return nil, goerr.New("no embedding returned")
	}

	// Convert float64 to float32
	result := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		result[i] = float32(v)
	}

	return result, nil
}

type timelineResponse struct {
	Events []model.TimelineEvent `json:"events"`
}

// ExtractTimeline converts the story into a chronological list of events
func (s *Service) ExtractTimeline(ctx context.Context, text string) (model.Timeline, error) {
	var resp timelineResponse
	if err := s.generateJSON(ctx, s.timelinePrompt, text, timelineSchema(), &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to extract timeline")
	}

	events := make([]model.TimelineEvent, 0, len(resp.Events))
	for _, ev := range resp.Events {
		ev.Description = strings.TrimSpace(ev.Description)
		if ev.Description == "" {
			continue
		}
		ev.Time = strings.TrimSpace(ev.Time)
		ev.Date = strings.TrimSpace(ev.Date)
		events = append(events, ev)
	}

	return model.NewTimeline(events)
}

type titleResponse struct {
	Title string `json:"title"`
}

// GenerateTitle summarizes the story into a short title. The result may be empty.
func (s *Service) GenerateTitle(ctx context.Context, text string) (string, error) {
	var resp titleResponse
	if err := s.generateJSON(ctx, s.titlePrompt, text, titleSchema(), &resp); err != nil {
		return "", goerr.Wrap(err, "failed to generate title")
	}

	return strings.TrimSpace(resp.Title), nil
}

func (s *Service) generateJSON(ctx context.Context, systemPrompt, text string, schema *gollem.Parameter, out any) error {
	session, err := s.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(schema),
		gollem.WithSessionSystemPrompt(systemPrompt),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(buildUserPrompt(text)))
	if err != nil {
		return goerr.Wrap(err, "failed to generate content from LLM")
	}

	if resp == nil || len(resp.Texts) == 0 {
		return goerr.New("empty LLM response")
	}

	raw := strings.Join(resp.Texts, "")
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return goerr.Wrap(err, "failed to parse LLM response", goerr.V("response", raw))
	}

	return nil
}
