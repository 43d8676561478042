package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
	"github.com/secmon-lab/storynotes/pkg/domain/model"
	"github.com/secmon-lab/storynotes/pkg/domain/model/config"
	"github.com/secmon-lab/storynotes/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// DerivationUseCase derives the embedding, timeline and title of a story concurrently
type DerivationUseCase struct {
	embedder          interfaces.Embedder
	timelineExtractor interfaces.TimelineExtractor
	titleGenerator    interfaces.TitleGenerator
	cfg               *config.Derivation
}

func NewDerivationUseCase(
	embedder interfaces.Embedder,
	timelineExtractor interfaces.TimelineExtractor,
	titleGenerator interfaces.TitleGenerator,
	cfg *config.Derivation,
) *DerivationUseCase {
	if cfg == nil {
		cfg = config.DefaultDerivation()
	}
	return &DerivationUseCase{
		embedder:          embedder,
		timelineExtractor: timelineExtractor,
		titleGenerator:    titleGenerator,
		cfg:               cfg,
	}
}

// Derive runs the three derivation legs at once and fails as soon as one of them fails.
// Legs still running at that point are left to finish under their own timeouts and
// their results are dropped. Every returned error carries ErrTagDerivation.
func (uc *DerivationUseCase) Derive(ctx context.Context, rawText string) (*model.Artifacts, error) {
	if uc.embedder == nil || uc.timelineExtractor == nil || uc.titleGenerator == nil {
		return nil, goerr.New("derivation capabilities are not configured", goerr.T(ErrTagDerivation))
	}

	var (
		embedding []float32
		timeline  model.Timeline
		title     string
		g         errgroup.Group
		failed    = make(chan error, 1)
	)

	// Legs are not cancelled by the caller; only their own timeout stops them
	legCtx := context.WithoutCancel(ctx)

	leg := func(name string, timeout time.Duration, fn func(ctx context.Context) error) {
		g.Go(func() error {
			if err := runLeg(legCtx, name, timeout, fn); err != nil {
				select {
				case failed <- err:
				default:
				}
				return err
			}
			return nil
		})
	}

	leg("embedding", uc.cfg.EmbeddingTimeout, func(ctx context.Context) error {
		vec, err := uc.embedder.Embed(ctx, rawText)
		if err != nil {
			return err
		}
		if len(vec) != uc.cfg.Dimension {
			return goerr.New("unexpected embedding dimension",
				goerr.V("expected", uc.cfg.Dimension),
				goerr.V("actual", len(vec)))
		}
		embedding = vec
		return nil
	})

	leg("timeline", uc.cfg.TimelineTimeout, func(ctx context.Context) error {
		tl, err := uc.timelineExtractor.ExtractTimeline(ctx, rawText)
		if err != nil {
			return err
		}
		if err := tl.Validate(); err != nil {
			return err
		}
		timeline = tl
		return nil
	})

	leg("title", uc.cfg.TitleTimeout, func(ctx context.Context) error {
		t, err := uc.titleGenerator.GenerateTitle(ctx, rawText)
		if err != nil {
			return err
		}
		title = t
		return nil
	})

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-failed:
		return nil, err

	case err := <-done:
		if err != nil {
			return nil, err
		}
		return &model.Artifacts{
			Title:     title,
			Timeline:  timeline,
			Embedding: embedding,
		}, nil

	case <-ctx.Done():
		return nil, goerr.Wrap(ctx.Err(), "derivation interrupted", goerr.T(ErrTagDerivation))
	}
}

// runLeg runs fn under its own timeout. A leg that ignores its context still fails on time.
func runLeg(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	result := make(chan error, 1)
	go func() {
		result <- fn(ctx)
	}()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	}

	logger := logging.From(ctx).With("leg", name, "elapsed", time.Since(started))
	if err != nil {
		logger.Warn("derivation leg failed", "error", err.Error())
		return goerr.Wrap(err, "derivation leg failed", goerr.V("leg", name), goerr.T(ErrTagDerivation))
	}
	logger.Debug("derivation leg finished")
	return nil
}
