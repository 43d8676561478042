package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/secmon-lab/storynotes/pkg/cli/config"
	httpctrl "github.com/secmon-lab/storynotes/pkg/controller/http"
	"github.com/secmon-lab/storynotes/pkg/service/narrative"
	"github.com/secmon-lab/storynotes/pkg/usecase"
	"github.com/secmon-lab/storynotes/pkg/utils/errutil"
	"github.com/secmon-lab/storynotes/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe(version string) *cli.Command {
	var addr string
	var production bool
	var ingestTimeout time.Duration
	var principalHeader string
	var displayNameHeader string
	var repoCfg config.Repository
	var llmCfg config.LLM
	var derivationCfg config.Derivation
	var sentryCfg config.Sentry

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("STORYNOTES_ADDR"),
			Destination: &addr,
		},
		&cli.BoolFlag{
			Name:        "production",
			Usage:       "Production mode; session cookies are marked Secure",
			Sources:     cli.EnvVars("STORYNOTES_PRODUCTION"),
			Destination: &production,
		},
		&cli.DurationFlag{
			Name:        "ingest-timeout",
			Usage:       "Upper bound of a whole story ingestion",
			Value:       usecase.DefaultIngestTimeout,
			Sources:     cli.EnvVars("STORYNOTES_INGEST_TIMEOUT"),
			Destination: &ingestTimeout,
		},
		&cli.StringFlag{
			Name:        "principal-header",
			Usage:       "Trusted request header carrying the authenticated principal ID",
			Category:    "Authentication",
			Value:       httpctrl.DefaultPrincipalHeader,
			Sources:     cli.EnvVars("STORYNOTES_PRINCIPAL_HEADER"),
			Destination: &principalHeader,
		},
		&cli.StringFlag{
			Name:        "display-name-header",
			Usage:       "Trusted request header carrying the display name",
			Category:    "Authentication",
			Value:       httpctrl.DefaultDisplayNameHeader,
			Sources:     cli.EnvVars("STORYNOTES_DISPLAY_NAME_HEADER"),
			Destination: &displayNameHeader,
		},
	}

	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, llmCfg.Flags()...)
	flags = append(flags, derivationCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logging.Default().Info("Serve configuration",
				"addr", addr,
				"production", production,
				"ingest_timeout", ingestTimeout,
				"repository", repoCfg,
				"llm", llmCfg,
				"derivation", derivationCfg,
				"sentry", sentryCfg,
			)

			flush, err := sentryCfg.Configure(version)
			if err != nil {
				return err
			}
			defer flush()

			if err := runServer(ctx, serverConfig{
				addr:              addr,
				production:        production,
				ingestTimeout:     ingestTimeout,
				principalHeader:   principalHeader,
				displayNameHeader: displayNameHeader,
				repoCfg:           &repoCfg,
				llmCfg:            &llmCfg,
				derivationCfg:     &derivationCfg,
			}); err != nil {
				return errutil.Handle(ctx, err, "server stopped with error")
			}
			return nil
		},
	}
}

type serverConfig struct {
	addr              string
	production        bool
	ingestTimeout     time.Duration
	principalHeader   string
	displayNameHeader string
	repoCfg           *config.Repository
	llmCfg            *config.LLM
	derivationCfg     *config.Derivation
}

func runServer(ctx context.Context, cfg serverConfig) error {
	derivation, err := cfg.derivationCfg.Configure()
	if err != nil {
		return goerr.Wrap(err, "failed to load derivation configuration")
	}

	repo, err := cfg.repoCfg.Configure(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to initialize repository")
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logging.Default().Error("failed to close repository", "error", err.Error())
		}
	}()

	llmClient, err := cfg.llmCfg.Configure(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to initialize LLM client")
	}

	narrativeSvc, err := narrative.New(llmClient,
		narrative.WithDimension(derivation.Dimension),
		narrative.WithTimelinePrompt(derivation.TimelinePrompt),
		narrative.WithTitlePrompt(derivation.TitlePrompt),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to initialize narrative service")
	}

	uc := usecase.New(repo,
		usecase.WithEmbedder(narrativeSvc),
		usecase.WithTimelineExtractor(narrativeSvc),
		usecase.WithTitleGenerator(narrativeSvc),
		usecase.WithDerivationConfig(derivation),
		usecase.WithIngestTimeout(cfg.ingestTimeout),
	)

	server := &http.Server{
		Addr: cfg.addr,
		Handler: httpctrl.New(uc,
			httpctrl.WithProduction(cfg.production),
			httpctrl.WithPrincipalHeader(cfg.principalHeader),
			httpctrl.WithDisplayNameHeader(cfg.displayNameHeader),
		),
		ReadHeaderTimeout: 30 * time.Second,
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logging.Default().Info("Starting HTTP server", "addr", cfg.addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- goerr.Wrap(err, "failed to start server")
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.Default().Info("Received shutdown signal", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return goerr.Wrap(err, "failed to shutdown server gracefully")
		}

		logging.Default().Info("Server shutdown completed")
		return nil
	}
}
