package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/m-mizutani/gollem/llm/openai"
	"github.com/urfave/cli/v3"
)

// LLM holds configuration for the model that derives story artifacts.
// Gemini is used when a project is set, otherwise OpenAI when an API key is set.
type LLM struct {
	geminiProject  string
	geminiLocation string
	openaiAPIKey   string `masq:"secret"`
}

// Flags returns CLI flags for LLM configuration
func (x *LLM) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Category:    "LLM",
			Usage:       "Google Cloud project ID for Gemini API",
			Sources:     cli.EnvVars("STORYNOTES_GEMINI_PROJECT"),
			Destination: &x.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Category:    "LLM",
			Usage:       "Google Cloud location for Gemini API",
			Value:       "us-central1",
			Sources:     cli.EnvVars("STORYNOTES_GEMINI_LOCATION"),
			Destination: &x.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Category:    "LLM",
			Usage:       "OpenAI API key, used when no Gemini project is set",
			Sources:     cli.EnvVars("STORYNOTES_OPENAI_API_KEY"),
			Destination: &x.openaiAPIKey,
		},
	}
}

// LogValue implements slog.LogValuer
func (x LLM) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("provider", x.Provider()),
		slog.String("gemini_project", x.geminiProject),
		slog.String("gemini_location", x.geminiLocation),
	)
}

// Provider returns the name of the selected provider, or empty when none is configured
func (x *LLM) Provider() string {
	switch {
	case x.geminiProject != "":
		return "gemini"
	case x.openaiAPIKey != "":
		return "openai"
	default:
		return ""
	}
}

// Configure creates the LLM client of the selected provider
func (x *LLM) Configure(ctx context.Context) (gollem.LLMClient, error) {
	switch x.Provider() {
	case "gemini":
		client, err := gemini.New(ctx, x.geminiProject, x.geminiLocation)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Gemini client")
		}
		return client, nil

	case "openai":
		client, err := openai.New(ctx, x.openaiAPIKey)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OpenAI client")
		}
		return client, nil

	default:
		return nil, goerr.Wrap(ErrLLMNotConfigured, "either --gemini-project or --openai-api-key is required")
	}
}
