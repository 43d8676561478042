package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	domainConfig "github.com/secmon-lab/storynotes/pkg/domain/model/config"
	"github.com/urfave/cli/v3"
)

// DerivationFile is the TOML representation of the derivation settings.
//
//	dimension = 768
//
//	[timeout]
//	embedding = "30s"
//	timeline = "60s"
//	title = "30s"
//
//	[prompt]
//	timeline = "..."
//	title = "..."
type DerivationFile struct {
	Dimension int               `toml:"dimension"`
	Timeout   DerivationTimeout `toml:"timeout"`
	Prompt    DerivationPrompt  `toml:"prompt"`
}

// DerivationTimeout holds per-leg timeouts as Go duration strings
type DerivationTimeout struct {
	Embedding string `toml:"embedding"`
	Timeline  string `toml:"timeline"`
	Title     string `toml:"title"`
}

// DerivationPrompt holds optional replacements of the built-in instructions
type DerivationPrompt struct {
	Timeline string `toml:"timeline"`
	Title    string `toml:"title"`
}

// LoadDerivationFile loads derivation settings from a TOML file
func LoadDerivationFile(path string) (*DerivationFile, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goerr.Wrap(ErrConfigNotFound, "derivation config not found", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	var file DerivationFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML config",
			goerr.V(ConfigPathKey, path),
			goerr.V("cause", err.Error()))
	}

	return &file, nil
}

// ToDomain converts the file into domain settings, filling unset values with defaults
func (f *DerivationFile) ToDomain() (*domainConfig.Derivation, error) {
	cfg := domainConfig.DefaultDerivation()

	if f.Dimension < 0 {
		return nil, goerr.Wrap(ErrInvalidConfig, "dimension must be positive", goerr.V("dimension", f.Dimension))
	}
	if f.Dimension > 0 {
		cfg.Dimension = f.Dimension
	}

	timeouts := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"embedding", f.Timeout.Embedding, &cfg.EmbeddingTimeout},
		{"timeline", f.Timeout.Timeline, &cfg.TimelineTimeout},
		{"title", f.Timeout.Title, &cfg.TitleTimeout},
	}
	for _, t := range timeouts {
		if t.value == "" {
			continue
		}
		d, err := time.ParseDuration(t.value)
		if err != nil || d <= 0 {
			return nil, goerr.Wrap(ErrInvalidConfig, "invalid timeout",
				goerr.V(LegKey, t.name),
				goerr.V("value", t.value))
		}
		*t.dst = d
	}

	cfg.TimelinePrompt = f.Prompt.Timeline
	cfg.TitlePrompt = f.Prompt.Title

	return cfg, nil
}

// Derivation holds CLI flags for the derivation settings
type Derivation struct {
	path string
}

// Flags returns CLI flags for derivation configuration
func (x *Derivation) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "derivation-config",
			Category:    "Derivation",
			Usage:       "Path to TOML file with embedding dimension, per-leg timeouts and prompts",
			Sources:     cli.EnvVars("STORYNOTES_DERIVATION_CONFIG"),
			Destination: &x.path,
		},
	}
}

// LogValue implements slog.LogValuer
func (x Derivation) LogValue() slog.Value {
	return slog.GroupValue(slog.String("path", x.path))
}

// Configure returns the derivation settings, using defaults when no file is given
func (x *Derivation) Configure() (*domainConfig.Derivation, error) {
	if x.path == "" {
		return domainConfig.DefaultDerivation(), nil
	}

	file, err := LoadDerivationFile(x.path)
	if err != nil {
		return nil, err
	}

	cfg, err := file.ToDomain()
	if err != nil {
		return nil, goerr.Wrap(err, "config validation failed", goerr.V(ConfigPathKey, x.path))
	}
	return cfg, nil
}
