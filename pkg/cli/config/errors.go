package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrConfigNotFound   = goerr.New("configuration file not found")
	ErrInvalidConfig    = goerr.New("invalid configuration")
	ErrLLMNotConfigured = goerr.New("LLM is not configured")
)

// Context keys for error values
const (
	ConfigPathKey = "config_path"
	LegKey        = "leg"
)
