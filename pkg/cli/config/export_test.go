package config

// NewLLMForTest creates an LLM config for testing purposes
func NewLLMForTest(geminiProject, geminiLocation, openaiAPIKey string) *LLM {
	return &LLM{
		geminiProject:  geminiProject,
		geminiLocation: geminiLocation,
		openaiAPIKey:   openaiAPIKey,
	}
}

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, projectID, databaseID, postgresDSN string) *Repository {
	return &Repository{
		backend:     backend,
		projectID:   projectID,
		databaseID:  databaseID,
		postgresDSN: postgresDSN,
	}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: output,
	}
}

// NewDerivationForTest creates a Derivation config for testing purposes
func NewDerivationForTest(path string) *Derivation {
	return &Derivation{path: path}
}

// NewSentryForTest creates a Sentry config for testing purposes
func NewSentryForTest(dsn, environment string) *Sentry {
	return &Sentry{dsn: dsn, environment: environment}
}

// NewLogFilter is exported for testing
var NewLogFilter = newLogFilter

// NewLogHandler is exported for testing
var NewLogHandler = newLogHandler
