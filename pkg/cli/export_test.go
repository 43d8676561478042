package cli

// GetIndexConfig is exported for testing
var GetIndexConfig = getIndexConfig
