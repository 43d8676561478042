package narrative

// Export for testing
var (
	BuildUserPrompt       = buildUserPrompt
	DefaultTimelinePrompt = defaultTimelinePrompt
	DefaultTitlePrompt    = defaultTitlePrompt
	TimelineSchema        = timelineSchema
	TitleSchema           = titleSchema
)
