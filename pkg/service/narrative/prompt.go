package narrative

import (
	"strings"

	"github.com/m-mizutani/gollem"
)

const defaultTimelinePrompt = `You are a careful reader of personal stories. Extract the events of the story in chronological order.

## Instructions:

1. Produce one entry per distinct event the narrator describes.
2. For each event, provide:
   - description: what happened, in one sentence, in the same language as the story
   - time: the time marker as the story states it (e.g. "when I was 12", "the next spring")
   - date: an ISO 8601 date only when the story gives an absolute date, otherwise omit it
3. Do not invent events or dates that the story does not mention.
4. If the story contains no events, return an empty array.
`

const defaultTitlePrompt = `You are an editor. Write a short title for the personal story.

## Instructions:

1. Use at most ten words, in the same language as the story.
2. Do not add quotes or trailing punctuation.
3. If the story is too short to summarize, return an empty title.
`

func buildUserPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("## Story:\n\n")
	sb.WriteString(text)
	sb.WriteString("\n")
	return sb.String()
}

func timelineSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "TimelineResponse",
		Description: "Chronological events extracted from the story",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"events": {
				Type:        gollem.TypeArray,
				Description: "Events in chronological order",
				Required:    true,
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"description": {
							Type:        gollem.TypeString,
							Description: "What happened",
							Required:    true,
						},
						"time": {
							Type:        gollem.TypeString,
							Description: "Time marker as written in the story",
							Required:    true,
						},
						"date": {
							Type:        gollem.TypeString,
							Description: "ISO 8601 date when the story gives an absolute date",
						},
					},
				},
			},
		},
	}
}

func titleSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "TitleResponse",
		Description: "Short title of the story",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"title": {
				Type:        gollem.TypeString,
				Description: "Title of at most ten words, may be empty",
				Required:    true,
			},
		},
	}
}
