package model

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// Timeline is the JSON encoded sequence of events extracted from a story.
// The bytes are stored and returned exactly as produced by the extractor.
type Timeline []byte

// TimelineEvent is a single event of a timeline
type TimelineEvent struct {
	Description string `json:"description"`
	Time        string `json:"time"`           // Relative or absolute time marker as written in the story
	Date        string `json:"date,omitempty"` // ISO 8601 date when the story gives an absolute date
}

// NewTimeline encodes events into a Timeline
func NewTimeline(events []TimelineEvent) (Timeline, error) {
	if events == nil {
		events = []TimelineEvent{}
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode timeline")
	}
	return Timeline(raw), nil
}

// Events decodes the timeline. An empty timeline has no events.
func (t Timeline) Events() ([]TimelineEvent, error) {
	if len(t) == 0 {
		return []TimelineEvent{}, nil
	}

	var events []TimelineEvent
	if err := json.Unmarshal(t, &events); err != nil {
		return nil, goerr.Wrap(err, "failed to decode timeline")
	}
	return events, nil
}

// Validate checks that the timeline is a JSON array
func (t Timeline) Validate() error {
	if !json.Valid(t) {
		return goerr.New("timeline is not valid JSON")
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(t, &raw); err != nil {
		return goerr.Wrap(err, "timeline must be a JSON array")
	}
	return nil
}

// Copy returns a copy of the timeline bytes
func (t Timeline) Copy() Timeline {
	if t == nil {
		return nil
	}
	copied := make(Timeline, len(t))
	copy(copied, t)
	return copied
}
