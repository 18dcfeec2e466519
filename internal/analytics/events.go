package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventQuery      EventType = "query"
	EventIndexBuild EventType = "index_build"
)

// QueryEvent describes one executed or rejected proximity query.
type QueryEvent struct {
	Type        EventType `json:"type"`
	Query       string    `json:"query"`
	Mode        string    `json:"mode"`
	Terms       []string  `json:"terms"`
	MatchedDocs int       `json:"matched_docs"`
	LatencyUs   int64     `json:"latency_us"`
	CacheStatus string    `json:"cache_status"`
	Malformed   bool      `json:"malformed,omitempty"`
	Generation  uint64    `json:"generation"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
}

// IndexEvent describes a published index generation.
type IndexEvent struct {
	Type       EventType `json:"type"`
	Generation uint64    `json:"generation"`
	Documents  int       `json:"documents"`
	Skipped    int       `json:"skipped"`
	Terms      int       `json:"terms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Decode inspects the type field of an encoded event and returns a
// *QueryEvent or an *IndexEvent.
func Decode(value []byte) (any, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return nil, fmt.Errorf("decoding event type: %w", err)
	}
	switch head.Type {
	case EventQuery:
		var ev QueryEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return nil, fmt.Errorf("decoding query event: %w", err)
		}
		return &ev, nil
	case EventIndexBuild:
		var ev IndexEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return nil, fmt.Errorf("decoding index event: %w", err)
		}
		return &ev, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", head.Type)
	}
}
