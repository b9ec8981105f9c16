package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// WorkPayload is the exact unit that travels through the work queue: one
// Submission, tagged with the work_id the coordinator will read the result
// back under and the timestamp used for the work-lifetime staleness check.
type WorkPayload struct {
	WorkID      string     `json:"work_id"`
	Timestamp   float64    `json:"timestamp"`
	LongRunning bool       `json:"long_running"`
	Submission  Submission `json:"submission"`
}

// NewWorkPayload builds a WorkPayload for a single submission. workID, when
// empty, is generated; timestamp is the caller's server clock reading at
// creation (seconds since epoch), so the coordinator and worker must agree
// on how it is produced (see queue.Adapter.Time).
func NewWorkPayload(workID string, timestamp float64, longRunning bool, sub Submission) WorkPayload {
	if workID == "" {
		workID = uuid.NewString()
	}
	return WorkPayload{
		WorkID:      workID,
		Timestamp:   timestamp,
		LongRunning: longRunning,
		Submission:  sub,
	}
}

// Marshal serializes the payload to the UTF-8 JSON carried on the wire.
func (p WorkPayload) Marshal() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal work payload: %w", err)
	}
	return string(b), nil
}

// ParseWorkPayload decodes a WorkPayload from its queue wire form. A payload
// whose work_id, submission.type or submission.solution is missing or empty
// fails validation and returns an error, as malformed JSON does.
func ParseWorkPayload(raw string) (WorkPayload, error) {
	var p WorkPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return WorkPayload{}, fmt.Errorf("parse work payload: %w", err)
	}
	if p.WorkID == "" || p.Submission.Type == "" || p.Submission.Solution == "" {
		return WorkPayload{}, fmt.Errorf("parse work payload: work_id, submission.type and submission.solution are required")
	}
	return p, nil
}

// RecoverIdentifiers performs the loose, best-effort parse the worker loop
// falls back to when ParseWorkPayload fails schema validation: it tries to
// recover just enough of the envelope (work_id, sub_id, long_running) to
// still be able to publish an invalid_input result instead of silently
// dropping the item.
func RecoverIdentifiers(raw string) (workID, subID string, longRunning bool, ok bool) {
	var loose struct {
		WorkID      string `json:"work_id"`
		LongRunning bool   `json:"long_running"`
		Submission  struct {
			SubID string `json:"sub_id"`
		} `json:"submission"`
	}
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return "", "", false, false
	}
	if loose.WorkID == "" || loose.Submission.SubID == "" {
		return "", "", false, false
	}
	return loose.WorkID, loose.Submission.SubID, loose.LongRunning, true
}
