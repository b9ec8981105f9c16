// Package model defines the wire types exchanged between the coordinator,
// the work queue, and the worker pool: submissions, the payload that rides
// the queue, and the results published back.
package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// SubmissionType discriminates the executor used to judge a Submission.
type SubmissionType string

const (
	SubmissionTypePython SubmissionType = "python"
	SubmissionTypeCpp    SubmissionType = "cpp"
	SubmissionTypeMath   SubmissionType = "math"
	SubmissionTypeBatch  SubmissionType = "batch"
)

// Submission is a single piece of source code to judge, plus the stdin and
// expected stdout a grader wants compared against the run.
type Submission struct {
	SubID          string            `json:"sub_id"`
	Type           SubmissionType    `json:"type" validate:"required"`
	Options        map[string]string `json:"options,omitempty"`
	Solution       string            `json:"solution" validate:"required"`
	Input          *string           `json:"input,omitempty"`
	ExpectedOutput *string           `json:"expected_output,omitempty"`
}

// EnsureSubID generates a UUID for SubID when the caller left it empty, the
// Go equivalent of the Pydantic model_post_init in the original service.
func (s *Submission) EnsureSubID() {
	if s.SubID == "" {
		s.SubID = uuid.NewString()
	}
}

// BatchSubmission is a non-empty, order-significant sequence of submissions
// judged together under a single deadline and chunking policy.
type BatchSubmission struct {
	SubID       string       `json:"sub_id"`
	Type        SubmissionType `json:"type"`
	Submissions []Submission `json:"submissions" validate:"required,min=1,dive"`
}

// EnsureSubID fills in SubID and Type the way Submission.EnsureSubID does.
func (b *BatchSubmission) EnsureSubID() {
	if b.SubID == "" {
		b.SubID = uuid.NewString()
	}
	b.Type = SubmissionTypeBatch
}

// Validate checks the invariant BatchSubmission carries beyond struct tags:
// a non-empty submission list. The members themselves are not checked.
func (b *BatchSubmission) Validate() error {
	if len(b.Submissions) == 0 {
		return fmt.Errorf("batch submission %s: submissions must be non-empty", b.SubID)
	}
	return nil
}

// ResultReason classifies why a SubmissionResult has the success value it
// does, surfaced to callers so they can distinguish "the program ran and
// disagreed with the grader" from "the system itself failed".
type ResultReason string

const (
	ReasonUnspecified    ResultReason = "unspecified"
	ReasonInternalError  ResultReason = "internal_error"
	ReasonWorkerTimeout  ResultReason = "worker_timeout"
	ReasonQueueTimeout   ResultReason = "queue_timeout"
	ReasonInvalidInput   ResultReason = "invalid_input"
)

// SubmissionResult is the verdict for one Submission.
type SubmissionResult struct {
	SubID      string       `json:"sub_id"`
	Success    bool         `json:"success"`
	RunSuccess bool         `json:"run_success"`
	Cost       float64      `json:"cost"`
	Stdout     *string      `json:"stdout,omitempty"`
	Stderr     *string      `json:"stderr,omitempty"`
	Reason     ResultReason `json:"reason"`
}

// BatchSubmissionResult preserves submission order: Results has the same
// length and ordering as the BatchSubmission.Submissions it answers.
type BatchSubmissionResult struct {
	SubID   string             `json:"sub_id"`
	Results []SubmissionResult `json:"results"`
}

// JudgeResult is the reduced projection returned by the judge-only HTTP
// endpoints: it omits stdout/stderr, which can be large and are often not
// useful to a caller that only wants pass/fail.
type JudgeResult struct {
	SubID      string       `json:"sub_id"`
	Success    bool         `json:"success"`
	RunSuccess bool         `json:"run_success"`
	Cost       float64      `json:"cost"`
	Reason     ResultReason `json:"reason"`
}

// ToJudgeResult drops stdout/stderr from a SubmissionResult.
func (r SubmissionResult) ToJudgeResult() JudgeResult {
	return JudgeResult{
		SubID:      r.SubID,
		Success:    r.Success,
		RunSuccess: r.RunSuccess,
		Cost:       r.Cost,
		Reason:     r.Reason,
	}
}

// BatchJudgeResult is the reduced projection of a BatchSubmissionResult.
type BatchJudgeResult struct {
	SubID   string        `json:"sub_id"`
	Results []JudgeResult `json:"results"`
}

// ToBatchJudgeResult drops stdout/stderr from every item in the batch.
func (b BatchSubmissionResult) ToBatchJudgeResult() BatchJudgeResult {
	out := BatchJudgeResult{SubID: b.SubID, Results: make([]JudgeResult, len(b.Results))}
	for i, r := range b.Results {
		out.Results[i] = r.ToJudgeResult()
	}
	return out
}

// MarshalResult is a small helper kept next to the model so callers never
// hand-roll json.Marshal on a SubmissionResult going onto the result queue.
func MarshalResult(r SubmissionResult) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal submission result: %w", err)
	}
	return string(b), nil
}

// ParseSubmissionResult decodes a SubmissionResult from its result-queue wire
// form, the coordinator-side counterpart of MarshalResult.
func ParseSubmissionResult(raw string) (SubmissionResult, error) {
	var r SubmissionResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return SubmissionResult{}, fmt.Errorf("parse submission result: %w", err)
	}
	return r, nil
}
