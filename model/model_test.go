package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionEnsureSubID(t *testing.T) {
	s := Submission{Type: SubmissionTypePython, Solution: "print(1)"}
	s.EnsureSubID()
	assert.NotEmpty(t, s.SubID)

	s2 := Submission{SubID: "fixed", Type: SubmissionTypePython, Solution: "print(1)"}
	s2.EnsureSubID()
	assert.Equal(t, "fixed", s2.SubID)
}

func TestBatchSubmissionValidate(t *testing.T) {
	b := BatchSubmission{}
	b.EnsureSubID()
	assert.Equal(t, SubmissionTypeBatch, b.Type)
	assert.Error(t, b.Validate())

	b.Submissions = []Submission{{Type: SubmissionTypePython, Solution: "x"}}
	assert.NoError(t, b.Validate())
}

func TestWorkPayloadRoundTrip(t *testing.T) {
	input := "a"
	sub := Submission{SubID: "s1", Type: SubmissionTypePython, Solution: "print(input())", Input: &input}
	payload := NewWorkPayload("", 123.5, false, sub)
	require.NotEmpty(t, payload.WorkID)

	raw, err := payload.Marshal()
	require.NoError(t, err)

	parsed, err := ParseWorkPayload(raw)
	require.NoError(t, err)
	assert.Equal(t, payload, parsed)
}

func TestRecoverIdentifiers(t *testing.T) {
	raw := `{"work_id":"w1","long_running":true,"submission":{"sub_id":"s1","type":"python"}}`
	workID, subID, longRunning, ok := RecoverIdentifiers(raw)
	assert.True(t, ok)
	assert.Equal(t, "w1", workID)
	assert.Equal(t, "s1", subID)
	assert.True(t, longRunning)

	_, _, _, ok = RecoverIdentifiers(`not json`)
	assert.False(t, ok)

	_, _, _, ok = RecoverIdentifiers(`{"work_id":"","submission":{}}`)
	assert.False(t, ok)
}

func TestSubmissionResultToJudgeResult(t *testing.T) {
	stdout := "hello"
	r := SubmissionResult{SubID: "s1", Success: true, RunSuccess: true, Cost: 1.5, Stdout: &stdout, Reason: ReasonUnspecified}
	j := r.ToJudgeResult()
	assert.Equal(t, "s1", j.SubID)
	assert.True(t, j.Success)

	batch := BatchSubmissionResult{SubID: "b1", Results: []SubmissionResult{r}}
	bj := batch.ToBatchJudgeResult()
	assert.Len(t, bj.Results, 1)
	assert.Equal(t, "s1", bj.Results[0].SubID)
}

func TestMarshalResult(t *testing.T) {
	raw, err := MarshalResult(SubmissionResult{SubID: "s1", Reason: ReasonUnspecified})
	require.NoError(t, err)
	assert.Contains(t, raw, "s1")
}
