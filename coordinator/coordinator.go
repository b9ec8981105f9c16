// Package coordinator implements the request-side driver described in
// spec.md §4.5: it enqueues one or many submissions, correlates replies off
// their per-work-id result queues, and enforces the adaptive per-batch
// deadline. Grounded on original_source/app/judge.py.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xkz0777/code-judge/internal/config"
	"github.com/xkz0777/code-judge/internal/logging"
	"github.com/xkz0777/code-judge/model"
	"github.com/xkz0777/code-judge/queue"
)

// Coordinator drives submissions through the queue and back.
type Coordinator struct {
	Queue  queue.Adapter
	Keys   queue.Keys
	Config config.Config
	Log    *logging.Logger

	// Now returns seconds since epoch; overridable in tests.
	Now func() float64
}

// New builds a Coordinator with the real wall clock.
func New(q queue.Adapter, keys queue.Keys, cfg config.Config, log *logging.Logger) *Coordinator {
	return &Coordinator{Queue: q, Keys: keys, Config: cfg, Log: log, Now: func() float64 {
		return float64(time.Now().UnixNano()) / 1e9
	}}
}

// Judge drives a single submission through the queue, spec.md §4.5's
// "Single" operation: push, block_pop the result with a fixed timeout,
// delete the result queue, and rewrite a present-but-failed result's reason
// to worker_timeout when its cost already exceeds MAX_EXECUTION_TIME.
func (c *Coordinator) Judge(ctx context.Context, sub model.Submission) model.SubmissionResult {
	sub.EnsureSubID()
	startTime := c.Now()

	payload := model.NewWorkPayload("", startTime, false, sub)
	raw, err := payload.Marshal()
	if err != nil {
		c.Log.Err(err, "failed to marshal work payload", map[string]any{"sub_id": sub.SubID})
		return c.internalError(sub.SubID, startTime)
	}
	if err := c.Queue.Push(ctx, c.Keys.WorkQueue(), raw); err != nil {
		c.Log.Err(err, "failed to enqueue work item", map[string]any{"sub_id": sub.SubID})
		return c.internalError(sub.SubID, startTime)
	}

	resultKey := c.Keys.ResultQueue(payload.WorkID)
	_, resultRaw, ok, err := c.Queue.BlockPop(ctx, c.Config.MaxQueueWaitTime, resultKey)
	if err != nil {
		c.Log.Err(err, "transport error waiting for result", map[string]any{"sub_id": sub.SubID})
		return c.internalError(sub.SubID, startTime)
	}
	_ = c.Queue.Delete(ctx, resultKey)

	if !ok {
		return model.SubmissionResult{
			SubID:  sub.SubID,
			Cost:   c.Now() - startTime,
			Reason: model.ReasonQueueTimeout,
		}
	}
	return c.toResult(sub, startTime, resultRaw)
}

// toResult parses a result queue payload and applies the cost-based
// worker_timeout fallback described in spec.md §7, matching judge.py's
// _to_result.
func (c *Coordinator) toResult(sub model.Submission, startTime float64, resultRaw string) model.SubmissionResult {
	var result model.SubmissionResult
	if err := unmarshalResult(resultRaw, &result); err != nil {
		c.Log.Err(err, "failed to parse result payload", map[string]any{"sub_id": sub.SubID})
		return c.internalError(sub.SubID, startTime)
	}
	if !result.Success && result.Cost >= c.Config.MaxExecutionTime.Seconds() {
		result.Reason = model.ReasonWorkerTimeout
	}
	return result
}

func (c *Coordinator) internalError(subID string, startTime float64) model.SubmissionResult {
	return model.SubmissionResult{SubID: subID, Cost: c.Now() - startTime, Reason: model.ReasonInternalError}
}

// JudgeBatch implements spec.md §4.5's batched operation: a shared hash-tag
// for all work-ids in the batch, chunked submission, and per-chunk result
// fan-in with the adaptive deadline / head-of-queue peek heuristic.
// Grounded on judge.py's judge_batch/_judge_batch_impl.
func (c *Coordinator) JudgeBatch(ctx context.Context, batch model.BatchSubmission, longBatch bool) model.BatchSubmissionResult {
	batch.EnsureSubID()

	results, err := c.judgeBatchImpl(ctx, batch.Submissions, longBatch)
	if err != nil {
		c.Log.Err(err, "failed to judge batch submission", map[string]any{"sub_id": batch.SubID})
		results = make([]model.SubmissionResult, len(batch.Submissions))
		for i, sub := range batch.Submissions {
			results[i] = model.SubmissionResult{SubID: sub.SubID, Reason: model.ReasonInternalError}
		}
	}
	return model.BatchSubmissionResult{SubID: batch.SubID, Results: results}
}

func (c *Coordinator) judgeBatchImpl(ctx context.Context, subs []model.Submission, longBatch bool) ([]model.SubmissionResult, error) {
	startTime := c.Now()

	maxWaitTime := c.Config.MaxQueueWaitTime
	chunkSize := c.Config.MaxBatchChunkSize
	if longBatch {
		maxWaitTime = c.Config.LongBatchMaxQueueWaitTime
		chunkSize = c.Config.MaxLongBatchChunkSize
	}

	hashTag := queue.HashTag(uuid.NewString())
	payloads := make([]model.WorkPayload, len(subs))
	for i, sub := range subs {
		sub.EnsureSubID()
		payloads[i] = model.NewWorkPayload(queue.BatchWorkID(hashTag, i), startTime, longBatch, sub)
	}
	chunks := chunkifyPayloads(payloads, chunkSize)

	for _, chunk := range chunks {
		if err := c.submitChunk(ctx, chunk); err != nil {
			return nil, err
		}
	}

	resultsByWorkID := make(map[string]model.SubmissionResult, len(payloads))
	waitStart := c.Now()
	for _, chunk := range chunks {
		elapsed := time.Duration((c.Now() - waitStart) * float64(time.Second))
		left := maxWaitTime - elapsed
		chunkResults, err := c.getChunkResults(ctx, chunk, left, startTime)
		if err != nil {
			return nil, err
		}
		for workID, result := range chunkResults {
			resultsByWorkID[workID] = result
		}
	}

	results := make([]model.SubmissionResult, len(payloads))
	for i, p := range payloads {
		results[i] = resultsByWorkID[p.WorkID]
	}
	return results, nil
}

func (c *Coordinator) submitChunk(ctx context.Context, chunk []model.WorkPayload) error {
	raws := make([]string, len(chunk))
	for i, p := range chunk {
		raw, err := p.Marshal()
		if err != nil {
			return fmt.Errorf("coordinator: marshal chunk payload: %w", err)
		}
		raws[i] = raw
	}
	return c.Queue.Push(ctx, c.Keys.WorkQueue(), raws...)
}

// getChunkResults drives one chunk's fan-in loop: non-blocking pop_multi
// first, then a bounded block_pop if nothing was ready, then the
// head-of-queue peek heuristic to tell "workers busy" from "nothing is
// draining the queue" before declaring the remainder queue_timeout.
// Grounded on judge.py's _get_result.
func (c *Coordinator) getChunkResults(ctx context.Context, chunk []model.WorkPayload, maxChunkWaitTime time.Duration, batchStartTime float64) (map[string]model.SubmissionResult, error) {
	byResultKey := make(map[string]model.WorkPayload, len(chunk))
	for _, p := range chunk {
		byResultKey[c.Keys.ResultQueue(p.WorkID)] = p
	}
	pending := make([]string, 0, len(chunk))
	for k := range byResultKey {
		pending = append(pending, k)
	}

	results := make(map[string]model.SubmissionResult, len(chunk))
	resultStart := c.Now()
	left := maxChunkWaitTime
	var startWorkingTime float64

	for len(pending) > 0 {
		maxTimestamp := 0.0
		for _, key := range pending {
			if p := byResultKey[key]; p.Timestamp > maxTimestamp {
				maxTimestamp = p.Timestamp
			}
		}

		resolved, err := c.popPending(ctx, pending, left)
		if err != nil {
			return nil, err
		}

		if len(resolved) == 0 {
			if startWorkingTime == 0 {
				headRaw, ok, err := c.Queue.Peek(ctx, c.Keys.WorkQueue())
				if err != nil {
					return nil, err
				}
				if !ok {
					startWorkingTime = c.Now()
				} else if head, err := model.ParseWorkPayload(headRaw); err == nil && head.Timestamp > maxTimestamp {
					startWorkingTime = c.Now()
				}
			} else if c.Now()-startWorkingTime > c.Config.MaxQueueWaitTime.Seconds() {
				c.Log.Warn("no result for pending submissions, assuming timeout (store stalled or OOM)", map[string]any{"pending": len(pending)})
				break
			}
		} else {
			startWorkingTime = 0
		}

		for key, raw := range resolved {
			payload := byResultKey[key]
			results[key] = c.toResult(payload.Submission, batchStartTime, raw)
			pending = removeString(pending, key)
		}

		left = maxChunkWaitTime - time.Duration((c.Now()-resultStart)*float64(time.Second))
		if left <= 0 {
			break
		}
	}

	for _, key := range pending {
		payload := byResultKey[key]
		results[key] = model.SubmissionResult{
			SubID:  payload.Submission.SubID,
			Cost:   c.Now() - batchStartTime,
			Reason: model.ReasonQueueTimeout,
		}
	}

	if len(byResultKey) > 0 {
		keys := make([]string, 0, len(byResultKey))
		for k := range byResultKey {
			keys = append(keys, k)
		}
		_ = c.Queue.Delete(ctx, keys...)
	}

	byWorkID := make(map[string]model.SubmissionResult, len(results))
	for key, result := range results {
		byWorkID[byResultKey[key].WorkID] = result
	}
	return byWorkID, nil
}

// popPending tries a non-blocking pipelined pop across every pending result
// key first (the common case once workers are keeping up), falling back to
// a single bounded block_pop across all of them when nothing was ready and
// there is still time left — matching _pop_results' sync-then-async order.
func (c *Coordinator) popPending(ctx context.Context, pending []string, timeout time.Duration) (map[string]string, error) {
	popped, err := c.Queue.PopMulti(ctx, pending...)
	if err != nil {
		return nil, err
	}
	resolved := make(map[string]string)
	for i, r := range popped {
		if r.OK {
			resolved[pending[i]] = r.Value
		}
	}
	if len(resolved) > 0 || timeout <= 0 {
		return resolved, nil
	}

	callTimeout := timeout
	if callTimeout > c.Config.MaxQueueWaitTime {
		callTimeout = c.Config.MaxQueueWaitTime
	}
	key, value, ok, err := c.Queue.BlockPop(ctx, callTimeout, pending...)
	if err != nil {
		return nil, err
	}
	if ok {
		resolved[key] = value
	}
	return resolved, nil
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func chunkifyPayloads(items []model.WorkPayload, size int) [][]model.WorkPayload {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]model.WorkPayload
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}

func unmarshalResult(raw string, out *model.SubmissionResult) error {
	parsed, err := model.ParseSubmissionResult(raw)
	if err != nil {
		return err
	}
	*out = parsed
	return nil
}
