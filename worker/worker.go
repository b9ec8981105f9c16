// Package worker implements the worker loop described in spec.md §4.3: pop
// one WorkPayload, judge it with the executor matching its submission type,
// and publish a SubmissionResult — the Go translation of
// original_source/app/worker_manager.py's Worker._run_loop/judge.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/remiges-tech/logharbour/logharbour"

	"github.com/xkz0777/code-judge/executor"
	"github.com/xkz0777/code-judge/internal/config"
	"github.com/xkz0777/code-judge/internal/logging"
	"github.com/xkz0777/code-judge/model"
	"github.com/xkz0777/code-judge/queue"
)

// ExecutorFactory resolves a Submission's type to the Executor that judges
// it. Returning an error for an unsupported type (e.g. "math" — spec.md's
// glossary lists it as a Submission type but no executor variant is
// specified for it, so it is treated as invalid_input, see DESIGN.md) lets
// Worker fold that case into the same internal_error/invalid_input path a
// Python ValueError would take in executor_factory.
type ExecutorFactory func(submissionType model.SubmissionType) (executor.Executor, error)

// Worker runs the main loop on one OS process: heartbeat, pop, parse,
// lifetime-check, judge, publish.
type Worker struct {
	Queue    queue.Adapter
	Keys     queue.Keys
	Config   config.Config
	Log      *logging.Logger
	Executor ExecutorFactory

	// Now is the wall clock used for lifetime checks; overridable in tests.
	Now func() float64
}

// NewWorker builds a Worker using the real executor factory wired to cfg's
// toolchain paths, matching worker_manager.py's executor_factory.
func NewWorker(q queue.Adapter, keys queue.Keys, cfg config.Config, log *logging.Logger, selfPath string) *Worker {
	return &Worker{
		Queue:  q,
		Keys:   keys,
		Config: cfg,
		Log:    log,
		Executor: func(t model.SubmissionType) (executor.Executor, error) {
			switch t {
			case model.SubmissionTypePython:
				return &executor.PythonExecutor{PythonPath: cfg.PythonExecutorPath, SelfPath: selfPath}, nil
			case model.SubmissionTypeCpp:
				return &executor.CppExecutor{CompilerPath: cfg.CppCompilerPath, SelfPath: selfPath}, nil
			default:
				return nil, fmt.Errorf("worker: unsupported submission type %q", t)
			}
		},
		Now: func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
}

// Run is the Go equivalent of Worker.run(): it restarts RunLoop forever,
// sleeping 60s between crashes, so a bug in one iteration never takes the
// whole worker process down permanently.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := w.RunLoop(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		w.Log.Err(err, "worker loop crashed, restarting in 60s", nil)
		select {
		case <-ctx.Done():
			return
		case <-time.After(60 * time.Second):
		}
	}
}

// RunLoop obtains a worker_id, warms up the clock-skew check, then loops
// heartbeat/pop/process until ctx is cancelled or an unrecoverable error
// occurs (at which point Run restarts it).
func (w *Worker) RunLoop(ctx context.Context) error {
	workerID := uuid.NewString()
	w.warmUpClockSkew(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := w.Queue.Set(ctx, w.Keys.WorkerHeartbeat(workerID), "1", w.Config.RedisWorkerRegisterExpire); err != nil {
			return fmt.Errorf("worker: heartbeat: %w", err)
		}

		_, raw, ok, err := w.Queue.BlockPop(ctx, w.Config.RedisWorkQueueBlockTimeout, w.Keys.WorkQueue())
		if err != nil {
			return fmt.Errorf("worker: block_pop: %w", err)
		}
		if !ok {
			continue
		}

		w.processItem(ctx, raw)
	}
}

// warmUpClockSkew samples queue.Time() up to 10 times and warns if it
// diverges from the local wall clock by more than a second, mirroring
// _run_loop's warm-up loop exactly (including the original's quirk of only
// checking the *last* sample, not the worst of the ten).
func (w *Worker) warmUpClockSkew(ctx context.Context) {
	var skew float64
	for i := 0; i < 10; i++ {
		serverTime, err := w.Queue.Time(ctx)
		if err != nil {
			return
		}
		skew = serverTime - w.Now()
	}
	if math.Abs(skew) > 1 {
		w.Log.Warn("clock skew detected between worker and queue store", map[string]any{
			"skew_seconds":             skew,
			"max_queue_work_life_time": w.Config.MaxQueueWorkLifeTime.Seconds(),
		})
	}
}

// processItem implements steps 3–7 of spec.md §4.3 for one popped payload.
func (w *Worker) processItem(ctx context.Context, raw string) {
	payload, err := model.ParseWorkPayload(raw)
	if err != nil {
		workID, subID, longRunning, recovered := model.RecoverIdentifiers(raw)
		if !recovered {
			w.Log.Err(err, "dropping unparseable work item", nil)
			return
		}
		w.Log.Warn("payload failed schema validation, publishing invalid_input", map[string]any{"work_id": workID, "sub_id": subID})
		w.publish(ctx, workID, longRunning, model.SubmissionResult{
			SubID:  subID,
			Reason: model.ReasonInvalidInput,
		})
		return
	}

	lifetime := w.Now() - payload.Timestamp
	if !payload.LongRunning && lifetime >= w.Config.MaxQueueWorkLifeTime.Seconds() {
		w.Log.DataChange("work item exceeded queue lifetime, skipping unjudged", logharbour.ChangeInfo{
			Entity: "WorkPayload",
			Op:     "LifetimeSkipped",
			Changes: []logharbour.ChangeDetail{
				{"work_id", payload.WorkID, "dropped"},
				{"lifetime_seconds", lifetime, w.Config.MaxQueueWorkLifeTime.Seconds()},
			},
		})
		return
	}

	result := w.judge(payload.Submission)
	w.publish(ctx, payload.WorkID, payload.LongRunning, result)
}

// judge resolves the executor, runs it, and maps its Result to a
// SubmissionResult, mirroring judge() in worker_manager.py including its
// save_error_case side effect on failure.
func (w *Worker) judge(sub model.Submission) model.SubmissionResult {
	ex, err := w.Executor(sub.Type)
	if err != nil {
		w.Log.Err(err, "no executor for submission type", map[string]any{"sub_id": sub.SubID, "type": sub.Type})
		w.saveErrorCase(sub, nil, err)
		return model.SubmissionResult{SubID: sub.SubID, Reason: model.ReasonInvalidInput}
	}

	limits := executor.Limits{
		Timeout:        w.Config.MaxExecutionTime,
		MaxMemoryBytes: w.Config.MaxMemoryBytes,
	}
	res, err := ex.Execute(context.Background(), sub.Solution, sub.Input, limits)
	if err != nil {
		w.Log.Err(err, "worker failed to judge submission", map[string]any{"sub_id": sub.SubID})
		w.saveErrorCase(sub, nil, err)
		return model.SubmissionResult{SubID: sub.SubID, Reason: model.ReasonInternalError}
	}

	success := res.Success
	if sub.ExpectedOutput != nil {
		success = success && strings.TrimSpace(res.Stdout) == strings.TrimSpace(*sub.ExpectedOutput)
	}

	reason := model.ReasonUnspecified
	if res.ExitCode == executor.TimeoutExitCode {
		reason = model.ReasonWorkerTimeout
	}

	stdout := executor.Truncate(res.Stdout, w.Config.MaxStdoutErrorLength)
	stderr := executor.Truncate(res.Stderr, w.Config.MaxStdoutErrorLength)

	result := model.SubmissionResult{
		SubID:      sub.SubID,
		Success:    success,
		RunSuccess: res.Success,
		Cost:       res.Cost.Seconds(),
		Stdout:     &stdout,
		Stderr:     &stderr,
		Reason:     reason,
	}
	if !success {
		w.saveErrorCase(sub, &res, nil)
	}
	return result
}

// publish pushes result onto the result queue for workID and sets its TTL,
// choosing the short or long-batch expiry per longRunning — step 6 of
// spec.md §4.3.
func (w *Worker) publish(ctx context.Context, workID string, longRunning bool, result model.SubmissionResult) {
	key := w.Keys.ResultQueue(workID)
	raw, err := model.MarshalResult(result)
	if err != nil {
		w.Log.Err(err, "failed to marshal submission result", map[string]any{"work_id": workID})
		return
	}
	if err := w.Queue.Push(ctx, key, raw); err != nil {
		w.Log.Err(err, "failed to publish submission result", map[string]any{"work_id": workID})
		return
	}
	ttl := w.Config.RedisResultExpire
	if longRunning {
		ttl = w.Config.RedisResultLongBatchExpire
	}
	if err := w.Queue.Expire(ctx, key, ttl); err != nil {
		w.Log.Err(err, "failed to set result queue expiry", map[string]any{"work_id": workID})
	}
}

// saveErrorCase is the optional best-effort capture described in spec.md
// §4.3: when ERROR_CASE_SAVE_PATH is set, dump submission/solution/result
// (or exception) under a sub_id directory. Matches
// worker_manager.py's save_error_case, including swallowing its own
// failures.
func (w *Worker) saveErrorCase(sub model.Submission, res *executor.Result, execErr error) {
	if w.Config.ErrorCaseSavePath == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.Log.Warn("error-case capture panicked", map[string]any{"sub_id": sub.SubID, "panic": r})
		}
	}()

	dir := filepath.Join(w.Config.ErrorCaseSavePath, sub.SubID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.Log.Warn("failed to save error case", map[string]any{"sub_id": sub.SubID, "err": err.Error()})
		return
	}

	if b, err := json.MarshalIndent(sub, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "submission.json"), b, 0o644)
	}
	_ = os.WriteFile(filepath.Join(dir, "solution.txt"), []byte(sub.Solution), 0o644)

	if res != nil {
		if b, err := json.MarshalIndent(res, "", "  "); err == nil {
			_ = os.WriteFile(filepath.Join(dir, "result.json"), b, 0o644)
		}
	}
	if execErr != nil {
		_ = os.WriteFile(filepath.Join(dir, "exception.txt"), []byte(execErr.Error()), 0o644)
	}
}

