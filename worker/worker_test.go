package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkz0777/code-judge/executor"
	"github.com/xkz0777/code-judge/internal/config"
	"github.com/xkz0777/code-judge/internal/logging"
	"github.com/xkz0777/code-judge/model"
	"github.com/xkz0777/code-judge/queue"
)

type stubExecutor struct {
	result executor.Result
	err    error
}

func (s *stubExecutor) Execute(ctx context.Context, script string, stdin *string, limits executor.Limits) (executor.Result, error) {
	return s.result, s.err
}

func newTestWorker(t *testing.T) (*Worker, queue.Adapter) {
	t.Helper()
	mr := miniredis.RunT(t)
	adapter, err := queue.NewRedisAdapter(queue.Options{URI: "redis://" + mr.Addr()})
	require.NoError(t, err)

	cfg := config.Config{
		RedisResultExpire:          time.Minute,
		RedisResultLongBatchExpire: time.Hour,
		RedisWorkQueueBlockTimeout: 100 * time.Millisecond,
		RedisWorkerRegisterExpire:  time.Minute,
		MaxExecutionTime:           time.Second,
		MaxQueueWorkLifeTime:       4 * time.Second,
		MaxStdoutErrorLength:       1000,
	}
	log := logging.New("test-worker", discard{})

	w := &Worker{
		Queue:  adapter,
		Keys:   queue.NewKeys("judge", "v1"),
		Config: cfg,
		Log:    log,
		Now:    func() float64 { return 1000 },
	}
	return w, adapter
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestJudgeSuccess(t *testing.T) {
	w, _ := newTestWorker(t)
	w.Executor = func(model.SubmissionType) (executor.Executor, error) {
		return &stubExecutor{result: executor.Result{Stdout: "42\n", ExitCode: 0, Success: true, Cost: 10 * time.Millisecond}}, nil
	}

	expected := "42"
	sub := model.Submission{SubID: "s1", Type: model.SubmissionTypePython, Solution: "print(42)", ExpectedOutput: &expected}
	res := w.judge(sub)

	assert.True(t, res.Success)
	assert.True(t, res.RunSuccess)
	assert.Equal(t, model.ReasonUnspecified, res.Reason)
}

func TestJudgeMismatchedOutput(t *testing.T) {
	w, _ := newTestWorker(t)
	w.Executor = func(model.SubmissionType) (executor.Executor, error) {
		return &stubExecutor{result: executor.Result{Stdout: "wrong\n", ExitCode: 0, Success: true}}, nil
	}

	expected := "right"
	sub := model.Submission{SubID: "s1", Type: model.SubmissionTypePython, Solution: "x", ExpectedOutput: &expected}
	res := w.judge(sub)

	assert.False(t, res.Success)
	assert.True(t, res.RunSuccess)
}

func TestJudgeTimeout(t *testing.T) {
	w, _ := newTestWorker(t)
	w.Executor = func(model.SubmissionType) (executor.Executor, error) {
		return &stubExecutor{result: executor.Result{ExitCode: executor.TimeoutExitCode, Success: false}}, nil
	}

	sub := model.Submission{SubID: "s1", Type: model.SubmissionTypePython, Solution: "while True: pass"}
	res := w.judge(sub)

	assert.False(t, res.Success)
	assert.Equal(t, model.ReasonWorkerTimeout, res.Reason)
}

func TestJudgeUnsupportedTypeIsInvalidInput(t *testing.T) {
	w, _ := newTestWorker(t)
	w.Executor = func(model.SubmissionType) (executor.Executor, error) {
		return nil, fmt.Errorf("unsupported")
	}
	sub := model.Submission{SubID: "s1", Type: model.SubmissionTypeMath, Solution: "1+1"}
	res := w.judge(sub)
	assert.Equal(t, model.ReasonInvalidInput, res.Reason)
}

func TestJudgeExecutorErrorIsInternalError(t *testing.T) {
	w, _ := newTestWorker(t)
	w.Executor = func(model.SubmissionType) (executor.Executor, error) {
		return &stubExecutor{err: fmt.Errorf("boom")}, nil
	}
	sub := model.Submission{SubID: "s1", Type: model.SubmissionTypePython, Solution: "x"}
	res := w.judge(sub)
	assert.Equal(t, model.ReasonInternalError, res.Reason)
}

func TestProcessItemPublishesResult(t *testing.T) {
	w, q := newTestWorker(t)
	w.Executor = func(model.SubmissionType) (executor.Executor, error) {
		return &stubExecutor{result: executor.Result{Stdout: "ok", ExitCode: 0, Success: true}}, nil
	}

	sub := model.Submission{SubID: "s1", Type: model.SubmissionTypePython, Solution: "print('ok')"}
	payload := model.NewWorkPayload("w1", w.Now(), false, sub)
	raw, err := payload.Marshal()
	require.NoError(t, err)

	ctx := context.Background()
	w.processItem(ctx, raw)

	resultRaw, ok, err := q.Pop(ctx, w.Keys.ResultQueue("w1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, resultRaw, "s1")
}

func TestProcessItemSkipsStaleShortRunning(t *testing.T) {
	w, q := newTestWorker(t)
	w.Executor = func(model.SubmissionType) (executor.Executor, error) {
		t.Fatal("executor should not be invoked for a stale item")
		return nil, nil
	}

	sub := model.Submission{SubID: "s1", Type: model.SubmissionTypePython, Solution: "x"}
	// Now() returns 1000; a timestamp from far enough in the past exceeds
	// MaxQueueWorkLifeTime (4s).
	payload := model.NewWorkPayload("w1", 900, false, sub)
	raw, err := payload.Marshal()
	require.NoError(t, err)

	ctx := context.Background()
	w.processItem(ctx, raw)

	_, ok, err := q.Pop(ctx, w.Keys.ResultQueue("w1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessItemRecoversInvalidPayload(t *testing.T) {
	w, q := newTestWorker(t)
	raw := `{"work_id":"w1","submission":{"sub_id":"s1"}}`

	ctx := context.Background()
	w.processItem(ctx, raw)

	resultRaw, ok, err := q.Pop(ctx, w.Keys.ResultQueue("w1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, resultRaw, "invalid_input")
}

func TestRunLoopHeartbeatsAndStopsOnCancel(t *testing.T) {
	w, q := newTestWorker(t)
	w.Executor = func(model.SubmissionType) (executor.Executor, error) {
		return &stubExecutor{result: executor.Result{Success: true}}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	err := w.RunLoop(ctx)
	assert.NoError(t, err)

	n, err := q.ScanCount(context.Background(), w.Keys.WorkerHeartbeatPattern())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
