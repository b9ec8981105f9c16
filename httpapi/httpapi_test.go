package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkz0777/code-judge/coordinator"
	"github.com/xkz0777/code-judge/internal/config"
	"github.com/xkz0777/code-judge/internal/logging"
	"github.com/xkz0777/code-judge/model"
	"github.com/xkz0777/code-judge/queue"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestAPI(t *testing.T) (*API, queue.Adapter) {
	t.Helper()
	mr := miniredis.RunT(t)
	adapter, err := queue.NewRedisAdapter(queue.Options{URI: "redis://" + mr.Addr()})
	require.NoError(t, err)

	cfg := config.Config{
		MaxQueueWaitTime:          200 * time.Millisecond,
		LongBatchMaxQueueWaitTime: time.Second,
		MaxExecutionTime:          time.Second,
		MaxBatchChunkSize:         2,
		MaxLongBatchChunkSize:     10,
	}
	log := logging.New("test-httpapi", discard{})
	keys := queue.NewKeys("judge", "v1")

	return &API{
		Coordinator: &coordinator.Coordinator{
			Queue:  adapter,
			Keys:   keys,
			Config: cfg,
			Log:    log,
			Now:    func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
		},
		Queue:  adapter,
		Keys:   keys,
		Config: cfg,
		Log:    log,
	}, adapter
}

func fakeWorker(t *testing.T, q queue.Adapter, keys queue.Keys, result model.SubmissionResult) {
	t.Helper()
	ctx := context.Background()
	_, raw, ok, err := q.BlockPop(ctx, time.Second, keys.WorkQueue())
	require.NoError(t, err)
	require.True(t, ok)

	payload, err := model.ParseWorkPayload(raw)
	require.NoError(t, err)

	result.SubID = payload.Submission.SubID
	resultRaw, err := model.MarshalResult(result)
	require.NoError(t, err)
	require.NoError(t, q.Push(ctx, keys.ResultQueue(payload.WorkID), resultRaw))
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := NewRouter(api).Handler()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusReportsQueueDepthAndWorkerCount(t *testing.T) {
	api, q := newTestAPI(t)
	handler := NewRouter(api).Handler()

	require.NoError(t, q.Push(context.Background(), api.Keys.WorkQueue(), "x", "y"))
	require.NoError(t, q.Set(context.Background(), api.Keys.WorkerHeartbeat("w1"), "1", time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data struct {
			Queue      int64 `json:"queue"`
			NumWorkers int64 `json:"num_workers"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Data.Queue)
	assert.Equal(t, int64(1), resp.Data.NumWorkers)
}

func TestRunReturnsFullResult(t *testing.T) {
	api, q := newTestAPI(t)
	handler := NewRouter(api).Handler()

	go fakeWorker(t, q, api.Keys, model.SubmissionResult{Success: true, RunSuccess: true, Stdout: strPtr("ok")})

	rec := postJSON(t, handler, "/run", model.Submission{
		Type:     model.SubmissionTypePython,
		Solution: "print('ok')",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data model.SubmissionResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Success)
	require.NotNil(t, resp.Data.Stdout)
	assert.Equal(t, "ok", *resp.Data.Stdout)
}

func TestJudgeReturnsReducedProjection(t *testing.T) {
	api, q := newTestAPI(t)
	handler := NewRouter(api).Handler()

	go fakeWorker(t, q, api.Keys, model.SubmissionResult{Success: true, RunSuccess: true, Stdout: strPtr("ignored")})

	rec := postJSON(t, handler, "/judge", model.Submission{
		Type:     model.SubmissionTypePython,
		Solution: "print('ok')",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "ignored")
	assert.Contains(t, rec.Body.String(), `"success":true`)
}

func TestRunRejectsMissingRequiredFields(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := NewRouter(api).Handler()

	rec := postJSON(t, handler, "/run", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunBatchAnswersEverySubmissionInOrder(t *testing.T) {
	api, q := newTestAPI(t)
	handler := NewRouter(api).Handler()

	for i := 0; i < 3; i++ {
		go fakeWorker(t, q, api.Keys, model.SubmissionResult{Success: true})
	}

	rec := postJSON(t, handler, "/run/batch", model.BatchSubmission{
		Submissions: []model.Submission{
			{SubID: "a", Type: model.SubmissionTypePython, Solution: "a"},
			{SubID: "b", Type: model.SubmissionTypePython, Solution: "b"},
			{SubID: "c", Type: model.SubmissionTypePython, Solution: "c"},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data model.BatchSubmissionResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Results, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, resp.Data.Results[i].SubID)
		assert.True(t, resp.Data.Results[i].Success)
	}
}

func TestJudgeBatchReturnsReducedProjection(t *testing.T) {
	api, q := newTestAPI(t)
	handler := NewRouter(api).Handler()

	go fakeWorker(t, q, api.Keys, model.SubmissionResult{Success: true, Stdout: strPtr("hidden")})

	rec := postJSON(t, handler, "/judge/batch", model.BatchSubmission{
		Submissions: []model.Submission{{Type: model.SubmissionTypePython, Solution: "a"}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hidden")
}

func strPtr(s string) *string { return &s }
