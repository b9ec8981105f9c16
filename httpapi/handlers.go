package httpapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/xkz0777/code-judge/internal/router"
	"github.com/xkz0777/code-judge/internal/wscutils"
	"github.com/xkz0777/code-judge/model"
)

// run implements POST /run: judges one Submission and returns the full
// SubmissionResult, stdout/stderr included.
func (api *API) run(c router.Context) {
	var sub model.Submission
	if !api.bindAndValidate(c, &sub) {
		return
	}
	result := api.Coordinator.Judge(c.Request().Context(), sub)
	c.JSON(http.StatusOK, wscutils.NewSuccessResponse(result))
}

// judge implements POST /judge: same as run but replies with the reduced
// JudgeResult projection (no stdout/stderr).
func (api *API) judge(c router.Context) {
	var sub model.Submission
	if !api.bindAndValidate(c, &sub) {
		return
	}
	result := api.Coordinator.Judge(c.Request().Context(), sub)
	c.JSON(http.StatusOK, wscutils.NewSuccessResponse(result.ToJudgeResult()))
}

// runBatch implements POST /run/batch and /run/long-batch, returning the
// full BatchSubmissionResult.
func (api *API) runBatch(longBatch bool) router.HandlerFunc {
	return func(c router.Context) {
		var batch model.BatchSubmission
		if !api.bindAndValidate(c, &batch) {
			return
		}
		result := api.Coordinator.JudgeBatch(c.Request().Context(), batch, longBatch)
		c.JSON(http.StatusOK, wscutils.NewSuccessResponse(result))
	}
}

// judgeBatch implements POST /judge/batch and /judge/long-batch, returning
// the reduced BatchJudgeResult projection.
func (api *API) judgeBatch(longBatch bool) router.HandlerFunc {
	return func(c router.Context) {
		var batch model.BatchSubmission
		if !api.bindAndValidate(c, &batch) {
			return
		}
		result := api.Coordinator.JudgeBatch(c.Request().Context(), batch, longBatch)
		c.JSON(http.StatusOK, wscutils.NewSuccessResponse(result.ToBatchJudgeResult()))
	}
}

// status implements GET /status: work queue depth and live worker count.
func (api *API) status(c router.Context) {
	ctx := c.Request().Context()
	depth, err := api.Queue.LLen(ctx, api.Keys.WorkQueue())
	if err != nil {
		api.Log.Err(err, "failed to read work queue depth", nil)
		c.JSON(http.StatusInternalServerError, wscutils.NewErrorResponse(wscutils.DefaultMsgID, wscutils.ErrcodeUnknown))
		return
	}
	numWorkers, err := api.Queue.ScanCount(ctx, api.Keys.WorkerHeartbeatPattern())
	if err != nil {
		api.Log.Err(err, "failed to count live workers", nil)
		c.JSON(http.StatusInternalServerError, wscutils.NewErrorResponse(wscutils.DefaultMsgID, wscutils.ErrcodeUnknown))
		return
	}
	c.JSON(http.StatusOK, wscutils.NewSuccessResponse(map[string]int64{
		"queue":       depth,
		"num_workers": numWorkers,
	}))
}

// bindAndValidate decodes the raw request body into dst and runs
// struct-tag validation, replying with a standard error envelope and
// returning false on any failure — every route's common prelude.
func (api *API) bindAndValidate(c router.Context, dst any) bool {
	if err := c.BindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, wscutils.NewErrorResponse(wscutils.ErrMsgIDInvalidJSON, wscutils.ErrcodeInvalidJSON))
		return false
	}
	if errs := wscutils.WscValidate(dst, func(validator.FieldError) []string { return nil }); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, wscutils.NewResponse(wscutils.ErrorStatus, nil, errs))
		return false
	}
	if b, ok := dst.(interface{ EnsureSubID() }); ok {
		b.EnsureSubID()
	}
	return true
}
