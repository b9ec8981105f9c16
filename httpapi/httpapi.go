// Package httpapi is the thin HTTP front end described in spec.md's
// Coordinator contracts: it decodes a Submission/BatchSubmission, drives
// it through a Coordinator, and replies with either the full
// SubmissionResult or its reduced Judge projection. Grounded on alya's
// router/ + wscutils/ packages (adapted into internal/router and
// internal/wscutils).
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xkz0777/code-judge/coordinator"
	"github.com/xkz0777/code-judge/internal/config"
	"github.com/xkz0777/code-judge/internal/logging"
	"github.com/xkz0777/code-judge/internal/metricsutil"
	"github.com/xkz0777/code-judge/internal/router"
	"github.com/xkz0777/code-judge/queue"
)

// API owns the handlers NewRouter attaches to a router.Router.
type API struct {
	Coordinator *coordinator.Coordinator
	Queue       queue.Adapter
	Keys        queue.Keys
	Config      config.Config
	Log         *logging.Logger
	Metrics     metricsutil.Metrics
}

// NewRouter builds a GinRouter with every route the Coordinator's HTTP
// contract names attached: /run[/batch|/long-batch],
// /judge[/batch|/long-batch], /status, /ping, and /metrics.
func NewRouter(api *API) *router.GinRouter {
	adapter := router.NewLogHarbourAdapter(api.Log.Raw())
	// One request deadline covers every route, so it is sized for the
	// longest coordinator budget (the long-batch routes).
	requestTimeout := api.Config.MaxQueueWaitTime
	if api.Config.LongBatchMaxQueueWaitTime > requestTimeout {
		requestTimeout = api.Config.LongBatchMaxQueueWaitTime
	}
	gr := router.NewGinRouter(adapter, requestTimeout+5*time.Second)

	gr.GET("/ping", func(c router.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	gr.GET("/status", api.status)

	gr.POST("/run", api.run)
	gr.POST("/run/batch", api.runBatch(false))
	gr.POST("/run/long-batch", api.runBatch(true))
	gr.POST("/judge", api.judge)
	gr.POST("/judge/batch", api.judgeBatch(false))
	gr.POST("/judge/long-batch", api.judgeBatch(true))

	// /metrics bypasses the generic Context abstraction: promhttp's handler
	// is a plain http.Handler, not a router.HandlerFunc.
	gr.Engine().GET("/metrics", gin.WrapH(metricsutil.Handler()))

	return gr
}
