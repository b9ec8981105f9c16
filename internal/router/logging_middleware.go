package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/remiges-tech/logharbour/logharbour"
)

// RequestInfo captures one request/response cycle for logging.
type RequestInfo struct {
	Method             string
	Path               string
	ClientIP           string
	StatusCode         int
	StartTime          time.Time
	Duration           time.Duration
	RequestSize        int64
	ResponseSize       int64
	Query              string
	TimedOut           bool
	ClientDisconnected bool
	PanicRecovered     bool
	PanicValue         string
}

// RequestLogger is the contract LogRequest drives; it exists so the
// middleware never imports a concrete logging backend directly.
type RequestLogger interface {
	Log(info RequestInfo)
}

// LogRequest returns a Gin middleware that logs exactly one structured
// entry per request, at the end of its lifecycle, mirroring alya's
// router.LogRequest.
func LogRequest(logger RequestLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		requestSize := c.Request.ContentLength

		c.Next()

		var timedOut, clientDisconnected, panicRecovered bool
		var panicValue string
		if v, exists := c.Get(CtxKeyTimedOut); exists {
			timedOut, _ = v.(bool)
		}
		if v, exists := c.Get(CtxKeyClientDisconnected); exists {
			clientDisconnected, _ = v.(bool)
		}
		if v, exists := c.Get(CtxKeyPanicRecovered); exists {
			panicRecovered, _ = v.(bool)
		}
		if v, exists := c.Get(CtxKeyPanicValue); exists {
			panicValue, _ = v.(string)
		}

		logger.Log(RequestInfo{
			Method:             c.Request.Method,
			Path:               c.Request.URL.Path,
			ClientIP:           c.ClientIP(),
			StatusCode:         c.Writer.Status(),
			StartTime:          startTime.UTC(),
			Duration:           time.Since(startTime),
			RequestSize:        requestSize,
			ResponseSize:       int64(c.Writer.Size()),
			Query:              c.Request.URL.RawQuery,
			TimedOut:           timedOut,
			ClientDisconnected: clientDisconnected,
			PanicRecovered:     panicRecovered,
			PanicValue:         panicValue,
		})
	}
}

// LogHarbourAdapter implements RequestLogger on top of a raw logharbour
// logger (see internal/logging.Logger.Raw), the Go-judge-service analogue
// of alya's LogHarbourAdapter.
type LogHarbourAdapter struct {
	logger *logharbour.Logger
}

// NewLogHarbourAdapter wraps logger for use with LogRequest.
func NewLogHarbourAdapter(logger *logharbour.Logger) *LogHarbourAdapter {
	return &LogHarbourAdapter{logger: logger}
}

func (a *LogHarbourAdapter) Log(info RequestInfo) {
	status := logharbour.Success
	if info.StatusCode < 200 || info.StatusCode >= 400 {
		status = logharbour.Failure
	}

	l := a.logger.WithModule("http").
		WithOp(info.Method).
		WithRemoteIP(info.ClientIP).
		WithStatus(status)

	data := map[string]any{
		"method":        info.Method,
		"path":          info.Path,
		"status":        info.StatusCode,
		"duration_ms":   info.Duration.Milliseconds(),
		"request_size":  info.RequestSize,
		"response_size": info.ResponseSize,
		"query":         info.Query,
	}
	if info.TimedOut {
		data["timed_out"] = true
	}
	if info.ClientDisconnected {
		data["client_disconnected"] = true
	}
	if info.PanicRecovered {
		data["panic_recovered"] = true
		data["panic_value"] = info.PanicValue
	}

	l.Info().LogActivity("HTTP request completed", data)
}
