package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestEngine(timeout time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.Use(gin.Recovery())
	e.Use(TimeoutMiddleware(timeout))
	return e
}

func TestTimeoutMiddlewareLetsFastHandlerThrough(t *testing.T) {
	e := newTestEngine(time.Second)
	e.GET("/ok", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTimeoutMiddlewareSends504WhenHandlerNeverWrites(t *testing.T) {
	e := newTestEngine(20 * time.Millisecond)
	e.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})

	req := httptest.NewRequest(http.MethodGet, "/slow", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestTimeoutMiddlewareUsesHandlerResponseWrittenJustInTime(t *testing.T) {
	e := newTestEngine(20 * time.Millisecond)
	e.GET("/borderline", func(c *gin.Context) {
		<-c.Request.Context().Done()
		c.JSON(http.StatusOK, gin.H{"late": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/borderline", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
