package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GinRouter implements Router on top of Gin.
type GinRouter struct {
	engine *gin.Engine
}

// NewGinRouter builds a GinRouter with gin's panic recovery, the structured
// request logger, and a request-wide timeout already installed — the same
// middleware stack alya's NewGinRouter installs, minus the auth middleware
// this service has no use for.
func NewGinRouter(requestLogger RequestLogger, timeout time.Duration) *GinRouter {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LogRequest(requestLogger))
	r.Use(TimeoutMiddleware(timeout))
	return &GinRouter{engine: r}
}

func convertHandlerFunc(handler HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		handler(&GinContext{ginContext: c})
	}
}

func (gr *GinRouter) GET(path string, handler HandlerFunc)    { gr.engine.GET(path, convertHandlerFunc(handler)) }
func (gr *GinRouter) POST(path string, handler HandlerFunc)   { gr.engine.POST(path, convertHandlerFunc(handler)) }
func (gr *GinRouter) PUT(path string, handler HandlerFunc)    { gr.engine.PUT(path, convertHandlerFunc(handler)) }
func (gr *GinRouter) DELETE(path string, handler HandlerFunc) { gr.engine.DELETE(path, convertHandlerFunc(handler)) }

// Use applies a generic MiddlewareFunc to every route.
func (gr *GinRouter) Use(middleware MiddlewareFunc) {
	gr.engine.Use(func(c *gin.Context) {
		ctx := &GinContext{ginContext: c}
		next := middleware(ctx, func(Context) { c.Next() })
		next(ctx)
	})
}

// Handler exposes the underlying gin.Engine as an http.Handler, for
// httptest-based route tests and for mounting alongside promhttp.
func (gr *GinRouter) Handler() http.Handler { return gr.engine }

// Serve starts the HTTP server at address.
func (gr *GinRouter) Serve(address string) error { return gr.engine.Run(address) }

// Engine exposes the raw *gin.Engine for routes that need gin-specific
// features (e.g. mounting promhttp's handler directly).
func (gr *GinRouter) Engine() *gin.Engine { return gr.engine }

// GinContext adapts *gin.Context to Context.
type GinContext struct {
	ginContext *gin.Context
}

func (gc *GinContext) JSON(code int, obj any)      { gc.ginContext.JSON(code, obj) }
func (gc *GinContext) BindJSON(obj any) error      { return gc.ginContext.ShouldBindJSON(obj) }
func (gc *GinContext) Request() *http.Request      { return gc.ginContext.Request }

// Gin returns the underlying *gin.Context, for handlers that need gin-level
// access (query params, path params) beyond the generic Context interface.
func (gc *GinContext) Gin() *gin.Context { return gc.ginContext }
