package http

import "github.com/gin-gonic/gin"

// Register mounts the handlers. guard runs before the routes that spawn
// contexts.
func (h *Handlers) Register(r gin.IRouter, guard ...gin.HandlerFunc) {
	guarded := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc(nil), guard...), handler)
	}

	r.GET("/health", h.Health)
	r.GET("/metrics", h.Metrics)
	r.GET("/methods", h.Methods)

	r.POST("/run", guarded(h.Run)...)

	contexts := r.Group("/contexts")
	{
		contexts.POST("", guarded(h.Spawn)...)
		contexts.GET("", h.List)
		contexts.GET("/:id", h.Get)
		contexts.DELETE("/:id", h.Close)
		contexts.POST("/:id/cancel", h.Cancel)
		contexts.POST("/:id/messages", h.Send)
		contexts.GET("/:id/messages", h.Receive)
		contexts.POST("/:id/calls", h.Call)
	}
}
