package handlers

import "github.com/labstack/echo/v4"

// Register mounts the validation and admin routes on api. adminMiddleware
// wraps every admin route, authentication included.
func (h *Handler) Register(api *echo.Group, adminMiddleware ...echo.MiddlewareFunc) {
	api.POST("/validate", h.Validate)

	admin := api.Group("/admin", adminMiddleware...)
	admin.GET("", h.Dispatch)
	admin.POST("", h.Dispatch)

	admin.GET("/keys", h.ListKeys)
	admin.POST("/keys", h.GenerateKeys)
	admin.DELETE("/keys/:key", h.DeleteKey)
	admin.POST("/keys/:key/reset", h.ResetKey)
	admin.POST("/keys/:key/disable", h.DisableKey)
	admin.POST("/keys/:key/enable", h.EnableKey)

	admin.GET("/logs", h.UsageLogs)
	admin.GET("/stats", h.Stats)
	admin.GET("/settings", h.GetSettings)
	admin.PUT("/settings", h.UpdateSettings)
}
