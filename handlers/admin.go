package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/example/hwidlock/services"
)

type UpdateSettingsRequest struct {
	MaxKeysPerHWID int   `json:"maxKeysPerHWID" validate:"required,min=1"`
	AuditRejected  *bool `json:"auditRejected"`
}

func (h *Handler) UsageLogs(c echo.Context) error {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil {
		limit = services.DefaultLogLimit
	}

	page, err := h.Admin.Logs(c.Request().Context(), c.QueryParam("key"), limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"logs":      page.Logs,
		"totalLogs": page.TotalLogs,
	})
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.Admin.Stats(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

func (h *Handler) GetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"settings": h.Admin.GetSettings(),
	})
}

// UpdateSettings replaces maxKeysPerHWID. auditRejected is left unchanged
// when omitted.
func (h *Handler) UpdateSettings(c echo.Context) error {
	var req UpdateSettingsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "maxKeysPerHWID must be at least 1")
	}

	next := h.Admin.GetSettings()
	next.MaxKeysPerHWID = req.MaxKeysPerHWID
	if req.AuditRejected != nil {
		next.AuditRejected = *req.AuditRejected
	}

	updated, err := h.Admin.UpdateSettings(next)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"settings": updated,
	})
}

// Dispatch serves the single-endpoint admin API keyed by the action query
// parameter. Unknown or missing actions list the keys.
func (h *Handler) Dispatch(c echo.Context) error {
	switch c.QueryParam("action") {
	case "generateKey":
		return h.GenerateKeys(c)
	case "deleteKey":
		return h.deleteKey(c, h.actionKey(c))
	case "resetKey":
		return h.resetKey(c, h.actionKey(c))
	case "getUsageLogs":
		return h.UsageLogs(c)
	case "getStats":
		return h.Stats(c)
	}
	return h.ListKeys(c)
}

// actionKey reads the target key from the query string, falling back to the
// request body.
func (h *Handler) actionKey(c echo.Context) string {
	if key := c.QueryParam("key"); key != "" {
		return key
	}
	var body struct {
		Key string `json:"key" form:"key"`
	}
	if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
		return ""
	}
	return body.Key
}
