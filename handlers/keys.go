package handlers

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

type GenerateKeyRequest struct {
	Count     int    `json:"count" query:"count" form:"count"`
	CustomKey string `json:"customKey" query:"customKey" form:"customKey"`
}

func (h *Handler) ListKeys(c echo.Context) error {
	list, err := h.Admin.ListKeys(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"keys":       list.Keys,
		"totalKeys":  list.Total,
		"usedKeys":   list.Used,
		"unusedKeys": list.Unused,
	})
}

// GenerateKeys accepts count and customKey from the query string, the body,
// or both. Body values win.
func (h *Handler) GenerateKeys(c echo.Context) error {
	var req GenerateKeyRequest
	binder := &echo.DefaultBinder{}
	if err := binder.BindQueryParams(c, &req); err != nil {
		return badRequest(c, "Invalid query parameters")
	}
	if err := binder.BindBody(c, &req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := h.Admin.Generate(c.Request().Context(), req.Count, req.CustomKey)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"keys":      res.Keys,
		"count":     len(res.Keys),
		"requested": res.Requested,
		"skipped":   res.Skipped,
		"totalKeys": res.TotalKeys,
	})
}

func (h *Handler) DeleteKey(c echo.Context) error {
	return h.deleteKey(c, keyParam(c))
}

func (h *Handler) deleteKey(c echo.Context, key string) error {
	remaining, err := h.Admin.DeleteKey(c.Request().Context(), key)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"deletedKey": key,
		"totalKeys":  remaining,
	})
}

func (h *Handler) ResetKey(c echo.Context) error {
	return h.resetKey(c, keyParam(c))
}

func (h *Handler) resetKey(c echo.Context, key string) error {
	if err := h.Admin.ResetKey(c.Request().Context(), key); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"key":     key,
		"status":  "Available for new device",
	})
}

func (h *Handler) DisableKey(c echo.Context) error {
	return h.setActive(c, keyParam(c), false)
}

func (h *Handler) EnableKey(c echo.Context) error {
	return h.setActive(c, keyParam(c), true)
}

func (h *Handler) setActive(c echo.Context, key string, active bool) error {
	if err := h.Admin.SetActive(c.Request().Context(), key, active); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"key":      key,
		"isActive": active,
	})
}

// keyParam returns the decoded :key segment. Echo routes on URL.RawPath when
// the request carries one, and only then is the segment still escaped.
func keyParam(c echo.Context) string {
	raw := c.Param("key")
	if c.Request().URL.RawPath == "" {
		return raw
	}
	if key, err := url.PathUnescape(raw); err == nil {
		return key
	}
	return raw
}
