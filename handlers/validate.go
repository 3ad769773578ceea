package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/hwidlock/models"
	"github.com/example/hwidlock/services"
)

type ValidateRequest struct {
	Key      string             `json:"key" validate:"required"`
	HWID     string             `json:"hwid" validate:"required"`
	UserInfo *services.UserInfo `json:"userInfo"`
}

// Validate checks a key for a device and binds it on first use.
func (h *Handler) Validate(c echo.Context) error {
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "Key and HWID are required")
	}

	var info services.UserInfo
	if req.UserInfo != nil {
		info = *req.UserInfo
	}
	if info.IP == "" {
		info.IP = c.RealIP()
	}
	if info.UserAgent == "" {
		info.UserAgent = c.Request().UserAgent()
	}

	res, err := h.Validation.Validate(c.Request().Context(), services.ValidationRequest{
		Key:      req.Key,
		HWID:     req.HWID,
		UserInfo: info,
	})
	if err != nil {
		return h.fail(c, err)
	}

	body := map[string]interface{}{
		"success":     true,
		"keyType":     res.KeyType,
		"hwid":        res.HWID,
		"validatedAt": res.ValidatedAt,
	}
	if res.KeyType == models.EntryTypeUser {
		body["key"] = res.Key
		body["usageCount"] = res.UsageCount
		body["message"] = "Key validated successfully"
	} else {
		body["message"] = "Admin key validated"
	}
	return c.JSON(http.StatusOK, body)
}
