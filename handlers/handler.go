package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/example/hwidlock/services"
)

type Handler struct {
	Validation *services.ValidationService
	Admin      *services.AdminService
	Logger     *slog.Logger
}

func NewHandler(validation *services.ValidationService, admin *services.AdminService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Validation: validation,
		Admin:      admin,
		Logger:     logger,
	}
}

// RequestValidator plugs validator/v10 into echo's Context.Validate.
type RequestValidator struct {
	validator *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validator: validator.New()}
}

func (v *RequestValidator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindBadRequest:
		return http.StatusBadRequest
	case services.KindInvalidKey, services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindHWIDMismatch, services.KindHWIDLimitExceeded, services.KindDuplicateKey:
		return http.StatusConflict
	case services.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// fail writes the error body. Internal errors are logged and replaced by a
// generic message.
func (h *Handler) fail(c echo.Context, err error) error {
	kind := services.KindOf(err)
	body := map[string]interface{}{
		"success": false,
		"error":   string(kind),
	}

	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		body["message"] = svcErr.Message
		for k, v := range svcErr.Details {
			body[k] = v
		}
	} else if kind == services.KindInternal {
		h.Logger.Error("request failed", "path", c.Path(), "error", err)
		body["message"] = "An unexpected error occurred"
	} else {
		body["message"] = err.Error()
	}
	return c.JSON(statusFor(kind), body)
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]interface{}{
		"success": false,
		"error":   string(services.KindBadRequest),
		"message": message,
	})
}

func (h *Handler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
