package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

const (
	AdminPasswordHeader = "X-Admin-Password"
	AdminPasswordQuery  = "password"
)

// AdminAuth checks the shared admin secret on every admin request. A bcrypt
// hash takes precedence over the plain password; with neither configured
// every request is rejected.
type AdminAuth struct {
	password []byte
	hash     []byte
	logger   *slog.Logger
}

func NewAdminAuth(password, passwordHash string, logger *slog.Logger) *AdminAuth {
	if logger == nil {
		logger = slog.Default()
	}
	a := &AdminAuth{logger: logger}
	if passwordHash != "" {
		a.hash = []byte(passwordHash)
	} else if password != "" {
		a.password = []byte(password)
	}
	return a
}

func (a *AdminAuth) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		supplied := c.Request().Header.Get(AdminPasswordHeader)
		if supplied == "" {
			supplied = c.QueryParam(AdminPasswordQuery)
		}

		if !a.check(supplied) {
			a.logger.Warn("admin authentication failed", "ip", c.RealIP(), "path", c.Path())
			return c.JSON(http.StatusUnauthorized, map[string]interface{}{
				"success": false,
				"error":   "Unauthorized",
				"message": "Invalid admin password",
			})
		}
		return next(c)
	}
}

func (a *AdminAuth) check(supplied string) bool {
	if supplied == "" {
		return false
	}
	switch {
	case a.hash != nil:
		return bcrypt.CompareHashAndPassword(a.hash, []byte(supplied)) == nil
	case a.password != nil:
		return subtle.ConstantTimeCompare(a.password, []byte(supplied)) == 1
	}
	return false
}
