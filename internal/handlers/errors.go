package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Razee4315/panda-chat/internal/logger"
	"github.com/Razee4315/panda-chat/internal/middleware"
	"github.com/Razee4315/panda-chat/internal/repositories"
)

// httpError translates repository errors into echo HTTP errors.
func httpError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, repositories.ErrAlreadyExists), errors.Is(err, repositories.ErrAlreadyRequested):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, repositories.ErrInvalidState):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, repositories.ErrStoreUnavailable):
		logger.FromContext(c.Request().Context()).Error("store unavailable",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Store unavailable")
	default:
		logger.FromContext(c.Request().Context()).Error("request failed",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
}

// currentUID returns the uid set by the auth middleware.
func currentUID(c echo.Context) (string, error) {
	uid, ok := c.Get(middleware.UIDKey).(string)
	if !ok || uid == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	return uid, nil
}

// bindAndValidate binds the body into req and runs the echo validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	return nil
}
