package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Razee4315/panda-chat/internal/docstore"
)

// HealthHandler reports whether the document store answers.
type HealthHandler struct {
	store   docstore.Store
	backend string
}

func NewHealthHandler(store docstore.Store, backend string) *HealthHandler {
	return &HealthHandler{store: store, backend: backend}
}

func (h *HealthHandler) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if _, err := h.store.Get(ctx, "health"); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"service": "panda-chat",
			"store":   h.backend,
			"error":   err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "panda-chat",
		"store":   h.backend,
	})
}
