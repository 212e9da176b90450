package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/metrics"
	"github.com/Razee4315/panda-chat/internal/models"
	"github.com/Razee4315/panda-chat/internal/repositories"
)

// UserHandler handles profiles, search and presence.
type UserHandler struct {
	userRepository repositories.UserRepository
	metrics        *metrics.Metrics
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userRepo repositories.UserRepository, m *metrics.Metrics) *UserHandler {
	return &UserHandler{userRepository: userRepo, metrics: m}
}

// RegisterProfileRoutes registers profile and presence routes
func (h *UserHandler) RegisterProfileRoutes(g *echo.Group) {
	g.GET("/profile", h.GetProfile)
	g.PUT("/profile", h.UpdateProfile)
	g.GET("/users/search", h.SearchUsers)
	g.GET("/users/:id", h.GetUser)
	g.PUT("/presence", h.UpdatePresence)
	g.GET("/presence/stream", h.StreamPresence)
}

func (h *UserHandler) GetUser(c echo.Context) error {
	user, err := h.userRepository.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// GetProfile retrieves the authenticated user's profile
func (h *UserHandler) GetProfile(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	user, err := h.userRepository.GetUser(c.Request().Context(), uid)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateProfile updates the authenticated user's profile
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	var req models.UpdateProfileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	user, err := h.userRepository.UpdateProfile(c.Request().Context(), uid, req)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// SearchUsers matches the query against email and names. The caller is left
// out of the results.
func (h *UserHandler) SearchUsers(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	users, err := h.userRepository.SearchUsers(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return httpError(c, err)
	}
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.UID != uid {
			out = append(out, u)
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *UserHandler) UpdatePresence(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	var req models.UpdatePresenceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.userRepository.SetStatus(c.Request().Context(), uid, req.Status); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// StreamPresence streams the presence of the comma-separated ids.
func (h *UserHandler) StreamPresence(c echo.Context) error {
	if _, err := currentUID(c); err != nil {
		return err
	}
	var ids []string
	for _, id := range strings.Split(c.QueryParam("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Query parameter 'ids' is required")
	}
	return stream(c, h.metrics, "presence", func(fn func(map[string]models.Presence)) (*docstore.Subscription, error) {
		return h.userRepository.SubscribeStatuses(ids, fn)
	})
}
