package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Razee4315/panda-chat/internal/logger"
	"github.com/Razee4315/panda-chat/internal/middleware"
	"github.com/Razee4315/panda-chat/internal/models"
	"github.com/Razee4315/panda-chat/internal/repositories"
)

// AuthHandler handles signup and, in local mode, token minting.
type AuthHandler struct {
	userRepository repositories.UserRepository
	jwtSecret      string
	tokenTTL       time.Duration
}

// NewAuthHandler creates a new AuthHandler. An empty jwtSecret disables
// dev tokens.
func NewAuthHandler(userRepo repositories.UserRepository, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		userRepository: userRepo,
		jwtSecret:      jwtSecret,
		tokenTTL:       72 * time.Hour,
	}
}

// RegisterPublicRoutes registers routes that need no identity.
func (h *AuthHandler) RegisterPublicRoutes(g *echo.Group) {
	if h.jwtSecret != "" {
		g.POST("/dev-token", h.DevToken)
	}
}

// RegisterAuthRoutes registers routes for authenticated callers.
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
}

// Register creates the profile record of the authenticated uid.
func (h *AuthHandler) Register(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	var req models.RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.userRepository.CreateUser(c.Request().Context(), uid, req)
	if err != nil {
		return httpError(c, err)
	}
	logger.FromContext(c.Request().Context()).Info("user registered", slog.String("uid", uid))
	return c.JSON(http.StatusCreated, user)
}

// DevToken mints a local HS256 token for any uid.
func (h *AuthHandler) DevToken(c echo.Context) error {
	var req models.DevTokenRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	token, err := middleware.IssueToken(h.jwtSecret, req.UID, h.tokenTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}
	return c.JSON(http.StatusOK, echo.Map{"token": token, "uid": req.UID})
}
