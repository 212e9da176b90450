package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/metrics"
	"github.com/Razee4315/panda-chat/internal/models"
	"github.com/Razee4315/panda-chat/internal/repositories"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notificationRepository repositories.NotificationRepository
	metrics                *metrics.Metrics
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifRepo repositories.NotificationRepository, m *metrics.Metrics) *NotificationHandler {
	return &NotificationHandler{notificationRepository: notifRepo, metrics: m}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.GET("/notifications/stream", h.StreamNotifications)
	g.PUT("/notifications/read", h.MarkAllAsRead)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
}

// GetNotifications returns the caller's notifications, newest first
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	list, err := h.notificationRepository.List(c.Request().Context(), uid)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	count, err := h.notificationRepository.UnreadCount(c.Request().Context(), uid)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"count": count})
}

func (h *NotificationHandler) StreamNotifications(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	return stream(c, h.metrics, "notifications", func(fn func([]models.Notification)) (*docstore.Subscription, error) {
		return h.notificationRepository.Subscribe(uid, fn)
	})
}

// MarkAsRead marks a notification as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	if err := h.notificationRepository.MarkRead(c.Request().Context(), uid, c.Param("id")); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	if err := h.notificationRepository.MarkAllRead(c.Request().Context(), uid); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
