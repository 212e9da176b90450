package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/metrics"
	"github.com/Razee4315/panda-chat/internal/models"
	"github.com/Razee4315/panda-chat/internal/repositories"
)

// MessageHandler handles a room's message log. Every route requires the
// caller to be a live member of the room.
type MessageHandler struct {
	messageRepository repositories.MessageRepository
	roomRepository    repositories.RoomRepository
	userRepository    repositories.UserRepository
	metrics           *metrics.Metrics
}

func NewMessageHandler(msgRepo repositories.MessageRepository, roomRepo repositories.RoomRepository, userRepo repositories.UserRepository, m *metrics.Metrics) *MessageHandler {
	return &MessageHandler{
		messageRepository: msgRepo,
		roomRepository:    roomRepo,
		userRepository:    userRepo,
		metrics:           m,
	}
}

// RegisterMessageRoutes registers message routes
func (h *MessageHandler) RegisterMessageRoutes(g *echo.Group) {
	g.GET("/rooms/:id/messages", h.ListMessages)
	g.GET("/rooms/:id/messages/stream", h.StreamMessages)
	g.POST("/rooms/:id/messages", h.SendMessage)
	g.DELETE("/rooms/:id/messages/:msgId", h.DeleteMessage)
	g.PUT("/rooms/:id/messages/:msgId/read", h.MarkRead)
}

// member checks room membership and returns the caller's uid.
func (h *MessageHandler) member(c echo.Context) (string, error) {
	uid, err := currentUID(c)
	if err != nil {
		return "", err
	}
	if _, err := memberRoom(c.Request().Context(), c, h.roomRepository, c.Param("id"), uid); err != nil {
		return "", err
	}
	return uid, nil
}

func (h *MessageHandler) ListMessages(c echo.Context) error {
	if _, err := h.member(c); err != nil {
		return err
	}
	msgs, err := h.messageRepository.ListMessages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, msgs)
}

func (h *MessageHandler) StreamMessages(c echo.Context) error {
	if _, err := h.member(c); err != nil {
		return err
	}
	roomID := c.Param("id")
	return stream(c, h.metrics, "messages", func(fn func([]models.Message)) (*docstore.Subscription, error) {
		return h.messageRepository.SubscribeMessages(roomID, fn)
	})
}

// SendMessage appends to the log under the sender's current display name.
func (h *MessageHandler) SendMessage(c echo.Context) error {
	uid, err := h.member(c)
	if err != nil {
		return err
	}
	var req models.SendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	sender, err := h.userRepository.GetUser(ctx, uid)
	if err != nil {
		return httpError(c, err)
	}

	id, err := h.messageRepository.Append(ctx, c.Param("id"), uid, sender.Name(), req.Text, req.Type)
	if err != nil {
		return httpError(c, err)
	}
	h.metrics.Messages.WithLabelValues("append").Inc()
	return c.JSON(http.StatusCreated, echo.Map{"id": id})
}

// DeleteMessage removes one of the caller's own messages.
func (h *MessageHandler) DeleteMessage(c echo.Context) error {
	uid, err := h.member(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	roomID, msgID := c.Param("id"), c.Param("msgId")

	target, err := h.messageRepository.GetMessage(ctx, roomID, msgID)
	if err != nil {
		return httpError(c, err)
	}
	if target.SenderID != uid {
		return echo.NewHTTPError(http.StatusForbidden, "You can only delete your own messages")
	}

	if err := h.messageRepository.Delete(ctx, roomID, msgID); err != nil {
		return httpError(c, err)
	}
	h.metrics.Messages.WithLabelValues("delete").Inc()
	return c.NoContent(http.StatusNoContent)
}

func (h *MessageHandler) MarkRead(c echo.Context) error {
	uid, err := h.member(c)
	if err != nil {
		return err
	}
	if err := h.messageRepository.MarkRead(c.Request().Context(), c.Param("id"), c.Param("msgId"), uid); err != nil {
		return httpError(c, err)
	}
	h.metrics.Messages.WithLabelValues("read").Inc()
	return c.NoContent(http.StatusNoContent)
}
