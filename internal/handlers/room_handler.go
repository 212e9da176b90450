package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/logger"
	"github.com/Razee4315/panda-chat/internal/metrics"
	"github.com/Razee4315/panda-chat/internal/models"
	"github.com/Razee4315/panda-chat/internal/repositories"
)

// RoomHandler handles room listing, creation and group management.
type RoomHandler struct {
	roomRepository repositories.RoomRepository
	userRepository repositories.UserRepository
	metrics        *metrics.Metrics
}

func NewRoomHandler(roomRepo repositories.RoomRepository, userRepo repositories.UserRepository, m *metrics.Metrics) *RoomHandler {
	return &RoomHandler{roomRepository: roomRepo, userRepository: userRepo, metrics: m}
}

// RegisterRoomRoutes registers room routes
func (h *RoomHandler) RegisterRoomRoutes(g *echo.Group) {
	g.GET("/rooms", h.ListRooms)
	g.GET("/rooms/stream", h.StreamRooms)
	g.POST("/rooms/private", h.CreatePrivateRoom)
	g.POST("/rooms/group", h.CreateGroup)
	g.GET("/rooms/:id", h.GetRoom)
	g.GET("/rooms/:id/stream", h.StreamRoom)
	g.PUT("/rooms/:id/name", h.RenameGroup)
	g.POST("/rooms/:id/members", h.AddMembers)
	g.DELETE("/rooms/:id/members/:uid", h.RemoveMember)
}

// memberRoom loads a room the caller belongs to.
func memberRoom(ctx context.Context, c echo.Context, rooms repositories.RoomRepository, roomID, uid string) (*models.Room, error) {
	room, err := rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, httpError(c, err)
	}
	if !room.HasMember(uid) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "You are not a member of this room")
	}
	return room, nil
}

// adminRoom loads a group the caller administers.
func (h *RoomHandler) adminRoom(c echo.Context, uid string) (*models.Room, error) {
	room, err := memberRoom(c.Request().Context(), c, h.roomRepository, c.Param("id"), uid)
	if err != nil {
		return nil, err
	}
	if room.Type == models.RoomGroup && room.GroupAdmin != uid {
		return nil, echo.NewHTTPError(http.StatusForbidden, "Only the group admin can do this")
	}
	return room, nil
}

func (h *RoomHandler) ListRooms(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	rooms, err := h.roomRepository.ListRoomsForUser(c.Request().Context(), uid)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, rooms)
}

func (h *RoomHandler) StreamRooms(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	return stream(c, h.metrics, "rooms", func(fn func([]models.Room)) (*docstore.Subscription, error) {
		return h.roomRepository.SubscribeRooms(uid, fn)
	})
}

// CreatePrivateRoom returns the caller's private room with another user,
// creating it on first use.
func (h *RoomHandler) CreatePrivateRoom(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	var req models.CreatePrivateRoomRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := h.userRepository.GetUser(ctx, req.UserID); err != nil {
		return httpError(c, err)
	}

	id, created, err := h.roomRepository.CreateOrGetPrivateRoom(ctx, uid, req.UserID)
	if err != nil {
		return httpError(c, err)
	}
	if created {
		h.metrics.RoomsCreated.WithLabelValues(string(models.RoomPrivate)).Inc()
	}
	room, err := h.roomRepository.GetRoom(ctx, id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) CreateGroup(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	var req models.CreateGroupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	id, err := h.roomRepository.CreateGroup(ctx, req.Members, req.Name, uid)
	if err != nil {
		return httpError(c, err)
	}
	h.metrics.RoomsCreated.WithLabelValues(string(models.RoomGroup)).Inc()
	logger.FromContext(ctx).Info("group created", slog.String("room", id), slog.Int("members", len(req.Members)))

	room, err := h.roomRepository.GetRoom(ctx, id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) GetRoom(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	room, err := memberRoom(c.Request().Context(), c, h.roomRepository, c.Param("id"), uid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, room)
}

// StreamRoom streams the room until it is deleted or the caller leaves.
// A null event means the caller can no longer see it.
func (h *RoomHandler) StreamRoom(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	roomID := c.Param("id")
	if _, err := memberRoom(c.Request().Context(), c, h.roomRepository, roomID, uid); err != nil {
		return err
	}
	return stream(c, h.metrics, "room", func(fn func(*models.Room)) (*docstore.Subscription, error) {
		return h.roomRepository.SubscribeRoom(roomID, func(room *models.Room) {
			if room != nil && !room.HasMember(uid) {
				room = nil
			}
			fn(room)
		})
	})
}

func (h *RoomHandler) RenameGroup(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	var req models.RenameGroupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if _, err := h.adminRoom(c, uid); err != nil {
		return err
	}
	if err := h.roomRepository.RenameGroup(c.Request().Context(), c.Param("id"), req.Name); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *RoomHandler) AddMembers(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	var req models.AddMembersRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if _, err := h.adminRoom(c, uid); err != nil {
		return err
	}
	if err := h.roomRepository.AddMembers(c.Request().Context(), c.Param("id"), req.UserIDs); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RemoveMember lets the admin remove anyone and any member remove
// themselves.
func (h *RoomHandler) RemoveMember(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	target := c.Param("uid")
	if target == uid {
		_, err = memberRoom(c.Request().Context(), c, h.roomRepository, c.Param("id"), uid)
	} else {
		_, err = h.adminRoom(c, uid)
	}
	if err != nil {
		return err
	}
	if err := h.roomRepository.RemoveMember(c.Request().Context(), c.Param("id"), target); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
