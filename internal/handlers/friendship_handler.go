package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/logger"
	"github.com/Razee4315/panda-chat/internal/metrics"
	"github.com/Razee4315/panda-chat/internal/models"
	"github.com/Razee4315/panda-chat/internal/repositories"
)

// FriendshipHandler handles HTTP requests related to friendships
type FriendshipHandler struct {
	friendshipRepository repositories.FriendshipRepository
	metrics              *metrics.Metrics
}

// NewFriendshipHandler creates a new FriendshipHandler
func NewFriendshipHandler(friendshipRepo repositories.FriendshipRepository, m *metrics.Metrics) *FriendshipHandler {
	return &FriendshipHandler{friendshipRepository: friendshipRepo, metrics: m}
}

// RegisterFriendshipRoutes registers friendship-related routes
func (h *FriendshipHandler) RegisterFriendshipRoutes(g *echo.Group) {
	g.POST("/friends/requests", h.SendFriendRequest)
	g.GET("/friends/requests/pending", h.GetPendingFriendRequests)
	g.GET("/friends/requests/sent", h.GetSentFriendRequests)
	g.GET("/friends/requests/stream", h.StreamFriendRequests)
	g.PUT("/friends/requests/:id", h.RespondFriendRequest)
	g.GET("/friends", h.GetFriends)
	g.GET("/friends/stream", h.StreamFriends)
	g.DELETE("/friends/:id", h.DeleteFriend)
}

// SendFriendRequest handles sending a friend request
func (h *FriendshipHandler) SendFriendRequest(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	var req models.SendFriendRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.To == uid {
		return echo.NewHTTPError(http.StatusBadRequest, "Cannot send a friend request to yourself")
	}

	id, err := h.friendshipRepository.SendRequest(c.Request().Context(), uid, req.To)
	if err != nil {
		if errors.Is(err, repositories.ErrAlreadyRequested) {
			h.metrics.FriendRequests.WithLabelValues("duplicate").Inc()
		}
		return httpError(c, err)
	}
	h.metrics.FriendRequests.WithLabelValues("sent").Inc()
	return c.JSON(http.StatusCreated, echo.Map{"id": id})
}

// GetPendingFriendRequests retrieves requests waiting for the caller's answer
func (h *FriendshipHandler) GetPendingFriendRequests(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	requests, err := h.friendshipRepository.PendingRequests(c.Request().Context(), uid)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, requests)
}

func (h *FriendshipHandler) GetSentFriendRequests(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	requests, err := h.friendshipRepository.SentRequests(c.Request().Context(), uid)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, requests)
}

func (h *FriendshipHandler) StreamFriendRequests(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	return stream(c, h.metrics, "friendRequests", func(fn func([]models.FriendRequest)) (*docstore.Subscription, error) {
		return h.friendshipRepository.SubscribeRequests(uid, fn)
	})
}

// RespondFriendRequest accepts or rejects a request. Only its recipient may
// answer.
func (h *FriendshipHandler) RespondFriendRequest(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	var req models.RespondFriendRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	requestID := c.Param("id")

	friendRequest, err := h.friendshipRepository.GetRequest(ctx, requestID)
	if err != nil {
		return httpError(c, err)
	}
	if friendRequest.To != uid {
		return echo.NewHTTPError(http.StatusForbidden, "You are not authorized to answer this friend request")
	}

	updated, err := h.friendshipRepository.Respond(ctx, requestID, req.Action)
	if err != nil {
		return httpError(c, err)
	}
	h.metrics.FriendRequests.WithLabelValues(string(updated.Status)).Inc()
	logger.FromContext(ctx).Info("friend request answered",
		slog.String("request", requestID), slog.String("status", string(updated.Status)))
	return c.JSON(http.StatusOK, updated)
}

// GetFriends retrieves the list of friends for the authenticated user
func (h *FriendshipHandler) GetFriends(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	friends, err := h.friendshipRepository.Friends(c.Request().Context(), uid)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, friends)
}

func (h *FriendshipHandler) StreamFriends(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	return stream(c, h.metrics, "friends", func(fn func([]models.Friend)) (*docstore.Subscription, error) {
		return h.friendshipRepository.SubscribeFriends(uid, fn)
	})
}

// DeleteFriend removes the friendship from both sides
func (h *FriendshipHandler) DeleteFriend(c echo.Context) error {
	uid, err := currentUID(c)
	if err != nil {
		return err
	}
	if err := h.friendshipRepository.RemoveFriend(c.Request().Context(), uid, c.Param("id")); err != nil {
		return httpError(c, err)
	}
	h.metrics.FriendRequests.WithLabelValues("removed").Inc()
	return c.NoContent(http.StatusNoContent)
}
