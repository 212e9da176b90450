package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/handlers"
	"github.com/Razee4315/panda-chat/internal/metrics"
	"github.com/Razee4315/panda-chat/internal/repositories"
)

// Options carries everything SetupRoutes wires besides the store.
type Options struct {
	// Backend names the store backend in health output.
	Backend string
	// Auth authenticates every /api/v1 route except the public auth ones.
	Auth echo.MiddlewareFunc
	// DevTokenSecret enables POST /api/v1/auth/dev-token when set.
	DevTokenSecret string
	// PairIndex and Guard are optional strict-mode collaborators.
	PairIndex repositories.PairIndex
	Guard     repositories.RequestGuard
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, store docstore.Store, opts Options) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	e.GET("/health", handlers.NewHealthHandler(store, opts.Backend).HealthCheck)
	e.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))

	// --- Initialize Repositories ---
	userRepo := repositories.NewStoreUserRepository(store)
	roomRepo := repositories.NewStoreRoomRepository(store, opts.PairIndex)
	messageRepo := repositories.NewStoreMessageRepository(store)
	friendshipRepo := repositories.NewStoreFriendshipRepository(store, opts.Guard)
	notificationRepo := repositories.NewStoreNotificationRepository(store)

	// --- Unprotected routes ---
	authHandler := handlers.NewAuthHandler(userRepo, opts.DevTokenSecret)
	authHandler.RegisterPublicRoutes(e.Group("/api/v1/auth"))
	if opts.DevTokenSecret != "" {
		log.Warn("dev token endpoint enabled; do not expose this server publicly")
	}

	// --- Protected routes ---
	api := e.Group("/api/v1", opts.Auth)
	authHandler.RegisterAuthRoutes(api.Group("/auth"))

	handlers.NewUserHandler(userRepo, opts.Metrics).RegisterProfileRoutes(api)
	handlers.NewRoomHandler(roomRepo, userRepo, opts.Metrics).RegisterRoomRoutes(api)
	handlers.NewMessageHandler(messageRepo, roomRepo, userRepo, opts.Metrics).RegisterMessageRoutes(api)
	handlers.NewFriendshipHandler(friendshipRepo, opts.Metrics).RegisterFriendshipRoutes(api)
	handlers.NewNotificationHandler(notificationRepo, opts.Metrics).RegisterNotificationRoutes(api)

	log.Info("routes configured",
		slog.Bool("pairIndex", opts.PairIndex != nil), slog.Bool("requestGuard", opts.Guard != nil))
}
