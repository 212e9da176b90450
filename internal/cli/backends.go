package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/Razee4315/panda-chat/internal/docstore"
	"github.com/Razee4315/panda-chat/internal/middleware"
	"github.com/Razee4315/panda-chat/internal/repositories"
	"github.com/Razee4315/panda-chat/pkg/config"
	"github.com/Razee4315/panda-chat/pkg/firebase"
)

// backends is everything opened from the config. close releases it in
// reverse order.
type backends struct {
	store     docstore.Store
	pairIndex repositories.PairIndex
	guard     repositories.RequestGuard
	auth      echo.MiddlewareFunc
	db        *config.DB
}

func (b *backends) close() {
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			slog.Error("error closing store", slog.String("error", err.Error()))
		}
	}
	if b.db != nil {
		b.db.CloseDB()
	}
}

// openBackends connects the store and the optional strict-mode
// collaborators. withAuth also builds the auth middleware.
func openBackends(ctx context.Context, cfg *config.Config, withAuth bool) (*backends, error) {
	db, err := config.InitDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b := &backends{db: db}

	var fb *firebase.App
	if cfg.StoreBackend == config.BackendRTDB || (withAuth && cfg.NeedsFirebase()) {
		dbURL := ""
		if cfg.StoreBackend == config.BackendRTDB {
			dbURL = cfg.FirebaseDatabaseURL
		}
		if fb, err = firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath, dbURL); err != nil {
			b.close()
			return nil, err
		}
	}

	switch cfg.StoreBackend {
	case config.BackendRTDB:
		b.store = docstore.NewRTDBStore(fb.Database, cfg.PollInterval)
	case config.BackendMongo:
		b.store = docstore.NewMongoStore(db.Mongo.Database(cfg.MongoDatabase))
	default:
		slog.Warn("using the in-memory store; data is lost on exit")
		b.store = docstore.NewMemoryStore()
	}

	if db.SQL != nil {
		if b.pairIndex, err = repositories.NewGormPairIndex(db.SQL); err != nil {
			b.close()
			return nil, err
		}
	}
	switch cfg.RequestGuard {
	case "redis":
		b.guard = repositories.NewRedisRequestGuard(db.Redis)
	case "local":
		b.guard = repositories.NewLocalRequestGuard()
	}

	if withAuth {
		switch cfg.AuthMode {
		case config.AuthLocal:
			b.auth = middleware.JWTAuthMiddleware(cfg.JWTSecret)
		case config.AuthFirebase:
			b.auth = middleware.FirebaseAuthMiddleware(fb.AuthClient)
		default:
			b.close()
			return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
		}
	}
	return b, nil
}
