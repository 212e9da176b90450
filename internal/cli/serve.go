package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/Razee4315/panda-chat/internal/metrics"
	"github.com/Razee4315/panda-chat/internal/router"
	"github.com/Razee4315/panda-chat/pkg/config"
	"github.com/Razee4315/panda-chat/validators"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, log)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port, overrides PORT")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	b, err := openBackends(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer b.close()

	m := metrics.New()
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validators.NewValidator()
	config.SetupMiddleware(e, log, m)

	devSecret := ""
	if cfg.AuthMode == config.AuthLocal {
		devSecret = cfg.JWTSecret
	}
	router.SetupRoutes(e, b.store, router.Options{
		Backend:        cfg.StoreBackend,
		Auth:           b.auth,
		DevTokenSecret: devSecret,
		PairIndex:      b.pairIndex,
		Guard:          b.guard,
		Metrics:        m,
		Logger:         log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", slog.String("port", cfg.Port), slog.String("store", cfg.StoreBackend),
			slog.String("auth", cfg.AuthMode))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
