package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Razee4315/panda-chat/internal/logger"
	"github.com/Razee4315/panda-chat/pkg/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Backend  string
	LogLevel string
	Format   string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the panda-chat command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "panda-chat",
		Short: "Chat rooms, messages and friends over a hierarchical document store",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "store backend (memory|rtdb|mongo), overrides STORE_BACKEND")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, *slog.Logger, error) {
	cfg := config.Load()
	if opts.Backend != "" {
		cfg.StoreBackend = opts.Backend
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	log := logger.New(os.Stderr, cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
