package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/special-access-gate/internal/config"
	"github.com/sandeepkv93/special-access-gate/internal/di"
	"github.com/sandeepkv93/special-access-gate/internal/observability"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Apply migrations and run the HTTP server until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.envFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := observability.NewLogger(cfg, os.Stdout)
			rt, err := observability.InitRuntime(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("init observability: %w", err)
			}
			a, cleanup, err := di.InitializeApp(ctx, cfg, rt)
			if err != nil {
				_ = rt.Shutdown(context.Background())
				return fmt.Errorf("wire app: %w", err)
			}
			defer cleanup()
			return a.Run(ctx)
		},
	}
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(cmd, opts, "migrate", func(_ context.Context, op *di.Operator) ([]string, error) {
				if len(op.Migrated.Versions) == 0 {
					return []string{"schema is up to date"}, nil
				}
				details := make([]string, 0, len(op.Migrated.Versions))
				for _, v := range op.Migrated.Versions {
					details = append(details, "applied "+v)
				}
				return details, nil
			})
		},
	}
}
