package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/special-access-gate/internal/config"
	"github.com/sandeepkv93/special-access-gate/internal/di"
	"github.com/sandeepkv93/special-access-gate/internal/observability"
	"github.com/sandeepkv93/special-access-gate/internal/tools/common"
	"github.com/sandeepkv93/special-access-gate/internal/tools/ui"
)

type options struct {
	envFile string
	ci      bool
	actor   string
	timeout time.Duration
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "gate",
		Short:         "Special access gate server and operator tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional env file loaded before the process environment")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.PersistentFlags().StringVar(&opts.actor, "actor", "cli", "operator name recorded in the access log")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", time.Minute, "deadline for operator commands")
	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newTokenCommand(opts),
		newSessionCommand(opts),
		newMaintenanceCommand(opts),
		newAdminTokenCommand(opts),
	)
	return cmd
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

// withOperator runs fn against freshly wired services and reports the outcome the way the
// output mode expects.
func withOperator(cmd *cobra.Command, opts *options, title string, fn func(context.Context, *di.Operator) ([]string, error)) error {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}
	logger := operatorLogger(cfg, opts)
	details, err := run(opts, title, func(ctx context.Context) ([]string, error) {
		op, cleanup, err := di.InitializeOperator(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		return fn(ctx, op)
	})
	if opts.ci {
		common.WriteCIResult(cmd.OutOrStdout(), err == nil, title, details, err)
	}
	return err
}

// operatorLogger keeps service logs off the terminal while the spinner owns it.
func operatorLogger(cfg *config.Config, opts *options) *slog.Logger {
	if opts.ci {
		return observability.NewLogger(cfg, os.Stderr)
	}
	return observability.NewLogger(cfg, io.Discard)
}
