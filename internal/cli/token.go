package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/special-access-gate/internal/config"
	"github.com/sandeepkv93/special-access-gate/internal/di"
	"github.com/sandeepkv93/special-access-gate/internal/repository"
	"github.com/sandeepkv93/special-access-gate/internal/service"
	"github.com/sandeepkv93/special-access-gate/internal/tools/common"
	"github.com/sandeepkv93/special-access-gate/internal/tools/ui"
)

func newTokenCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Manage special access tokens"}
	cmd.AddCommand(
		newTokenCreateCommand(opts),
		newTokenListCommand(opts),
		newTokenStateCommand(opts, "revoke", "Revoke a token and end its sessions"),
		newTokenStateCommand(opts, "reactivate", "Re-enable a revoked token"),
		newTokenCleanupCommand(opts),
	)
	return cmd
}

func newTokenCreateCommand(opts *options) *cobra.Command {
	in := service.CreateTokenInput{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a token and passkey; the passkey is shown only once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Name == "" {
				return fmt.Errorf("--name is required")
			}
			if in.CreatedBy == "" {
				in.CreatedBy = opts.actor
			}
			return withOperator(cmd, opts, "token create", func(ctx context.Context, op *di.Operator) ([]string, error) {
				created, err := op.Registry.CreateToken(ctx, in)
				if err != nil {
					return nil, err
				}
				return []string{
					"id=" + strconv.FormatUint(uint64(created.ID), 10),
					"token=" + created.Token,
					"passkey=" + created.Passkey,
					"max_sessions=" + strconv.Itoa(created.MaxSessions),
				}, nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "holder name")
	cmd.Flags().StringVar(&in.Email, "email", "", "holder email")
	cmd.Flags().StringVar(&in.Description, "description", "", "free-form note")
	cmd.Flags().StringVar(&in.CreatedBy, "created-by", "", "issuer recorded on the token (defaults to --actor)")
	cmd.Flags().IntVar(&in.MaxSessions, "max-sessions", service.DefaultMaxSessions, "concurrent session ceiling")
	return cmd
}

func newTokenListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tokens with their active session counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.envFile)
			if err != nil {
				return err
			}
			logger := operatorLogger(cfg, opts)
			var rows []repository.TokenWithSessions
			_, err = run(opts, "token list", func(ctx context.Context) ([]string, error) {
				op, cleanup, err := di.InitializeOperator(ctx, cfg, logger)
				if err != nil {
					return nil, err
				}
				defer cleanup()
				rows, err = op.Registry.ListTokens(ctx)
				if err != nil {
					return nil, err
				}
				return []string{fmt.Sprintf("%d tokens", len(rows))}, nil
			})
			if err != nil {
				if opts.ci {
					common.WriteCIResult(cmd.OutOrStdout(), false, "token list", nil, err)
				}
				return err
			}
			if opts.ci {
				return common.PrintJSON(cmd.OutOrStdout(), rows)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), ui.Table(tokenHeaders, tokenRows(rows)))
			return err
		},
	}
}

var tokenHeaders = []string{"ID", "NAME", "EMAIL", "ACTIVE", "SESSIONS", "USES", "LAST USED"}

func tokenRows(rows []repository.TokenWithSessions) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		lastUsed := "-"
		if r.LastUsedAt != nil {
			lastUsed = r.LastUsedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, []string{
			strconv.FormatUint(uint64(r.ID), 10),
			r.Name,
			r.Email,
			strconv.FormatBool(r.IsActive),
			fmt.Sprintf("%d/%d", r.ActiveSessions, r.MaxSessions),
			strconv.FormatInt(r.UsageCount, 10),
			lastUsed,
		})
	}
	return out
}

func newTokenStateCommand(opts *options, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withOperator(cmd, opts, "token "+verb, func(ctx context.Context, op *di.Operator) ([]string, error) {
				apply := op.Registry.ReactivateToken
				if verb == "revoke" {
					apply = op.Registry.RevokeToken
				}
				if err := apply(ctx, id, opts.actor); err != nil {
					return nil, err
				}
				return []string{fmt.Sprintf("token %d %sd", id, verb)}, nil
			})
		},
	}
}

func newTokenCleanupCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete placeholder tokens named Unknown with no email",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(cmd, opts, "token cleanup", func(ctx context.Context, op *di.Operator) ([]string, error) {
				deleted, err := op.Registry.CleanupUnknownTokens(ctx)
				if err != nil {
					return nil, err
				}
				return []string{fmt.Sprintf("deleted=%d", deleted)}, nil
			})
		},
	}
}

func parseID(raw string) (uint, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(n), nil
}
