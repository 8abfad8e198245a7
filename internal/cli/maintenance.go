package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/special-access-gate/internal/config"
	"github.com/sandeepkv93/special-access-gate/internal/di"
	"github.com/sandeepkv93/special-access-gate/internal/security"
	"github.com/sandeepkv93/special-access-gate/internal/tools/common"
)

func newSessionCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Manage special access sessions"}
	cmd.AddCommand(&cobra.Command{
		Use:   "terminate <id>",
		Short: "End one session immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withOperator(cmd, opts, "session terminate", func(ctx context.Context, op *di.Operator) ([]string, error) {
				if err := op.Sessions.TerminateSession(ctx, id, opts.actor); err != nil {
					return nil, err
				}
				return []string{fmt.Sprintf("session %d terminated", id)}, nil
			})
		},
	})
	return cmd
}

func newMaintenanceCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "maintenance", Short: "Inspect or toggle maintenance mode"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show whether maintenance is active and when it ends",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withOperator(cmd, opts, "maintenance status", func(ctx context.Context, op *di.Operator) ([]string, error) {
					state, err := op.Maintenance.State(ctx)
					if err != nil {
						return nil, err
					}
					details := []string{fmt.Sprintf("enabled=%t", state.Enabled)}
					if state.EndTime != nil {
						details = append(details, "end_time="+state.EndTime.UTC().Format(time.RFC3339))
					}
					return details, nil
				})
			},
		},
		newMaintenanceEnableCommand(opts),
		&cobra.Command{
			Use:   "disable",
			Short: "Turn maintenance off and end every special access session",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withOperator(cmd, opts, "maintenance disable", func(ctx context.Context, op *di.Operator) ([]string, error) {
					ended, err := op.Maintenance.Disable(ctx)
					if err != nil {
						return nil, err
					}
					return []string{fmt.Sprintf("sessions_ended=%d", ended)}, nil
				})
			},
		},
	)
	return cmd
}

func newMaintenanceEnableCommand(opts *options) *cobra.Command {
	var (
		until string
		span  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Turn maintenance on, optionally with a scheduled end",
		RunE: func(cmd *cobra.Command, args []string) error {
			end, err := maintenanceEnd(until, span, time.Now())
			if err != nil {
				return err
			}
			return withOperator(cmd, opts, "maintenance enable", func(ctx context.Context, op *di.Operator) ([]string, error) {
				if err := op.Maintenance.Enable(ctx, end); err != nil {
					return nil, err
				}
				if end == nil {
					return []string{"enabled=true", "end_time=none"}, nil
				}
				return []string{"enabled=true", "end_time=" + end.UTC().Format(time.RFC3339)}, nil
			})
		},
	}
	cmd.Flags().StringVar(&until, "until", "", "scheduled end as RFC3339")
	cmd.Flags().DurationVar(&span, "for", 0, "scheduled end relative to now")
	cmd.MarkFlagsMutuallyExclusive("until", "for")
	return cmd
}

func maintenanceEnd(until string, span time.Duration, now time.Time) (*time.Time, error) {
	switch {
	case until != "":
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return nil, fmt.Errorf("--until must be RFC3339: %w", err)
		}
		if !t.After(now) {
			return nil, fmt.Errorf("--until must be in the future")
		}
		return &t, nil
	case span < 0:
		return nil, fmt.Errorf("--for must be positive")
	case span > 0:
		t := now.Add(span)
		return &t, nil
	default:
		return nil, nil
	}
}

func newAdminTokenCommand(opts *options) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
		perms   []string
		noAdmin bool
	)
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Mint an admin JWT for the admin API and maintenance bypass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.envFile)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.AdminTokenTTL
			}
			var roles []string
			if !noAdmin {
				roles = []string{security.RoleAdmin}
			}
			jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret)
			signed, err := jwtMgr.SignAdminToken(subject, roles, perms, ttl)
			if err != nil {
				if opts.ci {
					common.WriteCIResult(cmd.OutOrStdout(), false, "admin-token", nil, err)
				}
				return err
			}
			if opts.ci {
				common.WriteCIResult(cmd.OutOrStdout(), true, "admin-token", []string{signed}, nil)
				return nil
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject recorded as the acting admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to ADMIN_TOKEN_TTL)")
	cmd.Flags().StringSliceVar(&perms, "permission", nil, "extra permissions, repeatable")
	cmd.Flags().BoolVar(&noAdmin, "no-admin-role", false, "omit the admin role and rely on --permission only")
	return cmd
}
