package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"possync/backend/internal/aggregation"
	"possync/backend/internal/domain"
	"possync/backend/internal/httpapi"
	"possync/backend/internal/service"
	"possync/backend/internal/store"
)

const minSecretLength = 32

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the Postgres schema",
		Long:         "Apply the embedded schema to DATABASE_URL. Every statement is idempotent.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRepository(cmd.Context(), func(repo store.Repository) error {
				migrator, ok := repo.(interface{ Migrate(ctx context.Context) error })
				if !ok {
					return errors.New("migrate needs DATABASE_URL to point at Postgres")
				}
				if err := migrator.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("apply schema: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
				return nil
			})
		},
	}
}

type RecomputeOptions struct {
	*RootOptions
	TenantID string
	StoreID  string
	From     string
	To       string
}

func NewRecomputeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecomputeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild daily sales summaries",
		Long: `Rebuild the daily and per-product summaries of one store for every day in
[--from, --to]. Days are calendar days in REPORT_TIMEZONE.

Examples:
  posctl recompute --tenant tenant-demo --from 2025-05-01
  posctl recompute --tenant tenant-demo --store store-branch --from 2025-05-01 --to 2025-05-07 --format json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecompute(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.Flags().StringVar(&opts.StoreID, "store", "", "store id (defaults to the tenant's first store)")
	cmd.Flags().StringVar(&opts.From, "from", "", "first day, YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("from")
	cmd.Flags().StringVar(&opts.To, "to", "", "last day, YYYY-MM-DD (defaults to --from)")

	return cmd
}

func runRecompute(cmd *cobra.Command, opts *RecomputeOptions) error {
	from, err := time.Parse(time.DateOnly, opts.From)
	if err != nil {
		return fmt.Errorf("invalid --from %q", opts.From)
	}
	to := from
	if opts.To != "" {
		if to, err = time.Parse(time.DateOnly, opts.To); err != nil {
			return fmt.Errorf("invalid --to %q", opts.To)
		}
	}
	if to.Before(from) {
		return errors.New("--to is before --from")
	}
	loc, err := opts.cfg.Location()
	if err != nil {
		opts.logger.WithError(err).Warn("report timezone unavailable, using UTC")
	}

	return opts.withRepository(cmd.Context(), func(repo store.Repository) error {
		svc := service.New(repo, service.Options{
			Aggregator: aggregation.NewAggregator(repo, loc),
			Logger:     opts.logger,
		})
		ctx := service.WithActor(cmd.Context(), domain.Actor{
			Username: "posctl",
			Role:     domain.RoleAdmin,
			TenantID: opts.TenantID,
		})

		summaries := make([]domain.DailySalesSummary, 0, int(to.Sub(from).Hours()/24)+1)
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			summary, err := svc.Recompute(ctx, domain.RecomputeRequest{StoreID: opts.StoreID, Date: day.Format(time.DateOnly)})
			if err != nil {
				return fmt.Errorf("recompute %s: %w", day.Format(time.DateOnly), err)
			}
			summaries = append(summaries, summary)
		}

		return opts.emit(cmd.OutOrStdout(), summaries, func(w io.Writer) error {
			for _, s := range summaries {
				fmt.Fprintf(w, "%s  %s  transactions=%d  gross=%s  cogs=%s  profit=%s\n",
					s.Date.Format(time.DateOnly), s.StoreID, s.TransactionCount,
					s.GrossSales.StringFixed(2), s.CostOfGoodsSold.StringFixed(2), s.GrossProfit.StringFixed(2))
			}
			return nil
		})
	})
}

type TokenOptions struct {
	*RootOptions
	Subject  string
	TenantID string
	StoreID  string
	Role     string
	TTL      time.Duration
}

type tokenOutput struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a terminal or operator",
		Long: `Sign an access token with AUTH_SECRET. Terminals that sync without an
interactive login are provisioned this way.

Examples:
  posctl token --tenant tenant-demo --subject term-01 --store store-main
  posctl token --tenant tenant-demo --subject ops --role admin --ttl 1h`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(opts.cfg.AuthSecret) < minSecretLength {
				return fmt.Errorf("AUTH_SECRET must be set and at least %d characters", minSecretLength)
			}
			auth := httpapi.NewAuthManager(opts.cfg.AuthSecret, time.Duration(opts.cfg.AccessTokenTTLMinutes)*time.Minute, nil)
			token, expiresAt, err := auth.IssueToken(domain.Actor{
				Username: strings.TrimSpace(opts.Subject),
				Role:     strings.ToLower(strings.TrimSpace(opts.Role)),
				TenantID: strings.TrimSpace(opts.TenantID),
				StoreID:  strings.TrimSpace(opts.StoreID),
			}, opts.TTL)
			if err != nil {
				return err
			}

			out := tokenOutput{AccessToken: token, ExpiresAt: expiresAt}
			return opts.emit(cmd.OutOrStdout(), out, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, token)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "token subject, usually the terminal id (required)")
	_ = cmd.MarkFlagRequired("subject")
	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.Flags().StringVar(&opts.StoreID, "store", "", "default store of the token")
	cmd.Flags().StringVar(&opts.Role, "role", domain.RoleTerminal, "role: terminal, cashier or admin")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime (defaults to ACCESS_TOKEN_TTL_MINUTES)")

	return cmd
}

type UserAddOptions struct {
	*RootOptions
	Username string
	Password string
	Role     string
	TenantID string
	StoreID  string
}

func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage login accounts",
	}
	cmd.AddCommand(newUserAddCommand(rootOpts))
	return cmd
}

func newUserAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:          "add",
		Short:        "Create a login account",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRepository(cmd.Context(), func(repo store.Repository) error {
				auth := httpapi.NewAuthManager(opts.cfg.AuthSecret, time.Hour, repo)
				created, err := auth.CreateUser(cmd.Context(), domain.UserAccount{
					Username: opts.Username,
					Role:     strings.ToLower(strings.TrimSpace(opts.Role)),
					TenantID: strings.TrimSpace(opts.TenantID),
					StoreID:  strings.TrimSpace(opts.StoreID),
				}, opts.Password)
				if err != nil {
					return err
				}
				return opts.emit(cmd.OutOrStdout(), map[string]string{
					"username":  created.Username,
					"role":      created.Role,
					"tenant_id": created.TenantID,
				}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "created %s (%s) for %s\n", created.Username, created.Role, created.TenantID)
					return err
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Username, "username", "", "login name (required)")
	_ = cmd.MarkFlagRequired("username")
	cmd.Flags().StringVar(&opts.Password, "password", "", "initial password (required)")
	_ = cmd.MarkFlagRequired("password")
	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.Flags().StringVar(&opts.Role, "role", domain.RoleCashier, "role: terminal, cashier or admin")
	cmd.Flags().StringVar(&opts.StoreID, "store", "", "default store of the account")

	return cmd
}
