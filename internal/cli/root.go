// Package cli implements posctl, the operator tool for the sync backend.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"possync/backend/internal/config"
	"possync/backend/internal/logging"
	"possync/backend/internal/store"
	"possync/backend/internal/store/memory"
	pgstore "possync/backend/internal/store/postgres"
)

var ValidFormats = []string{"text", "json"}

// RepositoryOpener returns the repository a command works on and an optional closer.
type RepositoryOpener func(ctx context.Context, cfg config.Config) (store.Repository, func() error, error)

// RootOptions holds global flags and the dependencies commands share.
type RootOptions struct {
	Format     string
	Verbose    bool
	LoadConfig func() config.Config
	Open       RepositoryOpener

	cfg    config.Config
	logger *logrus.Logger
}

func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{})
}

// NewRootCommandWith builds the command tree on caller-supplied options. Nil hooks fall
// back to the environment and the default repository.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.Load
	}
	if opts.Open == nil {
		opts.Open = OpenRepository
	}

	cmd := &cobra.Command{
		Use:   "posctl",
		Short: "Operate the POS sync backend",
		Long:  "posctl applies the schema, rebuilds sales summaries and manages tokens and users of the POS sync backend.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.cfg = opts.LoadConfig()
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			opts.logger = logging.NewWithOutput(level, "text", cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewRecomputeCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))

	return cmd
}

// OpenRepository opens Postgres when DATABASE_URL is set and the demo memory store
// otherwise.
func OpenRepository(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}
	if cfg.SeedFile != "" {
		mem, err := memory.LoadSeedFile(cfg.SeedFile)
		return mem, nil, err
	}
	return memory.NewSeeded(), nil, nil
}

func (o *RootOptions) withRepository(ctx context.Context, fn func(repo store.Repository) error) error {
	repo, closeFn, err := o.Open(ctx, o.cfg)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	if closeFn != nil {
		defer func() {
			if err := closeFn(); err != nil {
				o.logger.WithError(err).Warn("close repository")
			}
		}()
	}
	return fn(repo)
}

// emit writes v as indented JSON, or text via the fallback.
func (o *RootOptions) emit(w io.Writer, v any, text func(w io.Writer) error) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}
