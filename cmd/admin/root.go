package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/usermgmt/usermgmt/internal/auth"
	"github.com/usermgmt/usermgmt/internal/repository"
	"github.com/usermgmt/usermgmt/internal/service"
)

const defaultTimeout = 30 * time.Second

// globalOptions are shared by every subcommand.
type globalOptions struct {
	databaseURL string
	timeout     time.Duration
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "admin",
		Short:         "User service maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "Overall timeout for the command")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newSweepCmd(opts),
		newIssueKeyCmd(opts),
		newAuditCmd(opts),
	)

	return cmd
}

func (o *globalOptions) validate() error {
	if o.databaseURL == "" {
		return errors.New("DATABASE_URL or --database-url is required")
	}
	return nil
}

func (o *globalOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// services bundles what the data commands need.
type services struct {
	repo  *repository.Repository
	users *service.UserService
	keys  *service.APIKeyService
}

func (o *globalOptions) open(ctx context.Context, cmd *cobra.Command) (*services, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	repo, err := repository.New(ctx, o.databaseURL)
	if err != nil {
		return nil, err
	}

	logger := o.logger(cmd.ErrOrStderr())
	hasher := auth.NewPasswordHasher(envOr("PASSWORD_HASH_ALGORITHM", auth.AlgorithmBcrypt), 0)

	return &services{
		repo:  repo,
		users: service.NewUserService(repo, hasher, nil, logger),
		keys:  service.NewAPIKeyService(repo, repo, hasher, nil, logger, service.WithSweepOnLogout(false)),
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
