package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/usermgmt/usermgmt/internal/repository"
	"github.com/usermgmt/usermgmt/internal/service"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			if err := repository.Migrate(ctx, opts.databaseURL); err != nil {
				return err
			}
			version, err := repository.MigrationVersion(ctx, opts.databaseURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}

func newSeedCmd(opts *globalOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default admin and test users when no users exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			svc, err := opts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer svc.repo.Close()

			seeded, err := svc.users.SeedDefaults(ctx, password)
			if err != nil {
				return err
			}
			if seeded {
				fmt.Fprintln(cmd.OutOrStdout(), "default users created")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "users already present, nothing to do")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", envOr("SEED_PASSWORD", "TestPass1"), "Password for the default users")
	return cmd
}

func newSweepCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired API keys once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			svc, err := opts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer svc.repo.Close()

			removed, err := svc.keys.SweepExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired keys\n", removed)
			return nil
		},
	}
}

// issuedKeyOutput is the JSON form of issue-key output.
type issuedKeyOutput struct {
	Username  string    `json:"username"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func newIssueKeyCmd(opts *globalOptions) *cobra.Command {
	var (
		username string
		password string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "issue-key",
		Short: "Log in as a user and print a fresh API key",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateFormat(format)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			svc, err := opts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer svc.repo.Close()

			issued, err := svc.keys.Login(ctx, username, password)
			switch {
			case errors.Is(err, service.ErrUserNotFound):
				return fmt.Errorf("user %q not found", username)
			case errors.Is(err, service.ErrInvalidCredentials):
				return errors.New("password is incorrect")
			case err != nil:
				return err
			}

			return printIssued(cmd.OutOrStdout(), format, issuedKeyOutput{
				Username:  username,
				Key:       issued.Key,
				ExpiresAt: issued.ExpiresAt,
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "admin", "User to issue the key for")
	cmd.Flags().StringVar(&password, "password", envOr("SEED_PASSWORD", "TestPass1"), "The user's password")
	cmd.Flags().StringVar(&format, "format", "plain", "Output format: plain or json")
	return cmd
}

func validateFormat(format string) error {
	switch format {
	case "plain", "json":
		return nil
	default:
		return fmt.Errorf("unsupported format %q (use plain or json)", format)
	}
}

func printIssued(w io.Writer, format string, out issuedKeyOutput) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "API key for %s (expires %s):\n%s\n", out.Username, out.ExpiresAt.Format(time.RFC3339), out.Key)
	return nil
}
