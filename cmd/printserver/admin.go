package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/orrn/printdispatch/internal/api/middleware"
	"github.com/orrn/printdispatch/internal/config"
	"github.com/orrn/printdispatch/internal/db"
)

func newMigrateCommand(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			database, err := db.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer database.Close()

			applied, err := database.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", v)
			}
			return nil
		},
	}
}

func newTokenCommand(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue worker tokens and admin key hashes",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "worker <restaurant-id>",
			Short: "Sign a worker token for one restaurant",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				restaurantID, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil || restaurantID <= 0 {
					return fmt.Errorf("invalid restaurant id %q", args[0])
				}

				cfg, err := load()
				if err != nil {
					return err
				}
				database, err := db.Open(cfg.Database)
				if err != nil {
					return err
				}
				defer database.Close()
				if _, err := database.Migrate(cmd.Context()); err != nil {
					return err
				}

				auth, err := middleware.NewAuthMiddleware(cmd.Context(), database.Settings(), cfg.Auth)
				if err != nil {
					return err
				}
				token, expires, err := auth.IssueWorkerToken(restaurantID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				cmd.PrintErrf("expires %s\n", expires.UTC().Format("2006-01-02"))
				return nil
			},
		},
		&cobra.Command{
			Use:   "admin-hash <key>",
			Short: "Print the bcrypt hash for auth.admin_key_hash",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				hash, err := middleware.HashAdminKey(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), hash)
				return nil
			},
		},
	)
	return cmd
}
