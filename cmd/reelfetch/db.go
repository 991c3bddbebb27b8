package main

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"reelfetch/internal/repository/postgres"
)

func newDBCmd(a *app) *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the extraction diagnostics database",
	}
	cmd.PersistentFlags().StringVar(&dbURL, "db", "", "Database URL (defaults to DATABASE_URL)")

	open := func(cmd *cobra.Command) (*sql.DB, error) {
		url := dbURL
		if url == "" {
			url = a.cfg.DatabaseURL
		}
		if url == "" {
			return nil, fmt.Errorf("no database URL: set DATABASE_URL or pass --db")
		}
		return postgres.Open(cmd.Context(), url)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.RunMigrations(cmd.Context(), db, a.log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations completed")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := postgres.GetMigrationStatus(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "current version: %d\nlatest version:  %d\n", version, postgres.LatestVersion())
			return nil
		},
	})

	var yes bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Drop all tables (WARNING: destroys all data)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				if err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
					"WARNING: This will delete ALL data in the database. Type 'yes' to confirm: "); err != nil {
					return err
				}
			}

			db, err := open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.ResetDatabase(cmd.Context(), db, a.log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database reset. Run `reelfetch db migrate` to recreate tables.")
			return nil
		},
	}
	reset.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	cmd.AddCommand(reset)

	return cmd
}

// confirm asks for a literal "yes" on in
func confirm(in io.Reader, out io.Writer, prompt string) error {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	if strings.TrimSpace(line) != "yes" {
		return fmt.Errorf("not confirmed")
	}
	return nil
}
