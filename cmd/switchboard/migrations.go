package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/switchboard-ai/switchboard/internal/config"
	"github.com/switchboard-ai/switchboard/internal/storage/migrate"
	"github.com/switchboard-ai/switchboard/internal/storage/postgres"
	"github.com/switchboard-ai/switchboard/internal/storage/sqlite"
)

// migratable is the slice of the storage engines the migrations CLI needs:
// schema access without the automatic upgrade that openStore performs.
type migratable interface {
	Migrator() (*migrate.Runner, error)
	Close() error
}

func openMigratable(cfg *config.Config) (migratable, error) {
	switch cfg.Storage.DBType {
	case "postgresql":
		return postgres.Open(cfg.Storage.ConnectionString)
	case "sqlite":
		return sqlite.Open(cfg.Storage.DBPath)
	default:
		return nil, fmt.Errorf("unknown db_type %q", cfg.Storage.DBType)
	}
}

func newMigrationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrations",
		Short: "Inspect and apply schema migrations",
	}

	var upVersion int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations (all, or up to --version)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(r *migrate.Runner) error {
				if err := r.Up(cmd.Context(), upVersion); err != nil {
					return err
				}
				v, err := r.CurrentVersion(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "database at version %d\n", v)
				return nil
			})
		},
	}
	up.Flags().IntVar(&upVersion, "version", 0, "target version (0 = newest)")

	var downVersion int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations above --version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(r *migrate.Runner) error {
				if err := r.Down(cmd.Context(), downVersion); err != nil {
					return err
				}
				v, err := r.CurrentVersion(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "database at version %d\n", v)
				return nil
			})
		},
	}
	down.Flags().IntVar(&downVersion, "version", 0, "target version (0 = empty schema)")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(r *migrate.Runner) error {
				rows, err := r.Status(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
				for _, row := range rows {
					fmt.Fprintf(w, "%d\t%s\t%t\n", row.Version, row.Name, row.Applied)
				}
				return w.Flush()
			})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func withRunner(fn func(*migrate.Runner) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openMigratable(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runner, err := db.Migrator()
	if err != nil {
		return err
	}
	return fn(runner)
}
