package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/framefish/subsift/internal/config"
	"github.com/framefish/subsift/internal/store"
)

func newMigrateCommand(cfg **config.Config) *cobra.Command {
	var dirFlag string
	var dbFlag string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the cue database schema",
	}
	cmd.PersistentFlags().StringVar(&dirFlag, "migrations", "migrations", "Migrations directory")
	cmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Database path (defaults to [output] database_path)")

	open := func() (*store.DB, error) {
		path := dbFlag
		if path == "" {
			path = (*cfg).Output.DatabasePath
		}
		if path == "" {
			return nil, fmt.Errorf("no database path: set --db or [output] database_path")
		}
		return store.NewDB(path)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			return db.MigrateUp(dirFlag)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			return db.MigrateDown(dirFlag)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			version, dirty, err := db.MigrateVersion(dirFlag)
			if err != nil {
				return err
			}
			fmt.Printf("version %d dirty %v\n", version, dirty)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Force the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			return db.MigrateForce(dirFlag, version)
		},
	})

	return cmd
}
