package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/accountancy/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Миграции схемы PostgreSQL",
	}
	migrate.PersistentFlags().String("dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")

	up := &cobra.Command{
		Use:   "up",
		Short: "Применить миграции",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return withStore(cmd, func(ctx context.Context, store *postgres.Store) error {
				if err := store.MigrateUp(ctx, steps); err != nil {
					return fmt.Errorf("migrate up failed: %w", err)
				}
				return printMigrationSummary(ctx, cmd.OutOrStdout(), "migrate up ok", store)
			})
		},
	}
	up.Flags().Int("steps", 0, "сколько миграций применить (0 означает все)")

	down := &cobra.Command{
		Use:   "down",
		Short: "Откатить миграции",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			if steps <= 0 {
				steps = 1
			}
			return withStore(cmd, func(ctx context.Context, store *postgres.Store) error {
				if err := store.MigrateDown(ctx, steps); err != nil {
					return fmt.Errorf("migrate down failed: %w", err)
				}
				return printMigrationSummary(ctx, cmd.OutOrStdout(), "migrate down ok", store)
			})
		},
	}
	down.Flags().Int("steps", 1, "сколько миграций откатить")

	status := &cobra.Command{
		Use:   "status",
		Short: "Показать состояние миграций",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, store *postgres.Store) error {
				states, err := store.MigrationStatus(ctx)
				if err != nil {
					return fmt.Errorf("migration status failed: %w", err)
				}
				writeMigrationStates(cmd.OutOrStdout(), states)
				return nil
			})
		},
	}

	migrate.AddCommand(up, down, status)
	return migrate
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *postgres.Store) error) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return fn(ctx, store)
}

func printMigrationSummary(ctx context.Context, out io.Writer, prefix string, store *postgres.Store) error {
	states, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	version, applied := summarizeMigrations(states)
	_, _ = fmt.Fprintf(out, "%s: version=%d applied=%d\n", prefix, version, applied)
	return nil
}

// summarizeMigrations возвращает последнюю применённую версию и число применённых миграций.
func summarizeMigrations(states []postgres.MigrationState) (version int64, applied int) {
	for _, state := range states {
		if !state.Applied {
			continue
		}
		applied++
		if state.Version > version {
			version = state.Version
		}
	}
	return version, applied
}

func writeMigrationStates(out io.Writer, states []postgres.MigrationState) {
	for _, state := range states {
		mark := "pending"
		if state.Applied {
			mark = "applied " + state.AppliedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		_, _ = fmt.Fprintf(out, "%04d %-40s %s\n", state.Version, state.Name, mark)
	}
	version, applied := summarizeMigrations(states)
	_, _ = fmt.Fprintf(out, "migration status: version=%d applied=%d\n", version, applied)
}
