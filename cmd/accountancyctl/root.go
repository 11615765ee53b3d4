package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/accountancy/internal/storage/postgres"
	"github.com/vladislavdragonenkov/accountancy/internal/version"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "ACCOUNTANCY_POSTGRES_DSN"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "accountancyctl",
		Short:         "Служебные операции сервиса бухгалтерии аптеки",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Duration("timeout", defaultTimeout, "таймаут операции")

	root.AddCommand(newMigrateCmd(), newExpireCmd(), newDLQCmd())
	return root
}

// commandContext ограничивает операцию флагом --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil || timeout <= 0 {
		timeout = defaultTimeout
	}
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}

// resolveDSN берёт --dsn, иначе ACCOUNTANCY_POSTGRES_DSN.
func resolveDSN(cmd *cobra.Command) (string, error) {
	dsn, _ := cmd.Flags().GetString("dsn")
	if strings.TrimSpace(dsn) == "" {
		dsn = os.Getenv(envPostgresDSN)
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", fmt.Errorf("%s (or --dsn) is required", envPostgresDSN)
	}
	return dsn, nil
}

func openStore(ctx context.Context, cmd *cobra.Command) (*postgres.Store, error) {
	dsn, err := resolveDSN(cmd)
	if err != nil {
		return nil, err
	}
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	return store, nil
}
