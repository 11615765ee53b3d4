package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/accountancy/internal/app"
)

func newExpireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Разово отменить неоплаченные накладные с истёкшим сроком",
		Long: `Выполняет один проход планировщика просрочки: накладные в статусе CREATED
с ExpiresAt раньше --cutoff отменяются, резерв на складе снимается.
Хранилище и внешние сервисы берутся из переменных окружения ACCOUNTANCY_*.
При заданном ACCOUNTANCY_REDIS_URL берётся блокировка планировщика; если проход
уже выполняет сервис, команда завершается ошибкой.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cutoff, err := parseCutoff(cmd)
			if err != nil {
				return err
			}
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
				cfg.StorageDriver = app.StorageDriverPostgres
				cfg.PostgresDSN = dsn
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			cancelled, err := app.ExpireOnce(ctx, cfg, cutoff)
			if err != nil {
				return fmt.Errorf("expire invoices: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "expired invoices cancelled: %d\n", cancelled)
			return nil
		},
	}
	cmd.Flags().String("cutoff", "", "граница ExpiresAt в RFC3339 (по умолчанию текущее время)")
	cmd.Flags().String("dsn", "", "PostgreSQL DSN; переключает хранилище на postgres")
	return cmd
}

func parseCutoff(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("cutoff")
	if raw == "" {
		return time.Time{}, nil
	}
	cutoff, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --cutoff %q: %w", raw, err)
	}
	return cutoff.UTC(), nil
}
