package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/accountancy/internal/messaging/kafka"
)

const envKafkaBrokers = "KAFKA_BROKERS"

func newDLQCmd() *cobra.Command {
	dlq := &cobra.Command{
		Use:   "dlq",
		Short: "Операции с dead letter queue",
	}

	defaults := kafka.DefaultReplayConfig()
	replay := &cobra.Command{
		Use:   "replay",
		Short: "Вернуть сообщения из DLQ в рабочие топики",
		Long: `Читает DLQ и публикует сообщения обратно: outbox-записи накладных
в --target-topic, сообщения consumer'а в исходный топик из original_topic.
Без --execute выполняется dry-run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := replayConfigFromFlags(cmd)
			if err != nil {
				return err
			}
			brokers, err := resolveBrokers(cmd)
			if err != nil {
				return err
			}

			replayer, closeFn, err := kafka.DialReplayer(brokers, cfg.Execute)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			ctx, cancel := commandContext(cmd)
			defer cancel()

			stats, err := replayer.Run(ctx, cfg)
			if err != nil {
				return fmt.Errorf("dlq replay: %w", err)
			}
			mode := "dry-run"
			if cfg.Execute {
				mode = "execute"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dlq replay %s: processed=%d replayed=%d skipped=%d\n",
				mode, stats.Processed, stats.Replayed, stats.Skipped)
			return nil
		},
	}
	replay.Flags().String("brokers", "", "список брокеров через запятую (fallback: "+envKafkaBrokers+")")
	replay.Flags().String("source-topic", defaults.SourceTopic, "топик DLQ")
	replay.Flags().String("target-topic", defaults.TargetTopic, "топик для outbox-сообщений")
	replay.Flags().Int("limit", defaults.Limit, "максимум сообщений за прогон")
	replay.Flags().Bool("execute", false, "публиковать сообщения (иначе dry-run)")
	replay.Flags().Bool("from-newest", false, "читать только последние --limit сообщений каждой партиции")
	replay.Flags().Duration("idle-timeout", defaults.IdleTimeout, "сколько ждать новых сообщений партиции")

	dlq.AddCommand(replay)
	return dlq
}

func replayConfigFromFlags(cmd *cobra.Command) (kafka.ReplayConfig, error) {
	cfg := kafka.DefaultReplayConfig()
	flags := cmd.Flags()
	cfg.SourceTopic, _ = flags.GetString("source-topic")
	cfg.TargetTopic, _ = flags.GetString("target-topic")
	cfg.Limit, _ = flags.GetInt("limit")
	cfg.Execute, _ = flags.GetBool("execute")
	cfg.FromNewest, _ = flags.GetBool("from-newest")
	cfg.IdleTimeout, _ = flags.GetDuration("idle-timeout")
	if err := cfg.Validate(); err != nil {
		return kafka.ReplayConfig{}, err
	}
	return cfg, nil
}

func resolveBrokers(cmd *cobra.Command) ([]string, error) {
	raw, _ := cmd.Flags().GetString("brokers")
	if strings.TrimSpace(raw) == "" {
		raw = os.Getenv(envKafkaBrokers)
	}
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%s (or --brokers) is required", envKafkaBrokers)
	}
	return brokers, nil
}
