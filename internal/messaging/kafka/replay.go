package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultReplayLimit       = 100
	DefaultReplayIdleTimeout = 2 * time.Second
)

// ReplayConfig задаёт параметры повторной публикации сообщений из DLQ.
type ReplayConfig struct {
	SourceTopic string
	// TargetTopic используется для outbox-сообщений и для записей без original_topic.
	TargetTopic string
	Limit       int
	// Execute=false означает dry-run: кандидаты только логируются.
	Execute     bool
	FromNewest  bool
	IdleTimeout time.Duration
}

// DefaultReplayConfig возвращает dry-run конфигурацию для DLQ сервиса.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		SourceTopic: TopicDeadLetterQueue,
		TargetTopic: TopicInvoiceEvents,
		Limit:       DefaultReplayLimit,
		IdleTimeout: DefaultReplayIdleTimeout,
	}
}

// Validate проверяет конфигурацию replay.
func (c ReplayConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.SourceTopic) == "":
		return fmt.Errorf("source topic is required")
	case strings.TrimSpace(c.TargetTopic) == "":
		return fmt.Errorf("target topic is required")
	case c.Limit <= 0:
		return fmt.Errorf("limit must be > 0")
	case c.IdleTimeout <= 0:
		return fmt.Errorf("idle timeout must be > 0")
	}
	return nil
}

// ReplayStats считает итог прогона.
type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

func (s *ReplayStats) add(other ReplayStats) {
	s.Processed += other.Processed
	s.Replayed += other.Replayed
	s.Skipped += other.Skipped
}

// OffsetSource отдаёт партиции и границы offset'ов топика (sarama.Client).
type OffsetSource interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
}

// PartitionConsumer повторяет нужную часть sarama.PartitionConsumer.
type PartitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

// PartitionSource открывает чтение партиции.
type PartitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error)
}

type saramaPartitionSource struct {
	consumer sarama.Consumer
}

func (s saramaPartitionSource) ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

// Replayer перечитывает DLQ и возвращает сообщения в рабочие топики.
type Replayer struct {
	offsets    OffsetSource
	partitions PartitionSource
	producer   sarama.SyncProducer
	logger     *log.Entry
}

// NewReplayer собирает Replayer из готовых зависимостей. producer может быть nil для dry-run.
func NewReplayer(offsets OffsetSource, partitions PartitionSource, producer sarama.SyncProducer) *Replayer {
	return &Replayer{
		offsets:    offsets,
		partitions: partitions,
		producer:   producer,
		logger:     log.WithField("component", "dlq-replay"),
	}
}

// DialReplayer подключается к Kafka. Producer создаётся только в режиме execute.
// Возвращённая функция закрывает все соединения.
func DialReplayer(brokers []string, execute bool) (*Replayer, func() error, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	var producer sarama.SyncProducer
	if execute {
		producer, err = sarama.NewSyncProducer(brokers, producerConfig())
		if err != nil {
			_ = consumer.Close()
			_ = client.Close()
			return nil, nil, fmt.Errorf("create kafka producer: %w", err)
		}
	}

	closeFn := func() error {
		if producer != nil {
			_ = producer.Close()
		}
		_ = consumer.Close()
		return client.Close()
	}
	return NewReplayer(client, saramaPartitionSource{consumer: consumer}, producer), closeFn, nil
}

// Run обходит партиции source-топика по возрастанию, пока не обработает Limit сообщений.
func (r *Replayer) Run(ctx context.Context, cfg ReplayConfig) (ReplayStats, error) {
	var total ReplayStats
	if err := cfg.Validate(); err != nil {
		return total, err
	}
	if r.offsets == nil || r.partitions == nil {
		return total, fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.Execute && r.producer == nil {
		return total, fmt.Errorf("producer is required in execute mode")
	}

	r.logger.WithFields(log.Fields{
		"source_topic": cfg.SourceTopic,
		"target_topic": cfg.TargetTopic,
		"limit":        cfg.Limit,
		"execute":      cfg.Execute,
		"from_newest":  cfg.FromNewest,
	}).Info("starting dlq replay")

	partitions, err := r.offsets.Partitions(cfg.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.SourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.Processed >= cfg.Limit {
			break
		}
		stats, err := r.replayPartition(ctx, cfg, partition, cfg.Limit-total.Processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if cfg.Execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.Processed,
		"replayed":  total.Replayed,
		"skipped":   total.Skipped,
	}).Info("dlq replay finished")

	return total, nil
}

func (r *Replayer) replayPartition(ctx context.Context, cfg ReplayConfig, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats

	oldest, err := r.offsets.GetOffset(cfg.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(cfg.SourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if cfg.FromNewest && newest-int64(limit) > oldest {
		start = newest - int64(limit)
	}

	pc, err := r.partitions.ConsumePartition(cfg.SourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(cfg.IdleTimeout)
	defer idle.Stop()

	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(cfg.IdleTimeout)

			stats.Processed++
			replay, ok, err := ExtractReplay(msg, cfg.TargetTopic)
			if err != nil || !ok {
				stats.Skipped++
				if err != nil {
					r.logger.WithError(err).WithFields(log.Fields{
						"partition": msg.Partition,
						"offset":    msg.Offset,
					}).Warn("skip unsupported dlq message")
				}
			} else if cfg.Execute {
				if err := r.publish(replay); err != nil {
					return stats, fmt.Errorf("publish replay message: %w", err)
				}
				stats.Replayed++
			} else {
				r.logger.WithFields(log.Fields{
					"partition":    msg.Partition,
					"offset":       msg.Offset,
					"target_topic": replay.Topic,
					"key":          replay.Key,
				}).Info("dlq replay candidate")
				stats.Replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *Replayer) publish(msg ReplayMessage) error {
	_, _, err := r.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     msg.Topic,
		Key:       sarama.StringEncoder(msg.Key),
		Value:     sarama.ByteEncoder(msg.Value),
		Timestamp: time.Now().UTC(),
	})
	return err
}

// ReplayMessage описывает сообщение, готовое к повторной публикации.
type ReplayMessage struct {
	Topic string
	Key   string
	Value []byte
}

// outboxDeadLetter разбирает payload, который outbox worker кладёт в DLQ.
type outboxDeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// ExtractReplay распознаёт два формата DLQ: DeadLetter от consumer'а
// (исходное сообщение возвращается в original_topic) и outbox-конверт
// (событие накладной заново упаковывается для defaultTopic).
// ok=false означает, что сообщение не подходит для replay.
func ExtractReplay(msg *sarama.ConsumerMessage, defaultTopic string) (ReplayMessage, bool, error) {
	var letter DeadLetter
	if err := json.Unmarshal(msg.Value, &letter); err == nil && letter.OriginalValue != "" {
		topic := strings.TrimSpace(letter.OriginalTopic)
		if topic == "" {
			topic = defaultTopic
		}
		return ReplayMessage{Topic: topic, Key: letter.OriginalKey, Value: []byte(letter.OriginalValue)}, true, nil
	}

	var envelope InvoiceEventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return ReplayMessage{}, false, nil
	}

	var dead outboxDeadLetter
	if err := json.Unmarshal(envelope.Payload, &dead); err != nil {
		return ReplayMessage{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(dead.Payload) == 0 {
		return ReplayMessage{}, false, fmt.Errorf("outbox dlq payload does not contain original event payload")
	}

	replay := InvoiceEventEnvelope{
		ID:            firstNonEmpty(dead.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(dead.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(dead.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(dead.EventType, envelope.EventType),
		Payload:       dead.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return ReplayMessage{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	return ReplayMessage{Topic: defaultTopic, Key: firstNonEmpty(replay.AggregateID, replay.ID), Value: encoded}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
