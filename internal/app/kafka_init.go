package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/accountancy/internal/messaging/kafka"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// initOrderConsumer подписывается на события заказов; сообщения, которые не удалось
// обработать, уходят в DLQ через producer.
func initOrderConsumer(cfg Config, brokers []string, creator kafka.InvoiceCreator, producer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	if len(brokers) == 0 || producer == nil {
		return nil, nil
	}

	consumer, err := kafka.NewConsumerWithDLQ(
		brokers,
		cfg.KafkaGroupID,
		[]string{cfg.OrderEventsTopic},
		kafka.NewOrderPlacedHandler(creator),
		producer,
		cfg.KafkaMaxRetries,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer, order events are disabled")
		return nil, err
	}
	return consumer, nil
}

// closeKafkaProducer закрывает Kafka producer если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

func stopKafkaConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
