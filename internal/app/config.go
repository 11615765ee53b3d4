package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/accountancy/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/accountancy/internal/service/expiry"
	"github.com/vladislavdragonenkov/accountancy/internal/service/invoice"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"

	defaultKafkaGroupID = "accountancy-service"
)

// Config описывает настройки запуска сервиса. Значения читаются из окружения.
type Config struct {
	HTTPAddr    string `env:"ACCOUNTANCY_HTTP_ADDR"`
	GRPCAddr    string `env:"ACCOUNTANCY_GRPC_ADDR"`
	MetricsAddr string `env:"ACCOUNTANCY_METRICS_ADDR"`

	StorageDriver       string `env:"ACCOUNTANCY_STORAGE_DRIVER"`
	PostgresDSN         string `env:"ACCOUNTANCY_POSTGRES_DSN"`
	PostgresAutoMigrate bool   `env:"ACCOUNTANCY_POSTGRES_AUTO_MIGRATE"`

	InvoiceTTLDays         int    `env:"ACCOUNTANCY_INVOICE_TIME_TO_LIVE_DAYS"`
	InvoiceExpiryCron      string `env:"ACCOUNTANCY_INVOICE_SCHEDULED_CRON_EXPRESSION"`
	InvoiceExpiryBatchSize int    `env:"ACCOUNTANCY_INVOICE_EXPIRY_BATCH_SIZE"`

	PriceMaxValue decimal.Decimal `env:"ACCOUNTANCY_PRICE_MAX_VALUE"`

	StoreServiceURL   string        `env:"ACCOUNTANCY_STORE_SERVICE_URL"`
	ProductServiceURL string        `env:"ACCOUNTANCY_PRODUCT_SERVICE_URL"`
	GatewayTimeout    time.Duration `env:"ACCOUNTANCY_GATEWAY_TIMEOUT"`

	RedisURL string `env:"ACCOUNTANCY_REDIS_URL"`

	KafkaBrokers     string `env:"KAFKA_BROKERS"`
	OrderEventsTopic string `env:"ACCOUNTANCY_ORDER_EVENTS_TOPIC"`
	KafkaGroupID     string `env:"ACCOUNTANCY_KAFKA_GROUP_ID"`
	KafkaMaxRetries  int    `env:"ACCOUNTANCY_KAFKA_MAX_RETRIES"`

	OutboxPollInterval time.Duration `env:"ACCOUNTANCY_OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `env:"ACCOUNTANCY_OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `env:"ACCOUNTANCY_OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryDelay   time.Duration `env:"ACCOUNTANCY_OUTBOX_RETRY_DELAY"`

	LogLevel string `env:"ACCOUNTANCY_LOG_LEVEL"`
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:               ":8080",
		GRPCAddr:               ":50051",
		MetricsAddr:            ":9090",
		StorageDriver:          StorageDriverMemory,
		PostgresAutoMigrate:    true,
		InvoiceTTLDays:         invoice.DefaultTTLDays,
		InvoiceExpiryCron:      expiry.DefaultSchedule,
		InvoiceExpiryBatchSize: invoice.DefaultExpiryBatchSize,
		PriceMaxValue:          decimal.NewFromInt(100_000_000),
		GatewayTimeout:         5 * time.Second,
		OrderEventsTopic:       kafka.TopicOrderEvents,
		KafkaGroupID:           defaultKafkaGroupID,
		KafkaMaxRetries:        3,
		OutboxPollInterval:     time.Second,
		OutboxBatchSize:        100,
		OutboxMaxAttempts:      3,
		OutboxRetryDelay:       50 * time.Millisecond,
		LogLevel:               "info",
	}
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// LoadConfig накладывает переменные окружения на DefaultConfig и проверяет результат.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	err := env.ParseWithFuncs(&cfg, map[reflect.Type]env.ParserFunc{
		decimalType: func(v string) (interface{}, error) {
			return decimal.NewFromString(strings.TrimSpace(v))
		},
	})
	if err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("ACCOUNTANCY_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.InvoiceTTLDays <= 0 {
		errs = append(errs, fmt.Errorf("invoice time to live must be positive, got %d days", c.InvoiceTTLDays))
	}
	if _, err := expiry.ParseSchedule(c.InvoiceExpiryCron); err != nil {
		errs = append(errs, err)
	}
	if !c.PriceMaxValue.IsPositive() {
		errs = append(errs, fmt.Errorf("price max value must be positive, got %s", c.PriceMaxValue))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	return errors.Join(errs...)
}

// Brokers разбирает KAFKA_BROKERS; пустой список отключает Kafka.
func (c Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// SetupLogger настраивает формат и уровень логирования logrus.
func SetupLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
