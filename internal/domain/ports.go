package domain

import (
	"context"
	"time"
)

// StockGateway описывает взаимодействие с сервисом склада (store service).
// Все методы выполняют удалённые вызовы: кроме ErrInsufficientStock возможны *UpstreamError.
type StockGateway interface {
	// Reserve резервирует количество товара под накладную.
	Reserve(ctx context.Context, priceItemID int64, qty int32) error
	// Release снимает резерв (отмена, истечение срока, компенсация).
	Release(ctx context.Context, priceItemID int64, qty int32) error
	// ConfirmConsumption окончательно списывает зарезервированный товар после оплаты.
	ConfirmConsumption(ctx context.Context, priceItemID int64, qty int32) error
	// Restock возвращает товар на склад после возврата денег.
	Restock(ctx context.Context, priceItemID int64, qty int32) error
}

// ProductDirectory отдаёт названия товаров из сервиса продуктов.
type ProductDirectory interface {
	// ProductNames возвращает названия для известных id; неизвестные id в ответ не попадают.
	ProductNames(ctx context.Context, productIDs []int64) (map[int64]string, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла накладной.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(invoiceID int64) ([]TimelineEvent, error)
}

// WorkflowStep задаёт константы шагов для метрик/логов.
type WorkflowStep string

const (
	WorkflowStepCreate  WorkflowStep = "create"
	WorkflowStepReserve WorkflowStep = "reserve"
	WorkflowStepRelease WorkflowStep = "release"
	WorkflowStepConsume WorkflowStep = "consume"
	WorkflowStepRestock WorkflowStep = "restock"
	WorkflowStepCancel  WorkflowStep = "cancel"
	WorkflowStepPay     WorkflowStep = "pay"
	WorkflowStepRefund  WorkflowStep = "refund"
	WorkflowStepExpire  WorkflowStep = "expire"
	WorkflowStepEmit    WorkflowStep = "emit"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
