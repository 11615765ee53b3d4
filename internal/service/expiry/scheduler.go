// Package expiry по расписанию отменяет неоплаченные накладные с истёкшим сроком.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/accountancy/internal/metrics"
)

const (
	// DefaultSchedule — раз в час.
	DefaultSchedule = "@every 1h"
	// DefaultLockTTL ограничивает время удержания распределённой блокировки.
	DefaultLockTTL = 10 * time.Minute

	lockKey = "accountancy:invoice-expiry"
)

var (
	// ErrScanInProgress — предыдущий проход в этом процессе ещё не завершился.
	ErrScanInProgress = errors.New("expiry scan already in progress")
	// ErrLockHeld означает, что проход уже выполняет другой инстанс или accountancyctl.
	ErrLockHeld = errors.New("expiry lock is held by another instance")
)

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule проверяет cron-выражение: 5 полей, 6 полей с секундами или дескриптор (@every 1h).
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	return schedule, nil
}

// Expirer отменяет просроченные накладные; реализуется invoice.Workflow.
type Expirer interface {
	CancelExpiredInvoices(ctx context.Context, cutoff time.Time) (int, error)
}

// Locker захватывает распределённую блокировку, не давая нескольким инстансам сканировать одновременно.
type Locker interface {
	// TryLock возвращает ok=false, если блокировка занята. release снимает только свою блокировку.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Option настраивает Scheduler.
type Option func(*Scheduler)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLocker включает распределённую блокировку.
func WithLocker(locker Locker, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithMetrics включает метрики планировщика.
func WithMetrics(m *metrics.ExpiryMetrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// Scheduler запускает CancelExpiredInvoices(now) по cron-расписанию.
// Срок жизни уже заложен в ExpiresAt, поэтому cutoff равен текущему времени.
type Scheduler struct {
	expirer Expirer
	spec    string
	locker  Locker
	lockTTL time.Duration
	logger  *log.Entry
	metrics *metrics.ExpiryMetrics
	now     func() time.Time

	running atomic.Bool
}

// NewScheduler создаёт планировщик; пустое выражение заменяется на DefaultSchedule.
func NewScheduler(expirer Expirer, spec string, opts ...Option) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if _, err := ParseSchedule(spec); err != nil {
		return nil, err
	}

	s := &Scheduler{
		expirer: expirer,
		spec:    spec,
		lockTTL: DefaultLockTTL,
		logger:  log.WithField("component", "invoice-expiry-scheduler"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run выполняет первый проход сразу, затем по расписанию до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) {
	if s.expirer == nil {
		s.logger.Warn("invoice expiry scheduler is disabled: expirer is nil")
		return
	}

	cronLog := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := c.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		s.logger.WithError(err).Error("failed to schedule invoice expiry")
		return
	}

	s.tick(ctx)

	c.Start()
	s.logger.WithField("schedule", s.spec).Info("invoice expiry scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("invoice expiry scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	cancelled, err := s.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
	case errors.Is(err, ErrScanInProgress):
		s.logger.Debug("previous expiry scan still running, skipping tick")
	case errors.Is(err, ErrLockHeld):
		s.logger.Debug("expiry lock held by another instance, skipping tick")
	default:
		s.logger.WithError(err).WithField("cancelled", cancelled).Warn("invoice expiry run failed")
	}
}

// RunOnce выполняет один проход. Возвращает ErrScanInProgress, если проход уже идёт в этом
// процессе, и ErrLockHeld, если блокировку держит другой инстанс.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.record("skipped", 0)
		return 0, ErrScanInProgress
	}
	defer s.running.Store(false)

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, lockKey, s.lockTTL)
		if err != nil {
			s.record("error", 0)
			return 0, fmt.Errorf("acquire expiry lock: %w", err)
		}
		if !ok {
			s.record("skipped", 0)
			return 0, ErrLockHeld
		}
		defer release()
	}

	cutoff := s.now()
	cancelled, err := s.expirer.CancelExpiredInvoices(ctx, cutoff)
	if err != nil {
		s.record("error", cancelled)
		return cancelled, err
	}

	s.record("ok", cancelled)
	if cancelled > 0 {
		s.logger.WithFields(log.Fields{
			"cancelled": cancelled,
			"cutoff":    cutoff.Format(time.RFC3339),
		}).Info("invoice expiry completed")
	}
	return cancelled, nil
}

func (s *Scheduler) record(result string, cancelled int) {
	if s.metrics != nil {
		s.metrics.RecordRun(result, cancelled, float64(s.now().Unix()))
	}
}

// cronLogger адаптирует logrus к интерфейсу cron.Logger.
type cronLogger struct {
	logger *log.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(toFields(keysAndValues)).Error(msg)
}

func toFields(keysAndValues []interface{}) log.Fields {
	fields := make(log.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
