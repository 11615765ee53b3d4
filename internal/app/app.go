// Package app собирает сервис бухгалтерии аптеки: хранилище, workflow накладных,
// REST API, планировщик просрочки, outbox и Kafka.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/accountancy/internal/health"
	"github.com/vladislavdragonenkov/accountancy/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/accountancy/internal/metrics"
	"github.com/vladislavdragonenkov/accountancy/internal/service/expiry"
	"github.com/vladislavdragonenkov/accountancy/internal/service/outbox"
	"github.com/vladislavdragonenkov/accountancy/internal/transport/rest"
	"github.com/vladislavdragonenkov/accountancy/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает все компоненты сервиса и блокируется до отмены ctx или падения сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	workflowMetrics := metrics.NewWorkflowMetrics()
	expiryMetrics := metrics.NewExpiryMetricsWithRegisterer(prometheus.DefaultRegisterer)
	outboxMetrics := metrics.NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)

	svc := newServices(cfg, deps, workflowMetrics, logger)
	workflow := svc.workflow

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)

	// Kafka опциональна: без брокеров outbox копится в хранилище до их появления.
	brokers := cfg.Brokers()
	kafkaProducer, _ := initKafkaProducer(brokers, logger)
	defer closeKafkaProducer(kafkaProducer, logger)
	if kafkaProducer != nil {
		healthHandler.RegisterChecker("kafka", healthcheck.NewPingChecker("kafka", checkTimeout, false, func(context.Context) error {
			return kafka.PingBrokers(brokers, checkTimeout)
		}))
	}

	consumer, _ := initOrderConsumer(cfg, brokers, workflow, kafkaProducer, logger)
	if consumer != nil {
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Warn("failed to start kafka consumer")
		}
		defer stopKafkaConsumer(consumer, logger)
	}

	outboxCancel, outboxDone := startOutboxWorker(ctx, cfg, deps, kafkaProducer, outboxMetrics, logger)
	defer shutdownWorker(outboxCancel, outboxDone, logger)

	redisClient, err := initRedis(cfg)
	if err != nil {
		return err
	}
	defer closeRedis(redisClient, logger)

	schedulerOpts := []expiry.Option{
		expiry.WithLogger(log.WithField("component", "invoice-expiry-scheduler")),
		expiry.WithMetrics(expiryMetrics),
	}
	if redisClient != nil {
		healthHandler.RegisterChecker("redis", healthcheck.NewPingChecker("redis", checkTimeout, false, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
		schedulerOpts = append(schedulerOpts, expiry.WithLocker(expiry.NewRedisLocker(redisClient, logger), expiry.DefaultLockTTL))
	}
	scheduler, err := expiry.NewScheduler(workflow, cfg.InvoiceExpiryCron, schedulerOpts...)
	if err != nil {
		return err
	}
	schedulerCtx, schedulerCancel := context.WithCancel(ctx)
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(schedulerCtx)
	}()
	defer shutdownWorker(schedulerCancel, schedulerDone, logger)

	if cfg.LogLevel != "debug" && cfg.LogLevel != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := rest.NewRouter(rest.NewHandler(workflow, svc.catalog, svc.ledger, log.WithField("component", "rest")))

	grpcServer, healthServer := newGRPCServer(logger)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return err
	}
	httpSrv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("REST API слушает %s%s", httpLis.Addr(), rest.BasePath)
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		shutdownHTTP(httpSrv, logger)
		stopGRPC(grpcServer, healthServer, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(httpSrv, logger)
		stopGRPC(grpcServer, healthServer, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newGRPCServer поднимает gRPC health и reflection с prometheus-интерцепторами.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

func stopGRPC(grpcServer *grpc.Server, healthServer *health.Server, logger *log.Entry) {
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	stoppedCh := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

// startOutboxWorker запускает публикацию outbox в Kafka. Без producer воркер не стартует.
func startOutboxWorker(ctx context.Context, cfg Config, deps runtimeDependencies, producer *kafka.Producer, m *metrics.OutboxMetrics, logger *log.Entry) (context.CancelFunc, <-chan struct{}) {
	if producer == nil || deps.outboxRepo == nil {
		logger.Warn("kafka is not configured, outbox events stay pending")
		return nil, nil
	}

	worker := outbox.NewWorker(deps.outboxRepo,
		kafka.NewOutboxPublisher(producer, kafka.TopicInvoiceEvents),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
		outbox.WithMetrics(m),
		outbox.WithLogger(log.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()
	return cancel, done
}

// shutdownWorker отменяет фоновую горутину и ждёт её завершения не дольше shutdownTimeout.
func shutdownWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("background worker did not stop in time")
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics и health probes.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
