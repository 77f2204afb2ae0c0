package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerce-service/config"
	"commerce-service/internal/api"
	"commerce-service/internal/broker"
	"commerce-service/internal/models"
	"commerce-service/internal/redisclient"
	"commerce-service/internal/service"
	"commerce-service/internal/store"
	"commerce-service/internal/util"
	"commerce-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type runnable interface {
	Start(ctx context.Context) error
	Stop() error
}

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting commerce service")

	tp, err := util.InitTracer("commerce-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	var publisher broker.Publisher = broker.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.PublishTimeout)
		log.Println("Kafka producer initialized")
	} else {
		logger.Warn("No Kafka brokers configured, events are dropped and workers disabled")
	}
	defer publisher.Close()

	eventPublisher := broker.NewEventPublisher(publisher)

	var gateway service.Gateway = service.ApprovingGateway{}
	if cfg.Business.PaymentSuccessRate < 1 {
		gateway = service.NewSimulatedGateway(cfg.Business.PaymentSuccessRate, cfg.Business.PaymentMaxLatency)
	}

	ledger := service.NewInventoryLedger(db)
	orderService := service.NewOrderService(db, ledger, eventPublisher, cfg.Business.ReleaseInventoryOnCancel)
	paymentService := service.NewPaymentService(db, gateway, eventPublisher)
	reconciliationService := service.NewReconciliationService(db, ledger, cfg.Business.ReleaseInventoryOnPaymentFailure)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var workers []runnable
	if len(cfg.Kafka.Brokers) > 0 {
		paymentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.PaymentGroup, models.TopicOrdersPlaced)
		orderConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.OrderGroup,
			models.TopicPaymentsCaptured, models.TopicPaymentsFailed)

		workers = append(workers,
			worker.NewPaymentWorker(paymentConsumer, paymentService),
			worker.NewOrderWorker(orderConsumer, reconciliationService),
		)
	}
	for _, w := range workers {
		go func(w runnable) {
			if err := w.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Worker stopped", zap.Error(err))
			}
		}(w)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	guard := api.IdempotencyMiddleware(redisClient, api.IdempotencyOptions{
		ProcessingTTL: cfg.Idempotency.ProcessingTTL,
		ProcessedTTL:  cfg.Idempotency.ProcessedTTL,
		Replay:        cfg.Idempotency.Replay,
	})
	handler := api.NewHandler(orderService, paymentService, guard)
	handler.AddReadinessCheck("postgres", db.Ping)
	handler.AddReadinessCheck("redis", redisClient.Ping)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	for _, w := range workers {
		if err := w.Stop(); err != nil {
			logger.Warn("Failed to stop worker", zap.Error(err))
		}
	}

	log.Println("Server exited")
}
