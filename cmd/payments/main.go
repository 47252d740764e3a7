package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"payments/internal/app/payments"
	"payments/internal/client/identity"
	"payments/internal/client/orders"
	"payments/internal/config"
	"payments/internal/gateway"
	"payments/internal/gateway/cardproc"
	"payments/internal/gateway/hashproc"
	"payments/internal/gateway/walletproc"
	payments_http "payments/internal/handler/http/payments"
	webhooks_http "payments/internal/handler/http/webhooks"
	"payments/internal/infrastructure/database"
	kafka_infra "payments/internal/infrastructure/kafka"
	"payments/internal/outbox"
	outbox_pg "payments/internal/repository/outbox_repo/postgres"
	payments_pg "payments/internal/repository/payments_repo/postgres"
	transactions_pg "payments/internal/repository/transactions_repo/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger()
	defer logger.Sync()

	db, err := connectDB(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Info("Migrations applied")

	txRunner := database.NewSQLTxRunner(db)
	paymentRepo := payments_pg.NewPaymentRepository(db)
	transactionRepo := transactions_pg.NewTransactionRepository(db)
	outboxRepo := outbox_pg.NewOutboxRepository(db)

	registry := gateway.NewRegistry(
		cardproc.New(cardproc.Config{
			BaseURL:       cfg.CardProcessor.BaseURL,
			SecretKey:     cfg.CardProcessor.SecretKey,
			WebhookSecret: cfg.CardProcessor.WebhookSecret,
			Timeout:       cfg.GatewayTimeout,
		}, logger.With(zap.String("component", "CardProcessorAdapter"))),
		walletproc.New(walletproc.Config{
			BaseURL:      cfg.WalletProcessor.BaseURL,
			ClientID:     cfg.WalletProcessor.ClientID,
			ClientSecret: cfg.WalletProcessor.ClientSecret,
			WebhookID:    cfg.WalletProcessor.WebhookID,
			ReturnURL:    cfg.WalletProcessor.ReturnURL,
			CancelURL:    cfg.WalletProcessor.CancelURL,
			Timeout:      cfg.GatewayTimeout,
		}, logger.With(zap.String("component", "WalletProcessorAdapter"))),
		hashproc.New(hashproc.Config{
			ActionURL:     cfg.HashProcessor.ActionURL,
			MerchantLogin: cfg.HashProcessor.MerchantLogin,
			RequestSecret: cfg.HashProcessor.RequestSecret,
			ResultSecret:  cfg.HashProcessor.ResultSecret,
		}, logger.With(zap.String("component", "HashProcessorAdapter"))),
	)

	orderClient := orders.NewClient(cfg.OrderServiceURL, cfg.CollaboratorTimeout,
		logger.With(zap.String("component", "OrderClient")))
	identityClient := identity.NewClient(cfg.IdentityServiceURL, cfg.CollaboratorTimeout,
		logger.With(zap.String("component", "IdentityClient")))

	service := payments.NewPaymentService(
		db,
		txRunner,
		paymentRepo,
		transactionRepo,
		outboxRepo,
		registry,
		orderClient,
		cfg.GatewayTimeout,
		logger.With(zap.String("component", "PaymentService")),
	)

	producer := kafka_infra.NewProducer(cfg.GetKafkaBrokers(), cfg.KafkaPaymentStatusTopic,
		logger.With(zap.String("component", "KafkaProducer")))
	defer producer.Close()

	outboxProcessor := outbox.NewProcessor(
		txRunner,
		outboxRepo,
		producer,
		cfg.OutboxPollInterval,
		cfg.OutboxPollTimeout,
		logger.With(zap.String("component", "OutboxProcessor")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go outboxProcessor.Start(ctx)

	router := chi.NewRouter()
	router.Use(chi_middleware.Logger)
	router.Use(chi_middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "Database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	payments_http.RegisterRoutes(router, service, identityClient, logger)
	webhooks_http.RegisterRoutes(router, registry, service, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting payments service", zap.Int("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	logger.Info("Payments service stopped")
}

func newLogger() *zap.Logger {
	logCfg := zap.NewProductionConfig()
	logCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// connectDB retries the initial connection: in a compose environment the
// database container may still be starting when we come up.
func connectDB(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for attempt := 1; attempt <= 10; attempt++ {
		db, err = database.NewPostgresDB(database.DBConfig{
			Host:     cfg.DBConfig.Host,
			Port:     cfg.DBConfig.Port,
			User:     cfg.DBConfig.User,
			Password: cfg.DBConfig.Password,
			DBName:   cfg.DBConfig.Name,
			SSLMode:  cfg.DBConfig.SSLMode,
		})
		if err == nil {
			return db, nil
		}
		logger.Warn("Database not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	return nil, err
}

func runMigrations(cfg *config.Config) error {
	m, err := migrate.New(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString())
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
