package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"kedai/internal/config"
	"kedai/internal/handlers"
	"kedai/internal/models"
	"kedai/internal/payment"
	"kedai/internal/repositories"
	"kedai/internal/services"
	"kedai/pkg/kafka"
	"kedai/pkg/rabbitmq"
)

// stores are the repositories selected by DATABASE_DRIVER.
type stores struct {
	orders repositories.OrderRepository
	staff  repositories.StaffRepository
	db     *gorm.DB // nil for the in-memory driver
}

// eventBus is the broker selected by EVENTS_DRIVER.
type eventBus struct {
	name      string
	publisher services.EventPublisher // nil when events are disabled
	// consume runs the reconcile consumer until ctx is done.
	consume func(ctx context.Context, handler func(ctx context.Context, body []byte) error) error
	close   func() error
}

func main() {
	// --- Configuration ---
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	policy, err := services.ParseCreationPolicy(cfg.OrderCreationPolicy)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Storage ---
	st, err := openStores(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Printf("Order store ready (driver: %s)", cfg.DatabaseDriver)

	// --- Status cache ---
	var cache repositories.StatusCache = repositories.NoopStatusCache{}
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = repositories.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("Failed to initialize Redis: %v", err)
		}
		defer rdb.Close()
		cache = repositories.NewRedisStatusCache(rdb)
	}

	// --- Events ---
	bus, err := openEventBus(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s: %v", cfg.EventsDriver, err)
	}
	defer func() {
		if err := bus.close(); err != nil {
			log.Printf("Error closing %s: %v", bus.name, err)
		}
	}()

	// --- Payment gateway ---
	gateway := payment.NewMidtransGateway(payment.MidtransConfig{
		ServerKey:  cfg.MidtransServerKey,
		Production: cfg.Production(),
	})
	verifier := payment.NewSignatureVerifier(cfg.MidtransServerKey, cfg.WebhookVerifySignature)

	// --- Services ---
	orderService := services.NewOrderService(st.orders, gateway, verifier, bus.publisher, cache, policy)
	poller := services.NewStatusPoller(gateway, services.RetryPolicy{
		MaxAttempts:     cfg.PollMaxAttempts,
		InitialInterval: cfg.PollInitialInterval,
		MaxInterval:     cfg.PollMaxInterval,
		Multiplier:      2,
	})
	reconciler := services.NewReconciler(poller, orderService, cache)
	authService := services.NewAuthService(st.staff, cfg.JWTSecret, cfg.AllowStaffSignup)

	// --- HTTP ---
	app := handlers.NewApp(handlers.Dependencies{
		Orders:          orderService,
		Reconciler:      reconciler,
		Auth:            authService,
		CallbackBaseURL: cfg.AppBaseURL,
		RequestTimeout:  cfg.RequestTimeout,
		Health:          healthCheck(st, rdb, bus),
	})

	// --- Reconcile consumer ---
	if bus.consume != nil {
		go func() {
			log.Printf("Starting %s consumer for %s...", bus.name, services.TopicOrderReconcile)
			if err := bus.consume(ctx, reconcileHandler(reconciler)); err != nil {
				log.Printf("Reconcile consumer stopped: %v", err)
			}
		}()
	}

	// --- Start HTTP Server ---
	log.Printf("Starting server on port %s (order creation: %s)", cfg.AppPort, policy)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(cfg.AppPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")
	cancel()

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}
	if st.db != nil {
		if sqlDB, err := st.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	log.Println("Server gracefully stopped")
}

// openStores connects the configured database and migrates the schema.
func openStores(cfg *config.Config) (*stores, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "memory":
		return &stores{
			orders: repositories.NewMockOrderRepository(),
			staff:  repositories.NewMockStaffRepository(),
		}, nil
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseDSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.DatabaseDriver, err)
	}
	if err := db.AutoMigrate(&models.Order{}, &models.OrderItem{}, &models.PendingWebhook{}, &models.Staff{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &stores{
		orders: repositories.NewGORMOrderRepository(db),
		staff:  repositories.NewGORMStaffRepository(db),
		db:     db,
	}, nil
}

// openEventBus connects the configured broker. Both brokers carry the same
// topics: order.events for lifecycle events and order.reconcile for the backstop.
func openEventBus(cfg *config.Config) (*eventBus, error) {
	switch cfg.EventsDriver {
	case "rabbitmq":
		mq, err := rabbitmq.NewClient(rabbitmq.Config{
			URL:    cfg.RabbitMQURL,
			Queues: []string{services.TopicOrderEvents, services.TopicOrderReconcile},
		})
		if err != nil {
			return nil, err
		}
		return &eventBus{
			name:      "RabbitMQ",
			publisher: mq,
			consume: func(ctx context.Context, handler func(ctx context.Context, body []byte) error) error {
				return mq.Consume(ctx, services.TopicOrderReconcile, handler)
			},
			close: mq.Close,
		}, nil
	case "kafka":
		producer := kafka.NewProducer(cfg.KafkaBrokers)
		return &eventBus{
			name:      "Kafka",
			publisher: producer,
			consume: func(ctx context.Context, handler func(ctx context.Context, body []byte) error) error {
				consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroup, services.TopicOrderReconcile)
				return consumer.Start(ctx, handler)
			},
			close: producer.Close,
		}, nil
	case "none":
		log.Println("Events disabled; reconcile requests will not be queued")
		return &eventBus{name: "none", close: func() error { return nil }}, nil
	default:
		return nil, fmt.Errorf("unsupported events driver %q", cfg.EventsDriver)
	}
}

// reconcileHandler drops events that can never be handled instead of redelivering them.
func reconcileHandler(r *services.Reconciler) func(ctx context.Context, body []byte) error {
	return func(ctx context.Context, body []byte) error {
		err := r.HandleReconcileRequest(ctx, body)
		if errors.Is(err, services.ErrMalformedEvent) {
			log.Printf("Dropping reconcile message: %v", err)
			return nil
		}
		return err
	}
}

func healthCheck(st *stores, rdb *redis.Client, bus *eventBus) func() fiber.Map {
	return func() fiber.Map {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		status := fiber.Map{"events": bus.name}
		if st.db != nil {
			status["database"] = "connected"
			if sqlDB, err := st.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
				status["database"] = "unreachable"
			}
		} else {
			status["database"] = "memory"
		}
		if rdb != nil {
			status["redis"] = "connected"
			if err := rdb.Ping(ctx).Err(); err != nil {
				status["redis"] = "unreachable"
			}
		}
		return status
	}
}
