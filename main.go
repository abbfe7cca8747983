package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wellnest/config"
	"wellnest/cron"
	"wellnest/database"
	"wellnest/database/cache"
	bookingRepo "wellnest/database/repository/booking"
	notificationRepo "wellnest/database/repository/notification"
	providerRepo "wellnest/database/repository/provider"
	userRepo "wellnest/database/repository/user"
	"wellnest/handlers"
	"wellnest/routes"
	"wellnest/services/booking"
	"wellnest/services/events"
	"wellnest/services/notification"
	"wellnest/services/tasks"
	"wellnest/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// bookingStore is what the wiring needs from a booking store.
type bookingStore interface {
	bookingRepo.BookingRepository
	bookingRepo.ChangeFeed
}

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	defer logger.Sync()
	cfg := config.AppConfig

	retry := booking.RetryPolicyFromConfig(cfg)
	policy, err := booking.SlotPolicyFromConfig(cfg)
	if err != nil {
		logger.Sugar().Fatalf("main: invalid booking policy: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// repositories.
	var (
		bookings      bookingStore
		providers     providerRepo.ProviderRepository
		notifications notificationRepo.NotificationRepository
		users         userRepo.UserDirectory
		snapshotCache cache.Cache
		checks        = map[string]utils.Pinger{}
	)
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("Using in-memory stores; data is lost on restart")
		bookings = bookingRepo.NewMemoryBookingRepo()
		providers = providerRepo.NewMemoryProviderRepo()
		notifications = notificationRepo.NewMemoryNotificationRepo()
		users = userRepo.NewMemoryUserDirectory(nil)
		snapshotCache = cache.NewMemoryCache(time.Now)
	default:
		database.InitDB()
		db := database.DB()

		mongoBookings := bookingRepo.NewMongoBookingRepo(db, cfg.StoreTimeout(), logger)
		mongoProviders := providerRepo.NewMongoProviderRepo(db)
		indexCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout())
		if err := mongoBookings.EnsureIndexes(indexCtx); err != nil {
			logger.Sugar().Fatalf("main: failed to create booking indexes: %v", err)
		}
		if err := mongoProviders.EnsureIndexes(indexCtx); err != nil {
			logger.Sugar().Fatalf("main: failed to create provider indexes: %v", err)
		}
		cancel()

		bookings = mongoBookings
		providers = mongoProviders
		notifications = notificationRepo.NewMongoNotificationRepo(db)
		users = userRepo.NewMongoUserDirectory(db)
		snapshotCache = cache.NewRedisCache(utils.GetCacheClient(), "wellnest:")

		checks["mongo"] = utils.PingFunc(func(ctx context.Context) error {
			return database.MongoClient.Ping(ctx, nil)
		})
		checks["cache"] = utils.PingFunc(func(ctx context.Context) error {
			return utils.GetCacheClient().Ping(ctx).Err()
		})
		checks["queue"] = utils.PingFunc(func(ctx context.Context) error {
			return utils.GetQueueClient().Ping(ctx).Err()
		})
	}
	if cfg.SeedProvidersFile != "" {
		n, err := providerRepo.SeedFromFile(ctx, providers, cfg.SeedProvidersFile)
		if err != nil {
			logger.Sugar().Fatalf("main: %v", err)
		}
		logger.Info("Seeded providers", zap.Int("count", n))
	}
	cachedProviders := providerRepo.NewCachedProviderRepo(providers, snapshotCache, cfg.CacheTTL(), logger)

	// services.
	notificationService, err := notification.NewDefaultNotificationService(notifications, providers, users, logger)
	if err != nil {
		logger.Sugar().Fatalf("main: %v", err)
	}

	var publisher interface {
		booking.EventPublisher
		Close() error
	} = events.NoopPublisher{}
	if cfg.AMQPURL != "" {
		p, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Warn("Domain events disabled", zap.Error(err))
		} else {
			publisher = p
		}
	}
	defer publisher.Close()

	mgr := &booking.Manager{
		Bookings:  bookings,
		Providers: providers,
		Validator: &booking.ConflictValidator{
			Providers: providers,
			Bookings:  bookings,
			Policy:    policy,
			Retry:     retry,
			Logger:    logger,
		},
		Advisory: &booking.ConflictValidator{
			Providers: cachedProviders,
			Bookings:  bookings,
			Policy:    policy,
			Retry:     retry,
			Logger:    logger,
		},
		Notifier:          notificationService,
		Events:            publisher,
		Retry:             retry,
		Policy:            policy,
		Logger:            logger,
		SideEffectTimeout: cfg.StoreTimeout(),
	}

	// reminders need the Redis queue and are skipped for in-memory runs.
	var worker *asynq.Server
	if cfg.StoreDriver != "memory" {
		queue := asynq.NewClient(cron.RedisOpt())
		defer queue.Close()
		mgr.Reminders = tasks.NewReminderScheduler(queue, cfg.ReminderLead())

		worker, err = cron.InitReminderWorker(bookings, notificationService, logger)
		if err != nil {
			logger.Sugar().Fatalf("main: %v", err)
		}
	}

	monitor := utils.NewHealthMonitor(30*time.Second, checks)
	monitor.Start(ctx)

	// Create the Gin router.
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(utils.ErrorHandler())
	router.Use(handlers.RequestLogger(logger))

	handlerBundle := handlers.NewHandlerBundle(
		handlers.NewBookingHandler(mgr),
		handlers.NewRealtimeHandler(bookings, mgr, cfg.StoreTimeout()),
		handlers.HealthHandler(monitor),
	)
	routes.RegisterRoutes(router, handlerBundle, cfg.MaxRequestsPerMin)

	// Start the HTTP server.
	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	stop()

	// Let in-flight notifications and events finish.
	mgr.Wait()
	if worker != nil {
		worker.Shutdown()
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
