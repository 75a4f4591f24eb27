package bookingservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"guardline/internal/general/config"
	"guardline/internal/general/contracts"
	"guardline/internal/general/jwt"
	"guardline/internal/general/logger"
	"guardline/internal/general/postgres"
	"guardline/internal/general/rabbitmq"
	"guardline/internal/general/threadslot"
	"guardline/internal/general/websocket"
	"guardline/internal/ports"
	"guardline/internal/thread"

	bookinghandler "guardline/internal/software/booking/handler"
	bookingsvc "guardline/internal/software/booking/service"
	threadhandler "guardline/internal/software/thread/handler"
	threadsvc "guardline/internal/software/thread/service"
)

// Run wires the booking service and blocks until ctx is cancelled.
func Run(ctx context.Context, maxConcurrent int) error {
	// set up a new logger and context with a static request ID for startup logs
	logger := logger.New("booking-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// set up the RabbitMQ publisher and the per-booking change feed
	pub := rabbitmq.NewMQPublisher(rmq)
	feed := rabbitmq.NewChangeFeed(rmq, logger)

	// durable thread slots live in Redis; fall back to an in-process slot
	// when Redis is unreachable so threads still work within one process
	var slot ports.ThreadSlot
	redisSlot, err := threadslot.NewRedisSlot(cfg.RedisAddr(), cfg.Redis.DB)
	if err != nil {
		logger.Error(ctx, "redis_connection_failed", "Redis unreachable, using in-memory thread slots", err, nil)
		slot = threadslot.NewMemorySlot(1024)
	} else {
		defer redisSlot.Close()
		slot = redisSlot
	}

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// set up the repos and the transactional message store
	uow := postgres.NewUnitOfWork(pool)
	bookingRepo := postgres.NewBookingRepo()
	messageRepo := postgres.NewMessageRepo()
	store := postgres.NewMessageStore(uow, messageRepo, feed)

	// set up the websocket hub
	ws := websocket.NewWebSocket(logger, jwtManager)

	// the thread registry pushes every cache change to connected watchers
	registry := thread.NewRegistry(ctx, store, feed, slot, logger, func(bookingID string) {
		ws.PushThreadUpdate(ctx, bookingID, contracts.WSThreadUpdate{
			Type:      "thread_state",
			BookingID: bookingID,
			SentAt:    time.Now().UTC(),
		})
	})

	// set up the services
	bookingService := bookingsvc.NewBookingService(logger, uow, bookingRepo, messageRepo, feed, pub, ws)
	threadService := threadsvc.NewThreadService(logger, registry, uow, bookingRepo)
	defer threadService.Shutdown()

	// set up the HTTP handlers and their routes
	mux := http.NewServeMux()
	bookinghandler.NewBookingHTTPHandler(bookingService, logger, jwtManager).RegisterRoutes(mux)
	threadhandler.NewThreadHTTPHandler(threadService, logger, jwtManager, ws).RegisterRoutes(mux)

	// concurrency limiter (global) — blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Services.BookingServicePort),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Booking Service started on port %d", cfg.Services.BookingServicePort),
		map[string]any{"port": cfg.Services.BookingServicePort, "max_concurrent": maxConcurrent},
	)

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, "shutdown_started", "Booking Service shutting down", nil)
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Services.BookingServicePort})
			return err
		}
		return nil
	}

	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
