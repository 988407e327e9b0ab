// cmd/notifier/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"group-notifier/internal/common/aws"
	"group-notifier/internal/common/camunda"
	"group-notifier/internal/common/config"
	"group-notifier/internal/common/database"
	"group-notifier/internal/common/events"
	"group-notifier/internal/common/fcm"
	httpserver "group-notifier/internal/common/http"
	"group-notifier/internal/common/logger"
	"group-notifier/internal/common/observability"
	"group-notifier/internal/common/validation"
	"group-notifier/internal/fanout"
	"group-notifier/internal/models"

	df "group-notifier/internal/workers/notification/document-feed"
	ne "group-notifier/internal/workers/notification/notify-event"
)

// feedHandlerTimeout stays below the default nats.ack_wait.
const feedHandlerTimeout = 30 * time.Second

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting group notifier...",
		zap.String("environment", cfg.App.Environment),
		zap.String("transport", cfg.Transport.Provider),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("otel metrics disabled", zap.Error(err))
	}
	defer obs.Shutdown()

	ctx := context.Background()
	checks := map[string]httpserver.CheckFunc{}

	// --- Postgres ---
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres init failed", zap.Error(err))
	}
	defer pg.Close()
	if err := retryWithBackoff(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return pg.Ping(pingCtx)
	}, 10, 2*time.Second, zapLog, "PostgreSQL connection"); err != nil {
		zapLog.Fatal("postgres unavailable", zap.Error(err))
	}
	checks["postgres"] = pg.Ping

	// --- Redis dedup store ---
	var dedup fanout.Deduplicator
	if cfg.Dedup.Enabled {
		rdb, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			zapLog.Fatal("redis init failed", zap.Error(err))
		}
		defer rdb.Close()
		// dedup fails open, so an unreachable redis only costs a warning
		if err := rdb.Ping(ctx); err != nil {
			zapLog.Warn("redis not reachable at startup", zap.Error(err))
		}
		dedup = rdb
		checks["redis"] = rdb.Ping
	}

	// --- Push transport ---
	transport, err := buildTransport(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("transport init failed", zap.Error(err))
	}

	// --- Notification pipeline ---
	validator, err := validation.NewEventValidator()
	if err != nil {
		zapLog.Fatal("schema compile failed", zap.Error(err))
	}

	identities := database.NewIdentityStore(pg)
	groups := database.NewGroupStore(pg)

	dispatcher := fanout.NewDispatcher(transport, identities, fanout.DispatcherConfig{
		MaxRetries:  cfg.Dispatch.MaxRetries,
		BaseDelay:   config.GetDuration(cfg.Dispatch.BaseDelay),
		MaxDelay:    config.GetDuration(cfg.Dispatch.MaxDelay),
		Concurrency: cfg.Dispatch.Concurrency,
	}, log)

	opts := fanout.NotifierOptions{
		Resolver:    fanout.NewResolver(groups, log),
		Lookup:      fanout.NewTokenLookup(identities, cfg.Lookup.Concurrency, log),
		Dispatcher:  dispatcher,
		Validator:   validator,
		DedupTTL:    time.Duration(cfg.Dedup.TTL) * time.Second,
		DedupPrefix: cfg.Dedup.KeyPrefix,
		Logger:      log,
	}
	if dedup != nil {
		opts.Dedup = dedup
	}
	if obs != nil {
		opts.Recorder = obs
	}
	notifier, err := fanout.NewNotifier(opts)
	if err != nil {
		zapLog.Fatal("notifier init failed", zap.Error(err))
	}

	// --- Zeebe job workers ---
	var handlers []*ne.Handler
	if cfg.Camunda.BrokerAddress != "" {
		var zeebe *camunda.Client
		if err := retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: cfg.Camunda.Plaintext,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization"); err != nil {
			zapLog.Fatal("zeebe unavailable", zap.Error(err))
		}
		defer zeebe.Close()
		checks["zeebe"] = zeebe.HealthCheck

		for _, eventType := range models.EventTypes {
			handler, err := ne.NewHandler(ne.HandlerOptions{
				AppConfig: cfg,
				Camunda:   zeebe,
				Notifier:  notifier,
				EventType: eventType,
				Logger:    log,
			})
			if err != nil {
				zapLog.Fatal("failed to create notify handler", zap.String("eventType", string(eventType)), zap.Error(err))
			}
			if err := handler.Register(); err != nil {
				zapLog.Fatal("failed to register notify handler", zap.String("taskType", handler.GetTaskType()), zap.Error(err))
			}
			handlers = append(handlers, handler)
		}
		zapLog.Info("Job workers registered", zap.Int("count", len(handlers)))
	}

	// --- Document change feed ---
	var feed *events.Client
	var feedConsumer jetstream.ConsumeContext
	if cfg.NATS.Enabled {
		feed, err = events.NewClient(cfg.NATS.URL, cfg.App.Name, log)
		if err != nil {
			zapLog.Fatal("nats connect failed", zap.Error(err))
		}
		feedHandler := df.NewHandler(notifier, feedHandlerTimeout, log)
		feedConsumer, err = feed.Consume(ctx, events.ConsumerConfig{
			Stream:     cfg.NATS.Stream,
			Subject:    cfg.NATS.Subject,
			Durable:    cfg.NATS.Durable,
			AckWait:    config.GetDuration(cfg.NATS.AckWait),
			NakDelay:   config.GetDuration(cfg.NATS.NakDelay),
			MaxDeliver: cfg.NATS.MaxDeliver,
		}, feedHandler.HandleMessage)
		if err != nil {
			zapLog.Fatal("nats consumer failed", zap.String("stream", cfg.NATS.Stream), zap.Error(err))
		}
		checks["nats"] = feed.Ping
		zapLog.Info("Consuming document feed",
			zap.String("stream", cfg.NATS.Stream),
			zap.String("subject", cfg.NATS.Subject),
			zap.String("durable", cfg.NATS.Durable),
		)
	}

	// --- Health & Metrics Server ---
	server := httpserver.NewServer(cfg.Server.Address, checks, log)
	go func() {
		if err := server.Start(); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if feedConsumer != nil {
		feedConsumer.Drain()
	}
	if feed != nil {
		feed.Close()
	}
	for _, h := range handlers {
		h.Close()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}

	zapLog.Info("Group notifier stopped gracefully")
}

func buildTransport(ctx context.Context, cfg *config.Config, log logger.Logger) (fanout.Transport, error) {
	switch cfg.Transport.Provider {
	case config.TransportSNS:
		return aws.NewSNSTransport(ctx, cfg.Transport.SNS.Region, log)
	case config.TransportFCM:
		return fcm.NewTransport(ctx, cfg.Transport.FCM.CredentialsFile, cfg.Transport.FCM.ProjectID, log)
	default:
		return nil, fmt.Errorf("unknown transport provider %q", cfg.Transport.Provider)
	}
}
