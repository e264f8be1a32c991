package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appchat "github.com/gtpankaj4/campusmesh-sub001/internal/app/chat"
	domainchat "github.com/gtpankaj4/campusmesh-sub001/internal/domain/chat"
	domainnotification "github.com/gtpankaj4/campusmesh-sub001/internal/domain/notification"
	domainprofile "github.com/gtpankaj4/campusmesh-sub001/internal/domain/profile"
	"github.com/gtpankaj4/campusmesh-sub001/internal/infra/broker/kafka"
	"github.com/gtpankaj4/campusmesh-sub001/internal/infra/config"
	mongodb "github.com/gtpankaj4/campusmesh-sub001/internal/infra/db/mongo"
	"github.com/gtpankaj4/campusmesh-sub001/internal/infra/obs"
	"github.com/gtpankaj4/campusmesh-sub001/internal/infra/storage/memory"
	redisstore "github.com/gtpankaj4/campusmesh-sub001/internal/infra/storage/redis"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger := obs.NewLogger("dev")
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	store, cleanupStore, err := buildStore(cfg, logger)
	if err != nil {
		logger.Error("chat store init failed", "error", err, "mode", cfg.ChatStoreMode)
		os.Exit(1)
	}
	defer cleanupStore()

	profiles, cleanupProfiles, err := buildProfiles(ctx, cfg, logger)
	if err != nil {
		logger.Error("profile store init failed", "error", err)
		os.Exit(1)
	}
	defer cleanupProfiles()

	notificationLog := memory.NewNotificationLog()
	sink, cleanupSink := buildSink(cfg, notificationLog, logger)
	defer cleanupSink()

	service, err := appchat.NewService(appchat.ServiceParams{
		Store:               store,
		Profiles:            profiles,
		Sink:                sink,
		Logger:              logger,
		DuplicateWindow:     cfg.DuplicateWindow,
		SeenBatchSize:       cfg.SeenBatchSize,
		SeenBatchDelay:      cfg.SeenBatchDelay,
		PreviewLimit:        cfg.PreviewLimit,
		ProfileRetries:      cfg.ProfileRetries,
		ProfileRetryBackoff: cfg.ProfileBackoff,
	})
	if err != nil {
		logger.Error("chat service init failed", "error", err)
		os.Exit(1)
	}

	if len(cfg.KafkaBrokers) > 0 {
		consumer, err := kafka.NewNotificationConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, nil, notificationLog, logger)
		if err != nil {
			logger.Error("notification consumer init failed", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx, []string{cfg.KafkaTopic}); err != nil && ctx.Err() == nil {
				logger.Error("notification consumer stopped", "error", err)
			}
		}()
	}

	var watcher *appchat.UnreadWatcher
	if cfg.WatchUser != "" {
		watcher = service.Watch(func(total int) {
			logger.Info("unread total changed", "user_id", cfg.WatchUser, "total", total)
		})
		if err := watcher.Start(ctx, cfg.WatchUser); err != nil {
			logger.Error("unread watcher start failed", "error", err, "user_id", cfg.WatchUser)
			os.Exit(1)
		}
	}

	logger.Info("campusmesh messaging core started",
		"env", cfg.Env,
		"store", cfg.ChatStoreMode,
		"watch_user", cfg.WatchUser,
		"kafka", len(cfg.KafkaBrokers) > 0,
	)

	<-ctx.Done()
	if watcher != nil {
		watcher.Stop()
	}
	logger.Info("campusmesh messaging core stopped")
}

func buildStore(cfg config.Config, logger *slog.Logger) (domainchat.Store, func(), error) {
	switch cfg.ChatStoreMode {
	case "redis":
		store, err := redisstore.New(cfg.RedisAddr, cfg.RedisKeyPrefix, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store := memory.NewChatStore()
		return store, store.Close, nil
	}
}

func buildProfiles(ctx context.Context, cfg config.Config, logger *slog.Logger) (domainprofile.Repository, func(), error) {
	if cfg.MongoURI == "" {
		logger.Warn("MONGO_URI not set, using in-memory profiles")
		return memory.NewProfileRepository(), func() {}, nil
	}
	client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}
	return mongodb.NewProfileRepository(client.DB), cleanup, nil
}

func buildSink(cfg config.Config, fallback domainnotification.Sink, logger *slog.Logger) (domainnotification.Sink, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return fallback, func() {}
	}
	sink, err := kafka.NewSink(cfg.KafkaBrokers, cfg.KafkaTopic, nil, logger)
	if err != nil {
		logger.Warn("kafka sink init failed, notifications stay in-process", "error", err)
		return fallback, func() {}
	}
	return sink, func() { _ = sink.Close() }
}
