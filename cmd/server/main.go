package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupchat-api/internal/api"
	"groupchat-api/internal/auth"
	"groupchat-api/internal/cache"
	"groupchat-api/internal/config"
	"groupchat-api/internal/events"
	"groupchat-api/internal/handlers"
	"groupchat-api/internal/logger"
	"groupchat-api/internal/repository"
	"groupchat-api/internal/service"
)

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		panic(err)
	}
	dev := cfg.App.Env == "development"

	log, err := logger.New(dev, cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	// Mongo
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mc, err := repository.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		log.Fatalf("mongo connect: %v", err)
	}
	db := mc.Database(cfg.Mongo.Database)
	if err := repository.EnsureIndexes(ctx, db); err != nil {
		log.Fatalf("ensure indexes: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// Presence cache, optional
	var presence *cache.Client
	if cfg.Redis.Addr != "" {
		presence, err = cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("redis connect: %v", err)
		}
	}

	// Event producer, optional
	var producer *events.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}

	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.TokenTTL)

	groupSvc := service.NewGroupService(groupRepo, membershipRepo, messageRepo, userRepo, presence, producer, log)
	messageSvc := service.NewMessageService(messageRepo, membershipRepo, groupRepo, producer, log)
	userSvc := service.NewUserService(userRepo, membershipRepo, messageRepo, groupRepo, log)
	authSvc := service.NewAuthService(userRepo, tokens, presence, groupSvc, producer, log)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer bootCancel()
	boot := service.NewBootstrapper(userRepo, groupSvc, log)
	if err := boot.Run(bootCtx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	app := api.NewServer(
		tokens,
		handlers.NewAuthHandler(authSvc, log),
		handlers.NewUserHandler(userSvc, log),
		handlers.NewGroupHandler(groupSvc, log),
		handlers.NewMessageHandler(messageSvc, log),
	)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		log.Infof("starting groupchat api on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutdown requested")

	timeoutCtx, cancel2 := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel2()

	_ = app.Shutdown()
	_ = producer.Close()
	_ = presence.Close()
	_ = mc.Disconnect(timeoutCtx)
	log.Info("shutdown completed")
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}
