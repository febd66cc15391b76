package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yxshee/marketplace-storefront/internal/attributes"
	"github.com/yxshee/marketplace-storefront/internal/config"
	"github.com/yxshee/marketplace-storefront/internal/events"
	"github.com/yxshee/marketplace-storefront/internal/http/router"
	"github.com/yxshee/marketplace-storefront/internal/platform/logging"
	"github.com/yxshee/marketplace-storefront/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.Environment, cfg.LogLevel)
	log := logger.WithField("component", "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var attributeStore *attributes.RedisStore
	if cfg.RedisURL != "" {
		client, err := attributes.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		attributeStore = attributes.NewRedisStore(client, "")
		defer func() {
			if err := attributeStore.Close(); err != nil {
				log.WithError(err).Warn("redis close failed")
			}
		}()
	}
	attributeCatalog := attributes.NewService(attributeStore, logging.Component(logger, "attributes"))
	warmCtx, cancelWarm := context.WithTimeout(ctx, 10*time.Second)
	if err := attributeCatalog.Warm(warmCtx); err != nil {
		log.WithError(err).Warn("attribute catalog not loaded from redis")
	}
	cancelWarm()

	var publisher events.Publisher = events.Discard{}
	if cfg.NATSURL != "" {
		conn, err := events.Connect(cfg.NATSURL, "marketplace-storefront", logging.Component(logger, "events"))
		if err != nil {
			log.WithError(err).Fatal("nats connection failed")
		}
		publisher = events.Logged{Next: conn, Logger: logging.Component(logger, "events")}
	}
	defer publisher.Close()

	backend, err := storage.FromConfig(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("storage initialization failed")
	}

	r, err := router.New(cfg, router.Dependencies{
		Logger:     logger,
		Attributes: attributeCatalog,
		Events:     publisher,
		Storage:    backend,
	})
	if err != nil {
		log.WithError(err).Fatal("router initialization failed")
	}

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":        addr,
			"environment": cfg.Environment,
			"storage":     cfg.StorageDriver,
		}).Info("api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
