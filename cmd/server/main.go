package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/go-flights-aggregator/internal/auth"
	"github.com/you/go-flights-aggregator/internal/config"
	"github.com/you/go-flights-aggregator/internal/httpx"
	"github.com/you/go-flights-aggregator/internal/logger"
	"github.com/you/go-flights-aggregator/internal/providers"
	"github.com/you/go-flights-aggregator/internal/service"
	"github.com/you/go-flights-aggregator/internal/store"
)

func main() {
	// Loading config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.JWTSecret == "" {
		log.Fatal("jwt_secret must be set")
	}

	// Creating flight provider slice out of config parameters
	prov := []providers.FlightProvider{
		providers.WithRateLimit(providers.NewKiwi(cfg.Kiwi, log), cfg.Kiwi.RPS, cfg.Kiwi.Burst, log),
		providers.WithRateLimit(providers.NewAmadeus(cfg.Amadeus, log), cfg.Amadeus.RPS, cfg.Amadeus.Burst, log),
		providers.WithRateLimit(providers.NewDuffel(cfg.Duffel, log), cfg.Duffel.RPS, cfg.Duffel.Burst, log),
		providers.WithRateLimit(providers.NewRapidBooking(cfg.RapidBooking, log), cfg.RapidBooking.RPS, cfg.RapidBooking.Burst, log),
	}
	for _, p := range prov {
		log.Info("provider configured",
			zap.String("provider", p.Name()), zap.Int("priority", p.Priority()), zap.Bool("available", p.IsAvailable()))
	}

	// Creating services
	searchSvc := service.NewService(prov, cfg.ProviderTimeout, log)
	repo, closeRepo, err := newRepository(cfg, log)
	if err != nil {
		log.Fatal("store", zap.Error(err))
	}
	defer closeRepo()

	publicMux := http.NewServeMux()

	// Public: login to get JWT, health
	publicMux.HandleFunc("/auth/login", auth.LoginHandler(cfg))
	publicMux.HandleFunc("/health", httpx.HealthHandler(searchSvc))

	// Protected group with JWT
	protectedMux := http.NewServeMux()
	httpx.RegisterRoutes(protectedMux, searchSvc, repo, cfg.StreamInterval, log)

	// handler to control authenticated routes
	root := auth.JWTMiddleware(publicMux, protectedMux, cfg, log)

	// Creation of HTTP server
	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           root,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      0, // streams stay open
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Running http server on a secondary thread
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.Bool("tls", cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""))
		var err error
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
}

func newRepository(cfg *config.Config, log *zap.Logger) (store.Repository, func(), error) {
	switch cfg.StoreDriver {
	case "", "memory":
		return store.NewMemory(log), func() {}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		repo := store.NewRedis(rdb, log, store.WithPrefix(cfg.Redis.Prefix), store.WithTTL(cfg.Redis.TTL))
		return repo, func() { _ = rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store_driver %q", cfg.StoreDriver)
	}
}
