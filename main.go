package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"places-server/auth"
	"places-server/config"
	"places-server/handlers"
	"places-server/logger"
	"places-server/metrics"
	"places-server/repository"
	"places-server/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const version = "1.0.0"

func main() {
	envFile := flag.String("c", ".env", "path to an env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := logger.Initialize(cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Log.Errorw("server stopped", "err", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		logger.Log.Infow("connected to redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	}

	var (
		users  repository.UserRepository
		places repository.PlaceRepository
		health handlers.HealthCheck
	)
	switch cfg.StorageBackend {
	case config.BackendMongo:
		client, err := connectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		defer func() {
			_ = client.Disconnect(context.Background())
		}()
		db := client.Database(cfg.MongoDatabase)

		userRepo := repository.NewMongoUserRepository(db)
		placeRepo := repository.NewMongoPlaceRepository(db)
		if err := userRepo.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("user indexes: %w", err)
		}
		if err := placeRepo.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("place indexes: %w", err)
		}
		users, places = userRepo, placeRepo
		health = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		logger.Log.Infow("connected to mongodb", "database", cfg.MongoDatabase)

	case config.BackendMemory:
		users = repository.NewMemoryUserRepository()
		places = repository.NewMemoryPlaceRepository()
		logger.Log.Warn("using in-memory storage; data is lost on restart")
	}

	if rdb != nil {
		users = repository.NewCachedUserRepository(users, rdb, cfg.UserCacheTTL)
	}

	strategy, err := auth.NewStrategy(cfg.Auth, rdb)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router := handlers.NewRouter(handlers.RouterDeps{
		Users:          services.NewUserService(users),
		Places:         services.NewPlaceService(places),
		Strategy:       strategy,
		Metrics:        metrics.New(reg),
		Health:         health,
		Version:        version,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Infow("server starting", "addr", cfg.HTTPAddr, "auth", strategy.Name(), "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func connectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}
