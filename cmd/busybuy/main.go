package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Hrithik248/busy-buy/internal/cartsync"
	"github.com/Hrithik248/busy-buy/internal/catalog"
	"github.com/Hrithik248/busy-buy/internal/events"
	"github.com/Hrithik248/busy-buy/internal/httpapi"
	"github.com/Hrithik248/busy-buy/internal/identity"
	"github.com/Hrithik248/busy-buy/internal/notify"
	"github.com/Hrithik248/busy-buy/internal/repository"
	"github.com/Hrithik248/busy-buy/internal/session"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Config struct {
	HTTPPort          string
	MongoURI          string
	MongoDBName       string
	RedisAddr         string
	RedisPassword     string
	KafkaBrokers      string
	CatalogDBPath     string
	CatalogMigrations string
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		MongoDBName:       getEnv("MONGO_DB_NAME", "busybuy"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:      getEnv("KAFKA_BROKERS", ""),
		CatalogDBPath:     getEnv("CATALOG_DB_PATH", "catalog.db"),
		CatalogMigrations: getEnv("CATALOG_MIGRATIONS_PATH", "migrations"),
		RequestTimeout:    30 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx := context.Background()

	// MongoDB holds users, carts, and orders.
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	if err := repository.EnsureIndexes(ctx, mongoDB); err != nil {
		log.Fatal("failed to create indexes", zap.Error(err))
	}
	log.Info("connected to MongoDB", zap.String("uri", cfg.MongoURI))

	// Redis holds session tokens.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis connection failed", zap.Error(err))
	}
	log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

	// SQLite holds the seeded product catalog.
	cat, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		log.Fatal("failed to open catalog", zap.Error(err))
	}
	defer cat.Close()
	if err := cat.RunMigrations(cfg.CatalogMigrations); err != nil {
		log.Fatal("failed to run catalog migrations", zap.Error(err))
	}
	log.Info("catalog ready", zap.String("path", cfg.CatalogDBPath))

	toasts := notify.NewBus()

	userRepo := repository.NewMongoUserRepository(mongoDB)
	cartRepo := repository.NewMongoCartRepository(mongoDB)
	orderRepo := repository.NewMongoOrderRepository(mongoDB)

	ids := identity.NewService(userRepo, identity.NewRedisTokenStore(redisClient), log)
	sessions := session.NewManager(ids, toasts, log)
	sessions.Start()
	defer sessions.Stop()

	cart := cartsync.New(cartRepo, orderRepo, toasts, log)
	if cfg.KafkaBrokers != "" {
		publisher := events.NewPublisher(log, strings.Split(cfg.KafkaBrokers, ",")...)
		defer publisher.Close()
		cart.SetEventPublisher(publisher)
	}
	cart.Bind(sessions)
	defer cart.Close()

	// Drain toasts into the log; a UI in front of this process would render
	// them instead.
	toastCh := toasts.Subscribe()
	go func() {
		for t := range toastCh {
			log.Info("toast", zap.String("level", t.Level.String()), zap.String("message", t.Message))
		}
	}()

	router := httpapi.NewRouter(httpapi.Deps{
		Sessions:       sessions,
		Cart:           cart,
		Catalog:        cat,
		Resolver:       ids,
		Log:            log,
		RequestTimeout: cfg.RequestTimeout,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: otelhttp.NewHandler(router, "busybuy"),
	}

	go func() {
		log.Info("busy-buy listening", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	if err := mongoDB.Client().Disconnect(shutdownCtx); err != nil {
		log.Error("mongo disconnect failed", zap.Error(err))
	}
	log.Info("stopped")
}
