package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/koibridge/match-app/internal/api"
	"github.com/koibridge/match-app/internal/chatsession"
	"github.com/koibridge/match-app/internal/cohort"
	"github.com/koibridge/match-app/internal/config"
	"github.com/koibridge/match-app/internal/geo"
	"github.com/koibridge/match-app/internal/matchmaking"
	"github.com/koibridge/match-app/internal/message"
	"github.com/koibridge/match-app/internal/messaging"
	"github.com/koibridge/match-app/internal/queue"
	"github.com/koibridge/match-app/internal/ratelimit"
)

func main() {
	log.Println("Starting KoiBridge API server...")

	_ = godotenv.Load()
	cfg := config.Load()

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to open Postgres: %v", err)
	}
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	cancel()

	if err := runMigrations(cfg.MigrationsPath, cfg.PostgresDSN); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// --- NATS (optional) ---
	var natsClient *messaging.NATSClient
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.Name = "koibridge-api"

		natsClient, err = messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
	}

	var publisher matchmaking.Publisher
	if natsClient != nil {
		publisher = natsClient
	}

	var devCohort cohort.Cohort
	if cfg.DevCohort != "" {
		devCohort, err = cohort.Parse(cfg.DevCohort)
		if err != nil {
			log.Fatalf("invalid DEV_COHORT: %v", err)
		}
	}

	sessions := chatsession.NewStore(db)
	matcher := matchmaking.NewService(queue.NewStore(rdb), sessions, publisher, cfg.Estimator)
	handler := api.NewHandler(
		matcher,
		sessions,
		message.NewStore(db),
		geo.NewIPAPIResolver(devCohort),
		ratelimit.NewLimiter(rdb),
	)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewRouter(handler, cfg.AllowedOrigins),
	}

	log.Printf("KoiBridge API server running")
	log.Printf("  listen_addr:  %s", cfg.ListenAddr)
	log.Printf("  redis_addr:   %s", cfg.RedisAddr)
	log.Printf("  nats_url:     %s", orDisabled(cfg.NATSURL))
	log.Printf("  avg_match:    %ds (clamp %d-%ds)",
		cfg.Estimator.AverageMatchSeconds, cfg.Estimator.MinWaitSeconds, cfg.Estimator.MaxWaitSeconds)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	if natsClient != nil {
		natsClient.Close()
	}
	rdb.Close()
	db.Close()
}

// runMigrations applies pending schema migrations. A database already at
// the latest version is not an error.
func runMigrations(path, dsn string) error {
	m, err := migrate.New("file://"+path, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func orDisabled(s string) string {
	if s == "" {
		return "(disabled)"
	}
	return s
}
