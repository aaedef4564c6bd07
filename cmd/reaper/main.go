package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/koibridge/match-app/internal/config"
	"github.com/koibridge/match-app/internal/messaging"
	"github.com/koibridge/match-app/internal/queue"
	"github.com/koibridge/match-app/internal/reaper"
)

func main() {
	log.Println("Starting KoiBridge queue reaper...")

	_ = godotenv.Load()
	cfg := config.Load()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	var natsClient *messaging.NATSClient
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.Name = "koibridge-reaper"

		var err error
		natsClient, err = messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
	}

	var pub reaper.Publisher
	if natsClient != nil {
		pub = natsClient
	}

	r := reaper.New(queue.NewStore(rdb), pub, reaper.Config{
		Interval:   cfg.ReapInterval,
		WaitingTTL: cfg.WaitingTTL,
	})

	log.Printf("KoiBridge queue reaper running")
	log.Printf("  redis_addr:  %s", cfg.RedisAddr)
	log.Printf("  interval:    %s", cfg.ReapInterval)
	log.Printf("  waiting_ttl: %s", cfg.WaitingTTL)

	runCtx, stop := context.WithCancel(context.Background())
	go r.Run(runCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	stop()
	if natsClient != nil {
		natsClient.Close()
	}
	rdb.Close()
}
