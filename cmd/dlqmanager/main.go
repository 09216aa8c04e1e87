package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dhanushfitness/managementTool-sub002/internal/app"
	"github.com/dhanushfitness/managementTool-sub002/internal/config"
	"github.com/dhanushfitness/managementTool-sub002/internal/outbox"
	httptransport "github.com/dhanushfitness/managementTool-sub002/internal/transport/http"
)

const defaultDLQBatchSize = 50

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := app.OpenPostgres(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	metricsDone := httptransport.Serve(ctx, "dlq manager metrics", metricsSrv, 10*time.Second)

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	log.Printf("DLQ manager started (interval=%s, maxRetries=%d)", cfg.DLQPollInterval, cfg.DLQMaxRetries)

	for {
		select {
		case <-ctx.Done():
			log.Println("dlq manager received shutdown signal")
			<-metricsDone
			return
		case <-ticker.C:
			report, err := manager.Replay(ctx, defaultDLQBatchSize)
			if err != nil {
				log.Printf("dlq replay: %v", err)
			}
			if report.Total() > 0 {
				log.Printf("dlq replay: requeued=%d rescheduled=%d quarantined=%d",
					report.Requeued, report.Rescheduled, report.Quarantined)
			}
		}
	}
}
