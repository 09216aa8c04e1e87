package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dhanushfitness/managementTool-sub002/internal/app"
	"github.com/dhanushfitness/managementTool-sub002/internal/config"
	"github.com/dhanushfitness/managementTool-sub002/internal/outbox"
	"github.com/dhanushfitness/managementTool-sub002/internal/scheduler"
	httptransport "github.com/dhanushfitness/managementTool-sub002/internal/transport/http"
)

func main() {
	once := flag.Bool("once", false, "run a single expiry sweep and exit")
	flag.Parse()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := app.OpenPostgres(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	job, closeLocker, err := app.NewExpiryJob(ctx, cfg, pool)
	if err != nil {
		log.Fatalf("failed to build expiry job: %v", err)
	}
	defer closeLocker()

	if *once {
		summary, err := job.Run(ctx)
		if err != nil {
			log.Fatalf("expiry sweep failed: %v", err)
		}
		log.Printf("expiry sweep done (expired=%d, notified=%d, failed=%d, skipped=%d)",
			summary.Expired, summary.Notified, summary.Failed, summary.Skipped)
		return
	}

	sched, err := scheduler.New(job, cfg.SweepSchedule, scheduler.WithLocation(app.DefaultLocation(cfg)))
	if err != nil {
		log.Fatalf("failed to schedule expiry sweep: %v", err)
	}

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()
	dispatcher := outbox.NewDispatcher(pool, producer, outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL),
		cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		dispatcher.Run(ctx)
	}()

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	metricsDone := httptransport.Serve(ctx, "sweeper metrics", metricsSrv, 10*time.Second)

	sched.Start()
	log.Printf("next expiry sweep at %s", sched.Next().Format(time.RFC3339))

	<-ctx.Done()
	log.Println("sweeper shutdown requested")
	sched.Stop()
	<-dispatched
	<-metricsDone
}
