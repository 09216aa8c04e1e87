package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dhanushfitness/managementTool-sub002/internal/api"
	"github.com/dhanushfitness/managementTool-sub002/internal/app"
	"github.com/dhanushfitness/managementTool-sub002/internal/auth"
	"github.com/dhanushfitness/managementTool-sub002/internal/config"
	"github.com/dhanushfitness/managementTool-sub002/internal/outbox"
	"github.com/dhanushfitness/managementTool-sub002/internal/scheduler"
	httptransport "github.com/dhanushfitness/managementTool-sub002/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := app.OpenPostgres(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	service, err := app.NewService(cfg, pool)
	if err != nil {
		log.Fatalf("failed to build attendance service: %v", err)
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

	// Manual triggers share the cron scheduler's overlap guard; the schedule itself runs in cmd/sweeper.
	// Without a shared locker the two processes could sweep the same member, so the trigger is off.
	var sweeps api.SweepTrigger
	if app.SharedLocking(cfg) {
		job, closeLocker, err := app.NewExpiryJob(ctx, cfg, pool)
		if err != nil {
			log.Fatalf("failed to build expiry job: %v", err)
		}
		defer closeLocker()
		sched, err := scheduler.New(job, cfg.SweepSchedule, scheduler.WithLocation(app.DefaultLocation(cfg)))
		if err != nil {
			log.Fatalf("failed to configure expiry sweep: %v", err)
		}
		sweeps = sched
	} else {
		log.Printf("REDIS_URL not set: manual expiry sweep trigger disabled")
	}

	router := chi.NewRouter()
	router.Use(requestLogger)
	api.NewHandler(service, sweeps).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), authMiddleware.Wrap(router))
	done := httptransport.Serve(ctx, "attendance api", server, 15*time.Second)

	<-ctx.Done()
	<-done
	<-dispatched
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}
