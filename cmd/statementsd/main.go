package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/statements-tracker/internal/async"
	"github.com/joseph-ayodele/statements-tracker/internal/common"
	"github.com/joseph-ayodele/statements-tracker/internal/ingest"
	"github.com/joseph-ayodele/statements-tracker/internal/llm"
	"github.com/joseph-ayodele/statements-tracker/internal/llm/provider"
	"github.com/joseph-ayodele/statements-tracker/internal/memory"
	"github.com/joseph-ayodele/statements-tracker/internal/metrics"
	"github.com/joseph-ayodele/statements-tracker/internal/pipeline"
	repo "github.com/joseph-ayodele/statements-tracker/internal/repository"
	"github.com/joseph-ayodele/statements-tracker/internal/services/statement"
)

func main() {
	cfg := common.LoadConfig()
	logger := common.SetupLogger(os.Stdout, cfg.Log)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, repo.Config(cfg.Database), logger)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	if err := repo.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if _, err := repo.Migrate(ctx, db, logger); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(reg)

	model := provider.New(cfg.LLM, logger)
	h := llm.CheckHealth(ctx, model, cfg.LLM.Provider, 5*time.Second)
	logger.Info("llm.health", "status", h.Status, "model", h.Model, "message", h.Message)

	store := repo.NewStore(db, logger)
	parser := pipeline.New(pipeline.SettingsFromConfig(cfg), model, store, collector, logger)
	service := statement.NewService(store, parser, memory.NewFileStore(cfg.Memory.Dir, logger), logger)

	queue := async.NewProcessorQueue(service, logger,
		async.WithWorkers(cfg.Inbox.Workers),
		async.WithQueueSize(256),
		async.WithProcessTimeout(cfg.Pipeline.RunTimeout),
	)

	if err := os.MkdirAll(cfg.Inbox.Dir, 0o755); err != nil {
		logger.Error("failed to create inbox", "dir", cfg.Inbox.Dir, "error", err)
		os.Exit(1)
	}
	events, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{cfg.Inbox.Dir},
		InitialScan: true,
		Debounce:    cfg.Inbox.Debounce,
	}, logger)
	if err != nil {
		logger.Error("failed to watch inbox", "dir", cfg.Inbox.Dir, "error", err)
		os.Exit(1)
	}
	go feed(ctx, events, watchErrs, queue, cfg.Inbox.UserID, logger)

	// gRPC health
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
		}
	}()
	go watchDatabase(ctx, db, healthServer, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics serve error", "error", err)
		}
	}()

	logger.Info("statementsd started",
		"grpc_addr", cfg.Server.GRPCAddr,
		"metrics_addr", cfg.Server.MetricsAddr,
		"inbox", cfg.Inbox.Dir,
		"workers", cfg.Inbox.Workers,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.RunTimeout+10*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
}

// feed turns watcher events into queue jobs until the watcher stops.
func feed(ctx context.Context, events <-chan string, errs <-chan error, q async.Queue, userID string, logger *slog.Logger) {
	for {
		select {
		case path, ok := <-events:
			if !ok {
				return
			}
			job := async.Job{Path: path, UserID: userID, SubmittedAt: time.Now()}
			if err := q.Enqueue(ctx, job); err != nil {
				logger.Warn("inbox file not queued", "path", path, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("inbox watcher error", "error", err)
		}
	}
}

// watchDatabase flips the health status when the database stops answering.
func watchDatabase(ctx context.Context, db repo.Pinger, hs *health.Server, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := grpc_health_v1.HealthCheckResponse_SERVING
			if err := repo.HealthCheck(ctx, db, 3*time.Second, logger); err != nil {
				status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			}
			hs.SetServingStatus("", status)
		}
	}
}
