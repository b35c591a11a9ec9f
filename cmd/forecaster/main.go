// Package main implements the rainfall forecaster service.
// The forecaster periodically reloads the monthly rainfall table, retrains
// its model, forecasts the configured horizon autoregressively and serves
// the resulting snapshots over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/rainfall/cmd/forecaster/config"
	"github.com/HatiCode/rainfall/cmd/forecaster/logger"
	"github.com/HatiCode/rainfall/cmd/forecaster/metrics"
	forecastermodels "github.com/HatiCode/rainfall/cmd/forecaster/models"
	"github.com/HatiCode/rainfall/cmd/forecaster/router"
	"github.com/HatiCode/rainfall/cmd/forecaster/store"
	"github.com/HatiCode/rainfall/pkg/adapters"
	"github.com/HatiCode/rainfall/pkg/features"
	"github.com/HatiCode/rainfall/pkg/httpx"
	"github.com/HatiCode/rainfall/pkg/models"
	"github.com/HatiCode/rainfall/pkg/series"
	"github.com/HatiCode/rainfall/pkg/sink"
)

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting rainfall forecaster",
		"version", "v0.1.0",
		"series", cfg.Series,
		"data", cfg.DataPath,
		"model", cfg.Model,
		"n_lags", cfg.NLags,
		"months_ahead", cfg.MonthsAhead,
	)

	seriesCfg := series.DefaultConfig()
	seriesCfg.YearColumn = cfg.YearColumn
	reshaper, err := series.NewReshaper(seriesCfg)
	if err != nil {
		logger.Error("invalid reshaper configuration", "error", err)
		os.Exit(1)
	}

	schema := features.Schema{NLags: cfg.NLags}
	newModel := func() (models.Model, error) {
		return forecastermodels.New(cfg.Model, schema, cfg.RidgeLambda, logger)
	}
	if _, err := newModel(); err != nil {
		logger.Error("invalid model configuration", "error", err)
		os.Exit(1)
	}

	snapshotStore, closeStore, err := store.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "storage", cfg.Storage, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	var publisher sink.Publisher = sink.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := sink.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			logger.Error("failed to initialize kafka publisher", "error", err)
			os.Exit(1)
		}
		logger.Info("publishing snapshots to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		publisher = kp
	}
	defer publisher.Close()

	clock := clockwork.NewRealClock()
	m := metrics.New(cfg.Series)

	f, err := New(Options{
		Series:      cfg.Series,
		Adapter:     &adapters.CSVAdapter{Path: cfg.DataPath, Comma: cfg.Comma()},
		Reshaper:    reshaper,
		Schema:      schema,
		NewModel:    newModel,
		Store:       snapshotStore,
		Publisher:   publisher,
		MonthsAhead: cfg.MonthsAhead,
		CacheSize:   cfg.CacheSize,
		Clock:       clock,
		Metrics:     m,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to create forecaster", "error", err)
		os.Exit(1)
	}

	mux := router.SetupRoutes(router.Deps{
		Store:         snapshotStore,
		Forecaster:    f,
		DefaultMonths: cfg.MonthsAhead,
		StaleAfter:    cfg.StaleAfter(),
		Clock:         clock,
		Metrics:       m,
		Logger:        logger,
	})
	handler := httpx.RecoveryMiddleware(logger)(httpx.LoggingMiddleware(logger)(mux))
	httpServer := httpx.NewServer(cfg.Listen, handler, logger)

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
	)
	if cfg.GRPCListen != "" {
		grpcServer = grpc.NewServer()
		healthServer = health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		reflection.Register(grpcServer)

		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			logger.Error("failed to listen", "address", cfg.GRPCListen, "error", err)
			os.Exit(1)
		}

		go func() {
			logger.Info("grpc health server listening", "address", cfg.GRPCListen)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("grpc server failed", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := f.Run(ctx, cfg.Interval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("forecast loop failed", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	cancel()

	if grpcServer != nil {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	}

	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
