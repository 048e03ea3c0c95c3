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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/aluiziolira/bookshelf-crawler/config"
	"github.com/aluiziolira/bookshelf-crawler/logging"
	"github.com/aluiziolira/bookshelf-crawler/pipeline"
	"github.com/aluiziolira/bookshelf-crawler/scraper"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(viper.New())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}

	writer, err := pipeline.NewSnapshotWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		logger.Error("creating writer", zap.Error(err))
		return 1
	}

	opts := []scraper.Option{scraper.WithLogger(logger)}
	if cfg.Verbose {
		opts = append(opts, scraper.WithProgressReporting(10*time.Second))
	}
	crawler, err := scraper.NewCrawler(cfg, writer, opts...)
	if err != nil {
		logger.Error("initialising crawler", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received, abandoning run")
	}()

	metricsServer := startMetricsServer(cfg.MetricsAddr, crawler.Metrics, logger)
	defer stopMetricsServer(metricsServer, logger)

	result, err := crawler.Run(ctx)
	if err != nil {
		logger.Error("crawl failed", zap.Error(err))
		return 1
	}
	if result.Warning != nil {
		logger.Warn("crawl produced no snapshot", zap.Error(result.Warning))
		printSummary(os.Stdout, result, "")
		return 0
	}

	if err := writer.Validate(); err != nil {
		logger.Error("output validation failed", zap.Error(err))
		return 1
	}

	printSummary(os.Stdout, result, cfg.OutputFile)
	return 0
}

func startMetricsServer(addr string, metrics *scraper.Metrics, logger *zap.Logger) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("metrics server enabled", zap.String("addr", addr))
	return srv
}

func stopMetricsServer(srv *http.Server, logger *zap.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown failed", zap.Error(err))
	}
}
