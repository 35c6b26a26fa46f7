package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/config"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/logging"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/metrics"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "speech-codec-receiver"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("bind_address", cfg.Receiver.BindAddress),
		slog.Int("port", cfg.Receiver.Port),
		slog.String("output_dir", cfg.Receiver.OutputDir),
		slog.Int("sample_rate", cfg.Stream.SampleRate),
		slog.Int("chunk_length", cfg.Stream.ChunkLength),
		slog.Int("overlap_length", cfg.Stream.OverlapLength),
		slog.String("codec_backend", cfg.Codec.Backend),
		slog.Int("codec_layers", cfg.Codec.Layers),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	tcpServer := server.NewTCPServer(cfg, logger, appMetrics)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg, logger, tcpServer, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	if err := tcpServer.Start(); err != nil {
		logger.Error("Failed to start TCP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("tcp_address", tcpServer.Addr().String()),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP first so monitoring endpoints go away before sessions drain.
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := tcpServer.Stop(); err != nil {
		logger.Error("Error stopping TCP server", slog.String("error", err.Error()))
	}

	stats := tcpServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("sessions_accepted", stats.SessionsAccepted),
		slog.Uint64("sessions_completed", stats.SessionsCompleted),
		slog.Uint64("sessions_failed", stats.SessionsFailed),
	)

	logger.Info("Service stopped")
}
