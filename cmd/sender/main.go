package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/audio"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/codec"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/config"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/logging"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/ratelimit"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/stats"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/stream"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "speech-codec-sender"
	serviceVersion    = "1.0.0"

	// Synthetic tone used when no input file is configured.
	toneFrequency = 440.0
	toneDuration  = 5 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	inputPath := flag.String("input", "", "WAV file to stream (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *inputPath != "" {
		cfg.Sender.Input = *inputPath
	}

	logger := logging.New(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Send failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	source, sampleRate, err := loadSource(cfg, logger)
	if err != nil {
		return err
	}

	c, err := codec.New(cfg.Codec.Backend, cfg.Stream.ChunkLength, cfg.Codec.Layers)
	if err != nil {
		return err
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.BytesPerSecond)
		logger.Info("Rate limiting enabled",
			slog.Int("bytes_per_second", cfg.RateLimit.BytesPerSecond))
	}

	collector := stats.New()
	pipeline, err := stream.NewSendPipeline(stream.SendConfig{
		Codec:         c,
		SampleRate:    sampleRate,
		Overlap:       cfg.Stream.OverlapLength,
		QueueCapacity: cfg.Stream.QueueCapacity,
		Realtime:      cfg.Sender.Realtime,
		Limiter:       limiter,
		Stats:         collector,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Sender.Host, cfg.Sender.Port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	logger.Info("Connected to receiver", slog.String("address", addr))

	// Interrupt cancels the stream mid-transfer.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Run(ctx, conn, source); err != nil {
		return err
	}

	logSummary(logger, collector, len(source), sampleRate)
	return nil
}

// loadSource reads the configured WAV file, or synthesizes a test tone when
// no input is configured.
func loadSource(cfg *config.Config, logger *slog.Logger) ([]float32, int, error) {
	if cfg.Sender.Input == "" {
		n := int(toneDuration.Seconds() * float64(cfg.Stream.SampleRate))
		source := make([]float32, n)
		for i := range source {
			source[i] = 0.5 * float32(math.Sin(2*math.Pi*toneFrequency*float64(i)/float64(cfg.Stream.SampleRate)))
		}
		logger.Info("Using synthetic tone",
			slog.Float64("frequency_hz", toneFrequency),
			slog.Duration("duration", toneDuration),
			slog.Int("samples", n),
		)
		return source, cfg.Stream.SampleRate, nil
	}

	data, err := os.ReadFile(cfg.Sender.Input)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read input file: %w", err)
	}
	source, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode input file %s: %w", cfg.Sender.Input, err)
	}

	logger.Info("Input loaded",
		slog.String("path", cfg.Sender.Input),
		slog.Int("samples", len(source)),
		slog.Int("sample_rate", sampleRate),
	)
	return source, sampleRate, nil
}

func logSummary(logger *slog.Logger, collector *stats.Collector, samples, sampleRate int) {
	summary := collector.Summary()
	sent := summary.Stages[stats.StageSend]
	enc := summary.Stages[stats.StageEncode]

	audioSeconds := float64(samples) / float64(sampleRate)
	var ratio float64
	if sent.Bytes > 0 {
		ratio = float64(samples*4) / float64(sent.Bytes)
	}

	logger.Info("Stream finished",
		slog.Int("chunks", sent.Count),
		slog.Int64("wire_bytes", sent.Bytes),
		slog.Float64("audio_seconds", audioSeconds),
		slog.Float64("compression_ratio", ratio),
		slog.Duration("encode_avg", enc.Avg),
		slog.Duration("encode_max", enc.Max),
		slog.Duration("send_avg", sent.Avg),
		slog.Duration("elapsed", summary.Elapsed),
	)
}
