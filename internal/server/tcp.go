package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/audio"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/codec"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/config"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/metrics"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/stats"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/stream"
)

// TCPServer accepts streaming sessions and writes each reconstructed
// stream to a WAV file in the configured output directory.
type TCPServer struct {
	listener net.Listener
	config   *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	nextSessionID     uint64
	sessions          map[uint64]*stream.Session
	sessionsAccepted  uint64
	sessionsCompleted uint64
	sessionsFailed    uint64
	mu                sync.RWMutex
}

// NewTCPServer creates a new TCP server instance
func NewTCPServer(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *TCPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &TCPServer{
		config:   cfg,
		logger:   logger,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[uint64]*stream.Session),
	}
}

// Start begins listening for incoming streams
func (s *TCPServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Receiver.BindAddress, s.config.Receiver.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	if s.config.Receiver.OutputDir != "" {
		if err := os.MkdirAll(s.config.Receiver.OutputDir, 0755); err != nil {
			listener.Close()
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	s.logger.Info("TCP server started",
		slog.String("address", listener.Addr().String()),
		slog.String("output_dir", s.config.Receiver.OutputDir),
	)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the listener address, or nil before Start.
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server, waiting for in-flight sessions
func (s *TCPServer) Stop() error {
	s.logger.Info("Stopping TCP server...")

	s.cancel()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Warn("Error closing listener", slog.String("error", err.Error()))
		}
	}

	// Close live session connections so goroutines blocked in a read unwind.
	s.mu.Lock()
	for _, session := range s.sessions {
		session.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	stats := s.GetStatistics()
	s.logger.Info("TCP server stopped",
		slog.Uint64("sessions_accepted", stats.SessionsAccepted),
		slog.Uint64("sessions_completed", stats.SessionsCompleted),
		slog.Uint64("sessions_failed", stats.SessionsFailed),
	)

	return nil
}

// acceptLoop accepts connections until the listener is closed
func (s *TCPServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Failed to accept connection", slog.String("error", err.Error()))
			continue
		}

		s.mu.Lock()
		s.nextSessionID++
		id := s.nextSessionID
		s.sessionsAccepted++
		session := stream.NewSession(id, conn, s.logger)
		s.sessions[id] = session
		s.mu.Unlock()
		s.metrics.RecordSessionStarted()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleSession(session)
		}()
	}
}

// handleSession runs one receive pipeline to completion and persists the
// reconstructed audio.
func (s *TCPServer) handleSession(session *stream.Session) {
	defer session.Close()
	logger := session.Logger()
	logger.Info("Session started")

	err := s.receiveStream(session)

	duration := session.Duration()
	s.mu.Lock()
	delete(s.sessions, session.ID)
	if err != nil {
		s.sessionsFailed++
	} else {
		s.sessionsCompleted++
	}
	s.mu.Unlock()
	s.metrics.RecordSessionFinished(duration.Seconds(), err != nil)

	if err != nil {
		logger.Error("Session failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", duration),
		)
		return
	}
	logger.Info("Session completed", slog.Duration("duration", duration))
}

func (s *TCPServer) receiveStream(session *stream.Session) error {
	c, err := codec.New(s.config.Codec.Backend, s.config.Stream.ChunkLength, s.config.Codec.Layers)
	if err != nil {
		return err
	}

	pipeline, err := stream.NewReceivePipeline(stream.ReceiveConfig{
		Codec:         c,
		QueueCapacity: s.config.Stream.QueueCapacity,
		Stats:         session.Stats(),
		Metrics:       s.metrics,
		Logger:        session.Logger(),
	})
	if err != nil {
		return err
	}

	result, err := pipeline.Run(s.ctx, session.Conn())
	if err != nil {
		return err
	}

	summary := session.Stats().Summary()
	session.Logger().Info("Stream reconstructed",
		slog.Int("frames", result.Frames),
		slog.Int("samples", len(result.Samples)),
		slog.Int64("wire_bytes", summary.Stages[stats.StageReceive].Bytes),
		slog.Duration("decode_total", summary.Stages[stats.StageDecode].Total),
	)

	if s.config.Receiver.OutputDir == "" || len(result.Samples) == 0 {
		return nil
	}
	return s.writeOutput(session, result)
}

func (s *TCPServer) writeOutput(session *stream.Session, result *stream.Result) error {
	data, err := audio.EncodeWAV(result.Samples, int(result.Header.SampleRate))
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	name := fmt.Sprintf("session_%d_%s.wav", session.ID, time.Now().Format("20060102_150405"))
	path := filepath.Join(s.config.Receiver.OutputDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	session.Logger().Info("Output written",
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// GetStatistics returns current server statistics
func (s *TCPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		SessionsAccepted:  s.sessionsAccepted,
		SessionsCompleted: s.sessionsCompleted,
		SessionsFailed:    s.sessionsFailed,
		ActiveSessions:    uint64(len(s.sessions)),
	}
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	SessionsAccepted  uint64 `json:"sessions_accepted"`
	SessionsCompleted uint64 `json:"sessions_completed"`
	SessionsFailed    uint64 `json:"sessions_failed"`
	ActiveSessions    uint64 `json:"active_sessions"`
}
