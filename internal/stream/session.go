package stream

import (
	"log/slog"
	"net"
	"time"

	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/stats"
)

// Session ties one network connection to its stats collector and logging
// context for the lifetime of a stream.
type Session struct {
	ID      uint64
	conn    net.Conn
	logger  *slog.Logger
	stats   *stats.Collector
	started time.Time
}

// NewSession wraps an accepted or dialed connection.
func NewSession(id uint64, conn net.Conn, logger *slog.Logger) *Session {
	return &Session{
		ID:   id,
		conn: conn,
		logger: logger.With(
			slog.Uint64("session_id", id),
			slog.String("remote", conn.RemoteAddr().String())),
		stats:   stats.New(),
		started: time.Now(),
	}
}

// Conn returns the underlying connection.
func (s *Session) Conn() net.Conn {
	return s.conn
}

// Logger returns the session-scoped logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Stats returns the session's collector.
func (s *Session) Stats() *stats.Collector {
	return s.stats
}

// Duration returns how long the session has been open.
func (s *Session) Duration() time.Duration {
	return time.Since(s.started)
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
