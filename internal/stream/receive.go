package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/audio"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/codec"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/metrics"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/protocol"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/stats"
)

// ReceiveConfig configures a ReceivePipeline. Codec is required; Stats,
// Metrics and Logger may be nil.
type ReceiveConfig struct {
	Codec         codec.Codec
	QueueCapacity int
	Stats         *stats.Collector
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Result is the outcome of one received stream.
type Result struct {
	Header  protocol.StreamHeader
	Samples []float32
	Frames  int
}

// ReceivePipeline reads frames from a byte stream, decodes them and
// reconstructs the original signal.
type ReceivePipeline struct {
	codec    codec.Codec
	queueCap int
	stats    *stats.Collector
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewReceivePipeline validates the configuration and creates a pipeline.
func NewReceivePipeline(cfg ReceiveConfig) (*ReceivePipeline, error) {
	if cfg.Codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ReceivePipeline{
		codec:    cfg.Codec,
		queueCap: cfg.QueueCapacity,
		stats:    cfg.Stats,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}, nil
}

// Run consumes one stream from r: header first, then frames until the final
// one arrives or the peer closes cleanly. A close before the first frame is
// a valid empty stream. The pipeline owns the inbound stream: when r is an
// io.Closer it is closed on cancellation, on a stage failure, and on return,
// so a stage blocked in a read always unwinds.
func (p *ReceivePipeline) Run(ctx context.Context, r io.Reader) (*Result, error) {
	g, ctx := errgroup.WithContext(ctx)
	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
		defer c.Close()
	}

	header, err := protocol.ReadStreamHeader(r)
	if err != nil {
		return nil, err
	}
	if int(header.ChunkLength) != p.codec.BlockSize() {
		return nil, fmt.Errorf("stream chunk length %d does not match codec block size %d",
			header.ChunkLength, p.codec.BlockSize())
	}

	p.logger.Info("stream header received",
		slog.Int("sample_rate", int(header.SampleRate)),
		slog.Int("chunk_length", int(header.ChunkLength)),
		slog.Int("overlap", int(header.OverlapLength)))

	result := &Result{Header: *header}
	recon, err := audio.NewReconstructor(int(header.ChunkLength), int(header.OverlapLength),
		func(samples []float32) error {
			result.Samples = append(result.Samples, samples...)
			return nil
		})
	if err != nil {
		return nil, err
	}

	units := make(chan *protocol.EncodedUnit, p.queueCap)
	g.Go(func() error {
		defer close(units)
		return p.receiveStage(ctx, r, units)
	})
	g.Go(func() error {
		return p.decodeStage(ctx, recon, units, result)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.logger.Info("stream complete",
		slog.Int("frames", result.Frames),
		slog.Int("samples", len(result.Samples)))
	return result, nil
}

// receiveStage reads frames and enforces sequence continuity. It returns
// after forwarding the final frame so a peer that keeps the connection open
// does not stall the pipeline.
func (p *ReceivePipeline) receiveStage(ctx context.Context, r io.Reader, units chan<- *protocol.EncodedUnit) error {
	var expected uint64
	for {
		start := time.Now()
		unit, err := protocol.ReadFrame(r)
		if err == io.EOF {
			if expected == 0 {
				return nil
			}
			return &protocol.ProtocolError{
				Reason: fmt.Sprintf("stream closed before final frame, got %d frames", expected),
			}
		}
		if err != nil {
			var perr *protocol.ProtocolError
			if errors.As(err, &perr) {
				p.metrics.RecordProtocolError()
				return err
			}
			return &TransportError{Op: "read frame", Err: err}
		}
		elapsed := time.Since(start)

		if unit.Sequence != expected {
			p.metrics.RecordProtocolError()
			return &protocol.ProtocolError{
				Reason: fmt.Sprintf("sequence gap: expected %d, got %d", expected, unit.Sequence),
			}
		}
		expected++

		p.stats.Record(stats.StageReceive, unit.Sequence, elapsed, unit.WireSize())
		p.metrics.RecordStageDuration("receive", elapsed.Seconds())
		p.metrics.RecordFrameReceived(unit.WireSize())

		select {
		case units <- unit:
			p.metrics.SetQueueDepth("receive", len(units))
		case <-ctx.Done():
			return ctx.Err()
		}
		if unit.Last {
			return nil
		}
	}
}

func (p *ReceivePipeline) decodeStage(ctx context.Context, recon *audio.Reconstructor, units <-chan *protocol.EncodedUnit, result *Result) error {
	for {
		var unit *protocol.EncodedUnit
		select {
		case u, ok := <-units:
			if !ok {
				return nil
			}
			unit = u
		case <-ctx.Done():
			return ctx.Err()
		}

		start := time.Now()
		samples, err := p.codec.Decode(unit.Payload)
		if err != nil {
			return &CodecError{Sequence: unit.Sequence, Op: "decode", Err: err}
		}
		if err := recon.Push(samples, int(unit.OriginalLength), unit.Last); err != nil {
			return err
		}
		elapsed := time.Since(start)
		p.stats.Record(stats.StageDecode, unit.Sequence, elapsed, len(unit.Payload))
		p.metrics.RecordStageDuration("decode", elapsed.Seconds())

		p.logger.Debug("frame decoded",
			slog.Uint64("sequence", unit.Sequence),
			slog.Bool("last", unit.Last))

		result.Frames++
	}
}
