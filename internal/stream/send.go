package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/audio"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/codec"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/metrics"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/protocol"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/ratelimit"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/stats"
)

const defaultQueueCapacity = 8

// SendConfig configures a SendPipeline. Codec and SampleRate are required;
// Limiter, Stats, Metrics and Logger may be nil.
type SendConfig struct {
	Codec         codec.Codec
	SampleRate    int
	Overlap       int
	QueueCapacity int
	// Realtime paces frame writes to the playback rate of the audio
	// instead of sending as fast as the wire allows.
	Realtime bool
	Limiter  *ratelimit.Limiter
	Stats    *stats.Collector
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// SendPipeline segments, encodes and transmits one audio stream.
type SendPipeline struct {
	codec      codec.Codec
	sampleRate int
	overlap    int
	queueCap   int
	realtime   bool
	limiter    *ratelimit.Limiter
	stats      *stats.Collector
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewSendPipeline validates the configuration and creates a pipeline. The
// pipeline is single-use: one Run per instance.
func NewSendPipeline(cfg SendConfig) (*SendPipeline, error) {
	if cfg.Codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Codec.BlockSize() {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", cfg.Codec.BlockSize(), cfg.Overlap)
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SendPipeline{
		codec:      cfg.Codec,
		sampleRate: cfg.SampleRate,
		overlap:    cfg.Overlap,
		queueCap:   cfg.QueueCapacity,
		realtime:   cfg.Realtime,
		limiter:    cfg.Limiter,
		stats:      cfg.Stats,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}, nil
}

// Run streams source through the encode and send stages until the final
// chunk is on the wire, the context is cancelled, or a stage fails. The
// stream header goes out before the first frame. The pipeline owns the
// outbound stream: when w is an io.Closer it is closed on cancellation, on
// a stage failure, and on return, so a stage blocked in a write always
// unwinds.
func (p *SendPipeline) Run(ctx context.Context, w io.Writer, source []float32) error {
	seg, err := audio.NewSegmenter(source, p.codec.BlockSize(), p.overlap)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if c, ok := w.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
		defer c.Close()
	}

	header := &protocol.StreamHeader{
		SampleRate:    uint32(p.sampleRate),
		ChunkLength:   uint32(p.codec.BlockSize()),
		OverlapLength: uint32(p.overlap),
	}
	if _, err := w.Write(protocol.EncodeStreamHeader(header)); err != nil {
		return &TransportError{Op: "write header", Err: err}
	}

	p.logger.Info("stream started",
		slog.Int("samples", len(source)),
		slog.Int("chunks", seg.TotalChunks()),
		slog.Int("chunk_length", p.codec.BlockSize()),
		slog.Int("overlap", p.overlap))

	units := make(chan *protocol.EncodedUnit, p.queueCap)
	g.Go(func() error {
		defer close(units)
		return p.encodeStage(ctx, seg, units)
	})
	g.Go(func() error {
		return p.sendStage(ctx, w, units)
	})
	return g.Wait()
}

func (p *SendPipeline) encodeStage(ctx context.Context, seg *audio.Segmenter, units chan<- *protocol.EncodedUnit) error {
	for {
		chunk, err := seg.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		start := time.Now()
		payload, err := p.codec.Encode(chunk.Samples)
		if err != nil {
			return &CodecError{Sequence: chunk.Sequence, Op: "encode", Err: err}
		}
		elapsed := time.Since(start)
		p.stats.Record(stats.StageEncode, chunk.Sequence, elapsed, len(payload))
		p.metrics.RecordStageDuration("encode", elapsed.Seconds())

		unit := &protocol.EncodedUnit{
			Sequence:       chunk.Sequence,
			OriginalLength: uint32(chunk.Original),
			Last:           chunk.Last,
			Payload:        payload,
		}
		select {
		case units <- unit:
			p.metrics.SetQueueDepth("send", len(units))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *SendPipeline) sendStage(ctx context.Context, w io.Writer, units <-chan *protocol.EncodedUnit) error {
	// Each chunk advances playback by one stride.
	stride := p.codec.BlockSize() - p.overlap
	interval := time.Duration(stride) * time.Second / time.Duration(p.sampleRate)
	next := time.Now()

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

		frame := protocol.EncodeFrame(unit)
		p.limiter.Reserve(len(frame))

		start := time.Now()
		if _, err := w.Write(frame); err != nil {
			return &TransportError{Op: "write frame", Err: err}
		}
		elapsed := time.Since(start)
		p.stats.Record(stats.StageSend, unit.Sequence, elapsed, len(frame))
		p.metrics.RecordStageDuration("send", elapsed.Seconds())
		p.metrics.RecordFrameSent(len(frame), len(unit.Payload))

		p.logger.Debug("frame sent",
			slog.Uint64("sequence", unit.Sequence),
			slog.Int("bytes", len(frame)),
			slog.Bool("last", unit.Last))

		if unit.Last {
			return nil
		}
		if p.realtime {
			next = next.Add(interval)
			if wait := time.Until(next); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
