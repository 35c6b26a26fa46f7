package stream

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/codec"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/protocol"
	"github.com/oneMoreLn/efficient-speech-codec-streaming/internal/stats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sineSource(n, sampleRate int) []float32 {
	src := make([]float32, n)
	for i := range src {
		src[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / float64(sampleRate)))
	}
	return src
}

// runRoundTrip streams source through connected pipelines over a net.Pipe
// and returns the receiver's result.
func runRoundTrip(t *testing.T, c codec.Codec, overlap int, source []float32) *Result {
	t.Helper()

	client, server := net.Pipe()
	defer server.Close()

	send, err := NewSendPipeline(SendConfig{
		Codec:      c,
		SampleRate: 16000,
		Overlap:    overlap,
	})
	require.NoError(t, err)

	recv, err := NewReceivePipeline(ReceiveConfig{Codec: c})
	require.NoError(t, err)

	sendErr := make(chan error, 1)
	go func() {
		defer client.Close()
		sendErr <- send.Run(context.Background(), client, source)
	}()

	result, err := recv.Run(context.Background(), server)
	require.NoError(t, err)
	require.NoError(t, <-sendErr)
	return result
}

func TestPipelineRoundTrip(t *testing.T) {
	const (
		chunkLen = 1600
		overlap  = 160
	)
	source := sineSource(16000, 16000)
	result := runRoundTrip(t, codec.NewIdentity(chunkLen), overlap, source)

	require.Len(t, result.Samples, len(source),
		"reconstructed stream must match the source length exactly")
	assert.Equal(t, uint32(chunkLen), result.Header.ChunkLength)
	assert.Equal(t, uint32(overlap), result.Header.OverlapLength)

	for i := range source {
		if diff := math.Abs(float64(result.Samples[i] - source[i])); diff > 1e-5 {
			t.Fatalf("sample %d: expected %v, got %v", i, source[i], result.Samples[i])
		}
	}
}

func TestPipelineRoundTripZstd(t *testing.T) {
	const chunkLen = 1600
	c, err := codec.NewZstd(chunkLen, 2)
	require.NoError(t, err)

	source := sineSource(8000, 16000)
	result := runRoundTrip(t, c, 160, source)

	require.Len(t, result.Samples, len(source))
	assert.Greater(t, result.Frames, 1)
}

func TestPipelineShortSource(t *testing.T) {
	// A source shorter than one chunk produces a single padded frame.
	const chunkLen = 1600
	source := sineSource(500, 16000)
	result := runRoundTrip(t, codec.NewIdentity(chunkLen), 160, source)

	assert.Equal(t, 1, result.Frames)
	assert.Len(t, result.Samples, len(source))
}

func TestPipelineEmptySource(t *testing.T) {
	// Zero samples means a header and a clean close: a valid empty stream.
	result := runRoundTrip(t, codec.NewIdentity(1600), 160, nil)

	assert.Equal(t, 0, result.Frames)
	assert.Empty(t, result.Samples)
}

func TestPipelineStats(t *testing.T) {
	const chunkLen = 1600
	c := codec.NewIdentity(chunkLen)
	source := sineSource(8000, 16000)

	client, server := net.Pipe()
	defer server.Close()

	sendStats := stats.New()
	recvStats := stats.New()

	send, err := NewSendPipeline(SendConfig{
		Codec:      c,
		SampleRate: 16000,
		Overlap:    160,
		Stats:      sendStats,
	})
	require.NoError(t, err)
	recv, err := NewReceivePipeline(ReceiveConfig{Codec: c, Stats: recvStats})
	require.NoError(t, err)

	sendErr := make(chan error, 1)
	go func() {
		defer client.Close()
		sendErr <- send.Run(context.Background(), client, source)
	}()
	result, err := recv.Run(context.Background(), server)
	require.NoError(t, err)
	require.NoError(t, <-sendErr)

	sent := sendStats.Summary()
	assert.Equal(t, result.Frames, sent.Stages[stats.StageEncode].Count)
	assert.Equal(t, result.Frames, sent.Stages[stats.StageSend].Count)

	recvd := recvStats.Summary()
	assert.Equal(t, result.Frames, recvd.Stages[stats.StageReceive].Count)
	assert.Equal(t, result.Frames, recvd.Stages[stats.StageDecode].Count)
	assert.Equal(t, sent.Stages[stats.StageSend].Bytes, recvd.Stages[stats.StageReceive].Bytes)
}

// slowReader throttles reads to exercise backpressure through the bounded
// queues back to the sender.
type slowReader struct {
	r   io.Reader
	lim *rate.Limiter
}

func (s *slowReader) Read(p []byte) (int, error) {
	if err := s.lim.Wait(context.Background()); err != nil {
		return 0, err
	}
	return s.r.Read(p)
}

func TestPipelineBackpressure(t *testing.T) {
	const chunkLen = 800
	c := codec.NewIdentity(chunkLen)
	source := sineSource(4000, 16000)

	client, server := net.Pipe()
	defer server.Close()

	send, err := NewSendPipeline(SendConfig{
		Codec:         c,
		SampleRate:    16000,
		Overlap:       80,
		QueueCapacity: 1,
	})
	require.NoError(t, err)
	recv, err := NewReceivePipeline(ReceiveConfig{Codec: c, QueueCapacity: 1})
	require.NoError(t, err)

	sendErr := make(chan error, 1)
	go func() {
		defer client.Close()
		sendErr <- send.Run(context.Background(), client, source)
	}()

	throttled := &slowReader{r: server, lim: rate.NewLimiter(500, 1)}
	result, err := recv.Run(context.Background(), throttled)
	require.NoError(t, err)
	require.NoError(t, <-sendErr)

	assert.Len(t, result.Samples, len(source),
		"a slow consumer must delay the sender, not corrupt the stream")
}

func TestReceiveSequenceGap(t *testing.T) {
	const chunkLen = 8
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		defer client.Close()
		header := &protocol.StreamHeader{SampleRate: 16000, ChunkLength: chunkLen, OverlapLength: 2}
		client.Write(protocol.EncodeStreamHeader(header))
		payload := make([]byte, chunkLen*4)
		client.Write(protocol.EncodeFrame(&protocol.EncodedUnit{
			Sequence: 0, OriginalLength: chunkLen, Payload: payload,
		}))
		// Sequence 1 never arrives.
		client.Write(protocol.EncodeFrame(&protocol.EncodedUnit{
			Sequence: 2, OriginalLength: chunkLen, Last: true, Payload: payload,
		}))
	}()

	recv, err := NewReceivePipeline(ReceiveConfig{Codec: codec.NewIdentity(chunkLen)})
	require.NoError(t, err)

	_, err = recv.Run(context.Background(), server)
	var perr *protocol.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "expected 1, got 2")
}

func TestReceiveTruncatedStream(t *testing.T) {
	const chunkLen = 8
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		defer client.Close()
		header := &protocol.StreamHeader{SampleRate: 16000, ChunkLength: chunkLen, OverlapLength: 2}
		client.Write(protocol.EncodeStreamHeader(header))
		// Non-final frame, then close: the stream ends mid-transfer.
		client.Write(protocol.EncodeFrame(&protocol.EncodedUnit{
			Sequence: 0, OriginalLength: chunkLen, Payload: make([]byte, chunkLen*4),
		}))
	}()

	recv, err := NewReceivePipeline(ReceiveConfig{Codec: codec.NewIdentity(chunkLen)})
	require.NoError(t, err)

	_, err = recv.Run(context.Background(), server)
	var perr *protocol.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "before final frame")
}

func TestReceiveDecodeErrorUnblocksStalledPeer(t *testing.T) {
	// A decode failure must abort the session even while the receive stage
	// is blocked reading from a peer that has gone silent.
	const chunkLen = 8
	client, server := net.Pipe()
	defer server.Close()

	hold := make(chan struct{})
	defer close(hold)
	go func() {
		defer client.Close()
		header := &protocol.StreamHeader{SampleRate: 16000, ChunkLength: chunkLen, OverlapLength: 2}
		client.Write(protocol.EncodeStreamHeader(header))
		// A 3-byte payload cannot decode into float32 samples.
		client.Write(protocol.EncodeFrame(&protocol.EncodedUnit{
			Sequence: 0, OriginalLength: chunkLen, Payload: []byte{1, 2, 3},
		}))
		// The peer keeps the connection open without sending more frames.
		<-hold
	}()

	recv, err := NewReceivePipeline(ReceiveConfig{Codec: codec.NewIdentity(chunkLen)})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := recv.Run(context.Background(), server)
		done <- err
	}()

	select {
	case err := <-done:
		var cerr *CodecError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, uint64(0), cerr.Sequence)
	case <-time.After(2 * time.Second):
		t.Fatal("decode failure did not abort the blocked receive stage")
	}
}

func TestReceiveCancellationUnblocksRead(t *testing.T) {
	// External cancellation must unwind a receive stage blocked mid-stream.
	const chunkLen = 8
	client, server := net.Pipe()
	defer server.Close()

	hold := make(chan struct{})
	defer close(hold)
	go func() {
		defer client.Close()
		header := &protocol.StreamHeader{SampleRate: 16000, ChunkLength: chunkLen, OverlapLength: 2}
		client.Write(protocol.EncodeStreamHeader(header))
		<-hold
	}()

	recv, err := NewReceivePipeline(ReceiveConfig{Codec: codec.NewIdentity(chunkLen)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := recv.Run(ctx, server)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
}

func TestReceiveChunkLengthMismatch(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		defer client.Close()
		header := &protocol.StreamHeader{SampleRate: 16000, ChunkLength: 320, OverlapLength: 32}
		client.Write(protocol.EncodeStreamHeader(header))
	}()

	recv, err := NewReceivePipeline(ReceiveConfig{Codec: codec.NewIdentity(640)})
	require.NoError(t, err)

	_, err = recv.Run(context.Background(), server)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match codec block size")
}

// blockingWriter accepts the header, then blocks until the context ends.
type blockingWriter struct {
	ctx   context.Context
	wrote bool
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	if !w.wrote {
		w.wrote = true
		return len(p), nil
	}
	<-w.ctx.Done()
	return 0, w.ctx.Err()
}

func TestSendCancellation(t *testing.T) {
	const chunkLen = 160
	send, err := NewSendPipeline(SendConfig{
		Codec:         codec.NewIdentity(chunkLen),
		SampleRate:    16000,
		Overlap:       16,
		QueueCapacity: 1,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w := &blockingWriter{ctx: ctx}

	done := make(chan error, 1)
	go func() {
		done <- send.Run(ctx, w, sineSource(16000, 16000))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
}

func TestNewPipelineValidation(t *testing.T) {
	c := codec.NewIdentity(320)

	_, err := NewSendPipeline(SendConfig{SampleRate: 16000})
	assert.Error(t, err, "missing codec must be rejected")

	_, err = NewSendPipeline(SendConfig{Codec: c, SampleRate: 0})
	assert.Error(t, err, "zero sample rate must be rejected")

	_, err = NewSendPipeline(SendConfig{Codec: c, SampleRate: 16000, Overlap: 320})
	assert.Error(t, err, "overlap equal to block size must be rejected")

	_, err = NewReceivePipeline(ReceiveConfig{})
	assert.Error(t, err, "missing codec must be rejected")
}
