package audio

import (
	"fmt"
)

// Reconstructor merges consecutive overlapping decoded chunks back into one
// continuous signal. The shared region between adjacent chunks is blended
// with a linear cross-fade whose weights sum to 1, so the output is
// continuous at both blend boundaries and its total length equals the
// source length.
type Reconstructor struct {
	chunkLen int
	overlap  int
	sink     func(samples []float32) error

	tail     []float32
	started  bool
	finished bool
	emitted  int
}

// NewReconstructor creates a reconstructor for the given chunk geometry.
// Every emitted span of samples is forwarded to sink in order.
func NewReconstructor(chunkLen, overlap int, sink func(samples []float32) error) (*Reconstructor, error) {
	if chunkLen <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("chunk length must be positive, got %d", chunkLen)}
	}
	if overlap < 0 || overlap >= chunkLen {
		return nil, &ConfigError{Reason: fmt.Sprintf("overlap %d must be in [0, %d)", overlap, chunkLen)}
	}
	if sink == nil {
		return nil, &ConfigError{Reason: "sink cannot be nil"}
	}

	return &Reconstructor{
		chunkLen: chunkLen,
		overlap:  overlap,
		sink:     sink,
	}, nil
}

// Push consumes one decoded chunk. originalLength is the chunk's sample
// count before zero padding and trims the final chunk's contribution; last
// marks the final chunk, after which Push rejects further input.
func (r *Reconstructor) Push(samples []float32, originalLength int, last bool) error {
	if r.finished {
		return fmt.Errorf("push after final chunk")
	}
	if len(samples) != r.chunkLen {
		return fmt.Errorf("decoded chunk length mismatch: expected %d samples, got %d",
			r.chunkLen, len(samples))
	}
	if originalLength < 0 || originalLength > r.chunkLen {
		return fmt.Errorf("original length %d out of range [0, %d]", originalLength, r.chunkLen)
	}

	stride := r.chunkLen - r.overlap

	var out []float32
	if !r.started {
		// First chunk: nothing to blend against.
		out = make([]float32, stride)
		copy(out, samples[:stride])
		r.started = true
	} else {
		out = make([]float32, stride)
		for k := 0; k < r.overlap; k++ {
			w := float32(k) / float32(r.overlap)
			out[k] = r.tail[k]*(1-w) + samples[k]*w
		}
		copy(out[r.overlap:], samples[r.overlap:stride])
	}

	if r.tail == nil {
		r.tail = make([]float32, r.overlap)
	}
	copy(r.tail, samples[stride:])

	if last {
		// No following chunk to blend against: flush the tail unblended and
		// trim the zero padding added by the segmenter.
		full := append(out, r.tail...)
		if originalLength < len(full) {
			full = full[:originalLength]
		}
		out = full
		r.finished = true
	}

	if len(out) == 0 {
		return nil
	}

	r.emitted += len(out)
	return r.sink(out)
}

// Emitted returns the total number of samples forwarded to the sink.
func (r *Reconstructor) Emitted() int {
	return r.emitted
}

// Finished reports whether the final chunk has been consumed.
func (r *Reconstructor) Finished() bool {
	return r.finished
}
