package audio

import (
	"fmt"
	"io"
)

// Chunk is a fixed-length slice of the source signal. Adjacent chunks share
// an overlap region: the last overlap samples of chunk i equal the first
// overlap samples of chunk i+1 in the source.
type Chunk struct {
	Sequence uint64    // Strictly increasing from 0
	Samples  []float32 // Always chunk-length samples; final chunk zero-padded
	Original int       // Sample count before zero padding (== len(Samples) except on the final chunk)
	Last     bool      // Set on the final chunk
}

// ConfigError indicates invalid segmentation parameters. It is rejected
// before any session starts.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Reason
}

// Segmenter slices a source signal into overlapping fixed-size chunks.
// It produces a lazy, finite, non-restartable sequence: one pass over the
// source, one chunk per Next call.
type Segmenter struct {
	source   []float32
	chunkLen int
	overlap  int
	stride   int

	next uint64
	done bool
}

// NewSegmenter creates a segmenter over source with the given chunk length
// and overlap. The stride between chunk starts is chunkLen - overlap.
func NewSegmenter(source []float32, chunkLen, overlap int) (*Segmenter, error) {
	if chunkLen <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("chunk length must be positive, got %d", chunkLen)}
	}
	if overlap < 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("overlap cannot be negative, got %d", overlap)}
	}
	if overlap >= chunkLen {
		return nil, &ConfigError{Reason: fmt.Sprintf("overlap %d must be smaller than chunk length %d", overlap, chunkLen)}
	}

	return &Segmenter{
		source:   source,
		chunkLen: chunkLen,
		overlap:  overlap,
		stride:   chunkLen - overlap,
	}, nil
}

// Next returns the next chunk of the source, or io.EOF after the final
// chunk. Chunk i covers source samples [i*stride, i*stride+chunkLen); the
// final chunk is clamped to the source and zero-padded to chunk length.
func (s *Segmenter) Next() (*Chunk, error) {
	if s.done {
		return nil, io.EOF
	}

	start := int(s.next) * s.stride
	if start >= len(s.source) {
		// Empty source: no chunks at all.
		s.done = true
		return nil, io.EOF
	}

	end := start + s.chunkLen
	last := end >= len(s.source)
	if end > len(s.source) {
		end = len(s.source)
	}

	samples := make([]float32, s.chunkLen)
	copy(samples, s.source[start:end])

	chunk := &Chunk{
		Sequence: s.next,
		Samples:  samples,
		Original: end - start,
		Last:     last,
	}

	s.next++
	if last {
		s.done = true
	}

	return chunk, nil
}

// TotalChunks returns how many chunks the segmenter will produce in total.
func (s *Segmenter) TotalChunks() int {
	n := len(s.source)
	if n == 0 {
		return 0
	}
	if n <= s.chunkLen {
		return 1
	}
	// First chunk covers chunkLen samples, each further chunk adds stride.
	return 1 + (n-s.chunkLen+s.stride-1)/s.stride
}

// ChunkLength returns the configured samples per chunk.
func (s *Segmenter) ChunkLength() int {
	return s.chunkLen
}

// Overlap returns the configured overlap between adjacent chunks.
func (s *Segmenter) Overlap() int {
	return s.overlap
}
