package audio

import (
	"errors"
	"io"
	"math"
	"testing"
)

// reconstruct runs a full segment-then-merge pass and returns the output.
func reconstruct(t *testing.T, source []float32, chunkLen, overlap int) []float32 {
	t.Helper()

	s, err := NewSegmenter(source, chunkLen, overlap)
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}

	var output []float32
	r, err := NewReconstructor(chunkLen, overlap, func(samples []float32) error {
		output = append(output, samples...)
		return nil
	})
	if err != nil {
		t.Fatalf("NewReconstructor failed: %v", err)
	}

	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if err := r.Push(chunk.Samples, chunk.Original, chunk.Last); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	if r.Emitted() != len(output) {
		t.Errorf("expected emitted count %d, got %d", len(output), r.Emitted())
	}
	if !r.Finished() {
		t.Error("expected reconstructor to be finished")
	}

	return output
}

func TestNewReconstructorConfigErrors(t *testing.T) {
	sink := func([]float32) error { return nil }

	tests := []struct {
		name     string
		chunkLen int
		overlap  int
		sink     func([]float32) error
	}{
		{name: "zero chunk length", chunkLen: 0, overlap: 0, sink: sink},
		{name: "overlap equals chunk length", chunkLen: 10, overlap: 10, sink: sink},
		{name: "negative overlap", chunkLen: 10, overlap: -1, sink: sink},
		{name: "nil sink", chunkLen: 10, overlap: 2, sink: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReconstructor(tt.chunkLen, tt.overlap, tt.sink)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestReconstructorOutputLength(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		chunkLen int
		overlap  int
	}{
		{name: "three chunks with padding", n: 32000, chunkLen: 16000, overlap: 1600},
		{name: "single short chunk", n: 500, chunkLen: 16000, overlap: 1600},
		{name: "exact chunk fit", n: 16000, chunkLen: 16000, overlap: 1600},
		{name: "many small chunks", n: 7777, chunkLen: 256, overlap: 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := reconstruct(t, rampSource(tt.n), tt.chunkLen, tt.overlap)
			if len(output) != tt.n {
				t.Errorf("expected output length %d, got %d", tt.n, len(output))
			}
		})
	}
}

func TestReconstructorRecoversSignal(t *testing.T) {
	// With a lossless chunk path the cross-fade blends two copies of the
	// same source values, so the output must match the input up to
	// floating-point rounding in the overlap regions.
	source := make([]float32, 12345)
	for i := range source {
		source[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 16000))
	}

	output := reconstruct(t, source, 1024, 128)
	if len(output) != len(source) {
		t.Fatalf("expected output length %d, got %d", len(source), len(output))
	}

	for i := range source {
		diff := math.Abs(float64(output[i] - source[i]))
		if diff > 1e-5 {
			t.Fatalf("sample %d: expected %f, got %f (diff %g)", i, source[i], output[i], diff)
		}
	}
}

func TestReconstructorBlendContinuity(t *testing.T) {
	// Feed two chunks whose overlap regions disagree and verify the blend
	// moves linearly from the tail value to the incoming value.
	chunkLen, overlap := 8, 4

	first := []float32{0, 0, 0, 0, 1, 1, 1, 1}  // tail is all ones
	second := []float32{0, 0, 0, 0, 0, 0, 0, 0} // incoming overlap all zeros

	var output []float32
	r, err := NewReconstructor(chunkLen, overlap, func(samples []float32) error {
		output = append(output, samples...)
		return nil
	})
	if err != nil {
		t.Fatalf("NewReconstructor failed: %v", err)
	}

	if err := r.Push(first, chunkLen, false); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if err := r.Push(second, chunkLen, true); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	// Blend weights for the incoming chunk rise as position/overlap, so the
	// blended region must be tail*(1-w): 1.0, 0.75, 0.5, 0.25. The final
	// chunk then flushes its own all-zero tail.
	expected := []float32{0, 0, 0, 0, 1.0, 0.75, 0.5, 0.25, 0, 0, 0, 0}
	if len(output) != len(expected) {
		t.Fatalf("expected %d samples, got %d", len(expected), len(output))
	}
	for i := range expected {
		if math.Abs(float64(output[i]-expected[i])) > 1e-6 {
			t.Errorf("sample %d: expected %f, got %f", i, expected[i], output[i])
		}
	}
}

func TestReconstructorPushErrors(t *testing.T) {
	sink := func([]float32) error { return nil }

	r, err := NewReconstructor(8, 2, sink)
	if err != nil {
		t.Fatalf("NewReconstructor failed: %v", err)
	}

	if err := r.Push(make([]float32, 5), 5, false); err == nil {
		t.Error("expected error for wrong chunk length, got nil")
	}
	if err := r.Push(make([]float32, 8), 9, false); err == nil {
		t.Error("expected error for out-of-range original length, got nil")
	}

	if err := r.Push(make([]float32, 8), 8, true); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if err := r.Push(make([]float32, 8), 8, false); err == nil {
		t.Error("expected error for push after final chunk, got nil")
	}
}
