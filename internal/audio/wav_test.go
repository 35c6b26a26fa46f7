package audio

import (
	"math"
	"strings"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = float32(math.Sin(2*math.Pi*440*float64(i)/16000)) * 0.5
	}

	data, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(data) != 44+len(samples)*2 {
		t.Errorf("expected WAV size %d, got %d", 44+len(samples)*2, len(data))
	}

	decoded, sampleRate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if sampleRate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", sampleRate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}

	// 16-bit quantization bounds the round-trip error.
	for i := range samples {
		if math.Abs(float64(decoded[i]-samples[i])) > 1.0/32768.0 {
			t.Fatalf("sample %d: expected %f, got %f", i, samples[i], decoded[i])
		}
	}
}

func TestEncodeWAVErrors(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Error("expected error for empty samples, got nil")
	}
	if _, err := EncodeWAV(make([]float32, 10), 0); err == nil {
		t.Error("expected error for zero sample rate, got nil")
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	valid, err := EncodeWAV(make([]float32, 100), 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	badRIFF := append([]byte(nil), valid...)
	copy(badRIFF[0:4], "JUNK")

	tests := []struct {
		name     string
		data     []byte
		errorMsg string
	}{
		{name: "too short", data: valid[:10], errorMsg: "too short"},
		{name: "missing RIFF", data: badRIFF, errorMsg: "missing RIFF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeWAV(tt.data)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestFloatToPCM16Clipping(t *testing.T) {
	pcm := FloatToPCM16([]float32{2.0, -2.0, 0, 1.0, -1.0})

	if pcm[0] != 32767 {
		t.Errorf("expected positive clip to 32767, got %d", pcm[0])
	}
	if pcm[1] != -32768 {
		t.Errorf("expected negative clip to -32768, got %d", pcm[1])
	}
	if pcm[2] != 0 {
		t.Errorf("expected 0, got %d", pcm[2])
	}
}
