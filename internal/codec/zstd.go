package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstdLevels maps quality layers onto zstd encoder levels: more layers,
// better compression, more encode time.
var zstdLevels = []zstd.EncoderLevel{
	zstd.SpeedFastest,
	zstd.SpeedDefault,
	zstd.SpeedBetterCompression,
	zstd.SpeedBestCompression,
}

// Zstd is a lossless reference codec backed by zstd compression of the raw
// float32 block. It stands in for the neural codec wherever a real model is
// unavailable while still exercising the full transport path with
// variable-size payloads.
type Zstd struct {
	enc       *zstd.Encoder
	dec       *zstd.Decoder
	blockSize int
	layers    int
}

// NewZstd creates a zstd codec with the given block size and quality-layer
// count in [1, MaxLayers].
func NewZstd(blockSize, layers int) (*Zstd, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	if layers < 1 || layers > len(zstdLevels) {
		return nil, fmt.Errorf("layers must be between 1 and %d, got %d", len(zstdLevels), layers)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevels[layers-1]))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Zstd{
		enc:       enc,
		dec:       dec,
		blockSize: blockSize,
		layers:    layers,
	}, nil
}

// Encode compresses one block of samples.
func (c *Zstd) Encode(samples []float32) ([]byte, error) {
	if len(samples) != c.blockSize {
		return nil, fmt.Errorf("encode block size mismatch: expected %d samples, got %d",
			c.blockSize, len(samples))
	}
	return c.enc.EncodeAll(floatsToBytes(samples), nil), nil
}

// Decode decompresses one block of samples.
func (c *Zstd) Decode(payload []byte) ([]float32, error) {
	raw, err := c.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}

	samples, err := bytesToFloats(raw)
	if err != nil {
		return nil, err
	}
	if len(samples) != c.blockSize {
		return nil, fmt.Errorf("decode block size mismatch: expected %d samples, got %d",
			c.blockSize, len(samples))
	}
	return samples, nil
}

// BlockSize returns the fixed sample count per call.
func (c *Zstd) BlockSize() int {
	return c.blockSize
}

// MaxLayers returns the number of supported quality layers.
func (c *Zstd) MaxLayers() int {
	return len(zstdLevels)
}
