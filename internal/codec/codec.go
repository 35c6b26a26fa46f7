package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Codec is the capability the transport compresses chunks through. Encode
// consumes exactly BlockSize samples and Decode produces exactly BlockSize
// samples; the payload in between is opaque to the caller.
type Codec interface {
	// Encode compresses one block of samples into a bitstream.
	Encode(samples []float32) ([]byte, error)
	// Decode reconstructs one block of samples from a bitstream.
	Decode(payload []byte) ([]float32, error)
	// BlockSize returns the fixed sample count per encode/decode call.
	BlockSize() int
	// MaxLayers returns the backend's maximum quality-layer count.
	MaxLayers() int
}

// New creates a codec backend by name.
func New(backend string, blockSize, layers int) (Codec, error) {
	switch backend {
	case "zstd":
		return NewZstd(blockSize, layers)
	case "identity":
		return NewIdentity(blockSize), nil
	default:
		return nil, fmt.Errorf("unknown codec backend: %q (must be zstd or identity)", backend)
	}
}

// Identity is a lossless pass-through codec: the payload is the raw
// little-endian float32 representation of the block. It is the stub backend
// for round-trip testing and uncompressed streaming.
type Identity struct {
	blockSize int
}

// NewIdentity creates an identity codec with the given block size.
func NewIdentity(blockSize int) *Identity {
	return &Identity{blockSize: blockSize}
}

// Encode serializes the block as little-endian float32 bytes.
func (c *Identity) Encode(samples []float32) ([]byte, error) {
	if len(samples) != c.blockSize {
		return nil, fmt.Errorf("encode block size mismatch: expected %d samples, got %d",
			c.blockSize, len(samples))
	}
	return floatsToBytes(samples), nil
}

// Decode deserializes little-endian float32 bytes back into a block.
func (c *Identity) Decode(payload []byte) ([]float32, error) {
	samples, err := bytesToFloats(payload)
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
func (c *Identity) BlockSize() int {
	return c.blockSize
}

// MaxLayers returns 1: the identity codec has a single quality layer.
func (c *Identity) MaxLayers() int {
	return 1
}

func floatsToBytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

func bytesToFloats(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("payload length %d is not a multiple of 4", len(data))
	}
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples, nil
}
