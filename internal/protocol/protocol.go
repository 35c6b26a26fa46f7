package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Protocol constants
const (
	// Stream header layout: [Magic:4][Version:1][SampleRate:4][ChunkLength:4][OverlapLength:4]
	StreamHeaderSize = 17
	Version          = 0x01

	// Frame layout after the length prefix: [Sequence:8][OriginalLength:4][LastFlag:1][Payload:N]
	LengthPrefixSize = 4
	FrameHeaderSize  = 13

	// MaxFrameLength bounds the length prefix so a corrupted stream cannot
	// force an arbitrarily large allocation.
	MaxFrameLength = 16 << 20
)

// Magic identifies a compressed audio stream.
var Magic = [4]byte{'E', 'S', 'C', 'S'}

// ProtocolError indicates a malformed or truncated wire stream. Framing
// corruption is not recoverable: the stream performs no resynchronization,
// so any ProtocolError is fatal for the session.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

func protocolErrorf(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// StreamHeader is sent once per session before the first frame. It announces
// the stream parameters the receiver needs to reconstruct the signal; it is
// one-way and carries no negotiation.
type StreamHeader struct {
	SampleRate    uint32 // Samples per second of the source signal
	ChunkLength   uint32 // Samples per chunk
	OverlapLength uint32 // Shared samples between adjacent chunks
}

// EncodedUnit is one encoded chunk together with the metadata the receiving
// side needs to decode and place it. Units are immutable once created.
type EncodedUnit struct {
	Sequence       uint64 // Chunk index, strictly increasing from 0
	OriginalLength uint32 // Decompressed sample count before zero padding
	Last           bool   // Set on the final chunk of the stream
	Payload        []byte // Opaque codec bitstream
}

// EncodeStreamHeader serializes a stream header per the layout above.
func EncodeStreamHeader(h *StreamHeader) []byte {
	buf := make([]byte, StreamHeaderSize)
	copy(buf[0:4], Magic[:])
	buf[4] = Version
	binary.BigEndian.PutUint32(buf[5:9], h.SampleRate)
	binary.BigEndian.PutUint32(buf[9:13], h.ChunkLength)
	binary.BigEndian.PutUint32(buf[13:17], h.OverlapLength)
	return buf
}

// ReadStreamHeader reads and validates a stream header from r.
func ReadStreamHeader(r io.Reader) (*StreamHeader, error) {
	buf := make([]byte, StreamHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, protocolErrorf("stream closed before header: got %v", err)
		}
		return nil, fmt.Errorf("failed to read stream header: %w", err)
	}

	if [4]byte(buf[0:4]) != Magic {
		return nil, protocolErrorf("bad magic: expected %q, got %q", Magic[:], buf[0:4])
	}
	if buf[4] != Version {
		return nil, protocolErrorf("unsupported version: expected %d, got %d", Version, buf[4])
	}

	header := &StreamHeader{
		SampleRate:    binary.BigEndian.Uint32(buf[5:9]),
		ChunkLength:   binary.BigEndian.Uint32(buf[9:13]),
		OverlapLength: binary.BigEndian.Uint32(buf[13:17]),
	}

	if header.ChunkLength == 0 {
		return nil, protocolErrorf("chunk length must be positive")
	}
	if header.OverlapLength >= header.ChunkLength {
		return nil, protocolErrorf("overlap %d must be smaller than chunk length %d",
			header.OverlapLength, header.ChunkLength)
	}

	return header, nil
}

// EncodeFrame serializes an encoded unit into one wire frame. The length
// prefix covers everything after itself: sequence, original length, last
// flag and payload.
func EncodeFrame(u *EncodedUnit) []byte {
	buf := make([]byte, LengthPrefixSize+FrameHeaderSize+len(u.Payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(FrameHeaderSize+len(u.Payload)))
	binary.BigEndian.PutUint64(buf[4:12], u.Sequence)
	binary.BigEndian.PutUint32(buf[12:16], u.OriginalLength)
	if u.Last {
		buf[16] = 1
	}
	copy(buf[17:], u.Payload)
	return buf
}

// DecodeFrame parses the body of a frame (everything after the length
// prefix) back into an EncodedUnit. The payload is copied, never aliased.
func DecodeFrame(data []byte) (*EncodedUnit, error) {
	if len(data) < FrameHeaderSize {
		return nil, protocolErrorf("frame too short: expected at least %d bytes, got %d",
			FrameHeaderSize, len(data))
	}

	flag := data[12]
	if flag > 1 {
		return nil, protocolErrorf("invalid last flag: 0x%02x", flag)
	}

	unit := &EncodedUnit{
		Sequence:       binary.BigEndian.Uint64(data[0:8]),
		OriginalLength: binary.BigEndian.Uint32(data[8:12]),
		Last:           flag == 1,
	}

	if len(data) > FrameHeaderSize {
		unit.Payload = make([]byte, len(data)-FrameHeaderSize)
		copy(unit.Payload, data[FrameHeaderSize:])
	}

	return unit, nil
}

// ReadFrame reads exactly one frame from r. A clean close at a frame
// boundary returns io.EOF; a close inside a frame is corruption and returns
// a ProtocolError. The payload is never interpreted.
func ReadFrame(r io.Reader) (*EncodedUnit, error) {
	prefix := make([]byte, LengthPrefixSize)
	if _, err := io.ReadFull(r, prefix); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, protocolErrorf("stream closed inside length prefix")
		}
		return nil, fmt.Errorf("failed to read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(prefix)
	if length < FrameHeaderSize {
		return nil, protocolErrorf("frame length too small: %d (minimum %d)", length, FrameHeaderSize)
	}
	if length > MaxFrameLength {
		return nil, protocolErrorf("frame length too large: %d (maximum %d)", length, MaxFrameLength)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, protocolErrorf("stream closed inside frame: expected %d body bytes", length)
		}
		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}

	return DecodeFrame(body)
}

// WireSize returns the full on-wire size of the unit's frame, length prefix
// included.
func (u *EncodedUnit) WireSize() int {
	return LengthPrefixSize + FrameHeaderSize + len(u.Payload)
}

// String returns a human-readable representation of the unit.
func (u *EncodedUnit) String() string {
	return fmt.Sprintf("EncodedUnit{Seq:%d, OriginalLength:%d, Last:%t, PayloadLen:%d}",
		u.Sequence, u.OriginalLength, u.Last, len(u.Payload))
}

// String returns a human-readable representation of the stream header.
func (h *StreamHeader) String() string {
	return fmt.Sprintf("StreamHeader{SampleRate:%d, ChunkLength:%d, OverlapLength:%d}",
		h.SampleRate, h.ChunkLength, h.OverlapLength)
}
