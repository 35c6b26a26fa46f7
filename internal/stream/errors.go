package stream

import "fmt"

// TransportError reports a failed read or write on the underlying
// connection. It is fatal for the session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CodecError reports an encode or decode failure for one chunk.
type CodecError struct {
	Sequence uint64
	Op       string
	Err      error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec %s failed for chunk %d: %v", e.Op, e.Sequence, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}
