// Package protocol implements the wire format for compressed audio streaming.
// It handles the fixed-size stream header sent once per session and the
// length-prefixed frames carrying encoded chunks, including exact-read frame
// decoding from a byte stream and frame boundary validation.
package protocol
