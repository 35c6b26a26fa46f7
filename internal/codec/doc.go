// Package codec defines the encode/decode capability the transport carries
// chunks through, and provides two backends: a zstd-compressed reference
// codec and a lossless identity codec. The transport never interprets the
// bitstream or the quality configuration; any backend with a fixed block
// size satisfies the same contract, including an external neural codec.
package codec
