// Package audio handles sample-domain processing for the streaming pipeline.
// It implements overlapping fixed-size segmentation of a source signal,
// overlap-add reconstruction of the decoded stream with a linear cross-fade
// over the shared regions, and WAV encoding/decoding for the file-backed
// source and sink.
package audio
