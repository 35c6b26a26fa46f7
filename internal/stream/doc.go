// Package stream runs the concurrent send and receive pipelines that move
// encoded audio chunks over a byte stream.
//
// Each pipeline is two stages joined by a bounded channel. On the sending
// side the encode stage segments and compresses chunks while the send stage
// frames, rate-limits and writes them; on the receiving side the receive
// stage reads and validates frames while the decode stage decompresses and
// reconstructs the signal. A full queue blocks the producer, so a slow wire
// or a slow decoder applies backpressure all the way back to the source.
package stream
