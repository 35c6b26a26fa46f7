// Package server runs the receiver's network front ends: the TCP listener
// that accepts streaming sessions and the HTTP API for health, statistics
// and Prometheus metrics.
package server
