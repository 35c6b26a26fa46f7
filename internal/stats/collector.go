// Package stats accumulates per-chunk timing samples across the pipeline
// stages and reduces them to a session summary.
package stats

import (
	"fmt"
	"sync"
	"time"
)

// Stage identifies which pipeline stage produced a sample.
type Stage int

const (
	StageEncode Stage = iota
	StageSend
	StageReceive
	StageDecode
	stageCount
)

// String returns the stage name used in logs and summaries.
func (s Stage) String() string {
	switch s {
	case StageEncode:
		return "encode"
	case StageSend:
		return "send"
	case StageReceive:
		return "receive"
	case StageDecode:
		return "decode"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Sample is one stage operation on one chunk.
type Sample struct {
	Stage     Stage
	Sequence  uint64
	Duration  time.Duration
	Bytes     int
	Timestamp time.Time
}

// StageSummary aggregates all samples of one stage.
type StageSummary struct {
	Count int
	Bytes int64
	Total time.Duration
	Min   time.Duration
	Avg   time.Duration
	Max   time.Duration
}

// Summary is the reduced view of a finished session.
type Summary struct {
	Stages  map[Stage]StageSummary
	Elapsed time.Duration
}

// Collector records samples from concurrent pipeline stages. The zero value
// is not usable; create one with New. A nil Collector discards samples.
type Collector struct {
	mu      sync.Mutex
	samples []Sample
	start   time.Time
}

// New creates a collector whose elapsed time starts now.
func New() *Collector {
	return &Collector{start: time.Now()}
}

// Record appends one sample. Safe for concurrent use.
func (c *Collector) Record(stage Stage, sequence uint64, d time.Duration, bytes int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.samples = append(c.samples, Sample{
		Stage:     stage,
		Sequence:  sequence,
		Duration:  d,
		Bytes:     bytes,
		Timestamp: time.Now(),
	})
	c.mu.Unlock()
}

// Samples returns a copy of all recorded samples.
func (c *Collector) Samples() []Sample {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sample, len(c.samples))
	copy(out, c.samples)
	return out
}

// Summary reduces the recorded samples to per-stage aggregates.
func (c *Collector) Summary() Summary {
	if c == nil {
		return Summary{Stages: map[Stage]StageSummary{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stages := make(map[Stage]StageSummary, stageCount)
	for _, s := range c.samples {
		agg := stages[s.Stage]
		agg.Count++
		agg.Bytes += int64(s.Bytes)
		agg.Total += s.Duration
		if agg.Count == 1 || s.Duration < agg.Min {
			agg.Min = s.Duration
		}
		if s.Duration > agg.Max {
			agg.Max = s.Duration
		}
		stages[s.Stage] = agg
	}
	for stage, agg := range stages {
		agg.Avg = agg.Total / time.Duration(agg.Count)
		stages[stage] = agg
	}

	return Summary{
		Stages:  stages,
		Elapsed: time.Since(c.start),
	}
}
