// Package stats accumulates process-wide request counters. All fields are
// atomics so the metrics endpoint can snapshot them while the event loop,
// the only writer, keeps running.
package stats

import (
	"math"
	"sync/atomic"
)

// Stats tracks request counters across all connections.
type Stats struct {
	totalRequests   atomic.Uint64
	badFrames       atomic.Uint64
	routesInstalled atomic.Uint64

	// Latencies are kept in milliseconds as float64 bit patterns.
	lastLatencyMS atomic.Uint64
	avgLatencyMS  atomic.Uint64
}

// New returns zeroed stats.
func New() *Stats {
	return &Stats{}
}

// RecordRequest records one handled request and its latency in milliseconds.
// The running mean is updated incrementally: mean += (x - mean) / n.
func (s *Stats) RecordRequest(latencyMS float64) {
	n := s.totalRequests.Load() + 1
	mean := math.Float64frombits(s.avgLatencyMS.Load())
	mean += (latencyMS - mean) / float64(n)

	s.lastLatencyMS.Store(math.Float64bits(latencyMS))
	s.avgLatencyMS.Store(math.Float64bits(mean))
	s.totalRequests.Store(n)
}

// RecordBadFrame counts one protocol-corrupt frame.
func (s *Stats) RecordBadFrame() {
	s.badFrames.Add(1)
}

// AddRoutesInstalled counts n successfully installed route records.
func (s *Stats) AddRoutesInstalled(n uint64) {
	s.routesInstalled.Add(n)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalRequests   uint64
	BadFrames       uint64
	RoutesInstalled uint64
	LastLatencyMS   float64
	AvgLatencyMS    float64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		TotalRequests:   s.totalRequests.Load(),
		BadFrames:       s.badFrames.Load(),
		RoutesInstalled: s.routesInstalled.Load(),
		LastLatencyMS:   math.Float64frombits(s.lastLatencyMS.Load()),
		AvgLatencyMS:    math.Float64frombits(s.avgLatencyMS.Load()),
	}
}

// LastLatencyUS returns the last request latency in whole microseconds.
func (sn Snapshot) LastLatencyUS() uint32 {
	return uint32(sn.LastLatencyMS * 1000)
}

// AvgLatencyUS returns the mean request latency in whole microseconds.
func (sn Snapshot) AvgLatencyUS() uint32 {
	return uint32(sn.AvgLatencyMS * 1000)
}
