package game

import (
	"sync"
	"time"
)

// LatencyTracker keeps a moving RTT average per connection, fed by the 1s
// ping/pong probe.
type LatencyTracker struct {
	mu   sync.RWMutex
	rtts map[string]*rttTracker
}

type rttTracker struct {
	samples []time.Duration
	avg     time.Duration
}

const maxRTTSamples = 20

func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{rtts: make(map[string]*rttTracker)}
}

// RecordRTT records a round-trip time sample from a pong.
func (lt *LatencyTracker) RecordRTT(connID string, rtt time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	t, ok := lt.rtts[connID]
	if !ok {
		t = &rttTracker{}
		lt.rtts[connID] = t
	}

	t.samples = append(t.samples, rtt)
	if len(t.samples) > maxRTTSamples {
		t.samples = t.samples[1:]
	}

	var total time.Duration
	for _, s := range t.samples {
		total += s
	}
	t.avg = total / time.Duration(len(t.samples))
}

// Average returns the current RTT average, zero when no samples exist.
func (lt *LatencyTracker) Average(connID string) time.Duration {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	if t, ok := lt.rtts[connID]; ok {
		return t.avg
	}
	return 0
}

// Cleanup drops tracking data for a disconnected client.
func (lt *LatencyTracker) Cleanup(connID string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	delete(lt.rtts, connID)
}
