// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"
)

const rateWindow = 60 * time.Second

// RateTracker derives a requests-per-second figure from a rolling window of
// event timestamps. The window is pruned under the lock on both record and
// read, since many request paths mutate it concurrently.
type RateTracker struct {
	mu     sync.Mutex
	window time.Duration
	events []time.Time
	now    func() time.Time
}

// ChannelRate tracks calls against the external platform.
var ChannelRate = NewRateTracker(rateWindow)

// NewRateTracker creates a tracker over the given window.
func NewRateTracker(window time.Duration) *RateTracker {
	return &RateTracker{window: window, now: time.Now}
}

// Record notes one event at the current time.
func (r *RateTracker) Record() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.pruneLocked(now)
	r.events = append(r.events, now)
}

// Rate returns events per second over the window.
func (r *RateTracker) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(r.now())
	return float64(len(r.events)) / r.window.Seconds()
}

func (r *RateTracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.events) && r.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		r.events = append(r.events[:0], r.events[i:]...)
	}
}
