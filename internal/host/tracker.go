// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package host implements the master role: it originates requests to remote
// devices, matches their responses by transaction key, and times out the
// ones that never come back.
package host

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrKeyInUse is returned when a transaction key already has an
	// outstanding request. The key stays reserved until the response
	// arrives or the timeout sweep fires.
	ErrKeyInUse = errors.New("host: transaction key already pending")

	// ErrTimeout is reported for requests whose response never arrived.
	ErrTimeout = errors.New("host: request timed out")
)

// Tracker holds the pending-request set of one master. Every outstanding
// request occupies one key; a response resolves it, the sweep expires it,
// and a transport failure fails all of them at once.
type Tracker struct {
	timeout   time.Duration
	onTimeout func(key uint16)

	mu      sync.Mutex
	pending map[uint16]time.Time // key -> deadline
}

// NewTracker creates a tracker. onTimeout is invoked once per expired key
// from the sweep goroutine, after the key has been released.
func NewTracker(timeout time.Duration, onTimeout func(key uint16)) *Tracker {
	return &Tracker{
		timeout:   timeout,
		onTimeout: onTimeout,
		pending:   make(map[uint16]time.Time),
	}
}

// Track reserves key for an outstanding request.
func (t *Tracker) Track(key uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[key]; ok {
		return ErrKeyInUse
	}
	t.pending[key] = time.Now().Add(t.timeout)
	return nil
}

// Resolve releases key and reports whether it was pending. A false return
// means the response was unsolicited or arrived after the sweep expired it.
func (t *Tracker) Resolve(key uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[key]; !ok {
		return false
	}
	delete(t.pending, key)
	return true
}

// FailAll releases every pending key and returns them, for transport
// failures that doom all outstanding requests at once.
func (t *Tracker) FailAll() []uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]uint16, 0, len(t.pending))
	for key := range t.pending {
		keys = append(keys, key)
	}
	t.pending = make(map[uint16]time.Time)
	return keys
}

// Pending returns the number of outstanding requests.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Start runs the timeout sweep until ctx is cancelled. It blocks; call it
// in a goroutine.
func (t *Tracker) Start(ctx context.Context) {
	interval := t.timeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, key := range t.expire(now) {
				if t.onTimeout != nil {
					t.onTimeout(key)
				}
			}
		}
	}
}

// expire releases every key whose deadline has passed.
func (t *Tracker) expire(now time.Time) []uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []uint16
	for key, deadline := range t.pending {
		if now.After(deadline) {
			expired = append(expired, key)
			delete(t.pending, key)
		}
	}
	return expired
}
