// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package registers holds the addressable 16-bit register store shared by
// both protocol roles.
package registers

import (
	"fmt"
	"sync"
)

// DefaultSize is the register map size used when the config does not set one.
const DefaultSize = 1000

// AddressError reports an access outside the register map bounds.
type AddressError struct {
	Address uint16
	Count   int
	Size    int
}

func (e *AddressError) Error() string {
	if e.Count > 1 {
		return fmt.Sprintf("registers: range %d+%d exceeds map size %d", e.Address, e.Count, e.Size)
	}
	return fmt.Sprintf("registers: address %d exceeds map size %d", e.Address, e.Size)
}

// Backend receives write-through notifications, typically for persistence.
// OnWrite is called with the store lock held; implementations must not call
// back into the store.
type Backend interface {
	OnWrite(regs []uint16, addr uint16, count int)
	Resize(size int) ([]uint16, error)
}

// Store is a fixed-size array of 16-bit registers with bounds-checked
// access. A single mutex serializes every operation; register maps are
// small, so read concurrency is not worth the complexity.
type Store struct {
	mu       sync.Mutex
	regs     []uint16
	backend  Backend
	onChange func(addr uint16, value uint16)
}

// New creates a zero-initialized store of the given size.
func New(size int) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	return &Store{regs: make([]uint16, size)}
}

// NewBacked creates a store over a backend-provided register slice. The
// slice may alias persistent memory (mmap); the backend is notified after
// every mutation.
func NewBacked(regs []uint16, backend Backend) *Store {
	return &Store{regs: regs, backend: backend}
}

// SetOnChange installs a callback fired once per mutated register, outside
// the store lock.
func (s *Store) SetOnChange(fn func(addr uint16, value uint16)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Size returns the current register map size.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regs)
}

// Read returns the value at addr.
func (s *Store) Read(addr uint16) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(addr) >= len(s.regs) {
		return 0, &AddressError{Address: addr, Count: 1, Size: len(s.regs)}
	}
	return s.regs[addr], nil
}

// ReadRange returns count consecutive values starting at addr.
func (s *Store) ReadRange(addr uint16, count int) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if count <= 0 || int(addr)+count > len(s.regs) {
		return nil, &AddressError{Address: addr, Count: count, Size: len(s.regs)}
	}
	out := make([]uint16, count)
	copy(out, s.regs[addr:int(addr)+count])
	return out, nil
}

// Write stores value at addr.
func (s *Store) Write(addr uint16, value uint16) error {
	s.mu.Lock()
	if int(addr) >= len(s.regs) {
		s.mu.Unlock()
		return &AddressError{Address: addr, Count: 1, Size: len(s.regs)}
	}
	s.regs[addr] = value
	if s.backend != nil {
		s.backend.OnWrite(s.regs, addr, 1)
	}
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(addr, value)
	}
	return nil
}

// WriteRange stores values starting at addr. The write is atomic: a bounds
// violation rejects the whole range and mutates nothing.
func (s *Store) WriteRange(addr uint16, values []uint16) error {
	s.mu.Lock()
	if len(values) == 0 || int(addr)+len(values) > len(s.regs) {
		s.mu.Unlock()
		return &AddressError{Address: addr, Count: len(values), Size: len(s.regs)}
	}
	copy(s.regs[addr:], values)
	if s.backend != nil {
		s.backend.OnWrite(s.regs, addr, len(values))
	}
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		for i, v := range values {
			fn(addr+uint16(i), v)
		}
	}
	return nil
}

// Resize reinitializes the store to size zeroed registers. Register values
// do not survive a resize.
func (s *Store) Resize(size int) error {
	if size <= 0 {
		size = DefaultSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend != nil {
		regs, err := s.backend.Resize(size)
		if err != nil {
			return fmt.Errorf("registers: backend resize failed: %w", err)
		}
		s.regs = regs
		return nil
	}
	s.regs = make([]uint16, size)
	return nil
}

// LoadPattern bulk-sets registers from address 0. Values beyond the map
// size are rejected as an address error.
func (s *Store) LoadPattern(values []uint16) error {
	return s.WriteRange(0, values)
}

// Snapshot returns a copy of every register.
func (s *Store) Snapshot() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint16, len(s.regs))
	copy(out, s.regs)
	return out
}
