// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

// MemoryStorage is a no-op storage (non-persistent).
type MemoryStorage struct{}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (ms *MemoryStorage) Load(size int) ([]uint16, error) {
	return make([]uint16, size), nil
}

func (ms *MemoryStorage) Save(regs []uint16) error {
	return nil
}

func (ms *MemoryStorage) OnWrite(regs []uint16, addr uint16, count int) {
	// No-op
}

func (ms *MemoryStorage) Resize(size int) ([]uint16, error) {
	return make([]uint16, size), nil
}

func (ms *MemoryStorage) Close() error {
	return nil
}
