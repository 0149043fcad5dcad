// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
)

// MmapStorage persists the register map through a memory-mapped file. The
// register slice aliases the mapping directly, so writes land in the page
// cache and OnWrite only has to flush.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{path: path}
}

// Load memory-maps the register file, sizing it to size*2 bytes first.
func (ms *MmapStorage) Load(size int) ([]uint16, error) {
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("persistence: open mmap file: %w", err)
	}
	ms.file = f

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(size*2) {
		if err := f.Truncate(int64(size * 2)); err != nil {
			f.Close()
			return nil, fmt.Errorf("persistence: resize mmap file: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("persistence: mmap failed: %w", err)
	}
	ms.data = data
	return u16View(data), nil
}

// Save flushes the mapping to disk.
func (ms *MmapStorage) Save(regs []uint16) error {
	if ms.data == nil {
		return fmt.Errorf("persistence: mmap data is nil")
	}
	return ms.data.Flush()
}

// OnWrite flushes the dirty mapping.
func (ms *MmapStorage) OnWrite(regs []uint16, addr uint16, count int) {
	if ms.data == nil {
		return
	}
	if err := ms.data.Flush(); err != nil {
		slog.Error("Failed to flush register mmap", "path", ms.path, "err", err)
	}
}

// Resize unmaps, re-truncates and remaps the file, zeroing all registers.
func (ms *MmapStorage) Resize(size int) ([]uint16, error) {
	if ms.file == nil {
		return nil, fmt.Errorf("persistence: storage not loaded")
	}
	if ms.data != nil {
		if err := ms.data.Unmap(); err != nil {
			return nil, err
		}
		ms.data = nil
	}
	if err := ms.file.Truncate(0); err != nil {
		return nil, err
	}
	if err := ms.file.Truncate(int64(size * 2)); err != nil {
		return nil, err
	}
	data, err := mmap.Map(ms.file, mmap.RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("persistence: remap failed: %w", err)
	}
	ms.data = data
	return u16View(data), nil
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
