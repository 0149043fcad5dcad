// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package persistence provides register map storage backends so register
// state survives transport lifetime and process restarts.
package persistence

import (
	"fmt"
	"unsafe"
)

// Storage persists the register map. Load is called once at startup and
// returns the backing slice the store will mutate in place; OnWrite is the
// write-through hook called after every mutation.
type Storage interface {
	// Load returns a register slice of the given size, restored from
	// storage when previous state exists.
	Load(size int) ([]uint16, error)

	// Save writes a full snapshot.
	Save(regs []uint16) error

	// OnWrite is called after count registers starting at addr changed.
	OnWrite(regs []uint16, addr uint16, count int)

	// Resize reinitializes storage for a new map size. All registers are
	// zeroed; the returned slice replaces the previous backing.
	Resize(size int) ([]uint16, error)

	Close() error
}

// Open creates the storage backend named by typ: "memory", "file", "mmap"
// or "sql". path is the file path for file-backed types, or the DSN for
// "sql" (driver selects the database; import it in main).
func Open(typ, path, driver string) (Storage, error) {
	switch typ {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "file":
		return NewFileStorage(path), nil
	case "mmap":
		return NewMmapStorage(path), nil
	case "sql":
		return NewSQLStorage(driver, path), nil
	default:
		return nil, fmt.Errorf("persistence: unknown storage type %q", typ)
	}
}

// u16View casts a byte slice to an aliasing uint16 slice.
// Warning: the view relies on the host's endianness for multi-byte values.
// This provides zero-copy access but sacrifices portability of the stored
// file across architectures with different endianness.
func u16View(data []byte) []uint16 {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&data[0])), len(data)/2)
}
