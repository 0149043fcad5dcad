// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// FileStorage persists the register map in a flat binary file of
// size*2 bytes. The in-memory register slice aliases the file image; every
// write syncs the image back to disk.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load opens (creating if necessary) and sizes the file, then returns the
// register view over its contents.
func (fs *FileStorage) Load(size int) ([]uint16, error) {
	f, err := os.OpenFile(fs.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("persistence: open register file: %w", err)
	}
	fs.file = f

	if err := fs.ensureSize(size); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("persistence: read register file: %w", err)
	}
	fs.data = data
	return u16View(data), nil
}

func (fs *FileStorage) ensureSize(size int) error {
	fi, err := fs.file.Stat()
	if err != nil {
		return err
	}
	if fi.Size() != int64(size*2) {
		if err := fs.file.Truncate(int64(size * 2)); err != nil {
			return fmt.Errorf("persistence: resize register file: %w", err)
		}
	}
	return nil
}

// Save flushes the file image to disk.
func (fs *FileStorage) Save(regs []uint16) error {
	return fs.sync()
}

// OnWrite syncs after every mutation so state survives power loss.
func (fs *FileStorage) OnWrite(regs []uint16, addr uint16, count int) {
	if err := fs.sync(); err != nil {
		slog.Error("Failed to sync register file", "path", fs.path, "err", err)
	}
}

// Resize re-truncates the file and returns a zeroed register view.
func (fs *FileStorage) Resize(size int) ([]uint16, error) {
	if fs.file == nil {
		return nil, fmt.Errorf("persistence: storage not loaded")
	}
	if err := fs.file.Truncate(0); err != nil {
		return nil, err
	}
	if err := fs.file.Truncate(int64(size * 2)); err != nil {
		return nil, err
	}
	fs.data = make([]byte, size*2)
	if err := fs.sync(); err != nil {
		return nil, err
	}
	return u16View(fs.data), nil
}

func (fs *FileStorage) sync() error {
	if fs.data == nil || fs.file == nil {
		return nil
	}
	if _, err := fs.file.WriteAt(fs.data, 0); err != nil {
		return fmt.Errorf("persistence: write register file: %w", err)
	}
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("persistence: sync register file: %w", err)
	}
	return nil
}

// Close the file.
func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	return fs.file.Close()
}
