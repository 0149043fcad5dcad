// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// SQLStorage persists registers in a SQL table `registers`.
// Note: the driver (e.g. sqlite3) must be imported in main.
type SQLStorage struct {
	driver string
	dsn    string
	db     *sql.DB
}

// NewSQLStorage creates a new SQLStorage.
func NewSQLStorage(driver, dsn string) *SQLStorage {
	return &SQLStorage{driver: driver, dsn: dsn}
}

// Load connects to the database and restores any stored registers.
func (s *SQLStorage) Load(size int) ([]uint16, error) {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open db: %w", err)
	}
	s.db = db

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: init schema: %w", err)
	}

	regs := make([]uint16, size)

	rows, err := db.Query("SELECT address, value FROM registers")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: query registers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr, val int
		if err := rows.Scan(&addr, &val); err != nil {
			continue
		}
		if addr < 0 || addr >= size {
			continue
		}
		regs[addr] = uint16(val)
	}
	return regs, rows.Err()
}

func (s *SQLStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS registers (
		address INTEGER PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Save upserts every register. OnWrite already keeps the table current, so
// Save only matters for bulk operations like LoadPattern.
func (s *SQLStorage) Save(regs []uint16) error {
	if s.db == nil {
		return fmt.Errorf("persistence: storage not loaded")
	}
	s.OnWrite(regs, 0, len(regs))
	return nil
}

// OnWrite upserts the changed range. Writes are small (a register map
// mutation touches at most 125 cells), so a single transaction per call is
// cheap enough for write-through persistence.
func (s *SQLStorage) OnWrite(regs []uint16, addr uint16, count int) {
	if s.db == nil {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("Failed to begin register upsert", "err", err)
		return
	}
	const query = "INSERT INTO registers (address, value) VALUES (?, ?) ON CONFLICT(address) DO UPDATE SET value=excluded.value"
	for i := 0; i < count && int(addr)+i < len(regs); i++ {
		a := int(addr) + i
		if _, err := tx.Exec(query, a, int(regs[a])); err != nil {
			slog.Error("Failed to upsert register", "address", a, "err", err)
			tx.Rollback()
			return
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("Failed to commit register upsert", "err", err)
	}
}

// Resize clears the table and returns a zeroed register slice.
func (s *SQLStorage) Resize(size int) ([]uint16, error) {
	if s.db == nil {
		return nil, fmt.Errorf("persistence: storage not loaded")
	}
	if _, err := s.db.Exec("DELETE FROM registers"); err != nil {
		return nil, fmt.Errorf("persistence: clear registers: %w", err)
	}
	return make([]uint16, size), nil
}

// Close closes the database handle.
func (s *SQLStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
