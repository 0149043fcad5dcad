// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// ExportCSV writes the register map as one line per register in the form
// address,hexValue,decimalValue. External tools consume this format.
func (s *Store) ExportCSV(w io.Writer) error {
	snapshot := s.Snapshot()

	bw := bufio.NewWriter(w)
	for addr, v := range snapshot {
		if _, err := fmt.Fprintf(bw, "%d,0x%04X,%d\n", addr, v, v); err != nil {
			return fmt.Errorf("registers: export failed at address %d: %w", addr, err)
		}
	}
	return bw.Flush()
}

// ExportFile writes the CSV export to path, replacing any existing file.
func (s *Store) ExportFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("registers: create export file: %w", err)
	}
	if err := s.ExportCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
