// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package fletcher implements the Fletcher-16 rolling checksum used by the
// custom register protocol. The two accumulators are reduced modulo 255
// after every input byte, so the result is independent of how the input is
// split across Push calls.
package fletcher

// Digest is an incremental Fletcher-16 checksum.
type Digest struct {
	c0, c1 uint16
}

// Reset clears the digest state.
func (d *Digest) Reset() {
	d.c0 = 0
	d.c1 = 0
}

// Push adds data to the running checksum.
func (d *Digest) Push(data []byte) {
	for _, b := range data {
		d.c0 = (d.c0 + uint16(b)) % 255
		d.c1 = (d.c1 + d.c0) % 255
	}
}

// Sum16 returns the current checksum value, sum-of-sums in the high byte.
func (d *Digest) Sum16() uint16 {
	return d.c1<<8 | d.c0
}

// Checksum computes the Fletcher-16 checksum of data in one call.
func Checksum(data []byte) uint16 {
	var d Digest
	d.Push(data)
	return d.Sum16()
}

// Verify recomputes the checksum of data and compares it to expected.
func Verify(data []byte, expected uint16) bool {
	return Checksum(data) == expected
}
