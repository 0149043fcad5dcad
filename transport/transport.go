// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transport abstracts the byte streams the protocol engine runs
// over. The engine never blocks on a transport indefinitely: every read is
// bounded by a timeout and the caller re-polls.
package transport

import "time"

// Conn is one open byte-stream transport.
type Conn interface {
	// Read returns whatever bytes arrived within timeout. A (nil, nil)
	// return means no data this interval; the caller polls again. The
	// returned slice is only valid until the next Read.
	Read(timeout time.Duration) ([]byte, error)

	// Write sends p in full.
	Write(p []byte) error

	// Close aborts any blocked Read and releases the transport.
	Close() error
}
