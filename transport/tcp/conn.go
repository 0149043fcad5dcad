// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package tcp provides the TCP transport: a listener for the device role
// and a dialer for the host role.
package tcp

import (
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	// DialTimeout bounds connection establishment.
	DialTimeout = 10 * time.Second

	readBufferSize = 4096
)

// Conn adapts a net.Conn to the engine's polling read contract.
type Conn struct {
	conn net.Conn
	buf  [readBufferSize]byte
}

// Wrap adapts an accepted or dialed net.Conn.
func Wrap(c net.Conn) *Conn {
	return &Conn{conn: c}
}

// Dial connects to a remote peer.
func Dial(address string) (*Conn, error) {
	c, err := net.DialTimeout("tcp", address, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("tcp: failed to connect to %s: %w", address, err)
	}
	return Wrap(c), nil
}

// Read returns bytes received within timeout, or (nil, nil) when the
// deadline passes with nothing to deliver.
func (c *Conn) Read(timeout time.Duration) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	n, err := c.conn.Read(c.buf[:])
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil
		}
		return nil, err
	}
	return c.buf[:n], nil
}

// Write sends p in full.
func (c *Conn) Write(p []byte) error {
	if _, err := c.conn.Write(p); err != nil {
		return fmt.Errorf("tcp: write failed: %w", err)
	}
	return nil
}

// Close closes the underlying connection, aborting any blocked Read.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr identifies the peer for logging.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
