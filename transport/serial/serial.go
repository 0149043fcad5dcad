// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package serial provides the serial-line transport for the custom framed
// protocol.
package serial

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/grid-x/serial"

	"github.com/fieldbus/regprobe/internal/config"
)

const readBufferSize = 512

// Port is one open serial port adapted to the engine's polling read
// contract.
type Port struct {
	// Serial port configuration.
	serial.Config

	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port io.ReadWriteCloser
	buf  [readBufferSize]byte
}

// Open opens the configured serial device.
func Open(cfg config.SerialConfig) (*Port, error) {
	p := &Port{
		Config: serial.Config{
			Address:  cfg.Device,
			BaudRate: cfg.BaudRate,
			DataBits: cfg.DataBits,
			Parity:   cfg.Parity,
			StopBits: cfg.StopBits,
			Timeout:  cfg.Timeout,
		},
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect opens the serial port if it is not open. Caller must hold the mutex
// or own the Port exclusively.
func (p *Port) connect() error {
	if p.port == nil {
		port, err := serial.Open(&p.Config)
		if err != nil {
			return fmt.Errorf("could not open %s: %w", p.Config.Address, err)
		}
		p.port = port
	}
	return nil
}

// Read returns bytes received within the port's configured timeout, or
// (nil, nil) when it passes with nothing to deliver. The timeout argument is
// advisory; the driver's own timeout bounds the wait. Driver errors on an
// open port are timeouts or transient glitches and map to an empty read; a
// locally closed port is the only terminal condition a serial line has.
func (p *Port) Read(timeout time.Duration) ([]byte, error) {
	p.mu.Lock()
	port := p.port
	p.mu.Unlock()
	if port == nil {
		return nil, fmt.Errorf("serial: port %s is closed", p.Config.Address)
	}

	n, err := port.Read(p.buf[:])
	if err != nil || n == 0 {
		return nil, nil
	}
	return p.buf[:n], nil
}

// Write sends p in full.
func (p *Port) Write(b []byte) error {
	p.mu.Lock()
	port := p.port
	p.mu.Unlock()
	if port == nil {
		return fmt.Errorf("serial: port %s is closed", p.Config.Address)
	}
	if _, err := port.Write(b); err != nil {
		return fmt.Errorf("serial: write failed: %w", err)
	}
	return nil
}

// Close closes the serial port if it is open.
func (p *Port) Close() (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port != nil {
		err = p.port.Close()
		p.port = nil
	}
	return
}
