// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package host

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fieldbus/regprobe/internal/device"
	"github.com/fieldbus/regprobe/internal/registers"
	"github.com/fieldbus/regprobe/protocol/custom"
	"github.com/fieldbus/regprobe/protocol/mbtcp"
)

// slaveConn is an in-memory transport backed by a Responder: every write is
// decoded, handled, and the response queued for the next read.
type slaveConn struct {
	handle func(raw []byte) []byte

	mu     sync.Mutex
	queue  [][]byte
	closed bool
}

func (c *slaveConn) Read(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, io.EOF
		}
		if len(c.queue) > 0 {
			raw := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return raw, nil
		}
		c.mu.Unlock()
		if time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *slaveConn) Write(p []byte) error {
	resp := c.handle(p)
	if resp == nil {
		return nil
	}
	c.mu.Lock()
	c.queue = append(c.queue, resp)
	c.mu.Unlock()
	return nil
}

func (c *slaveConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func modbusSlaveConn(t *testing.T, r *device.Responder) *slaveConn {
	t.Helper()
	return &slaveConn{handle: func(raw []byte) []byte {
		req, err := mbtcp.Decode(raw)
		if err != nil {
			t.Fatalf("slave failed to decode request: %v", err)
		}
		resp := r.HandleModbus(req)
		if resp == nil {
			return nil
		}
		out, err := resp.Encode()
		if err != nil {
			t.Fatalf("slave failed to encode response: %v", err)
		}
		return out
	}}
}

func TestModbusMaster_ReadHoldingRegisters(t *testing.T) {
	store := registers.New(1000)
	for i := uint16(0); i < 8; i++ {
		store.Write(0x10+i, 0x1000+i)
	}
	conn := modbusSlaveConn(t, device.New(store, 1))

	m := NewModbusMaster(conn, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	values, err := m.ReadHoldingRegisters(ctx, 0x10, 8)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters() error: %v", err)
	}
	for i, v := range values {
		if v != uint16(0x1000+i) {
			t.Errorf("value %d = %04X, want %04X", i, v, 0x1000+i)
		}
	}
	if m.tracker.Pending() != 0 {
		t.Errorf("Pending() = %d after response, want 0", m.tracker.Pending())
	}
}

func TestModbusMaster_WriteThenRead(t *testing.T) {
	store := registers.New(1000)
	conn := modbusSlaveConn(t, device.New(store, 1))

	m := NewModbusMaster(conn, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	if err := m.WriteMultipleRegisters(ctx, 0x20, []uint16{11, 22, 33}); err != nil {
		t.Fatalf("WriteMultipleRegisters() error: %v", err)
	}
	values, err := m.ReadHoldingRegisters(ctx, 0x20, 3)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters() error: %v", err)
	}
	if values[0] != 11 || values[1] != 22 || values[2] != 33 {
		t.Errorf("values = %v, want [11 22 33]", values)
	}
}

func TestModbusMaster_ExceptionSurfaces(t *testing.T) {
	conn := modbusSlaveConn(t, device.New(registers.New(100), 1))

	m := NewModbusMaster(conn, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	_, err := m.ReadHoldingRegisters(ctx, 5000, 1)
	var exc *ExceptionError
	if !errors.As(err, &exc) {
		t.Fatalf("error = %v, want ExceptionError", err)
	}
	if exc.Code != mbtcp.ExceptionIllegalDataAddress {
		t.Errorf("exception code = %02X, want 02", exc.Code)
	}
}

func TestModbusMaster_Timeout(t *testing.T) {
	// A responder for unit 9 ignores unit 1 requests, so no response comes.
	conn := modbusSlaveConn(t, device.New(registers.New(100), 9))

	m := NewModbusMaster(conn, 1, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	_, err := m.ReadHoldingRegisters(ctx, 0, 1)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if m.tracker.Pending() != 0 {
		t.Errorf("Pending() = %d after timeout, want 0", m.tracker.Pending())
	}

	// The transaction id space is free again for the next request.
	conn2 := modbusSlaveConn(t, device.New(registers.New(100), 1))
	m2 := NewModbusMaster(conn2, 1, time.Second)
	go m2.Run(ctx)
	if _, err := m2.ReadHoldingRegisters(ctx, 0, 1); err != nil {
		t.Errorf("read after timeout error: %v", err)
	}
}

func customSlaveConn(t *testing.T, r *device.Responder) *slaveConn {
	t.Helper()
	var codec custom.Codec
	return &slaveConn{handle: func(raw []byte) []byte {
		req, _, err := codec.TryDecode(raw)
		if err != nil || req == nil {
			t.Fatalf("slave failed to decode frame: %v", err)
		}
		resp := r.HandleCustom(req)
		if resp == nil {
			return nil
		}
		out, err := resp.Encode()
		if err != nil {
			t.Fatalf("slave failed to encode frame: %v", err)
		}
		return out
	}}
}

func TestCustomMaster_ResolvedCallback(t *testing.T) {
	store := registers.New(1000)
	store.Write(0x0005, 0xBEEF)
	conn := customSlaveConn(t, device.New(store, 1))

	resolved := make(chan *custom.Frame, 1)
	m := NewCustomMaster(conn, 1, time.Second, KeySequential, Callbacks{
		Resolved: func(resp *custom.Frame) { resolved <- resp },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	if err := m.ReadSingle(0x0005); err != nil {
		t.Fatalf("ReadSingle() error: %v", err)
	}

	select {
	case resp := <-resolved:
		parsed, err := custom.ParseResponse(resp)
		if err != nil {
			t.Fatalf("ParseResponse() error: %v", err)
		}
		if parsed.Values[0] != 0xBEEF {
			t.Errorf("value = %04X, want BEEF", parsed.Values[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Resolved callback never fired")
	}
	if m.Pending() != 0 {
		t.Errorf("Pending() = %d after response, want 0", m.Pending())
	}
}

func TestCustomMaster_BroadcastTimesOut(t *testing.T) {
	// Broadcast writes execute on the slave but are never answered, so the
	// master's only signal is the timeout.
	store := registers.New(1000)
	conn := customSlaveConn(t, device.New(store, 1))

	timedOut := make(chan byte, 1)
	m := NewCustomMaster(conn, custom.Broadcast, 50*time.Millisecond, KeySequential, Callbacks{
		TimedOut: func(msgID byte) { timedOut <- msgID },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	if err := m.WriteSingle(0x0030, 0x5555); err != nil {
		t.Fatalf("WriteSingle() error: %v", err)
	}

	select {
	case <-timedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("TimedOut callback never fired")
	}
	if v, _ := store.Read(0x0030); v != 0x5555 {
		t.Errorf("register = %04X, want 5555 (broadcast must execute)", v)
	}
}

func TestCustomMaster_CallerKeyRejectsDuplicate(t *testing.T) {
	// A slave for another address never answers, keeping the key pending.
	conn := customSlaveConn(t, device.New(registers.New(100), 9))

	m := NewCustomMaster(conn, 1, time.Second, KeyCaller, Callbacks{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	if err := m.Send(custom.ReadSingleRequest(1, 0x42, 0)); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if err := m.Send(custom.ReadSingleRequest(1, 0x42, 0)); !errors.Is(err, ErrKeyInUse) {
		t.Fatalf("Send(dup key) = %v, want ErrKeyInUse", err)
	}
}

func TestParseKeyStrategy(t *testing.T) {
	if s, err := ParseKeyStrategy(""); err != nil || s != KeySequential {
		t.Errorf("ParseKeyStrategy(\"\") = %v, %v; want sequential", s, err)
	}
	if _, err := ParseKeyStrategy("roulette"); err == nil {
		t.Error("ParseKeyStrategy accepted an unknown strategy")
	}
}
