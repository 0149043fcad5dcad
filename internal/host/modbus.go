// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldbus/regprobe/internal/session"
	"github.com/fieldbus/regprobe/protocol/mbtcp"
	"github.com/fieldbus/regprobe/transport"
)

// ExceptionError is a Modbus exception response surfaced to the caller.
type ExceptionError struct {
	FunctionCode byte
	Code         byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception %02X on function %02X (%s)",
		e.Code, e.FunctionCode, mbtcp.ExceptionName(e.Code))
}

// ModbusMaster issues synchronous Modbus TCP transactions to one remote
// unit. Transaction ids are assigned monotonically and wrap at the 16-bit
// space; concurrent calls from multiple goroutines are safe.
type ModbusMaster struct {
	unitID byte

	sess    *session.Session[mbtcp.ADU]
	tracker *Tracker
	tid     atomic.Uint32

	mu      sync.Mutex
	waiters map[uint16]chan *mbtcp.ADU
}

// NewModbusMaster creates a master talking to unitID over conn.
func NewModbusMaster(conn transport.Conn, unitID byte, timeout time.Duration) *ModbusMaster {
	m := &ModbusMaster{
		unitID:  unitID,
		sess:    session.New[mbtcp.ADU](conn, mbtcp.Codec{}),
		waiters: make(map[uint16]chan *mbtcp.ADU),
	}
	m.tracker = NewTracker(timeout, m.abandon)
	return m
}

// Run reads responses and drives the timeout sweep until ctx is cancelled
// or the transport fails. Outstanding transactions are failed on return.
func (m *ModbusMaster) Run(ctx context.Context) error {
	sweepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.tracker.Start(sweepCtx)

	go m.sess.Run(ctx)
	for ev := range m.sess.Events() {
		if ev.Err != nil {
			slog.Warn("Discarded malformed ADU", "err", ev.Err)
			continue
		}
		resp := ev.Frame
		if !m.tracker.Resolve(resp.TransactionID) {
			slog.Debug("Unsolicited response", "txnId", resp.TransactionID)
			continue
		}
		m.deliver(resp.TransactionID, resp)
	}

	for _, tid := range m.tracker.FailAll() {
		m.abandon(tid)
	}
	return ctx.Err()
}

// abandon wakes the waiter for tid with no response.
func (m *ModbusMaster) abandon(tid uint16) {
	m.deliver(tid, nil)
}

func (m *ModbusMaster) deliver(tid uint16, resp *mbtcp.ADU) {
	m.mu.Lock()
	ch, ok := m.waiters[tid]
	delete(m.waiters, tid)
	m.mu.Unlock()
	if ok {
		ch <- resp
	}
}

// transact sends req and waits for its response, the timeout sweep, or ctx.
func (m *ModbusMaster) transact(ctx context.Context, req *mbtcp.ADU) (*mbtcp.ADU, error) {
	tid := uint16(m.tid.Add(1))
	req.TransactionID = tid

	if err := m.tracker.Track(tid); err != nil {
		return nil, err
	}
	ch := make(chan *mbtcp.ADU, 1)
	m.mu.Lock()
	m.waiters[tid] = ch
	m.mu.Unlock()

	if err := m.sess.Write(req); err != nil {
		m.tracker.Resolve(tid)
		m.mu.Lock()
		delete(m.waiters, tid)
		m.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, ErrTimeout
		}
		if resp.IsException() {
			code := byte(0)
			if len(resp.Data) > 0 {
				code = resp.Data[0]
			}
			return nil, &ExceptionError{FunctionCode: resp.RequestCode(), Code: code}
		}
		return resp, nil
	case <-ctx.Done():
		m.tracker.Resolve(tid)
		m.mu.Lock()
		delete(m.waiters, tid)
		m.mu.Unlock()
		return nil, ctx.Err()
	}
}

// ReadHoldingRegisters reads count registers starting at addr.
func (m *ModbusMaster) ReadHoldingRegisters(ctx context.Context, addr, count uint16) ([]uint16, error) {
	resp, err := m.transact(ctx, mbtcp.ReadHoldingRequest(0, m.unitID, addr, count))
	if err != nil {
		return nil, err
	}
	return mbtcp.ParseReadResponse(resp)
}

// WriteMultipleRegisters writes values starting at addr.
func (m *ModbusMaster) WriteMultipleRegisters(ctx context.Context, addr uint16, values []uint16) error {
	resp, err := m.transact(ctx, mbtcp.WriteMultipleRequest(0, m.unitID, addr, values))
	if err != nil {
		return err
	}
	if _, _, err := mbtcp.ParseWriteResponse(resp); err != nil {
		return err
	}
	return nil
}
