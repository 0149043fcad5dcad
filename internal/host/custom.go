// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fieldbus/regprobe/internal/session"
	"github.com/fieldbus/regprobe/protocol/custom"
	"github.com/fieldbus/regprobe/transport"
)

// KeyStrategy selects how a master assigns transaction keys.
type KeyStrategy string

const (
	// KeySequential assigns monotonically increasing keys, wrapping at the
	// key space.
	KeySequential KeyStrategy = "sequential"
	// KeyCaller uses the key the caller supplied on each request.
	KeyCaller KeyStrategy = "caller"
)

// ParseKeyStrategy maps a config string to a strategy.
func ParseKeyStrategy(s string) (KeyStrategy, error) {
	switch KeyStrategy(s) {
	case KeySequential, "":
		return KeySequential, nil
	case KeyCaller:
		return KeyCaller, nil
	}
	return "", fmt.Errorf("host: unknown key strategy %q", s)
}

// Callbacks receive the outcomes of a CustomMaster's requests.
type Callbacks struct {
	// Resolved is called for each response matching a pending request.
	Resolved func(resp *custom.Frame)
	// TimedOut is called once per request whose response never arrived.
	TimedOut func(msgID byte)
	// Unsolicited is called for responses matching no pending request,
	// including late responses to already timed-out requests.
	Unsolicited func(resp *custom.Frame)
}

// CustomMaster originates framed requests to one remote device and matches
// responses by message id. All outcomes are delivered through Callbacks from
// the Run goroutine.
type CustomMaster struct {
	device   byte
	strategy KeyStrategy
	cb       Callbacks

	sess    *session.Session[custom.Frame]
	tracker *Tracker
	seq     atomic.Uint32
}

// NewCustomMaster creates a master talking to device over conn.
func NewCustomMaster(conn transport.Conn, device byte, timeout time.Duration, strategy KeyStrategy, cb Callbacks) *CustomMaster {
	m := &CustomMaster{
		device:   device,
		strategy: strategy,
		cb:       cb,
		sess:     session.New[custom.Frame](conn, custom.Codec{}),
	}
	m.tracker = NewTracker(timeout, func(key uint16) {
		slog.Warn("Request timed out", "device", device, "msgId", key)
		if cb.TimedOut != nil {
			cb.TimedOut(byte(key))
		}
	})
	return m
}

// Pending returns the number of outstanding requests.
func (m *CustomMaster) Pending() int {
	return m.tracker.Pending()
}

// nextID reserves the next sequential message id.
func (m *CustomMaster) nextID() byte {
	return byte(m.seq.Add(1))
}

// Send tracks and transmits a prepared request frame. Under the sequential
// strategy the frame's MessageID is overwritten; under the caller strategy
// it is used as-is and ErrKeyInUse rejects a duplicate.
func (m *CustomMaster) Send(req *custom.Frame) error {
	if m.strategy == KeySequential {
		req.MessageID = m.nextID()
	}
	if err := m.tracker.Track(uint16(req.MessageID)); err != nil {
		return err
	}
	if err := m.sess.Write(req); err != nil {
		m.tracker.Resolve(uint16(req.MessageID))
		return err
	}
	return nil
}

// ReadSingle requests one register.
func (m *CustomMaster) ReadSingle(reg uint16) error {
	return m.Send(custom.ReadSingleRequest(m.device, 0, reg))
}

// WriteSingle requests one register write.
func (m *CustomMaster) WriteSingle(reg, value uint16) error {
	return m.Send(custom.WriteSingleRequest(m.device, 0, reg, value))
}

// ReadMultiple requests count registers starting at reg.
func (m *CustomMaster) ReadMultiple(reg uint16, count byte) error {
	return m.Send(custom.ReadMultipleRequest(m.device, 0, reg, count))
}

// WriteMultiple requests a block write starting at reg.
func (m *CustomMaster) WriteMultiple(reg uint16, values []uint16) error {
	return m.Send(custom.WriteMultipleRequest(m.device, 0, reg, values))
}

// Run reads responses and drives the timeout sweep until ctx is cancelled
// or the transport fails. Outstanding requests are failed on return.
func (m *CustomMaster) Run(ctx context.Context) error {
	sweepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.tracker.Start(sweepCtx)

	go m.sess.Run(ctx)
	for ev := range m.sess.Events() {
		if ev.Err != nil {
			slog.Warn("Discarded malformed frame", "err", ev.Err)
			continue
		}
		m.dispatch(ev.Frame)
	}

	for _, key := range m.tracker.FailAll() {
		if m.cb.TimedOut != nil {
			m.cb.TimedOut(byte(key))
		}
	}
	return ctx.Err()
}

func (m *CustomMaster) dispatch(resp *custom.Frame) {
	if !resp.IsResponse() && !resp.IsError() {
		if m.cb.Unsolicited != nil {
			m.cb.Unsolicited(resp)
		}
		return
	}
	if m.tracker.Resolve(uint16(resp.MessageID)) {
		if m.cb.Resolved != nil {
			m.cb.Resolved(resp)
		}
		return
	}
	slog.Debug("Unsolicited response", "msgId", resp.MessageID)
	if m.cb.Unsolicited != nil {
		m.cb.Unsolicited(resp)
	}
}
