// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package session runs a frame read loop over a transport connection. One
// session owns one connection and one assembler; decoded frames and decode
// errors flow out on a channel so device and host roles share the same loop.
package session

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/fieldbus/regprobe/protocol"
	"github.com/fieldbus/regprobe/transport"
)

const (
	// ReadTimeout bounds each transport poll so cancellation is observed
	// promptly.
	ReadTimeout = 200 * time.Millisecond

	eventBuffer = 16
)

// Event is one outcome of the read loop. Exactly one of Frame and Err is
// set; Err carries a malformed-frame decode error, after which the loop
// keeps running.
type Event[F any] struct {
	Frame *F
	Err   error
}

// Session reads a byte stream and emits frames.
type Session[F any] struct {
	conn      transport.Conn
	assembler *protocol.Assembler[F]
	events    chan Event[F]
}

// New creates a session over conn using codec. The session does not read
// until Run is called.
func New[F any](conn transport.Conn, codec protocol.Codec[F]) *Session[F] {
	return &Session[F]{
		conn:      conn,
		assembler: protocol.NewAssembler(codec, 0),
		events:    make(chan Event[F], eventBuffer),
	}
}

// Events delivers decoded frames and decode errors. The channel is closed
// when Run returns.
func (s *Session[F]) Events() <-chan Event[F] {
	return s.events
}

// Write encodes frame and sends it on the connection.
func (s *Session[F]) Write(frame *F) error {
	raw, err := s.assembler.Encode(frame)
	if err != nil {
		return err
	}
	return s.conn.Write(raw)
}

// Run reads until ctx is cancelled or the connection fails, then closes the
// event channel. It blocks; call it in a goroutine.
func (s *Session[F]) Run(ctx context.Context) error {
	defer close(s.events)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunk, err := s.conn.Read(ReadTimeout)
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			slog.Debug("Session read ended", "err", err)
			return err
		}
		if len(chunk) == 0 {
			continue
		}
		slog.Debug("Received bytes", "data", hex.EncodeToString(chunk))

		for _, r := range s.assembler.Feed(chunk) {
			ev := Event[F]{Frame: r.Frame, Err: r.Err}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
