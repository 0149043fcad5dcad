// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package host

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fieldbus/regprobe/internal/config"
	"github.com/fieldbus/regprobe/internal/registers"
	"github.com/fieldbus/regprobe/protocol/mbtcp"
	"github.com/fieldbus/regprobe/transport/tcp"
)

const reconnectBackoff = 5 * time.Second

// Poller mirrors a register range of a remote Modbus slave into the local
// store on a fixed interval.
type Poller struct {
	cfg   config.HostConfig
	store *registers.Store
}

// NewPoller creates a poller writing into store.
func NewPoller(cfg config.HostConfig, store *registers.Store) *Poller {
	return &Poller{cfg: cfg, store: store}
}

// Run polls until ctx is cancelled, reconnecting after transport failures.
// It blocks; call it in a goroutine.
func (p *Poller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := p.pollConnection(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("Poll connection failed, reconnecting",
				"target", p.cfg.Target.Address, "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectBackoff):
		}
	}
}

// pollConnection serves one connection lifetime.
func (p *Poller) pollConnection(ctx context.Context) error {
	conn, err := tcp.Dial(p.cfg.Target.Address)
	if err != nil {
		return err
	}
	defer conn.Close()
	slog.Info("Connected to remote slave", "target", p.cfg.Target.Address)

	master := NewModbusMaster(conn, byte(p.cfg.UnitID), p.cfg.Timeout)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		master.Run(runCtx)
		close(done)
	}()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := p.pollOnce(ctx, master); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		case <-ticker.C:
		}
	}
}

// pollOnce reads the configured range and mirrors it locally. A Modbus
// exception or timeout is logged and skipped; only transport-level errors
// end the connection.
func (p *Poller) pollOnce(ctx context.Context, master *ModbusMaster) error {
	start := uint16(p.cfg.StartAddress)
	remaining := p.cfg.Count
	for remaining > 0 {
		count := remaining
		if count > int(mbtcp.MaxReadCount) {
			count = int(mbtcp.MaxReadCount)
		}
		values, err := master.ReadHoldingRegisters(ctx, start, uint16(count))
		if err != nil {
			var exc *ExceptionError
			if errors.As(err, &exc) || errors.Is(err, ErrTimeout) {
				slog.Warn("Poll request failed", "addr", start, "count", count, "err", err)
				return nil
			}
			return err
		}
		if err := p.store.WriteRange(start, values); err != nil {
			slog.Error("Failed to mirror polled registers", "addr", start, "err", err)
			return nil
		}
		start += uint16(count)
		remaining -= count
	}
	return nil
}
