// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fieldbus/regprobe/internal/config"
	"github.com/fieldbus/regprobe/internal/device"
	"github.com/fieldbus/regprobe/internal/host"
	"github.com/fieldbus/regprobe/internal/registers"
	"github.com/fieldbus/regprobe/internal/registers/persistence"
	"github.com/fieldbus/regprobe/internal/session"
	"github.com/fieldbus/regprobe/protocol/custom"
	"github.com/fieldbus/regprobe/protocol/mbtcp"
	"github.com/fieldbus/regprobe/transport"
	"github.com/fieldbus/regprobe/transport/serial"
	"github.com/fieldbus/regprobe/transport/tcp"
)

func main() {
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load Configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	slog.Info("Starting register probe...")

	store, storage, err := buildStore(cfg.Device.Registers)
	if err != nil {
		slog.Error("Failed to build register store", "err", err)
		os.Exit(1)
	}
	defer storage.Close()

	store.SetOnChange(func(addr, value uint16) {
		slog.Debug("Register changed", "addr", addr, "value", value)
	})

	responder := device.New(store, byte(cfg.Device.Identity))
	mode, err := device.ParseErrorMode(cfg.Device.ErrorMode)
	if err != nil {
		slog.Error("Invalid error mode", "err", err)
		os.Exit(1)
	}
	responder.SetErrorMode(mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Modbus TCP slave
	if addr := cfg.Device.ModbusTCP.Address; addr != "" {
		server := tcp.NewServer(addr)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := server.Start(ctx, func(ctx context.Context, conn *tcp.Conn) {
				serveModbus(ctx, conn, responder)
			})
			if err != nil {
				slog.Error("Modbus TCP server stopped with error", "err", err)
			}
		}()
	}

	// Custom-protocol serial slave
	if cfg.Device.Serial.Device != "" {
		port, err := serial.Open(cfg.Device.Serial)
		if err != nil {
			slog.Error("Failed to open serial port", "device", cfg.Device.Serial.Device, "err", err)
			os.Exit(1)
		}
		slog.Info("Serial port open", "device", cfg.Device.Serial.Device, "baudRate", cfg.Device.Serial.BaudRate)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer port.Close()
			serveCustom(ctx, port, responder)
		}()
	}

	// Host poller against a remote slave
	if cfg.Host.Target.Address != "" {
		poller := host.NewPoller(cfg.Host, store)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	}

	// Periodic CSV export
	if cfg.Export.Path != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runExporter(ctx, store, cfg.Export)
		}()
	}

	// Wait for Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	cancel()
	wg.Wait()
	if err := storage.Save(store.Snapshot()); err != nil {
		slog.Error("Failed to save registers", "err", err)
	}
	slog.Info("Goodbye.")
}

// buildStore opens the configured persistence backend and wires it under the
// register store.
func buildStore(cfg config.RegisterConfig) (*registers.Store, persistence.Storage, error) {
	storage, err := persistence.Open(cfg.Persistence.Type, cfg.Persistence.Path, cfg.Persistence.Driver)
	if err != nil {
		return nil, nil, err
	}
	regs, err := storage.Load(cfg.Size)
	if err != nil {
		storage.Close()
		return nil, nil, err
	}
	store := registers.NewBacked(regs, storage)
	if cfg.LoadPattern {
		if err := registers.LoadChannelPattern(store); err != nil {
			storage.Close()
			return nil, nil, err
		}
		slog.Info("Channel test pattern loaded", "channels", registers.ChannelCount)
	}
	slog.Info("Register store ready", "size", store.Size(), "persistence", cfg.Persistence.Type)
	return store, storage, nil
}

// serveModbus answers Modbus TCP requests on one client connection.
func serveModbus(ctx context.Context, conn *tcp.Conn, responder *device.Responder) {
	sess := session.New[mbtcp.ADU](conn, mbtcp.Codec{})
	go sess.Run(ctx)
	for ev := range sess.Events() {
		if ev.Err != nil {
			slog.Warn("Discarded malformed ADU", "addr", conn.RemoteAddr(), "err", ev.Err)
			continue
		}
		resp := responder.HandleModbus(ev.Frame)
		if resp == nil {
			continue
		}
		if err := sess.Write(resp); err != nil {
			slog.Error("Failed to write response", "addr", conn.RemoteAddr(), "err", err)
			return
		}
	}
	slog.Info("Client disconnected", "addr", conn.RemoteAddr())
}

// serveCustom answers framed requests on the serial line.
func serveCustom(ctx context.Context, port transport.Conn, responder *device.Responder) {
	sess := session.New[custom.Frame](port, custom.Codec{})
	go sess.Run(ctx)
	for ev := range sess.Events() {
		if ev.Err != nil {
			slog.Warn("Discarded malformed frame", "err", ev.Err)
			continue
		}
		resp := responder.HandleCustom(ev.Frame)
		if resp == nil {
			continue
		}
		if err := sess.Write(resp); err != nil {
			slog.Error("Failed to write response", "err", err)
			return
		}
	}
}

// runExporter dumps the register map to CSV on a fixed interval.
func runExporter(ctx context.Context, store *registers.Store, cfg config.ExportConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.ExportFile(cfg.Path); err != nil {
				slog.Error("Failed to export registers", "path", cfg.Path, "err", err)
			}
		}
	}
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
