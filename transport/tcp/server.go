// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
)

// Handler serves one accepted connection until it returns.
type Handler func(ctx context.Context, conn *Conn)

// Server accepts TCP connections and hands each to the handler in its own
// goroutine.
type Server struct {
	Address string

	listener net.Listener
}

// NewServer creates a server listening on address once started.
func NewServer(address string) *Server {
	return &Server{Address: address}
}

// Start listens and serves until ctx is cancelled. It blocks; call it in a
// goroutine.
func (s *Server) Start(ctx context.Context, handler Handler) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("tcp: failed to listen on %s: %w", s.Address, err)
	}
	s.listener = listener
	slog.Info("TCP server listening", "addr", s.Address)

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				slog.Error("Failed to accept connection", "err", err)
				continue
			}
		}
		slog.Info("Client connected", "addr", conn.RemoteAddr())
		go func() {
			defer conn.Close()
			handler(ctx, Wrap(conn))
		}()
	}
}

// Addr returns the bound listen address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.Address
	}
	return s.listener.Addr().String()
}

// Close closes the server listener.
func (s *Server) Close() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
