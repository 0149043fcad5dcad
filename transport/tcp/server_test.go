// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"testing"
	"time"
)

func TestServer_EchoLoopback(t *testing.T) {
	server := NewServer("127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		server.Start(ctx, func(ctx context.Context, conn *Conn) {
			for {
				data, err := conn.Read(100 * time.Millisecond)
				if err != nil {
					return
				}
				if len(data) == 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
					continue
				}
				if err := conn.Write(data); err != nil {
					return
				}
			}
		})
	}()
	<-started

	// Wait for the listener to bind.
	var client *Conn
	var err error
	for i := 0; i < 50; i++ {
		client, err = Dial(server.Addr())
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer client.Close()

	if err := client.Write([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	data, err := client.Read(2 * time.Second)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(data) != 3 || data[0] != 0x01 || data[2] != 0x03 {
		t.Errorf("echo = %v, want [1 2 3]", data)
	}
}

func TestConn_ReadTimeoutReturnsEmpty(t *testing.T) {
	server := NewServer("127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Start(ctx, func(ctx context.Context, conn *Conn) {
		<-ctx.Done()
	})

	var client *Conn
	var err error
	for i := 0; i < 50; i++ {
		client, err = Dial(server.Addr())
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer client.Close()

	data, err := client.Read(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if data != nil {
		t.Errorf("Read() = %v, want nil on timeout", data)
	}
}
