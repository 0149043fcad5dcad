// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package protocol_test

import (
	"errors"
	"testing"

	"github.com/fieldbus/regprobe/protocol"
	"github.com/fieldbus/regprobe/protocol/custom"
	"github.com/fieldbus/regprobe/protocol/mbtcp"
)

func TestAssembler_SplitAcrossChunks(t *testing.T) {
	asm := protocol.NewAssembler[custom.Frame](custom.Codec{}, 0)
	raw, _ := custom.ReadSingleRequest(1, 0x10, 0x1234).Encode()

	for i := 0; i < len(raw)-1; i++ {
		if got := asm.Feed(raw[i : i+1]); len(got) != 0 {
			t.Fatalf("byte %d: unexpected results %v", i, got)
		}
	}
	got := asm.Feed(raw[len(raw)-1:])
	if len(got) != 1 || got[0].Err != nil || got[0].Frame == nil {
		t.Fatalf("final byte: results = %v, want one frame", got)
	}
	if got[0].Frame.MessageID != 0x10 {
		t.Errorf("MessageID = %02X, want 10", got[0].Frame.MessageID)
	}
}

func TestAssembler_MultipleFramesOneChunk(t *testing.T) {
	asm := protocol.NewAssembler[custom.Frame](custom.Codec{}, 0)

	var chunk []byte
	for id := byte(1); id <= 3; id++ {
		raw, _ := custom.ReadSingleRequest(1, id, 0x0001).Encode()
		chunk = append(chunk, raw...)
	}

	got := asm.Feed(chunk)
	if len(got) != 3 {
		t.Fatalf("Feed() returned %d results, want 3", len(got))
	}
	for i, r := range got {
		if r.Err != nil || r.Frame == nil {
			t.Fatalf("result %d: %+v", i, r)
		}
		if r.Frame.MessageID != byte(i+1) {
			t.Errorf("result %d: MessageID = %d, frames out of order", i, r.Frame.MessageID)
		}
	}
}

// A corrupt frame must produce one error, then the next valid frame must
// still come through in the same pass.
func TestAssembler_BadChecksumThenValidFrame(t *testing.T) {
	asm := protocol.NewAssembler[custom.Frame](custom.Codec{}, 0)

	bad, _ := custom.ReadSingleRequest(1, 0x10, 0x1234).Encode()
	bad[len(bad)-1] ^= 0xFF
	good, _ := custom.ReadSingleRequest(1, 0x11, 0x1234).Encode()

	got := asm.Feed(append(bad, good...))
	if len(got) != 2 {
		t.Fatalf("Feed() returned %d results, want 2", len(got))
	}
	if !errors.Is(got[0].Err, custom.ErrChecksumMismatch) {
		t.Errorf("first result error = %v, want checksum mismatch", got[0].Err)
	}
	if got[1].Err != nil || got[1].Frame == nil || got[1].Frame.MessageID != 0x11 {
		t.Errorf("second result = %+v, want valid frame 0x11", got[1])
	}
	if asm.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", asm.Pending())
	}
}

func TestAssembler_NoiseBetweenFrames(t *testing.T) {
	asm := protocol.NewAssembler[custom.Frame](custom.Codec{}, 0)
	raw, _ := custom.WriteSingleRequest(1, 0x20, 0x0002, 0xCAFE).Encode()

	chunk := append([]byte{0x00, 0x11, 0x22}, raw...)
	chunk = append(chunk, 0x33, 0x44)
	chunk = append(chunk, raw...)

	got := asm.Feed(chunk)
	if len(got) != 2 {
		t.Fatalf("Feed() returned %d results, want 2 frames around noise", len(got))
	}
	for i, r := range got {
		if r.Err != nil || r.Frame == nil {
			t.Errorf("result %d: %+v", i, r)
		}
	}
}

func TestAssembler_BufferCapFlushesNoise(t *testing.T) {
	asm := protocol.NewAssembler[mbtcp.ADU](mbtcp.Codec{}, 16)

	// An MBAP header promising more bytes than will ever arrive, below the
	// codec's sanity limit so it parks in the buffer.
	got := asm.Feed([]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x50, 0x01, 0x03})
	if len(got) != 0 {
		t.Fatalf("unexpected results %v", got)
	}
	if asm.Pending() == 0 {
		t.Fatal("expected pending bytes before cap")
	}

	asm.Feed(make([]byte, 32))
	if asm.Pending() != 0 {
		t.Errorf("Pending() = %d after exceeding cap, want flush to 0", asm.Pending())
	}
}

func TestAssembler_ModbusStream(t *testing.T) {
	asm := protocol.NewAssembler[mbtcp.ADU](mbtcp.Codec{}, 0)
	raw, _ := mbtcp.ReadHoldingRequest(9, 1, 0, 10).Encode()

	got := asm.Feed(raw[:7])
	if len(got) != 0 {
		t.Fatalf("partial frame yielded %v", got)
	}
	got = asm.Feed(raw[7:])
	if len(got) != 1 || got[0].Err != nil || got[0].Frame == nil {
		t.Fatalf("Feed() = %v, want one ADU", got)
	}
	if got[0].Frame.TransactionID != 9 {
		t.Errorf("TransactionID = %d, want 9", got[0].Frame.TransactionID)
	}
}
