// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package protocol provides the stream assembler that turns arbitrary byte
// chunks from a transport into complete, validated frames. The assembler is
// generic over the wire format; protocol/custom and protocol/mbtcp supply
// the codecs.
package protocol

// Codec is the framing capability a wire format exposes to the assembler.
//
// TryDecode inspects the front of buf and returns:
//   - (frame, n>0, nil) when a complete frame was decoded from n bytes;
//   - (nil, n>0, err) when n bytes held a malformed frame and were discarded;
//   - (nil, n>0, nil) when n bytes of leading noise were discarded silently;
//   - (nil, 0, nil) when more input is needed.
//
// TryDecode must never retain buf.
type Codec[F any] interface {
	TryDecode(buf []byte) (*F, int, error)
	Encode(frame *F) ([]byte, error)
}

// DefaultBufferCap caps the assembler's internal buffer. If no frame start
// is found within this many bytes the buffer is flushed, bounding memory
// growth on pure noise.
const DefaultBufferCap = 64 * 1024

// Result is one assembler output: either a decoded frame or a framing error.
type Result[F any] struct {
	Frame *F
	Err   error
}

// Assembler reassembles frames from a chunked byte stream. One instance
// serves one transport; it is not safe for concurrent use.
type Assembler[F any] struct {
	codec Codec[F]
	buf   []byte
	cap   int
}

// NewAssembler creates an assembler for the given codec. bufferCap bounds
// the internal buffer; zero selects DefaultBufferCap.
func NewAssembler[F any](codec Codec[F], bufferCap int) *Assembler[F] {
	if bufferCap <= 0 {
		bufferCap = DefaultBufferCap
	}
	return &Assembler[F]{codec: codec, cap: bufferCap}
}

// Feed appends chunk to the internal buffer and returns every frame and
// framing error that became decodable, in wire order. A malformed frame
// never stalls the stream: the codec discards it and scanning continues
// within the same pass.
func (a *Assembler[F]) Feed(chunk []byte) []Result[F] {
	a.buf = append(a.buf, chunk...)

	var results []Result[F]
	for len(a.buf) > 0 {
		frame, n, err := a.codec.TryDecode(a.buf)
		if n == 0 {
			break
		}
		a.buf = a.buf[n:]
		switch {
		case err != nil:
			results = append(results, Result[F]{Err: err})
		case frame != nil:
			results = append(results, Result[F]{Frame: frame})
		}
	}

	// Safety bound: unparseable input that never yields a frame start is
	// dropped silently once it exceeds the cap.
	if len(a.buf) > a.cap {
		a.buf = nil
	} else if len(a.buf) == 0 {
		a.buf = nil
	}

	return results
}

// Encode serializes frame with the assembler's codec.
func (a *Assembler[F]) Encode(frame *F) ([]byte, error) {
	return a.codec.Encode(frame)
}

// Pending returns how many buffered bytes await completion of a frame.
func (a *Assembler[F]) Pending() int {
	return len(a.buf)
}

// Reset discards any partially assembled frame, for reuse across
// reconnects of the same transport.
func (a *Assembler[F]) Reset() {
	a.buf = nil
}
