// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package custom implements the length-prefixed register protocol used by
// the devices under test. A frame on the wire is
//
//	[0x7E][DeviceAddress][MessageID][Length][FunctionCode][Payload...][Cksum_H][Cksum_L]
//
// where Length counts the function code plus the payload, and the Fletcher-16
// checksum covers DeviceAddress through the end of the payload.
package custom

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fieldbus/regprobe/protocol/fletcher"
)

const (
	// StartFlag delimits the beginning of every frame.
	StartFlag = 0x7E

	// Broadcast addresses every device on the bus. Broadcast requests are
	// executed but never answered.
	Broadcast = 0x00

	// MinSize is the smallest possible frame: header, function code and
	// checksum with an otherwise empty payload is still invalid, so the
	// minimum carries at least the function code.
	MinSize = 7

	headerSize   = 4 // flag + address + message id + length
	checksumSize = 2

	// MaxPayload is bounded by the one-byte length field, which also
	// counts the function code.
	MaxPayload = 254
)

// Request function codes.
const (
	FuncReadSingle    = 0x01
	FuncWriteSingle   = 0x02
	FuncReadMultiple  = 0x03
	FuncWriteMultiple = 0x04
)

// Response and error function code markers.
const (
	ResponseBit = 0x40
	ErrorBit    = 0x80
)

// Error codes carried by error responses.
const (
	ErrCodeInvalidFunction = 0x01
	ErrCodeInvalidAddress  = 0x02
	ErrCodeInvalidValue    = 0x03
	ErrCodeInternal        = 0xFF
)

var (
	ErrChecksumMismatch = errors.New("custom: checksum mismatch")
	ErrEmptyPayload     = errors.New("custom: length field is zero")
	ErrNoStartFlag      = errors.New("custom: frame does not start with flag byte")
	ErrTruncated        = errors.New("custom: frame truncated")
)

// PayloadSizeError reports a payload that cannot be represented by the
// one-byte length field.
type PayloadSizeError struct {
	Size int
}

func (e *PayloadSizeError) Error() string {
	return fmt.Sprintf("custom: payload of %d bytes exceeds maximum %d", e.Size, MaxPayload)
}

// Frame is one decoded protocol message.
type Frame struct {
	DeviceAddress byte
	MessageID     byte
	FunctionCode  byte
	Payload       []byte
	Checksum      uint16
}

// IsResponse reports whether the function code marks a success response.
func (f *Frame) IsResponse() bool {
	return f.FunctionCode&ResponseBit != 0 && f.FunctionCode&ErrorBit == 0
}

// IsError reports whether the function code marks an error response.
func (f *Frame) IsError() bool {
	return f.FunctionCode&ErrorBit != 0
}

// RequestCode strips the response and error markers from the function code.
func (f *Frame) RequestCode() byte {
	return f.FunctionCode &^ (ResponseBit | ErrorBit)
}

// Encode serializes the frame, computing and appending the checksum.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, &PayloadSizeError{Size: len(f.Payload)}
	}

	length := len(f.Payload) + 1 // function code counts toward the length
	raw := make([]byte, 0, headerSize+length+checksumSize)
	raw = append(raw, StartFlag, f.DeviceAddress, f.MessageID, byte(length), f.FunctionCode)
	raw = append(raw, f.Payload...)

	sum := fletcher.Checksum(raw[1:]) // flag byte is excluded
	raw = append(raw, byte(sum>>8), byte(sum))
	return raw, nil
}

// Decode parses a complete frame from raw. The slice must start at the flag
// byte and contain the entire frame including the trailing checksum.
func Decode(raw []byte) (*Frame, error) {
	if len(raw) < headerSize+checksumSize {
		return nil, ErrTruncated
	}
	if raw[0] != StartFlag {
		return nil, ErrNoStartFlag
	}

	length := int(raw[3])
	if length == 0 {
		return nil, ErrEmptyPayload
	}

	total := headerSize + length + checksumSize
	if len(raw) < total {
		return nil, ErrTruncated
	}

	body := raw[1 : headerSize+length]
	expected := uint16(raw[headerSize+length])<<8 | uint16(raw[headerSize+length+1])
	if !fletcher.Verify(body, expected) {
		return nil, ErrChecksumMismatch
	}

	payload := make([]byte, length-1)
	copy(payload, raw[headerSize+1:headerSize+length])

	return &Frame{
		DeviceAddress: raw[1],
		MessageID:     raw[2],
		FunctionCode:  raw[4],
		Payload:       payload,
		Checksum:      expected,
	}, nil
}

// Codec adapts the frame format for the stream assembler.
type Codec struct{}

// Encode implements the assembler codec contract.
func (Codec) Encode(f *Frame) ([]byte, error) {
	return f.Encode()
}

// TryDecode scans buf for one complete frame. It returns the decoded frame
// and the number of bytes consumed, a nil frame with bytes consumed when
// leading noise or a corrupt frame was discarded, or (nil, 0, nil) when more
// input is needed.
func (Codec) TryDecode(buf []byte) (*Frame, int, error) {
	if len(buf) == 0 {
		return nil, 0, nil
	}

	// Seek the start flag, silently discarding noise in front of it.
	if buf[0] != StartFlag {
		idx := bytes.IndexByte(buf, StartFlag)
		if idx < 0 {
			return nil, len(buf), nil
		}
		return nil, idx, nil
	}

	if len(buf) < headerSize {
		return nil, 0, nil
	}

	length := int(buf[3])
	if length == 0 {
		return nil, resync(buf, headerSize), ErrEmptyPayload
	}

	total := headerSize + length + checksumSize
	if len(buf) < total {
		return nil, 0, nil
	}

	frame, err := Decode(buf[:total])
	if err != nil {
		// Discard up to the next plausible flag byte so a corrupt frame
		// never stalls the stream.
		return nil, resync(buf, total), err
	}
	return frame, total, nil
}

// resync returns how many bytes to discard after a malformed frame: up to
// the next flag byte inside the bad region, or the whole region if none.
func resync(buf []byte, limit int) int {
	if limit > len(buf) {
		limit = len(buf)
	}
	if idx := bytes.IndexByte(buf[1:limit], StartFlag); idx >= 0 {
		return idx + 1
	}
	return limit
}
