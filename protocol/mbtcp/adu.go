// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package mbtcp implements the Modbus TCP framing subset the engine speaks:
// read holding registers (0x03) and write multiple registers (0x10), plus
// exception responses.
package mbtcp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the fixed MBAP header: transaction id, protocol id,
	// length and unit id.
	HeaderSize = 7

	// MinSize is the MBAP header plus the function code.
	MinSize = 8

	// MaxSize bounds a full ADU on the wire.
	MaxSize = 260

	// DefaultPort is the registered Modbus TCP port.
	DefaultPort = 502
)

// Supported function codes.
const (
	FuncReadHoldingRegisters   = 0x03
	FuncWriteMultipleRegisters = 0x10

	ExceptionBit = 0x80
)

// Exception codes.
const (
	ExceptionIllegalFunction    = 0x01
	ExceptionIllegalDataAddress = 0x02
	ExceptionIllegalDataValue   = 0x03
	ExceptionSlaveDeviceFailure = 0x04
)

// Modbus quantity limits for 16-bit register operations.
const (
	MaxReadCount  = 125
	MaxWriteCount = 123
)

var ErrProtocolID = errors.New("mbtcp: protocol id is not zero")

// LengthError reports a disagreement between the declared MBAP length and
// the bytes actually present.
type LengthError struct {
	Declared  int
	Available int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("mbtcp: declared length %d does not match %d available bytes", e.Declared, e.Available)
}

// ADU is a Modbus TCP application data unit: the MBAP header plus the PDU.
type ADU struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16
	UnitID        byte
	FunctionCode  byte
	Data          []byte
}

// IsException reports whether the function code has the exception bit set.
func (a *ADU) IsException() bool {
	return a.FunctionCode&ExceptionBit != 0
}

// RequestCode strips the exception bit from the function code.
func (a *ADU) RequestCode() byte {
	return a.FunctionCode &^ ExceptionBit
}

// Encode serializes the ADU with big-endian multi-byte fields. The Length
// field is computed from the PDU, not taken from the struct.
func (a *ADU) Encode() ([]byte, error) {
	total := MinSize + len(a.Data)
	if total > MaxSize {
		return nil, fmt.Errorf("mbtcp: ADU of %d bytes exceeds maximum %d", total, MaxSize)
	}

	raw := make([]byte, total)
	binary.BigEndian.PutUint16(raw[0:], a.TransactionID)
	binary.BigEndian.PutUint16(raw[2:], a.ProtocolID)
	binary.BigEndian.PutUint16(raw[4:], uint16(2+len(a.Data))) // unit id + function code + data
	raw[6] = a.UnitID
	raw[7] = a.FunctionCode
	copy(raw[8:], a.Data)
	return raw, nil
}

// Decode parses a complete ADU from raw. The declared MBAP length must match
// the bytes present exactly.
func Decode(raw []byte) (*ADU, error) {
	if len(raw) < MinSize {
		return nil, fmt.Errorf("mbtcp: frame of %d bytes shorter than minimum %d", len(raw), MinSize)
	}

	adu := &ADU{
		TransactionID: binary.BigEndian.Uint16(raw[0:]),
		ProtocolID:    binary.BigEndian.Uint16(raw[2:]),
		Length:        binary.BigEndian.Uint16(raw[4:]),
		UnitID:        raw[6],
		FunctionCode:  raw[7],
	}

	if adu.ProtocolID != 0 {
		return nil, fmt.Errorf("%w: 0x%04X", ErrProtocolID, adu.ProtocolID)
	}
	if int(adu.Length) != len(raw)-6 {
		return nil, &LengthError{Declared: int(adu.Length), Available: len(raw) - 6}
	}

	adu.Data = make([]byte, len(raw)-MinSize)
	copy(adu.Data, raw[8:])
	return adu, nil
}

// Codec adapts the ADU format for the stream assembler.
type Codec struct{}

// Encode implements the assembler codec contract.
func (Codec) Encode(a *ADU) ([]byte, error) {
	return a.Encode()
}

// TryDecode waits for the 6-byte MBAP length prefix, then for the declared
// number of bytes, and decodes one ADU. A header with an impossible length
// flushes the buffer since a byte stream carrying it cannot be resynced.
func (Codec) TryDecode(buf []byte) (*ADU, int, error) {
	if len(buf) < 6 {
		return nil, 0, nil
	}

	length := int(binary.BigEndian.Uint16(buf[4:]))
	if length < 2 || 6+length > MaxSize {
		return nil, len(buf), &LengthError{Declared: length, Available: len(buf) - 6}
	}

	total := 6 + length
	if len(buf) < total {
		return nil, 0, nil
	}

	adu, err := Decode(buf[:total])
	if err != nil {
		return nil, total, err
	}
	return adu, total, nil
}
