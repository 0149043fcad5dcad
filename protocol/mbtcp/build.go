// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mbtcp

import (
	"encoding/binary"
	"fmt"
)

// ReadHoldingRequest builds a read-holding-registers request.
func ReadHoldingRequest(tid uint16, unit byte, addr, count uint16) *ADU {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data, addr)
	binary.BigEndian.PutUint16(data[2:], count)
	return &ADU{TransactionID: tid, UnitID: unit, FunctionCode: FuncReadHoldingRegisters, Data: data}
}

// ReadHoldingResponse builds the response carrying the register values.
func ReadHoldingResponse(tid uint16, unit byte, values []uint16) *ADU {
	data := make([]byte, 1+2*len(values))
	data[0] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[1+2*i:], v)
	}
	return &ADU{TransactionID: tid, UnitID: unit, FunctionCode: FuncReadHoldingRegisters, Data: data}
}

// WriteMultipleRequest builds a write-multiple-registers request.
func WriteMultipleRequest(tid uint16, unit byte, addr uint16, values []uint16) *ADU {
	data := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(data, addr)
	binary.BigEndian.PutUint16(data[2:], uint16(len(values)))
	data[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[5+2*i:], v)
	}
	return &ADU{TransactionID: tid, UnitID: unit, FunctionCode: FuncWriteMultipleRegisters, Data: data}
}

// WriteMultipleResponse echoes the start address and quantity.
func WriteMultipleResponse(tid uint16, unit byte, addr, count uint16) *ADU {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data, addr)
	binary.BigEndian.PutUint16(data[2:], count)
	return &ADU{TransactionID: tid, UnitID: unit, FunctionCode: FuncWriteMultipleRegisters, Data: data}
}

// ExceptionResponse builds an exception for the given request function code.
func ExceptionResponse(tid uint16, unit, requestCode, exception byte) *ADU {
	return &ADU{
		TransactionID: tid,
		UnitID:        unit,
		FunctionCode:  requestCode | ExceptionBit,
		Data:          []byte{exception},
	}
}

// ReadRequest is a parsed read-holding-registers request.
type ReadRequest struct {
	Address uint16
	Count   uint16
}

// ParseReadRequest extracts start address and quantity from a 0x03 request.
func ParseReadRequest(a *ADU) (*ReadRequest, error) {
	if a.FunctionCode != FuncReadHoldingRegisters {
		return nil, fmt.Errorf("mbtcp: function code 0x%02X is not read holding registers", a.FunctionCode)
	}
	if len(a.Data) < 4 {
		return nil, fmt.Errorf("mbtcp: read request data too short: %d", len(a.Data))
	}
	return &ReadRequest{
		Address: binary.BigEndian.Uint16(a.Data),
		Count:   binary.BigEndian.Uint16(a.Data[2:]),
	}, nil
}

// ParseReadResponse extracts the register values from a 0x03 response.
func ParseReadResponse(a *ADU) ([]uint16, error) {
	if a.FunctionCode != FuncReadHoldingRegisters {
		return nil, fmt.Errorf("mbtcp: function code 0x%02X is not read holding registers", a.FunctionCode)
	}
	if len(a.Data) < 1 {
		return nil, fmt.Errorf("mbtcp: read response without byte count")
	}
	byteCount := int(a.Data[0])
	if byteCount%2 != 0 || len(a.Data) < 1+byteCount {
		return nil, fmt.Errorf("mbtcp: read response byte count %d does not match %d data bytes", byteCount, len(a.Data)-1)
	}
	values := make([]uint16, byteCount/2)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(a.Data[1+2*i:])
	}
	return values, nil
}

// WriteRequest is a parsed write-multiple-registers request.
type WriteRequest struct {
	Address uint16
	Count   uint16
	Values  []uint16
}

// ParseWriteRequest extracts address, quantity and values from a 0x10 request.
func ParseWriteRequest(a *ADU) (*WriteRequest, error) {
	if a.FunctionCode != FuncWriteMultipleRegisters {
		return nil, fmt.Errorf("mbtcp: function code 0x%02X is not write multiple registers", a.FunctionCode)
	}
	if len(a.Data) < 5 {
		return nil, fmt.Errorf("mbtcp: write request data too short: %d", len(a.Data))
	}
	count := binary.BigEndian.Uint16(a.Data[2:])
	byteCount := int(a.Data[4])
	if byteCount != 2*int(count) || len(a.Data) < 5+byteCount {
		return nil, fmt.Errorf("mbtcp: write request declares %d registers but carries %d bytes", count, len(a.Data)-5)
	}
	values := make([]uint16, count)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(a.Data[5+2*i:])
	}
	return &WriteRequest{
		Address: binary.BigEndian.Uint16(a.Data),
		Count:   count,
		Values:  values,
	}, nil
}

// ParseWriteResponse extracts the echoed address and quantity from a 0x10
// response.
func ParseWriteResponse(a *ADU) (addr, count uint16, err error) {
	if a.FunctionCode != FuncWriteMultipleRegisters {
		return 0, 0, fmt.Errorf("mbtcp: function code 0x%02X is not write multiple registers", a.FunctionCode)
	}
	if len(a.Data) < 4 {
		return 0, 0, fmt.Errorf("mbtcp: write response data too short: %d", len(a.Data))
	}
	return binary.BigEndian.Uint16(a.Data), binary.BigEndian.Uint16(a.Data[2:]), nil
}

// ExceptionName returns a human-readable name for an exception code.
func ExceptionName(code byte) string {
	switch code {
	case ExceptionIllegalFunction:
		return "illegal function"
	case ExceptionIllegalDataAddress:
		return "illegal data address"
	case ExceptionIllegalDataValue:
		return "illegal data value"
	case ExceptionSlaveDeviceFailure:
		return "slave device failure"
	default:
		return fmt.Sprintf("unknown exception (0x%02X)", code)
	}
}
