// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package custom

import (
	"encoding/binary"
	"fmt"
)

// ReadSingleRequest builds a request to read one register.
func ReadSingleRequest(device, msgID byte, reg uint16) *Frame {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, reg)
	return &Frame{DeviceAddress: device, MessageID: msgID, FunctionCode: FuncReadSingle, Payload: payload}
}

// ReadSingleResponse builds the response to a read-single request.
func ReadSingleResponse(device, msgID byte, reg, value uint16) *Frame {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload, reg)
	binary.BigEndian.PutUint16(payload[2:], value)
	return &Frame{DeviceAddress: device, MessageID: msgID, FunctionCode: FuncReadSingle | ResponseBit, Payload: payload}
}

// WriteSingleRequest builds a request to write one register.
func WriteSingleRequest(device, msgID byte, reg, value uint16) *Frame {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload, reg)
	binary.BigEndian.PutUint16(payload[2:], value)
	return &Frame{DeviceAddress: device, MessageID: msgID, FunctionCode: FuncWriteSingle, Payload: payload}
}

// WriteSingleResponse echoes the written register and value.
func WriteSingleResponse(device, msgID byte, reg, value uint16) *Frame {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload, reg)
	binary.BigEndian.PutUint16(payload[2:], value)
	return &Frame{DeviceAddress: device, MessageID: msgID, FunctionCode: FuncWriteSingle | ResponseBit, Payload: payload}
}

// ReadMultipleRequest builds a request to read count consecutive registers.
func ReadMultipleRequest(device, msgID byte, reg uint16, count byte) *Frame {
	payload := make([]byte, 3)
	binary.BigEndian.PutUint16(payload, reg)
	payload[2] = count
	return &Frame{DeviceAddress: device, MessageID: msgID, FunctionCode: FuncReadMultiple, Payload: payload}
}

// ReadMultipleResponse builds the response carrying the read values.
func ReadMultipleResponse(device, msgID byte, reg uint16, values []uint16) *Frame {
	payload := make([]byte, 3+2*len(values))
	binary.BigEndian.PutUint16(payload, reg)
	payload[2] = byte(len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(payload[3+2*i:], v)
	}
	return &Frame{DeviceAddress: device, MessageID: msgID, FunctionCode: FuncReadMultiple | ResponseBit, Payload: payload}
}

// WriteMultipleRequest builds a request to write consecutive registers.
func WriteMultipleRequest(device, msgID byte, reg uint16, values []uint16) *Frame {
	payload := make([]byte, 3+2*len(values))
	binary.BigEndian.PutUint16(payload, reg)
	payload[2] = byte(len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(payload[3+2*i:], v)
	}
	return &Frame{DeviceAddress: device, MessageID: msgID, FunctionCode: FuncWriteMultiple, Payload: payload}
}

// WriteMultipleResponse acknowledges a multi-register write.
func WriteMultipleResponse(device, msgID byte, reg uint16, count byte) *Frame {
	payload := make([]byte, 3)
	binary.BigEndian.PutUint16(payload, reg)
	payload[2] = count
	return &Frame{DeviceAddress: device, MessageID: msgID, FunctionCode: FuncWriteMultiple | ResponseBit, Payload: payload}
}

// ErrorResponse builds an error response for the given request function code.
func ErrorResponse(device, msgID, requestCode, errCode byte) *Frame {
	return &Frame{
		DeviceAddress: device,
		MessageID:     msgID,
		FunctionCode:  requestCode | ErrorBit,
		Payload:       []byte{errCode},
	}
}

// Request is the structured form of a decoded request frame.
type Request struct {
	Register uint16
	Count    byte
	Values   []uint16
}

// ParseRequest interprets the payload of a request frame according to its
// function code.
func ParseRequest(f *Frame) (*Request, error) {
	switch f.FunctionCode {
	case FuncReadSingle:
		if len(f.Payload) < 2 {
			return nil, fmt.Errorf("custom: read-single payload too short: %d", len(f.Payload))
		}
		return &Request{Register: binary.BigEndian.Uint16(f.Payload), Count: 1}, nil

	case FuncWriteSingle:
		if len(f.Payload) < 4 {
			return nil, fmt.Errorf("custom: write-single payload too short: %d", len(f.Payload))
		}
		return &Request{
			Register: binary.BigEndian.Uint16(f.Payload),
			Count:    1,
			Values:   []uint16{binary.BigEndian.Uint16(f.Payload[2:])},
		}, nil

	case FuncReadMultiple:
		if len(f.Payload) < 3 {
			return nil, fmt.Errorf("custom: read-multiple payload too short: %d", len(f.Payload))
		}
		return &Request{Register: binary.BigEndian.Uint16(f.Payload), Count: f.Payload[2]}, nil

	case FuncWriteMultiple:
		if len(f.Payload) < 3 {
			return nil, fmt.Errorf("custom: write-multiple payload too short: %d", len(f.Payload))
		}
		count := int(f.Payload[2])
		if len(f.Payload) < 3+2*count {
			return nil, fmt.Errorf("custom: write-multiple declares %d values, payload has %d bytes", count, len(f.Payload)-3)
		}
		values := make([]uint16, count)
		for i := range values {
			values[i] = binary.BigEndian.Uint16(f.Payload[3+2*i:])
		}
		return &Request{Register: binary.BigEndian.Uint16(f.Payload), Count: f.Payload[2], Values: values}, nil

	default:
		return nil, fmt.Errorf("custom: unknown request function code 0x%02X", f.FunctionCode)
	}
}

// Response is the structured form of a decoded response frame.
type Response struct {
	Register  uint16
	Count     byte
	Values    []uint16
	IsError   bool
	ErrorCode byte
}

// ParseResponse interprets the payload of a response or error frame.
func ParseResponse(f *Frame) (*Response, error) {
	if f.IsError() {
		if len(f.Payload) < 1 {
			return nil, fmt.Errorf("custom: error response without error code")
		}
		return &Response{IsError: true, ErrorCode: f.Payload[0]}, nil
	}

	switch f.FunctionCode {
	case FuncReadSingle | ResponseBit, FuncWriteSingle | ResponseBit:
		if len(f.Payload) < 4 {
			return nil, fmt.Errorf("custom: single-register response payload too short: %d", len(f.Payload))
		}
		return &Response{
			Register: binary.BigEndian.Uint16(f.Payload),
			Count:    1,
			Values:   []uint16{binary.BigEndian.Uint16(f.Payload[2:])},
		}, nil

	case FuncReadMultiple | ResponseBit:
		if len(f.Payload) < 3 {
			return nil, fmt.Errorf("custom: read-multiple response payload too short: %d", len(f.Payload))
		}
		count := int(f.Payload[2])
		if len(f.Payload) < 3+2*count {
			return nil, fmt.Errorf("custom: read-multiple response declares %d values, payload has %d bytes", count, len(f.Payload)-3)
		}
		values := make([]uint16, count)
		for i := range values {
			values[i] = binary.BigEndian.Uint16(f.Payload[3+2*i:])
		}
		return &Response{Register: binary.BigEndian.Uint16(f.Payload), Count: f.Payload[2], Values: values}, nil

	case FuncWriteMultiple | ResponseBit:
		if len(f.Payload) < 3 {
			return nil, fmt.Errorf("custom: write-multiple response payload too short: %d", len(f.Payload))
		}
		return &Response{Register: binary.BigEndian.Uint16(f.Payload), Count: f.Payload[2]}, nil

	default:
		return nil, fmt.Errorf("custom: unknown response function code 0x%02X", f.FunctionCode)
	}
}

// ErrorDescription returns a human-readable description of an error code.
func ErrorDescription(code byte) string {
	switch code {
	case ErrCodeInvalidFunction:
		return "invalid or unsupported function"
	case ErrCodeInvalidAddress:
		return "invalid register address"
	case ErrCodeInvalidValue:
		return "invalid register value"
	case ErrCodeInternal:
		return "internal device error"
	default:
		return fmt.Sprintf("unknown error (0x%02X)", code)
	}
}
