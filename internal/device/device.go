// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package device implements the slave role: it answers decoded requests
// against the register store, producing responses or protocol errors.
package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fieldbus/regprobe/internal/registers"
	"github.com/fieldbus/regprobe/protocol/custom"
	"github.com/fieldbus/regprobe/protocol/mbtcp"
)

// ErrorMode forces a specific error response regardless of the validation
// outcome, for conformance testing of master implementations.
type ErrorMode string

const (
	ErrorModeNone            ErrorMode = "none"
	ErrorModeInvalidFunction ErrorMode = "invalid-function"
	ErrorModeInvalidAddress  ErrorMode = "invalid-address"
	ErrorModeInvalidValue    ErrorMode = "invalid-value"
	ErrorModeInternal        ErrorMode = "internal-error"
)

// ParseErrorMode validates a configured error simulation mode.
func ParseErrorMode(s string) (ErrorMode, error) {
	switch m := ErrorMode(s); m {
	case "", ErrorModeNone:
		return ErrorModeNone, nil
	case ErrorModeInvalidFunction, ErrorModeInvalidAddress, ErrorModeInvalidValue, ErrorModeInternal:
		return m, nil
	default:
		return "", fmt.Errorf("device: unknown error mode %q", s)
	}
}

func (m ErrorMode) customCode() byte {
	switch m {
	case ErrorModeInvalidFunction:
		return custom.ErrCodeInvalidFunction
	case ErrorModeInvalidAddress:
		return custom.ErrCodeInvalidAddress
	case ErrorModeInvalidValue:
		return custom.ErrCodeInvalidValue
	default:
		return custom.ErrCodeInternal
	}
}

func (m ErrorMode) exceptionCode() byte {
	switch m {
	case ErrorModeInvalidFunction:
		return mbtcp.ExceptionIllegalFunction
	case ErrorModeInvalidAddress:
		return mbtcp.ExceptionIllegalDataAddress
	case ErrorModeInvalidValue:
		return mbtcp.ExceptionIllegalDataValue
	default:
		return mbtcp.ExceptionSlaveDeviceFailure
	}
}

// Responder executes requests from either protocol against the shared
// register store. A nil response means the request is not answered: either
// it was for another device, or it was a broadcast (executed silently).
type Responder struct {
	store    *registers.Store
	identity byte

	mu   sync.Mutex
	mode ErrorMode
}

// New creates a Responder answering as the given device/unit identity.
func New(store *registers.Store, identity byte) *Responder {
	return &Responder{store: store, identity: identity, mode: ErrorModeNone}
}

// SetErrorMode switches error simulation at runtime.
func (r *Responder) SetErrorMode(mode ErrorMode) {
	r.mu.Lock()
	r.mode = mode
	r.mu.Unlock()
}

func (r *Responder) errorMode() ErrorMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Identity returns the configured device/unit address.
func (r *Responder) Identity() byte {
	return r.identity
}

// HandleCustom processes one custom-protocol request. Requests addressed to
// another device are ignored; broadcast requests are executed but yield no
// response.
func (r *Responder) HandleCustom(req *custom.Frame) (resp *custom.Frame) {
	if req.DeviceAddress != r.identity && req.DeviceAddress != custom.Broadcast {
		slog.Debug("Ignoring request for other device", "address", req.DeviceAddress, "identity", r.identity)
		return nil
	}
	broadcast := req.DeviceAddress == custom.Broadcast

	// An unexpected fault during execution must answer with the internal
	// error code instead of taking the responder down.
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Responder fault", "panic", p, "function", req.FunctionCode)
			if broadcast {
				resp = nil
				return
			}
			resp = custom.ErrorResponse(r.identity, req.MessageID, req.RequestCode(), custom.ErrCodeInternal)
		}
	}()

	if mode := r.errorMode(); mode != ErrorModeNone {
		if broadcast {
			return nil
		}
		return custom.ErrorResponse(r.identity, req.MessageID, req.RequestCode(), mode.customCode())
	}

	resp = r.executeCustom(req)
	if broadcast {
		// Silent success: the write took effect, but broadcasts are
		// never answered.
		return nil
	}
	return resp
}

func (r *Responder) executeCustom(req *custom.Frame) *custom.Frame {
	fail := func(code byte) *custom.Frame {
		return custom.ErrorResponse(r.identity, req.MessageID, req.RequestCode(), code)
	}

	switch req.FunctionCode {
	case custom.FuncReadSingle, custom.FuncWriteSingle, custom.FuncReadMultiple, custom.FuncWriteMultiple:
	default:
		return fail(custom.ErrCodeInvalidFunction)
	}

	parsed, err := custom.ParseRequest(req)
	if err != nil {
		// Declared counts disagreeing with the payload, or payloads too
		// short to carry their parameters.
		return fail(custom.ErrCodeInvalidValue)
	}

	switch req.FunctionCode {
	case custom.FuncReadSingle:
		value, err := r.store.Read(parsed.Register)
		if err != nil {
			return fail(custom.ErrCodeInvalidAddress)
		}
		return custom.ReadSingleResponse(r.identity, req.MessageID, parsed.Register, value)

	case custom.FuncWriteSingle:
		if err := r.store.Write(parsed.Register, parsed.Values[0]); err != nil {
			return fail(custom.ErrCodeInvalidAddress)
		}
		return custom.WriteSingleResponse(r.identity, req.MessageID, parsed.Register, parsed.Values[0])

	case custom.FuncReadMultiple:
		if parsed.Count == 0 {
			return fail(custom.ErrCodeInvalidValue)
		}
		values, err := r.store.ReadRange(parsed.Register, int(parsed.Count))
		if err != nil {
			return fail(custom.ErrCodeInvalidAddress)
		}
		return custom.ReadMultipleResponse(r.identity, req.MessageID, parsed.Register, values)

	default: // custom.FuncWriteMultiple
		if parsed.Count == 0 {
			return fail(custom.ErrCodeInvalidValue)
		}
		if err := r.store.WriteRange(parsed.Register, parsed.Values); err != nil {
			return fail(custom.ErrCodeInvalidAddress)
		}
		return custom.WriteMultipleResponse(r.identity, req.MessageID, parsed.Register, parsed.Count)
	}
}

// HandleModbus processes one Modbus TCP request. Requests for another unit
// id are ignored.
func (r *Responder) HandleModbus(req *mbtcp.ADU) (resp *mbtcp.ADU) {
	if req.UnitID != r.identity {
		slog.Debug("Ignoring request for other unit", "unit", req.UnitID, "identity", r.identity)
		return nil
	}

	defer func() {
		if p := recover(); p != nil {
			slog.Error("Responder fault", "panic", p, "function", req.FunctionCode)
			resp = mbtcp.ExceptionResponse(req.TransactionID, r.identity, req.RequestCode(), mbtcp.ExceptionSlaveDeviceFailure)
		}
	}()

	if mode := r.errorMode(); mode != ErrorModeNone {
		return mbtcp.ExceptionResponse(req.TransactionID, r.identity, req.RequestCode(), mode.exceptionCode())
	}

	return r.executeModbus(req)
}

func (r *Responder) executeModbus(req *mbtcp.ADU) *mbtcp.ADU {
	fail := func(code byte) *mbtcp.ADU {
		return mbtcp.ExceptionResponse(req.TransactionID, r.identity, req.RequestCode(), code)
	}

	switch req.FunctionCode {
	case mbtcp.FuncReadHoldingRegisters:
		parsed, err := mbtcp.ParseReadRequest(req)
		if err != nil {
			return fail(mbtcp.ExceptionIllegalDataValue)
		}
		if parsed.Count < 1 || parsed.Count > mbtcp.MaxReadCount {
			return fail(mbtcp.ExceptionIllegalDataValue)
		}
		values, err := r.store.ReadRange(parsed.Address, int(parsed.Count))
		if err != nil {
			return fail(mbtcp.ExceptionIllegalDataAddress)
		}
		return mbtcp.ReadHoldingResponse(req.TransactionID, r.identity, values)

	case mbtcp.FuncWriteMultipleRegisters:
		parsed, err := mbtcp.ParseWriteRequest(req)
		if err != nil {
			return fail(mbtcp.ExceptionIllegalDataValue)
		}
		if parsed.Count < 1 || parsed.Count > mbtcp.MaxWriteCount {
			return fail(mbtcp.ExceptionIllegalDataValue)
		}
		if err := r.store.WriteRange(parsed.Address, parsed.Values); err != nil {
			return fail(mbtcp.ExceptionIllegalDataAddress)
		}
		return mbtcp.WriteMultipleResponse(req.TransactionID, r.identity, parsed.Address, parsed.Count)

	default:
		return fail(mbtcp.ExceptionIllegalFunction)
	}
}
