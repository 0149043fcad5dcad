// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import (
	"testing"

	"github.com/fieldbus/regprobe/internal/registers"
	"github.com/fieldbus/regprobe/protocol/custom"
	"github.com/fieldbus/regprobe/protocol/mbtcp"
)

func newResponder(t *testing.T) (*Responder, *registers.Store) {
	t.Helper()
	store := registers.New(1000)
	return New(store, 1), store
}

func TestHandleCustom_ReadSingle(t *testing.T) {
	r, store := newResponder(t)
	store.Write(0x0010, 0xCAFE)

	resp := r.HandleCustom(custom.ReadSingleRequest(1, 0x10, 0x0010))
	if resp == nil {
		t.Fatal("HandleCustom() returned nil for a valid request")
	}
	if resp.FunctionCode != custom.FuncReadSingle|custom.ResponseBit {
		t.Fatalf("FunctionCode = %02X, want 41", resp.FunctionCode)
	}
	parsed, err := custom.ParseResponse(resp)
	if err != nil {
		t.Fatalf("ParseResponse() error: %v", err)
	}
	if parsed.Values[0] != 0xCAFE {
		t.Errorf("value = %04X, want CAFE", parsed.Values[0])
	}
}

func TestHandleCustom_WriteMultiple(t *testing.T) {
	r, store := newResponder(t)

	resp := r.HandleCustom(custom.WriteMultipleRequest(1, 0x20, 5, []uint16{10, 20, 30}))
	if resp == nil || resp.FunctionCode != custom.FuncWriteMultiple|custom.ResponseBit {
		t.Fatalf("response = %+v, want write-multiple ack", resp)
	}
	got, err := store.ReadRange(5, 3)
	if err != nil {
		t.Fatalf("ReadRange() error: %v", err)
	}
	if got[0] != 10 || got[1] != 20 || got[2] != 30 {
		t.Errorf("registers = %v, want [10 20 30]", got)
	}
}

// A broadcast write mutates the store but is never answered, which is the
// only observable difference from "not this device".
func TestHandleCustom_BroadcastWrite_SilentSuccess(t *testing.T) {
	r, store := newResponder(t)

	resp := r.HandleCustom(custom.WriteSingleRequest(custom.Broadcast, 0x01, 7, 0xAAAA))
	if resp != nil {
		t.Fatalf("broadcast yielded response %+v, want none", resp)
	}
	if v, _ := store.Read(7); v != 0xAAAA {
		t.Errorf("register 7 = %04X, want AAAA (broadcast must execute)", v)
	}
}

func TestHandleCustom_OtherDevice_Ignored(t *testing.T) {
	r, store := newResponder(t)

	resp := r.HandleCustom(custom.WriteSingleRequest(9, 0x01, 7, 0xAAAA))
	if resp != nil {
		t.Fatalf("request for device 9 yielded response %+v, want none", resp)
	}
	if v, _ := store.Read(7); v != 0 {
		t.Errorf("register 7 = %04X, want 0 (ignored request must not execute)", v)
	}
}

func TestHandleCustom_Errors(t *testing.T) {
	r, _ := newResponder(t)

	tests := []struct {
		name     string
		req      *custom.Frame
		wantCode byte
	}{
		{
			"UnknownFunction",
			&custom.Frame{DeviceAddress: 1, MessageID: 1, FunctionCode: 0x09, Payload: []byte{0x00}},
			custom.ErrCodeInvalidFunction,
		},
		{
			"AddressOutOfRange",
			custom.ReadSingleRequest(1, 2, 5000),
			custom.ErrCodeInvalidAddress,
		},
		{
			"RangeBeyondEnd",
			custom.ReadMultipleRequest(1, 3, 990, 20),
			custom.ErrCodeInvalidAddress,
		},
		{
			"ZeroCount",
			custom.ReadMultipleRequest(1, 4, 0, 0),
			custom.ErrCodeInvalidValue,
		},
		{
			"TruncatedPayload",
			&custom.Frame{DeviceAddress: 1, MessageID: 5, FunctionCode: custom.FuncWriteSingle, Payload: []byte{0x00}},
			custom.ErrCodeInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := r.HandleCustom(tt.req)
			if resp == nil || !resp.IsError() {
				t.Fatalf("response = %+v, want error frame", resp)
			}
			if resp.Payload[0] != tt.wantCode {
				t.Errorf("error code = %02X, want %02X", resp.Payload[0], tt.wantCode)
			}
			if resp.MessageID != tt.req.MessageID {
				t.Errorf("MessageID = %02X, want %02X", resp.MessageID, tt.req.MessageID)
			}
		})
	}
}

func TestHandleCustom_ErrorInjection(t *testing.T) {
	r, store := newResponder(t)
	r.SetErrorMode(ErrorModeInvalidAddress)

	resp := r.HandleCustom(custom.ReadSingleRequest(1, 0x10, 0))
	if resp == nil || !resp.IsError() || resp.Payload[0] != custom.ErrCodeInvalidAddress {
		t.Fatalf("response = %+v, want injected invalid-address error", resp)
	}
	if v, _ := store.Read(0); v != 0 {
		t.Errorf("store mutated under error injection")
	}

	r.SetErrorMode(ErrorModeNone)
	if resp := r.HandleCustom(custom.ReadSingleRequest(1, 0x11, 0)); resp == nil || resp.IsError() {
		t.Errorf("response after clearing injection = %+v, want success", resp)
	}
}

func TestHandleModbus_ReadHoldingRegisters(t *testing.T) {
	r, store := newResponder(t)
	for i := uint16(0); i < 10; i++ {
		store.Write(i, 100+i)
	}

	resp := r.HandleModbus(mbtcp.ReadHoldingRequest(1, 1, 0, 10))
	if resp == nil {
		t.Fatal("HandleModbus() returned nil")
	}
	if resp.FunctionCode != mbtcp.FuncReadHoldingRegisters {
		t.Fatalf("FunctionCode = %02X, want 03", resp.FunctionCode)
	}
	if resp.Data[0] != 20 {
		t.Errorf("byte count = %d, want 20", resp.Data[0])
	}
	values, err := mbtcp.ParseReadResponse(resp)
	if err != nil {
		t.Fatalf("ParseReadResponse() error: %v", err)
	}
	for i, v := range values {
		if v != uint16(100+i) {
			t.Errorf("value %d = %d, want %d", i, v, 100+i)
		}
	}
}

func TestHandleModbus_WriteOutOfRange_Exception(t *testing.T) {
	r, _ := newResponder(t)

	resp := r.HandleModbus(mbtcp.WriteMultipleRequest(7, 1, 2000, []uint16{1}))
	if resp == nil {
		t.Fatal("HandleModbus() returned nil")
	}
	if resp.FunctionCode != 0x90 {
		t.Errorf("FunctionCode = %02X, want 90", resp.FunctionCode)
	}
	if len(resp.Data) != 1 || resp.Data[0] != mbtcp.ExceptionIllegalDataAddress {
		t.Errorf("exception code = %v, want [02]", resp.Data)
	}
	if resp.TransactionID != 7 {
		t.Errorf("TransactionID = %d, want 7", resp.TransactionID)
	}
}

func TestHandleModbus_IllegalFunction(t *testing.T) {
	r, _ := newResponder(t)

	req := &mbtcp.ADU{TransactionID: 1, UnitID: 1, FunctionCode: 0x06, Data: []byte{0, 0, 0, 1}}
	resp := r.HandleModbus(req)
	if resp == nil || resp.FunctionCode != 0x86 || resp.Data[0] != mbtcp.ExceptionIllegalFunction {
		t.Errorf("response = %+v, want illegal-function exception", resp)
	}
}

func TestHandleModbus_OtherUnit_Ignored(t *testing.T) {
	r, _ := newResponder(t)
	if resp := r.HandleModbus(mbtcp.ReadHoldingRequest(1, 5, 0, 1)); resp != nil {
		t.Errorf("request for unit 5 yielded response %+v, want none", resp)
	}
}

func TestParseErrorMode(t *testing.T) {
	if _, err := ParseErrorMode("invalid-value"); err != nil {
		t.Errorf("ParseErrorMode(invalid-value) error: %v", err)
	}
	if m, err := ParseErrorMode(""); err != nil || m != ErrorModeNone {
		t.Errorf("ParseErrorMode(\"\") = %v, %v; want none", m, err)
	}
	if _, err := ParseErrorMode("explode"); err == nil {
		t.Error("ParseErrorMode accepted an unknown mode")
	}
}
