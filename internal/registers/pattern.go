// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

// Channel test pattern layout. Each simulated power channel occupies three
// consecutive registers starting at ChannelBase: measured current (mA),
// measured voltage (mV) and channel state.
const (
	ChannelBase  = 0x001A
	ChannelCount = 10
	channelRegs  = 3
)

// Channel states.
const (
	ChannelOff         = 0
	ChannelOn          = 1
	ChannelFault       = 2
	ChannelOvercurrent = 3
)

// LoadChannelPattern fills the store with the channel test pattern: currents
// rising from 1000 mA, voltages from 12000 mV, the first five channels on.
func LoadChannelPattern(s *Store) error {
	values := make([]uint16, ChannelCount*channelRegs)
	for ch := 0; ch < ChannelCount; ch++ {
		state := uint16(ChannelOff)
		if ch < 5 {
			state = ChannelOn
		}
		values[ch*channelRegs] = uint16(1000 + ch*100)
		values[ch*channelRegs+1] = uint16(12000 + ch*100)
		values[ch*channelRegs+2] = state
	}
	return s.WriteRange(ChannelBase, values)
}
