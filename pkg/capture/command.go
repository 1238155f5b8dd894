// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

// EncodeCommand builds the capture request for the given settings:
//
//	0x11, edge, noise canceler, clock division, 0x01
func EncodeCommand(s Settings) []byte {
	var noise byte
	if s.NoiseCanceler {
		noise = 0x01
	}
	return []byte{
		CommandOpcode,
		s.Edge.Code(),
		noise,
		s.ClockDivision.Code(),
		CommandTrailer,
	}
}

// Command returns the capture request for s.
func (s Settings) Command() []byte {
	return EncodeCommand(s)
}
