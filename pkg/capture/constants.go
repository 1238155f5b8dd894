// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture implements the wire protocol of the single-channel
// edgetrace logic analyzer and the reconstruction of captured signals.
//
// The device answers a capture command with one frame: a start marker, a
// three byte header (initial logic level, sample count) and a payload of
// little-endian 16-bit transition timestamps. The frame carries no end
// marker or length-independent terminator; it ends either when the declared
// payload length has arrived or when the line has been quiet for a while.
package capture

import "time"

// Protocol framing bytes
const (
	StartMarker    = 0x12
	CommandOpcode  = 0x11
	CommandTrailer = 0x01
)

// Frame layout
const (
	HeaderSize     = 3 // initial state, count low, count high
	BytesPerSample = 2
	CommandSize    = 5
)

// Protocol timing
const (
	DefaultQuietInterval   = 2000 * time.Millisecond
	DefaultResponseTimeout = 20000 * time.Millisecond
)

// TrailerOffset is how far past the last timestamp the reconstructed
// waveform is extended.
const TrailerOffset = 20

// ExportColumn is the column name of the dense export table.
const ExportColumn = "ch1"

// Decoder states (internal)
const (
	stateIdle = iota
	stateHeader
	statePayload
)
