// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import "time"

// RawFrame is one capture response as received from the analyzer
type RawFrame struct {
	initialState    byte
	declaredSamples int
	payload         []byte
	started         time.Time
	completed       time.Time
	partial         bool
	finalized       bool
}

// NewRawFrame creates a finalized frame from already collected fields.
// Used when replaying stored captures.
func NewRawFrame(initialState byte, declaredSamples int, payload []byte, partial bool) *RawFrame {
	now := time.Now()
	return &RawFrame{
		initialState:    initialState,
		declaredSamples: declaredSamples,
		payload:         payload,
		started:         now,
		completed:       now,
		partial:         partial,
		finalized:       true,
	}
}

// finalize freezes the frame. Returns false if it was already frozen.
func (f *RawFrame) finalize(partial bool) bool {
	if f.finalized {
		return false
	}
	f.finalized = true
	f.partial = partial
	f.completed = time.Now()
	return true
}

// InitialState returns the raw initial-state header byte (0 or 1 on a
// healthy link)
func (f *RawFrame) InitialState() byte {
	return f.initialState
}

// InitialLevel returns the initial state as a signal level
func (f *RawFrame) InitialLevel() Level {
	return Level(f.initialState)
}

// DeclaredSamples returns the sample count announced in the header
func (f *RawFrame) DeclaredSamples() int {
	return f.declaredSamples
}

// ExpectedPayloadLength returns the payload length implied by the header
func (f *RawFrame) ExpectedPayloadLength() int {
	return f.declaredSamples * BytesPerSample
}

// Payload returns the received payload bytes
func (f *RawFrame) Payload() []byte {
	return f.payload
}

// Samples decodes the payload into timestamps
func (f *RawFrame) Samples() []uint16 {
	return DecodeSamples(f.payload)
}

// Partial returns true if the frame was closed by the quiet timer before
// the declared payload arrived
func (f *RawFrame) Partial() bool {
	return f.partial
}

// Finalized returns true once the frame can no longer change
func (f *RawFrame) Finalized() bool {
	return f.finalized
}

// Started returns the time the start marker was seen
func (f *RawFrame) Started() time.Time {
	return f.started
}

// Completed returns the time the frame was finalized
func (f *RawFrame) Completed() time.Time {
	return f.completed
}

// Duration returns how long the frame took to arrive
func (f *RawFrame) Duration() time.Duration {
	if !f.finalized {
		return time.Since(f.started)
	}
	return f.completed.Sub(f.started)
}
