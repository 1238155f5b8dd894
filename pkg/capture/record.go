// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// RecordVersion is the current capture record format version
const RecordVersion = 1

// Record is a stored capture: the settings it was taken with and the raw
// frame as received. Reconstruction is re-run on load, so records stay
// valid across changes to the reconstruction code.
type Record struct {
	Version         uint      `cbor:"0,keyasint"`
	CapturedAt      time.Time `cbor:"1,keyasint"`
	Source          string    `cbor:"2,keyasint,omitempty"`
	Edge            uint8     `cbor:"3,keyasint"`
	ClockDivision   uint16    `cbor:"4,keyasint"`
	NoiseCanceler   bool      `cbor:"5,keyasint"`
	InitialState    uint8     `cbor:"6,keyasint"`
	DeclaredSamples int64     `cbor:"7,keyasint"`
	Payload         []byte    `cbor:"8,keyasint"`
	Partial         bool      `cbor:"9,keyasint"`
}

// NewRecord creates a record from a finalized frame
func NewRecord(source string, settings Settings, f *RawFrame) *Record {
	return &Record{
		Version:         RecordVersion,
		CapturedAt:      f.Completed(),
		Source:          source,
		Edge:            uint8(settings.Edge),
		ClockDivision:   uint16(settings.ClockDivision),
		NoiseCanceler:   settings.NoiseCanceler,
		InitialState:    f.InitialState(),
		DeclaredSamples: int64(f.DeclaredSamples()),
		Payload:         f.Payload(),
		Partial:         f.Partial(),
	}
}

// Settings returns the capture settings stored in the record
func (r *Record) Settings() Settings {
	return Settings{
		Edge:          TriggerEdge(r.Edge),
		ClockDivision: ClockDivision(r.ClockDivision),
		NoiseCanceler: r.NoiseCanceler,
	}
}

// Frame rebuilds the raw frame stored in the record
func (r *Record) Frame() *RawFrame {
	f := NewRawFrame(r.InitialState, int(r.DeclaredSamples), r.Payload, r.Partial)
	f.started = r.CapturedAt
	f.completed = r.CapturedAt
	return f
}

// WriteRecord encodes a record as CBOR
func WriteRecord(w io.Writer, r *Record) error {
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return fmt.Errorf("failed to create CBOR encoder: %w", err)
	}
	if err := enc.NewEncoder(w).Encode(r); err != nil {
		return fmt.Errorf("failed to encode capture record: %w", err)
	}
	return nil
}

// ReadRecord decodes a CBOR capture record
func ReadRecord(rd io.Reader) (*Record, error) {
	var r Record
	if err := cbor.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode capture record: %w", err)
	}
	if r.Version == 0 || r.Version > RecordVersion {
		return nil, fmt.Errorf("unsupported capture record version %d", r.Version)
	}
	if TriggerEdge(r.Edge) > EdgeBoth {
		return nil, fmt.Errorf("invalid trigger edge %d in capture record", r.Edge)
	}
	return &r, nil
}

// SaveRecord writes a record to a file
func SaveRecord(path string, r *Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteRecord(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadRecord reads a record from a file
func LoadRecord(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadRecord(f)
}
