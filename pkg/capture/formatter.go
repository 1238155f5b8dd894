// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"fmt"
	"strings"
)

// FormatFrame returns a human-readable description of a finalized frame
func FormatFrame(f *RawFrame) string {
	timestamp := f.Completed().Format("15:04:05.000")
	status := "complete"
	if f.Partial() {
		status = "PARTIAL"
	}

	samples := f.Samples()
	result := fmt.Sprintf("[%s] FRAME (%s) initial=%d declared=%d received=%d bytes=%d in %v\n",
		timestamp, status, f.InitialState(), f.DeclaredSamples(), len(samples), len(f.Payload()),
		f.Duration().Round(1e6))

	if len(samples) > 0 {
		result += FormatSamples(samples)
	}
	return result
}

// FormatSamples lists timestamps, 12 per line
func FormatSamples(samples []uint16) string {
	var b strings.Builder
	b.WriteString("  Samples: ")
	for i, s := range samples {
		if i > 0 && i%12 == 0 {
			b.WriteString("\n           ")
		}
		fmt.Fprintf(&b, "%5d ", s)
	}
	b.WriteString("\n")
	return b.String()
}

// FormatPayload returns a hex dump of raw payload bytes
func FormatPayload(payload []byte) string {
	result := "  Payload: "
	for i, b := range payload {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}

// FormatCommand returns the capture command bytes in hex
func FormatCommand(cmd []byte) string {
	parts := make([]string, len(cmd))
	for i, b := range cmd {
		parts[i] = fmt.Sprintf("0x%02X", b)
	}
	return strings.Join(parts, " ")
}

// FormatValidationErrors returns one indented line per issue
func FormatValidationErrors(errors []ValidationError) string {
	var b strings.Builder
	for i, err := range errors {
		fmt.Fprintf(&b, "  Issue %d: %s (%s)\n", i+1, err.Message, err.Type)
	}
	return b.String()
}

// FormatWaveform returns the polyline vertices, one per line
func FormatWaveform(points []Point) string {
	var b strings.Builder
	for _, p := range points {
		fmt.Fprintf(&b, "%d,%d\n", p.Position, p.Level)
	}
	return b.String()
}
