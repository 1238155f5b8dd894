// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/edgetrace/pkg/capture"
)

const (
	traceHigh  = '‾'
	traceLow   = '_'
	traceEdge  = '|'
	traceBlank = ' '

	// Ruler tick every N columns
	rulerStep = 10
)

// renderTrace draws width columns of the waveform starting at tick offset,
// scale ticks per column. It returns the signal line, a ruler and the tick
// labels under the ruler.
func renderTrace(points []capture.Point, offset, scale int32, width int) []string {
	if scale < 1 {
		scale = 1
	}
	if width < 1 {
		return []string{"", "", ""}
	}

	first, last := capture.Span(points)
	signal := make([]rune, width)
	ruler := make([]rune, width)
	labels := make([]rune, width)

	for c := 0; c < width; c++ {
		from := offset + int32(c)*scale
		to := from + scale - 1

		switch {
		case len(points) == 0 || to < first || from > last:
			signal[c] = traceBlank
		case capture.EdgesBetween(points, from, to) > 0:
			signal[c] = traceEdge
		case capture.LevelAt(points, from) == capture.High:
			signal[c] = traceHigh
		default:
			signal[c] = traceLow
		}

		ruler[c] = '-'
		labels[c] = ' '
	}

	for c := 0; c < width; c += rulerStep {
		ruler[c] = '+'
		label := fmt.Sprintf("%d", offset+int32(c)*scale)
		for i, r := range label {
			if c+i < width {
				labels[c+i] = r
			}
		}
	}

	return []string{string(signal), string(ruler), strings.TrimRight(string(labels), " ")}
}

// fitScale returns the smallest ticks-per-column that fits the whole
// waveform into width columns
func fitScale(points []capture.Point, width int) int32 {
	if width < 1 || len(points) == 0 {
		return 1
	}
	first, last := capture.Span(points)
	span := last - first + 1
	scale := (span + int32(width) - 1) / int32(width)
	if scale < 1 {
		scale = 1
	}
	return scale
}
