// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Thermoquad/edgetrace/pkg/capture"
)

// ============================================================
// Trace Rendering Tests
// ============================================================

func TestRenderTrace_BothEdges(t *testing.T) {
	points := capture.BuildWaveform([]uint16{3, 5}, capture.Low, capture.EdgeBoth)

	lines := renderTrace(points, -1, 1, 8)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if want := "_|‾‾|_|‾"; lines[0] != want {
		t.Errorf("signal = %q, want %q", lines[0], want)
	}
}

func TestRenderTrace_PastEndIsBlank(t *testing.T) {
	points := capture.BuildWaveform(nil, capture.High, capture.EdgeRising)
	first, last := capture.Span(points)

	lines := renderTrace(points, first, 1, int(last-first)+5)
	signal := []rune(lines[0])
	for i := int(last-first) + 1; i < len(signal); i++ {
		if signal[i] != ' ' {
			t.Errorf("column %d = %q, want blank past the trailer", i, signal[i])
		}
	}
}

func TestRenderTrace_Ruler(t *testing.T) {
	points := capture.BuildWaveform([]uint16{10}, capture.Low, capture.EdgeBoth)

	lines := renderTrace(points, 0, 2, 25)
	if utf8.RuneCountInString(lines[0]) != 25 || len(lines[1]) != 25 {
		t.Fatalf("line widths = %d/%d, want 25", utf8.RuneCountInString(lines[0]), len(lines[1]))
	}
	for _, c := range []int{0, 10, 20} {
		if lines[1][c] != '+' {
			t.Errorf("ruler[%d] = %q, want '+'", c, lines[1][c])
		}
	}
	if !strings.HasPrefix(lines[2], "0") || !strings.Contains(lines[2], "20") || !strings.Contains(lines[2], "40") {
		t.Errorf("labels = %q, want ticks 0, 20, 40", lines[2])
	}
}

func TestRenderTrace_ZoomedOutShowsEdges(t *testing.T) {
	points := capture.BuildWaveform([]uint16{100, 101}, capture.Low, capture.EdgeBoth)

	// 100 ticks per column folds both edges into one column
	lines := renderTrace(points, 0, 100, 3)
	if got := []rune(lines[0])[1]; got != '|' {
		t.Errorf("column 1 = %q, want edge marker", got)
	}
}

func TestRenderTrace_Degenerate(t *testing.T) {
	lines := renderTrace(nil, 0, 0, 0)
	if len(lines) != 3 || lines[0] != "" {
		t.Errorf("zero width = %q, want empty lines", lines)
	}

	lines = renderTrace(nil, 0, 1, 4)
	if lines[0] != "    " {
		t.Errorf("no points = %q, want blanks", lines[0])
	}
}

func TestFitScale(t *testing.T) {
	points := capture.BuildWaveform([]uint16{3, 5}, capture.Low, capture.EdgeBoth)
	// Span -1..25 is 27 ticks
	tests := []struct {
		width int
		want  int32
	}{
		{27, 1},
		{100, 1},
		{26, 2},
		{9, 3},
		{0, 1},
	}
	for _, tt := range tests {
		if got := fitScale(points, tt.width); got != tt.want {
			t.Errorf("fitScale(width=%d) = %d, want %d", tt.width, got, tt.want)
		}
	}
}
