// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

// Level is a logic level. The analyzer reports 0 or 1; other header values
// are carried through unchanged and folded by Flip.
type Level uint8

// Logic levels
const (
	Low  Level = 0
	High Level = 1
)

// Flip returns the opposite level
func (l Level) Flip() Level {
	return (l + 1) % 2
}

// Point is a vertex of the reconstructed waveform polyline. Two
// consecutive points with the same position and different levels form a
// vertical edge.
type Point struct {
	Position int32
	Level    Level
}

// BuildWaveform reconstructs the signal polyline from transition
// timestamps.
//
// The trace starts with a lead-in at -1 and 0 holding the initial level
// and an edge at 0. In EdgeBoth mode every timestamp toggles the level. In
// single-edge modes every timestamp closes a one-tick pulse of the opposite
// level, drawn from the level established after the lead-in; the running
// level is not advanced by those pulses. The trace ends TrailerOffset ticks
// after the largest timestamp (an empty capture counts as -1).
func BuildWaveform(samples []uint16, initial Level, edge TriggerEdge) []Point {
	points := make([]Point, 0, 4+len(samples)*4)

	state := initial
	points = append(points, Point{-1, state}, Point{0, state})
	state = state.Flip()
	points = append(points, Point{0, state})

	for _, s := range samples {
		t := int32(s)
		if edge == EdgeBoth {
			points = append(points, Point{t, state}, Point{t, state.Flip()})
			state = state.Flip()
			continue
		}
		points = append(points,
			Point{t - 1, state},
			Point{t - 1, state.Flip()},
			Point{t, state.Flip()},
			Point{t, state},
		)
	}

	points = append(points, Point{int32(MaxSample(samples) + TrailerOffset), state})
	return points
}

// LevelAt returns the level of the polyline at tick x: the level of the
// last vertex at or before x. Ticks before the first vertex take the first
// vertex's level.
func LevelAt(points []Point, x int32) Level {
	if len(points) == 0 {
		return Low
	}
	level := points[0].Level
	for _, p := range points {
		if p.Position > x {
			break
		}
		level = p.Level
	}
	return level
}

// EdgesBetween counts level changes between consecutive vertices whose
// position lies in [from, to]
func EdgesBetween(points []Point, from, to int32) int {
	edges := 0
	for i := 1; i < len(points); i++ {
		p := points[i]
		if p.Position < from || p.Position > to {
			continue
		}
		if p.Level != points[i-1].Level {
			edges++
		}
	}
	return edges
}

// Span returns the first and last positions of the polyline
func Span(points []Point) (int32, int32) {
	if len(points) == 0 {
		return 0, 0
	}
	first, last := points[0].Position, points[0].Position
	for _, p := range points {
		if p.Position < first {
			first = p.Position
		}
		if p.Position > last {
			last = p.Position
		}
	}
	return first, last
}
