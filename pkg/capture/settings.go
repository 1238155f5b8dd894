// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

var (
	_ pflag.Value = (*TriggerEdge)(nil)
	_ pflag.Value = (*ClockDivision)(nil)
)

// TriggerEdge selects which transitions the analyzer records and how the
// recorded timestamps are turned back into a signal.
type TriggerEdge int

// Trigger edge values
const (
	EdgeRising TriggerEdge = iota
	EdgeFalling
	EdgeBoth
)

// TriggerEdges lists the edges in menu order.
var TriggerEdges = []TriggerEdge{EdgeRising, EdgeFalling, EdgeBoth}

// String implements fmt.Stringer and pflag.Value
func (e TriggerEdge) String() string {
	switch e {
	case EdgeRising:
		return "Rising"
	case EdgeFalling:
		return "Falling"
	case EdgeBoth:
		return "Both"
	default:
		return fmt.Sprintf("TriggerEdge(%d)", int(e))
	}
}

// Set implements pflag.Value
func (e *TriggerEdge) Set(s string) error {
	v, err := ParseTriggerEdge(s)
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Type implements pflag.Value
func (e *TriggerEdge) Type() string {
	return "edge"
}

// Code returns the command byte for the edge.
func (e TriggerEdge) Code() byte {
	switch e {
	case EdgeFalling:
		return 0x00
	case EdgeRising:
		return 0x01
	default:
		return 0x02
	}
}

// Next returns the edge following e in menu order.
func (e TriggerEdge) Next() TriggerEdge {
	return TriggerEdges[(int(e)+1)%len(TriggerEdges)]
}

// ParseTriggerEdge parses an edge name (case-insensitive)
func ParseTriggerEdge(s string) (TriggerEdge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rising", "r":
		return EdgeRising, nil
	case "falling", "f":
		return EdgeFalling, nil
	case "both", "b":
		return EdgeBoth, nil
	}
	return EdgeRising, fmt.Errorf("invalid trigger edge %q (use rising, falling or both)", s)
}

// ClockDivision is the device-side sampling clock prescaler. It only
// affects capture timing on the device, never reconstruction.
type ClockDivision int

// Clock division values
const (
	ClockDiv8    ClockDivision = 8
	ClockDiv64   ClockDivision = 64
	ClockDiv256  ClockDivision = 256
	ClockDiv1024 ClockDivision = 1024
)

// ClockDivisions lists the supported prescalers in menu order.
var ClockDivisions = []ClockDivision{ClockDiv8, ClockDiv64, ClockDiv256, ClockDiv1024}

// String implements fmt.Stringer and pflag.Value
func (c ClockDivision) String() string {
	return strconv.Itoa(int(c))
}

// Set implements pflag.Value
func (c *ClockDivision) Set(s string) error {
	v, err := ParseClockDivision(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Type implements pflag.Value
func (c *ClockDivision) Type() string {
	return "division"
}

// Code returns the command byte for the division. Unsupported values
// encode as 0x00, which the device rejects.
func (c ClockDivision) Code() byte {
	switch c {
	case ClockDiv8:
		return 0x01
	case ClockDiv64:
		return 0x02
	case ClockDiv256:
		return 0x03
	case ClockDiv1024:
		return 0x04
	default:
		return 0x00
	}
}

// Next returns the division following c in menu order.
func (c ClockDivision) Next() ClockDivision {
	for i, v := range ClockDivisions {
		if v == c {
			return ClockDivisions[(i+1)%len(ClockDivisions)]
		}
	}
	return ClockDiv8
}

// ParseClockDivision parses one of 8, 64, 256 or 1024
func ParseClockDivision(s string) (ClockDivision, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return ClockDiv8, fmt.Errorf("invalid clock division %q: %w", s, err)
	}
	for _, v := range ClockDivisions {
		if int(v) == n {
			return v, nil
		}
	}
	return ClockDiv8, fmt.Errorf("unsupported clock division %d (use 8, 64, 256 or 1024)", n)
}

// Settings is the capture configuration. It is a value type; a session
// keeps its own copy from the moment a capture is armed.
type Settings struct {
	Edge          TriggerEdge
	ClockDivision ClockDivision
	NoiseCanceler bool
}

// DefaultSettings returns the power-on configuration of the analyzer
func DefaultSettings() Settings {
	return Settings{
		Edge:          EdgeRising,
		ClockDivision: ClockDiv8,
		NoiseCanceler: false,
	}
}

// String returns a one-line description of the settings
func (s Settings) String() string {
	noise := "off"
	if s.NoiseCanceler {
		noise = "on"
	}
	return fmt.Sprintf("edge=%s clock=/%d noise=%s", s.Edge, int(s.ClockDivision), noise)
}
