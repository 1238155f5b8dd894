// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import "fmt"

// AnomalyType represents different kinds of frame integrity problems
type AnomalyType int

const (
	AnomalySampleCountMismatch AnomalyType = iota
	AnomalyPartialFrame
	AnomalyOddPayload
	AnomalyInvalidInitialState
	AnomalyNonMonotonic
	AnomalyUnexportable
)

// String implements fmt.Stringer
func (a AnomalyType) String() string {
	switch a {
	case AnomalySampleCountMismatch:
		return "SAMPLE_COUNT_MISMATCH"
	case AnomalyPartialFrame:
		return "PARTIAL_FRAME"
	case AnomalyOddPayload:
		return "ODD_PAYLOAD"
	case AnomalyInvalidInitialState:
		return "INVALID_INITIAL_STATE"
	case AnomalyNonMonotonic:
		return "NON_MONOTONIC"
	case AnomalyUnexportable:
		return "UNEXPORTABLE_SAMPLES"
	default:
		return "UNKNOWN"
	}
}

// ValidationError represents a frame integrity failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks a finalized frame and its decoded samples.
// Returns a slice of validation errors (empty if the frame is sound).
// Reconstruction still runs on frames with issues; the caller decides how
// loudly to report them.
func ValidateFrame(f *RawFrame, samples []uint16) []ValidationError {
	errors := []ValidationError{}

	if f.Partial() {
		errors = append(errors, ValidationError{
			Type:    AnomalyPartialFrame,
			Message: fmt.Sprintf("Frame timed out after %d of %d payload bytes", len(f.Payload()), f.ExpectedPayloadLength()),
			Details: map[string]interface{}{"received": len(f.Payload()), "expected": f.ExpectedPayloadLength()},
		})
	}

	if len(samples) != f.DeclaredSamples() {
		errors = append(errors, ValidationError{
			Type:    AnomalySampleCountMismatch,
			Message: fmt.Sprintf("Decoded %d samples, header declared %d", len(samples), f.DeclaredSamples()),
			Details: map[string]interface{}{"received": len(samples), "expected": f.DeclaredSamples()},
		})
	}

	if len(f.Payload())%BytesPerSample != 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyOddPayload,
			Message: fmt.Sprintf("Payload length %d is odd, last byte dropped", len(f.Payload())),
			Details: map[string]interface{}{"length": len(f.Payload())},
		})
	}

	if f.InitialState() > 1 {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidInitialState,
			Message: fmt.Sprintf("Invalid initial state=%d (expected 0 or 1)", f.InitialState()),
			Details: map[string]interface{}{"value": f.InitialState()},
		})
	}

	for i := 1; i < len(samples); i++ {
		if samples[i] < samples[i-1] {
			errors = append(errors, ValidationError{
				Type:    AnomalyNonMonotonic,
				Message: fmt.Sprintf("Timestamp %d at index %d is earlier than %d", samples[i], i, samples[i-1]),
				Details: map[string]interface{}{"index": i, "value": samples[i], "previous": samples[i-1]},
			})
			break
		}
	}

	if n := unexportable(samples); n > 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyUnexportable,
			Message: fmt.Sprintf("%d samples cannot be placed in the dense export", n),
			Details: map[string]interface{}{"count": n},
		})
	}

	return errors
}

// unexportable counts samples the single-cursor export walk never consumes
func unexportable(samples []uint16) int {
	ind := 0
	max := MaxSample(samples)
	for x := 2; x < max+2 && ind < len(samples); x++ {
		if x == int(samples[ind]) {
			ind++
		}
	}
	return len(samples) - ind
}
