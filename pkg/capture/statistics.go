// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"fmt"
	"time"
)

// Statistics tracks frame counts and integrity problems
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames      uint64
	CompleteFrames   uint64
	PartialFrames    uint64
	EmptyFrames      uint64
	TotalSamples     uint64
	CountMismatches  uint64
	NonMonotonic     uint64
	InvalidStates    uint64
	OddPayloads      uint64
	Unexportable     uint64
	SkippedBytes     uint64
	ResponseTimeouts uint64
	TransportErrors  uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records a finalized frame and its validation result
func (s *Statistics) Update(frame *RawFrame, samples []uint16, validationErrors []ValidationError) {
	s.TotalFrames++
	s.TotalSamples += uint64(len(samples))

	if frame.Partial() {
		s.PartialFrames++
	} else {
		s.CompleteFrames++
	}
	if len(frame.Payload()) == 0 {
		s.EmptyFrames++
	}

	for _, err := range validationErrors {
		switch err.Type {
		case AnomalySampleCountMismatch:
			s.CountMismatches++
		case AnomalyNonMonotonic:
			s.NonMonotonic++
		case AnomalyInvalidInitialState:
			s.InvalidStates++
		case AnomalyOddPayload:
			s.OddPayloads++
		case AnomalyUnexportable:
			s.Unexportable++
		}
	}

	s.LastUpdateTime = time.Now()
}

// AddSkipped records bytes discarded while waiting for a start marker
func (s *Statistics) AddSkipped(n int) {
	s.SkippedBytes += uint64(n)
}

// AddResponseTimeout records a capture the analyzer never answered
func (s *Statistics) AddResponseTimeout() {
	s.ResponseTimeouts++
	s.LastUpdateTime = time.Now()
}

// AddTransportError records a transport failure
func (s *Statistics) AddTransportError() {
	s.TransportErrors++
	s.LastUpdateTime = time.Now()
}

// ErrorCount returns the number of recorded problems of all kinds
func (s *Statistics) ErrorCount() uint64 {
	return s.PartialFrames + s.CountMismatches + s.NonMonotonic + s.InvalidStates +
		s.OddPayloads + s.ResponseTimeouts + s.TransportErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.ErrorCount()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var completePercent, partialPercent float64
	if s.TotalFrames > 0 {
		completePercent = float64(s.CompleteFrames) * 100.0 / float64(s.TotalFrames)
		partialPercent = float64(s.PartialFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Complete Frames: %8d (%.1f%%)\n", s.CompleteFrames, completePercent)

	if s.PartialFrames > 0 {
		result += fmt.Sprintf("Partial Frames:  %8d (%.1f%%)\n", s.PartialFrames, partialPercent)
	}
	if s.EmptyFrames > 0 {
		result += fmt.Sprintf("Empty Frames:    %8d\n", s.EmptyFrames)
	}
	result += fmt.Sprintf("Samples:         %8d\n", s.TotalSamples)
	if s.CountMismatches > 0 {
		result += fmt.Sprintf("Count Mismatch:  %8d\n", s.CountMismatches)
	}
	if s.NonMonotonic > 0 {
		result += fmt.Sprintf("Non-monotonic:   %8d\n", s.NonMonotonic)
	}
	if s.InvalidStates > 0 {
		result += fmt.Sprintf("Invalid State:   %8d\n", s.InvalidStates)
	}
	if s.OddPayloads > 0 {
		result += fmt.Sprintf("Odd Payloads:    %8d\n", s.OddPayloads)
	}
	if s.Unexportable > 0 {
		result += fmt.Sprintf("Unexportable:    %8d\n", s.Unexportable)
	}
	if s.SkippedBytes > 0 {
		result += fmt.Sprintf("Skipped Bytes:   %8d\n", s.SkippedBytes)
	}
	if s.ResponseTimeouts > 0 {
		result += fmt.Sprintf("Resp. Timeouts:  %8d\n", s.ResponseTimeouts)
	}
	if s.TransportErrors > 0 {
		result += fmt.Sprintf("Transport Errs:  %8d\n", s.TransportErrors)
	}

	result += fmt.Sprintf("Frame Rate:      %8.2f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.2f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
