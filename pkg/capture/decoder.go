// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import "time"

// FrameEventKind identifies what a decoder step produced
type FrameEventKind int

// Frame event kinds
const (
	FrameNone FrameEventKind = iota
	FrameStarted
	FrameComplete
)

// String implements fmt.Stringer
func (k FrameEventKind) String() string {
	switch k {
	case FrameNone:
		return "NONE"
	case FrameStarted:
		return "FRAME_STARTED"
	case FrameComplete:
		return "FRAME_COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent is the result of feeding a byte or expiring the quiet timer.
// Frame is set for FrameStarted (header fields only) and FrameComplete
// (finalized frame).
type FrameEvent struct {
	Kind  FrameEventKind
	Frame *RawFrame
}

// DecoderOption configures a FrameDecoder
type DecoderOption func(*FrameDecoder)

// WithQuietInterval sets how long the line must stay silent before an
// in-progress frame is closed
func WithQuietInterval(d time.Duration) DecoderOption {
	return func(fd *FrameDecoder) {
		if d > 0 {
			fd.quietInterval = d
		}
	}
}

// WithLegacySampleCount makes the decoder combine the count bytes the way
// the first host application did: count_hi << (8 + count_lo), evaluated as
// a 32-bit signed shift. The declared count is then usually meaningless and
// frames end on the quiet timer.
func WithLegacySampleCount() DecoderOption {
	return func(fd *FrameDecoder) {
		fd.legacyCount = true
	}
}

// FrameDecoder implements the frame receiver state machine. It is not safe
// for concurrent use; the owner must serialize Feed and Expire.
type FrameDecoder struct {
	state         int
	header        [HeaderSize]byte
	headerIndex   int
	frame         *RawFrame
	skipped       int // Bytes discarded while scanning for a start marker
	quietInterval time.Duration
	timer         *time.Timer
	armed         bool
	legacyCount   bool
}

// NewFrameDecoder creates a new frame decoder
func NewFrameDecoder(opts ...DecoderOption) *FrameDecoder {
	d := &FrameDecoder{
		state:         stateIdle,
		quietInterval: DefaultQuietInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reset drops any in-progress frame and stops the quiet timer
func (d *FrameDecoder) Reset() {
	d.disarm()
	d.state = stateIdle
	d.headerIndex = 0
	d.frame = nil
}

// Stop releases the quiet timer. The decoder may be reused afterwards.
func (d *FrameDecoder) Stop() {
	d.Reset()
}

// InProgress returns true between a start marker and frame completion
func (d *FrameDecoder) InProgress() bool {
	return d.state != stateIdle
}

// Received returns the payload bytes collected for the frame in progress
func (d *FrameDecoder) Received() int {
	if d.frame == nil {
		return 0
	}
	return len(d.frame.payload)
}

// Skipped returns the number of bytes discarded outside of frames
func (d *FrameDecoder) Skipped() int {
	return d.skipped
}

// QuietInterval returns the configured inactivity timeout
func (d *FrameDecoder) QuietInterval() time.Duration {
	return d.quietInterval
}

// Timeout returns the quiet timer channel, or nil when no frame is in
// progress. A nil channel blocks forever in a select.
func (d *FrameDecoder) Timeout() <-chan time.Time {
	if !d.armed {
		return nil
	}
	return d.timer.C
}

func (d *FrameDecoder) arm() {
	if d.timer == nil {
		d.timer = time.NewTimer(d.quietInterval)
	} else {
		d.timer.Reset(d.quietInterval)
	}
	d.armed = true
}

func (d *FrameDecoder) disarm() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.armed = false
}

// Feed processes a single byte through the decoder state machine
func (d *FrameDecoder) Feed(b byte) FrameEvent {
	switch d.state {
	case stateIdle:
		if b != StartMarker {
			d.skipped++
			return FrameEvent{}
		}
		d.frame = &RawFrame{started: time.Now()}
		d.headerIndex = 0
		d.state = stateHeader
		d.arm()
		return FrameEvent{}

	case stateHeader:
		d.arm()
		d.header[d.headerIndex] = b
		d.headerIndex++
		if d.headerIndex < HeaderSize {
			return FrameEvent{}
		}
		d.frame.initialState = d.header[0]
		d.frame.declaredSamples = d.combineCount(d.header[1], d.header[2])
		if expected := d.frame.ExpectedPayloadLength(); expected > 0 {
			d.frame.payload = make([]byte, 0, min(expected, 1<<16))
		}
		started := FrameEvent{Kind: FrameStarted, Frame: d.frame}
		if d.frame.declaredSamples == 0 {
			// Nothing to wait for
			return d.complete(false)
		}
		d.state = statePayload
		return started

	case statePayload:
		d.arm()
		d.frame.payload = append(d.frame.payload, b)
		if len(d.frame.payload) == d.frame.ExpectedPayloadLength() {
			return d.complete(false)
		}
		return FrameEvent{}

	default:
		d.Reset()
		return FrameEvent{}
	}
}

// Expire closes the in-progress frame with whatever payload has arrived.
// Call it when the Timeout channel fires. A frame whose header never
// completed is dropped.
func (d *FrameDecoder) Expire() FrameEvent {
	d.armed = false
	switch d.state {
	case statePayload:
		return d.complete(len(d.frame.payload) != d.frame.ExpectedPayloadLength())
	case stateHeader:
		d.Reset()
	}
	return FrameEvent{}
}

func (d *FrameDecoder) complete(partial bool) FrameEvent {
	frame := d.frame
	d.Reset()
	if frame == nil || !frame.finalize(partial) {
		return FrameEvent{}
	}
	return FrameEvent{Kind: FrameComplete, Frame: frame}
}

func (d *FrameDecoder) combineCount(lo, hi byte) int {
	if d.legacyCount {
		return LegacySampleCount(lo, hi)
	}
	return SampleCount(lo, hi)
}

// SampleCount combines the header count bytes: (hi << 8) + lo
func SampleCount(lo, hi byte) int {
	return int(hi)<<8 + int(lo)
}

// LegacySampleCount evaluates hi << (8 + lo) with 32-bit signed shift
// semantics (shift count taken mod 32).
func LegacySampleCount(lo, hi byte) int {
	shift := (8 + uint32(lo)) & 31
	return int(int32(uint32(hi) << shift))
}
