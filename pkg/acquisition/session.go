// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acquisition

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/edgetrace/pkg/capture"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// State is the acquisition session state
type State int

// Session states
const (
	StateIdle State = iota
	StateArming
	StateWaitingForResponse
	StateReceiving
	StateSucceeded
	StateTimedOut
	StateFailed
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateArming:
		return "ARMING"
	case StateWaitingForResponse:
		return "WAITING_FOR_RESPONSE"
	case StateReceiving:
		return "RECEIVING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateTimedOut:
		return "TIMED_OUT"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Active returns true while a capture is in flight
func (s State) Active() bool {
	return s == StateArming || s == StateWaitingForResponse || s == StateReceiving
}

// Capture is a reconstructed frame
type Capture struct {
	Settings  capture.Settings
	Port      string
	Frame     *capture.RawFrame
	Samples   []uint16
	Waveform  []capture.Point
	Issues    []capture.ValidationError
	Solicited bool // Answer to a command sent by this session
}

// Rows expands the capture into the dense export table
func (c *Capture) Rows() []capture.Row {
	return capture.EncodeRows(c.Samples, c.Frame.InitialLevel(), c.Settings.Edge)
}

// Record returns the capture as a storable record
func (c *Capture) Record() *capture.Record {
	return capture.NewRecord(c.Port, c.Settings, c.Frame)
}

// Reconstruct decodes and reconstructs a finalized frame
func Reconstruct(frame *capture.RawFrame, settings capture.Settings) *Capture {
	samples := frame.Samples()
	return &Capture{
		Settings: settings,
		Frame:    frame,
		Samples:  samples,
		Waveform: capture.BuildWaveform(samples, frame.InitialLevel(), settings.Edge),
		Issues:   capture.ValidateFrame(frame, samples),
	}
}

// Result is published for every finished frame and every failed capture
type Result struct {
	Capture *Capture // nil on failure
	Err     error
}

// Status is a snapshot of the session for renderers
type Status struct {
	State     State
	Outcome   State // Last terminal state (Succeeded, TimedOut, Failed) or Idle
	Port      string
	Open      bool
	Ports     []string
	Settings  capture.Settings // Settings of the current or last capture
	Receiving int              // Payload bytes of the frame in progress
	Last      *Capture
	LastErr   error
	Stats     capture.Statistics
}

// Options configures a Session
type Options struct {
	// Settings used for frames that arrive without a pending capture
	Settings capture.Settings

	QuietInterval     time.Duration
	ResponseTimeout   time.Duration
	LegacySampleCount bool

	Logger zerolog.Logger
}

// DefaultOptions returns the protocol defaults
func DefaultOptions() Options {
	return Options{
		Settings:        capture.DefaultSettings(),
		QuietInterval:   capture.DefaultQuietInterval,
		ResponseTimeout: capture.DefaultResponseTimeout,
		Logger:          zerolog.Nop(),
	}
}

type startRequest struct {
	settings capture.Settings
	reply    chan bool
}

// Session runs one analyzer link. All capture state is owned by the Run
// goroutine; other goroutines interact through Post, Start, Results and
// Status.
type Session struct {
	opts    Options
	log     zerolog.Logger
	events  chan Event
	results chan Result
	done    chan struct{}

	// Owned by Run
	decoder      *capture.FrameDecoder
	conn         io.Writer
	port         string
	state        State
	settings     capture.Settings
	responseTime *time.Timer
	responseOn   bool
	skipped      int

	mu     sync.RWMutex
	status Status
	stats  *capture.Statistics
}

// NewSession creates a session. Call Run to start processing.
func NewSession(opts Options) *Session {
	if opts.QuietInterval <= 0 {
		opts.QuietInterval = capture.DefaultQuietInterval
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = capture.DefaultResponseTimeout
	}
	if opts.Settings.ClockDivision == 0 {
		opts.Settings = capture.DefaultSettings()
	}

	decoderOpts := []capture.DecoderOption{capture.WithQuietInterval(opts.QuietInterval)}
	if opts.LegacySampleCount {
		decoderOpts = append(decoderOpts, capture.WithLegacySampleCount())
	}

	s := &Session{
		opts:     opts,
		log:      opts.Logger.With().Str("component", "acquisition").Logger(),
		events:   make(chan Event, 64),
		results:  make(chan Result, 16),
		done:     make(chan struct{}),
		decoder:  capture.NewFrameDecoder(decoderOpts...),
		state:    StateIdle,
		settings: opts.Settings,
		stats:    capture.NewStatistics(),
	}
	s.status.Settings = opts.Settings
	return s
}

// Events returns the channel transports post events on
func (s *Session) Events() chan<- Event {
	return s.events
}

// Post delivers a transport event, blocking until the session accepts it
func (s *Session) Post(ctx context.Context, ev Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the channel finished captures are published on. Results
// are dropped if nobody drains the channel.
func (s *Session) Results() <-chan Result {
	return s.results
}

// Done is closed when Run returns
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start requests a capture with the given settings. It returns true if the
// command was sent. A request while a capture is in flight, or while no
// transport is open, is ignored and returns false. Start is ordered with
// transport events posted before it.
func (s *Session) Start(ctx context.Context, settings capture.Settings) (bool, error) {
	req := &startRequest{settings: settings, reply: make(chan bool, 1)}
	if err := s.Post(ctx, Event{start: req}); err != nil {
		return false, err
	}
	select {
	case ok := <-req.reply:
		return ok, nil
	case <-s.done:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Status returns a snapshot of the session
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.Ports = append([]string(nil), s.status.Ports...)
	st.Stats = *s.stats
	return st
}

// Run processes events until ctx is cancelled or the event channel is
// closed
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.decoder.Stop()
	defer s.stopResponseTimer()

	s.log.Debug().
		Dur("quiet_interval", s.opts.QuietInterval).
		Dur("response_timeout", s.opts.ResponseTimeout).
		Bool("legacy_count", s.opts.LegacySampleCount).
		Msg("session started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-s.events:
			if !ok {
				return nil
			}
			if ev.start != nil {
				ev.start.reply <- s.handleStart(ev.start.settings)
				continue
			}
			s.handleEvent(ev)

		case <-s.decoder.Timeout():
			s.log.Debug().Msg("quiet interval elapsed")
			s.handleFrameEvent(s.decoder.Expire())

		case <-s.responseTimeout():
			s.responseOn = false
			s.handleResponseTimeout()
		}
	}
}

func (s *Session) handleEvent(ev Event) {
	switch ev.Kind {
	case EventListed:
		s.log.Debug().Strs("ports", ev.Ports).Msg("ports listed")
		s.mu.Lock()
		s.status.Ports = append([]string(nil), ev.Ports...)
		s.mu.Unlock()

	case EventOpened:
		s.conn = ev.Conn
		s.port = ev.Port
		s.log.Info().Str("port", ev.Port).Msg("transport opened")
		s.mu.Lock()
		s.status.Port = ev.Port
		s.status.Open = ev.Conn != nil
		s.mu.Unlock()

	case EventClosed:
		s.log.Info().Str("port", s.port).Err(ev.Err).Msg("transport closed")
		s.conn = nil
		s.decoder.Reset()
		s.mu.Lock()
		s.status.Open = false
		s.status.Receiving = 0
		s.mu.Unlock()
		if s.state.Active() {
			s.fail(newTransportError(ErrTransportClosed, ev.Err))
		}

	case EventError:
		err := newTransportError(ErrTransportFault, ev.Err)
		s.log.Warn().Err(ev.Err).Str("port", s.port).Msg("transport error")
		s.mu.Lock()
		s.status.LastErr = err
		s.stats.AddTransportError()
		s.mu.Unlock()
		s.publish(Result{Err: err})

	case EventData:
		for _, b := range ev.Data {
			s.handleFrameEvent(s.decoder.Feed(b))
		}
		s.mu.Lock()
		s.status.Receiving = s.decoder.Received()
		s.mu.Unlock()
		if n := s.decoder.Skipped(); n != s.skipped {
			s.mu.Lock()
			s.stats.AddSkipped(n - s.skipped)
			s.mu.Unlock()
			s.skipped = n
		}
	}
}

func (s *Session) handleStart(settings capture.Settings) bool {
	if s.state != StateIdle {
		s.log.Debug().Str("state", s.state.String()).Msg("capture already in progress, start ignored")
		return false
	}
	if s.conn == nil {
		s.log.Warn().Msg("no transport open, start ignored")
		return false
	}

	s.settings = settings
	s.setState(StateArming)
	s.mu.Lock()
	s.status.Settings = settings
	s.mu.Unlock()

	cmd := capture.EncodeCommand(settings)
	s.log.Info().
		Str("settings", settings.String()).
		Str("command", capture.FormatCommand(cmd)).
		Msg("sending capture command")

	if _, err := s.conn.Write(cmd); err != nil {
		s.fail(newTransportError(ErrTransportFault, errors.Wrap(err, "send capture command")))
		return false
	}

	s.armResponseTimer()
	s.setState(StateWaitingForResponse)
	return true
}

func (s *Session) handleFrameEvent(ev capture.FrameEvent) {
	switch ev.Kind {
	case capture.FrameStarted:
		s.log.Info().
			Uint8("initial_state", ev.Frame.InitialState()).
			Int("declared_samples", ev.Frame.DeclaredSamples()).
			Msg("frame started")
		if s.state == StateWaitingForResponse {
			s.stopResponseTimer()
			s.setState(StateReceiving)
		}

	case capture.FrameComplete:
		s.completeFrame(ev.Frame)
	}
}

func (s *Session) completeFrame(frame *capture.RawFrame) {
	solicited := s.state == StateWaitingForResponse || s.state == StateReceiving

	c := Reconstruct(frame, s.settings)
	c.Port = s.port
	c.Solicited = solicited

	ev := s.log.Info()
	if frame.Partial() {
		ev = s.log.Warn()
	}
	ev.Bool("partial", frame.Partial()).
		Int("declared_samples", frame.DeclaredSamples()).
		Int("samples", len(c.Samples)).
		Bool("solicited", solicited).
		Dur("duration", frame.Duration()).
		Msg("frame complete")
	for _, issue := range c.Issues {
		s.log.Warn().Str("anomaly", issue.Type.String()).Msg(issue.Message)
	}

	s.mu.Lock()
	s.stats.Update(frame, c.Samples, c.Issues)
	s.status.Last = c
	s.status.Receiving = 0
	if solicited {
		s.status.LastErr = nil
	}
	s.mu.Unlock()

	if solicited {
		s.stopResponseTimer()
		s.setState(StateSucceeded)
		s.setState(StateIdle)
	}
	s.publish(Result{Capture: c})
}

func (s *Session) handleResponseTimeout() {
	if !s.state.Active() {
		return
	}
	s.log.Warn().Dur("timeout", s.opts.ResponseTimeout).Msg("communication timed out")
	s.mu.Lock()
	s.stats.AddResponseTimeout()
	s.status.LastErr = ErrResponseTimeout
	s.mu.Unlock()
	s.setState(StateTimedOut)
	s.setState(StateIdle)
	s.publish(Result{Err: ErrResponseTimeout})
}

func (s *Session) fail(err error) {
	s.log.Error().Err(err).Msg("capture failed")
	s.stopResponseTimer()
	s.mu.Lock()
	s.status.LastErr = err
	s.mu.Unlock()
	s.setState(StateFailed)
	s.setState(StateIdle)
	s.publish(Result{Err: err})
}

func (s *Session) setState(state State) {
	if state == s.state {
		return
	}
	s.log.Debug().Str("from", s.state.String()).Str("to", state.String()).Msg("state change")
	s.state = state
	s.mu.Lock()
	s.status.State = state
	switch state {
	case StateSucceeded, StateTimedOut, StateFailed:
		s.status.Outcome = state
	case StateArming:
		s.status.Outcome = StateIdle
	}
	s.mu.Unlock()
}

func (s *Session) publish(r Result) {
	select {
	case s.results <- r:
	default:
		s.log.Warn().Msg("result channel full, dropping result")
	}
}

func (s *Session) responseTimeout() <-chan time.Time {
	if !s.responseOn {
		return nil
	}
	return s.responseTime.C
}

func (s *Session) armResponseTimer() {
	if s.responseTime == nil {
		s.responseTime = time.NewTimer(s.opts.ResponseTimeout)
	} else {
		s.responseTime.Reset(s.opts.ResponseTimeout)
	}
	s.responseOn = true
}

func (s *Session) stopResponseTimer() {
	if s.responseTime != nil {
		s.responseTime.Stop()
	}
	s.responseOn = false
}
