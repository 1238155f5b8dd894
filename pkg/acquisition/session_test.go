// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acquisition

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/edgetrace/pkg/capture"
	"github.com/pkg/errors"
)

// ============================================================
// Test Helpers
// ============================================================

// recordingConn captures every command written by the session
type recordingConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
	err    error
}

func (c *recordingConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.writes++
	return c.buf.Write(p)
}

func (c *recordingConn) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf.Bytes()...)
}

func (c *recordingConn) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func frameBytes(initialState byte, samples []uint16) []byte {
	n := len(samples)
	data := []byte{capture.StartMarker, initialState, byte(n), byte(n >> 8)}
	return append(data, capture.EncodeSamples(samples)...)
}

// startSession runs a session in the background and stops it when the test
// ends
func startSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s := NewSession(opts)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return s
}

func post(t *testing.T, s *Session, ev Event) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Post(ctx, ev); err != nil {
		t.Fatalf("Post(%s) failed: %v", ev.Kind, err)
	}
}

func waitResult(t *testing.T, s *Session, timeout time.Duration) Result {
	t.Helper()
	select {
	case r := <-s.Results():
		return r
	case <-time.After(timeout):
		t.Fatalf("no result within %v", timeout)
		return Result{}
	}
}

func expectNoResult(t *testing.T, s *Session, wait time.Duration) {
	t.Helper()
	select {
	case r := <-s.Results():
		t.Fatalf("unexpected result: capture=%v err=%v", r.Capture != nil, r.Err)
	case <-time.After(wait):
	}
}

func start(t *testing.T, s *Session, settings capture.Settings) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ok, err := s.Start(ctx, settings)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return ok
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.QuietInterval = 100 * time.Millisecond
	opts.ResponseTimeout = 150 * time.Millisecond
	return opts
}

// ============================================================
// State Tests
// ============================================================

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "IDLE"},
		{StateArming, "ARMING"},
		{StateWaitingForResponse, "WAITING_FOR_RESPONSE"},
		{StateReceiving, "RECEIVING"},
		{StateSucceeded, "SUCCEEDED"},
		{StateTimedOut, "TIMED_OUT"},
		{StateFailed, "FAILED"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestStateActive(t *testing.T) {
	active := map[State]bool{
		StateArming:             true,
		StateWaitingForResponse: true,
		StateReceiving:          true,
	}
	for st := StateIdle; st <= StateFailed; st++ {
		if got := st.Active(); got != active[st] {
			t.Errorf("%s.Active() = %v, want %v", st, got, active[st])
		}
	}
}

func TestNewSession_Defaults(t *testing.T) {
	s := NewSession(Options{})
	if s.opts.QuietInterval != capture.DefaultQuietInterval {
		t.Errorf("QuietInterval = %v, want %v", s.opts.QuietInterval, capture.DefaultQuietInterval)
	}
	if s.opts.ResponseTimeout != capture.DefaultResponseTimeout {
		t.Errorf("ResponseTimeout = %v, want %v", s.opts.ResponseTimeout, capture.DefaultResponseTimeout)
	}
	if s.opts.Settings != capture.DefaultSettings() {
		t.Errorf("Settings = %v, want defaults", s.opts.Settings)
	}
	if st := s.Status(); st.State != StateIdle {
		t.Errorf("initial state = %s, want IDLE", st.State)
	}
}

// ============================================================
// Start Tests
// ============================================================

func TestStart_WithoutTransportIgnored(t *testing.T) {
	s := startSession(t, fastOptions())

	if start(t, s, capture.DefaultSettings()) {
		t.Error("Start without an open transport should be ignored")
	}
	if st := s.Status(); st.State != StateIdle {
		t.Errorf("state = %s, want IDLE", st.State)
	}
}

func TestStart_SendsCommand(t *testing.T) {
	s := startSession(t, fastOptions())
	conn := &recordingConn{}
	post(t, s, Opened("test", conn))

	settings := capture.Settings{
		Edge:          capture.EdgeFalling,
		ClockDivision: capture.ClockDivision(64),
		NoiseCanceler: true,
	}
	if !start(t, s, settings) {
		t.Fatal("Start returned false")
	}

	want := []byte{0x11, 0x00, 0x01, 0x02, 0x01}
	if got := conn.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("command = % x, want % x", got, want)
	}

	st := s.Status()
	if st.State != StateWaitingForResponse {
		t.Errorf("state = %s, want WAITING_FOR_RESPONSE", st.State)
	}
	if st.Settings != settings {
		t.Errorf("status settings = %v, want %v", st.Settings, settings)
	}
}

func TestStart_SecondStartIsNoOp(t *testing.T) {
	s := startSession(t, fastOptions())
	conn := &recordingConn{}
	post(t, s, Opened("test", conn))

	if !start(t, s, capture.DefaultSettings()) {
		t.Fatal("first Start returned false")
	}
	if start(t, s, capture.Settings{Edge: capture.EdgeBoth, ClockDivision: 1024}) {
		t.Error("second Start while waiting should be ignored")
	}

	if got := len(conn.Bytes()); got != capture.CommandSize {
		t.Errorf("bytes written = %d, want exactly %d", got, capture.CommandSize)
	}
	if got := conn.Writes(); got != 1 {
		t.Errorf("writes = %d, want 1", got)
	}
	if st := s.Status(); st.Settings != capture.DefaultSettings() {
		t.Errorf("settings replaced by ignored start: %v", st.Settings)
	}
}

func TestStart_WriteFailure(t *testing.T) {
	s := startSession(t, fastOptions())
	conn := &recordingConn{err: fmt.Errorf("port gone")}
	post(t, s, Opened("test", conn))

	if start(t, s, capture.DefaultSettings()) {
		t.Error("Start should fail when the command cannot be sent")
	}

	r := waitResult(t, s, time.Second)
	if !errors.Is(r.Err, ErrTransportFault) {
		t.Errorf("result error = %v, want ErrTransportFault", r.Err)
	}
	st := s.Status()
	if st.State != StateIdle || st.Outcome != StateFailed {
		t.Errorf("state/outcome = %s/%s, want IDLE/FAILED", st.State, st.Outcome)
	}
}

// ============================================================
// Capture Tests
// ============================================================

func TestCapture_Succeeds(t *testing.T) {
	s := startSession(t, fastOptions())
	conn := &recordingConn{}
	post(t, s, Opened("test", conn))

	settings := capture.Settings{Edge: capture.EdgeBoth, ClockDivision: 8}
	if !start(t, s, settings) {
		t.Fatal("Start returned false")
	}

	samples := []uint16{3, 5}
	data := frameBytes(0, samples)
	// Split across reads
	post(t, s, Data(data[:3]))
	post(t, s, Data(data[3:]))

	r := waitResult(t, s, time.Second)
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	c := r.Capture
	if !c.Solicited {
		t.Error("capture should be solicited")
	}
	if c.Port != "test" {
		t.Errorf("Port = %q, want test", c.Port)
	}
	if c.Frame.Partial() {
		t.Error("frame should be complete")
	}
	if len(c.Samples) != 2 || c.Samples[0] != 3 || c.Samples[1] != 5 {
		t.Errorf("samples = %v, want [3 5]", c.Samples)
	}

	want := capture.BuildWaveform(samples, capture.Low, capture.EdgeBoth)
	if len(c.Waveform) != len(want) {
		t.Fatalf("waveform length = %d, want %d", len(c.Waveform), len(want))
	}
	for i := range want {
		if c.Waveform[i] != want[i] {
			t.Errorf("waveform[%d] = %v, want %v", i, c.Waveform[i], want[i])
		}
	}
	if len(c.Issues) != 0 {
		t.Errorf("unexpected issues: %v", c.Issues)
	}

	st := s.Status()
	if st.State != StateIdle || st.Outcome != StateSucceeded {
		t.Errorf("state/outcome = %s/%s, want IDLE/SUCCEEDED", st.State, st.Outcome)
	}
	if st.Last != c {
		t.Error("status should hold the last capture")
	}
	if st.Stats.TotalFrames != 1 || st.Stats.TotalSamples != 2 {
		t.Errorf("stats frames/samples = %d/%d, want 1/2", st.Stats.TotalFrames, st.Stats.TotalSamples)
	}

	// Back to idle, a new capture may start
	if !start(t, s, settings) {
		t.Error("Start after success returned false")
	}
}

func TestCapture_ResponseTimeout(t *testing.T) {
	s := startSession(t, fastOptions())
	conn := &recordingConn{}
	post(t, s, Opened("test", conn))

	if !start(t, s, capture.DefaultSettings()) {
		t.Fatal("Start returned false")
	}

	r := waitResult(t, s, time.Second)
	if !errors.Is(r.Err, ErrResponseTimeout) {
		t.Fatalf("result error = %v, want ErrResponseTimeout", r.Err)
	}
	if r.Capture != nil {
		t.Error("timed out capture should carry no frame")
	}

	st := s.Status()
	if st.State != StateIdle || st.Outcome != StateTimedOut {
		t.Errorf("state/outcome = %s/%s, want IDLE/TIMED_OUT", st.State, st.Outcome)
	}
	if st.Stats.ResponseTimeouts != 1 {
		t.Errorf("ResponseTimeouts = %d, want 1", st.Stats.ResponseTimeouts)
	}

	if !start(t, s, capture.DefaultSettings()) {
		t.Error("Start after timeout returned false")
	}
	if got := conn.Writes(); got != 2 {
		t.Errorf("writes = %d, want 2", got)
	}
}

func TestCapture_FrameStartCancelsResponseTimeout(t *testing.T) {
	opts := DefaultOptions()
	opts.ResponseTimeout = 100 * time.Millisecond
	opts.QuietInterval = 400 * time.Millisecond
	s := startSession(t, opts)
	post(t, s, Opened("test", &recordingConn{}))

	if !start(t, s, capture.DefaultSettings()) {
		t.Fatal("Start returned false")
	}

	// Header and one sample of three
	data := frameBytes(1, []uint16{1, 2, 3})
	post(t, s, Data(data[:6]))

	// Past the response window but inside the quiet interval
	expectNoResult(t, s, 250*time.Millisecond)
	st := s.Status()
	if st.State != StateReceiving {
		t.Errorf("state = %s, want RECEIVING", st.State)
	}
	if st.Receiving != 2 {
		t.Errorf("Receiving = %d, want 2", st.Receiving)
	}

	r := waitResult(t, s, time.Second)
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	if !r.Capture.Frame.Partial() {
		t.Error("frame closed by quiet interval should be partial")
	}
	if len(r.Capture.Samples) != 1 {
		t.Errorf("samples = %v, want one", r.Capture.Samples)
	}
	if s.Status().Outcome != StateSucceeded {
		t.Errorf("outcome = %s, want SUCCEEDED", s.Status().Outcome)
	}
}

func TestCapture_ZeroSampleFrame(t *testing.T) {
	s := startSession(t, fastOptions())
	post(t, s, Opened("test", &recordingConn{}))

	if !start(t, s, capture.DefaultSettings()) {
		t.Fatal("Start returned false")
	}
	post(t, s, Data(frameBytes(0, nil)))

	r := waitResult(t, s, time.Second)
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	if len(r.Capture.Samples) != 0 {
		t.Errorf("samples = %v, want none", r.Capture.Samples)
	}
	if r.Capture.Rows() != nil {
		t.Error("empty capture should export no rows")
	}
}

func TestCapture_TransportClosed(t *testing.T) {
	s := startSession(t, fastOptions())
	post(t, s, Opened("test", &recordingConn{}))

	if !start(t, s, capture.DefaultSettings()) {
		t.Fatal("Start returned false")
	}
	cause := fmt.Errorf("unplugged")
	post(t, s, Closed(cause))

	r := waitResult(t, s, time.Second)
	if !errors.Is(r.Err, ErrTransportClosed) {
		t.Errorf("result error = %v, want ErrTransportClosed", r.Err)
	}
	if !errors.Is(r.Err, cause) {
		t.Errorf("result error = %v, should wrap the cause", r.Err)
	}

	st := s.Status()
	if st.Open {
		t.Error("status should report the transport closed")
	}
	if st.Outcome != StateFailed {
		t.Errorf("outcome = %s, want FAILED", st.Outcome)
	}
	if start(t, s, capture.DefaultSettings()) {
		t.Error("Start after close should be ignored")
	}
}

func TestCapture_UnsolicitedFrame(t *testing.T) {
	opts := fastOptions()
	opts.Settings = capture.Settings{Edge: capture.EdgeRising, ClockDivision: 256}
	s := startSession(t, opts)
	post(t, s, Opened("test", &recordingConn{}))

	post(t, s, Data(frameBytes(0, []uint16{2, 4})))

	r := waitResult(t, s, time.Second)
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	if r.Capture.Solicited {
		t.Error("frame without a pending capture should be unsolicited")
	}
	if r.Capture.Settings != opts.Settings {
		t.Errorf("settings = %v, want session defaults %v", r.Capture.Settings, opts.Settings)
	}
	if st := s.Status(); st.State != StateIdle || st.Outcome != StateIdle {
		t.Errorf("state/outcome = %s/%s, want IDLE/IDLE", st.State, st.Outcome)
	}
}

func TestCapture_NoiseCountedAsSkipped(t *testing.T) {
	s := startSession(t, fastOptions())
	post(t, s, Opened("test", &recordingConn{}))

	data := append([]byte{0x00, 0xFF, 0x42}, frameBytes(1, []uint16{7})...)
	post(t, s, Data(data))
	waitResult(t, s, time.Second)

	if got := s.Status().Stats.SkippedBytes; got != 3 {
		t.Errorf("SkippedBytes = %d, want 3", got)
	}
}

func TestCapture_ValidationIssuesReported(t *testing.T) {
	s := startSession(t, fastOptions())
	post(t, s, Opened("test", &recordingConn{}))

	post(t, s, Data(frameBytes(1, []uint16{9, 4})))

	r := waitResult(t, s, time.Second)
	found := false
	for _, issue := range r.Capture.Issues {
		if issue.Type == capture.AnomalyNonMonotonic {
			found = true
		}
	}
	if !found {
		t.Errorf("expected non-monotonic issue, got %v", r.Capture.Issues)
	}
	if got := s.Status().Stats.NonMonotonic; got != 1 {
		t.Errorf("NonMonotonic = %d, want 1", got)
	}
}

func TestCapture_LegacySampleCount(t *testing.T) {
	opts := fastOptions()
	opts.LegacySampleCount = true
	s := startSession(t, opts)
	post(t, s, Opened("test", &recordingConn{}))

	// lo=2 hi=0: the legacy arithmetic declares zero samples
	post(t, s, Data([]byte{capture.StartMarker, 0, 2, 0}))

	r := waitResult(t, s, time.Second)
	if got := r.Capture.Frame.DeclaredSamples(); got != 0 {
		t.Errorf("DeclaredSamples = %d, want 0", got)
	}
}

// ============================================================
// Transport Event Tests
// ============================================================

func TestTransportError_Published(t *testing.T) {
	s := startSession(t, fastOptions())

	post(t, s, Failed(fmt.Errorf("framing")))

	r := waitResult(t, s, time.Second)
	if !errors.Is(r.Err, ErrTransportFault) {
		t.Errorf("result error = %v, want ErrTransportFault", r.Err)
	}
	if got := s.Status().Stats.TransportErrors; got != 1 {
		t.Errorf("TransportErrors = %d, want 1", got)
	}
}

func TestListed_UpdatesStatus(t *testing.T) {
	s := startSession(t, fastOptions())
	post(t, s, Listed([]string{"/dev/ttyACM0", "/dev/ttyUSB0"}))
	// A Start round trip guarantees the event was handled
	start(t, s, capture.DefaultSettings())

	st := s.Status()
	if len(st.Ports) != 2 || st.Ports[0] != "/dev/ttyACM0" {
		t.Errorf("Ports = %v", st.Ports)
	}
}

func TestEventKindString(t *testing.T) {
	if got := EventData.String(); got != "DATA" {
		t.Errorf("EventData.String() = %q", got)
	}
	if got := EventKind(42).String(); got != "EventKind(42)" {
		t.Errorf("EventKind(42).String() = %q", got)
	}
}

// ============================================================
// Lifecycle Tests
// ============================================================

func TestRun_StopsOnCancel(t *testing.T) {
	s := NewSession(fastOptions())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}

	if _, err := s.Start(context.Background(), capture.DefaultSettings()); err != ErrStopped {
		t.Errorf("Start after stop = %v, want ErrStopped", err)
	}
	if err := s.Post(context.Background(), Data([]byte{1})); err != ErrStopped {
		// The event buffer may accept the event before Done is observed
		if err != nil {
			t.Errorf("Post after stop = %v", err)
		}
	}
}

func TestRun_StopsOnClosedEvents(t *testing.T) {
	s := NewSession(fastOptions())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()

	close(s.events)
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
