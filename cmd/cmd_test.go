// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Thermoquad/edgetrace/pkg/acquisition"
	"github.com/Thermoquad/edgetrace/pkg/capture"
	tea "github.com/charmbracelet/bubbletea"
)

// ============================================================
// Test Helpers
// ============================================================

func testCapture(edge capture.TriggerEdge, samples []uint16) *acquisition.Capture {
	frame := capture.NewRawFrame(0, len(samples), capture.EncodeSamples(samples), false)
	settings := capture.Settings{Edge: edge, ClockDivision: 8}
	c := acquisition.Reconstruct(frame, settings)
	c.Solicited = true
	return c
}

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

func asControl(t *testing.T, m tea.Model) controlModel {
	t.Helper()
	switch v := m.(type) {
	case controlModel:
		return v
	case *controlModel:
		return *v
	}
	t.Fatalf("unexpected model type %T", m)
	return controlModel{}
}

func press(t *testing.T, m controlModel, keys ...string) controlModel {
	t.Helper()
	var model tea.Model = m
	for _, k := range keys {
		model, _ = model.Update(keyMsg(k))
	}
	return asControl(t, model)
}

func deliver(t *testing.T, m controlModel, msg tea.Msg) controlModel {
	t.Helper()
	model, _ := m.Update(msg)
	return asControl(t, model)
}

func lastLog(m controlModel) errorLogEntry {
	if len(m.errorLog) == 0 {
		return errorLogEntry{}
	}
	return m.errorLog[len(m.errorLog)-1]
}

// ============================================================
// Formatting Tests
// ============================================================

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		ms   uint64
		want string
	}{
		{0, "0 seconds"},
		{1000, "1 second"},
		{61000, "1 minute and 1 second"},
		{3600000, "1 hour"},
		{90061000, "1 day, 1 hour, 1 minute, and 1 second"},
		{7200000 + 120000, "2 hours and 2 minutes"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.ms); got != tt.want {
			t.Errorf("formatUptime(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestOnOff(t *testing.T) {
	if onOff(true) != "on" || onOff(false) != "off" {
		t.Error("onOff mismatch")
	}
}

// ============================================================
// Connection Tests
// ============================================================

func TestIsDisconnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("read: %w", io.EOF), true},
		{"websocket closed", fmt.Errorf("%w: close 1006", ErrConnectionClosed), true},
		{"unplugged", fmt.Errorf("read /dev/ttyACM0: input/output error"), true},
		{"parity", fmt.Errorf("parity error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDisconnectionError(tt.err); got != tt.want {
				t.Errorf("isDisconnectionError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestOpenConnection_RequiresTarget(t *testing.T) {
	portName, wsURL = "", ""
	if _, _, _, err := OpenConnection(); err == nil {
		t.Error("expected an error without --port or --url")
	}
}

func TestOpenWebSocketConnection_BadScheme(t *testing.T) {
	if _, err := OpenWebSocketConnection("http://localhost/ws", "", "", false); err == nil {
		t.Error("expected an error for http:// URL")
	}
}

// ============================================================
// Control TUI Tests
// ============================================================

func TestControl_SettingsKeys(t *testing.T) {
	m := initialControlModel(nil, "test", capture.DefaultSettings())

	m = press(t, m, "e", "c", "n")
	if m.settings.Edge != capture.EdgeFalling {
		t.Errorf("edge = %s, want falling", m.settings.Edge)
	}
	if m.settings.ClockDivision != 64 {
		t.Errorf("clock division = %d, want 64", m.settings.ClockDivision)
	}
	if !m.settings.NoiseCanceler {
		t.Error("noise canceler should be on")
	}
}

func TestControl_CaptureResultAddsHistory(t *testing.T) {
	m := initialControlModel(nil, "test", capture.DefaultSettings())
	m.width = 100

	c := testCapture(capture.EdgeBoth, []uint16{3, 5})
	m = deliver(t, m, captureResultMsg{result: acquisition.Result{Capture: c}})

	if len(m.history.Items()) != 1 {
		t.Fatalf("history has %d items, want 1", len(m.history.Items()))
	}
	if m.selected == nil || m.selected.capture != c || m.selected.number != 1 {
		t.Fatal("new capture should be selected")
	}
	if first, _ := capture.Span(c.Waveform); m.offset != first {
		t.Errorf("offset = %d, want %d", m.offset, first)
	}
	if m.scale != 1 {
		t.Errorf("scale = %d, want 1", m.scale)
	}

	m = deliver(t, m, captureResultMsg{result: acquisition.Result{Capture: testCapture(capture.EdgeRising, []uint16{8})}})
	if m.selected.number != 2 {
		t.Errorf("selected #%d, want the newest capture", m.selected.number)
	}

	// Select the older capture from the history list
	m = press(t, m, "tab", "down")
	if m.selected.number != 1 {
		t.Errorf("selected #%d after moving down, want #1", m.selected.number)
	}
}

func TestControl_HistoryBounded(t *testing.T) {
	m := initialControlModel(nil, "test", capture.DefaultSettings())
	for i := 0; i < maxHistory+5; i++ {
		m = deliver(t, m, captureResultMsg{result: acquisition.Result{Capture: testCapture(capture.EdgeBoth, []uint16{3})}})
	}
	if n := len(m.history.Items()); n != maxHistory {
		t.Errorf("history has %d items, want %d", n, maxHistory)
	}
}

func TestControl_ErrorResultLogged(t *testing.T) {
	m := initialControlModel(nil, "test", capture.DefaultSettings())

	m = deliver(t, m, captureResultMsg{result: acquisition.Result{Err: acquisition.ErrResponseTimeout}})
	if entry := lastLog(m); !entry.isError || entry.message != "Communication timed out" {
		t.Errorf("log = %+v, want timeout error", entry)
	}
	if len(m.history.Items()) != 0 {
		t.Error("failed capture should not enter the history")
	}
}

func TestControl_PanAndZoom(t *testing.T) {
	m := initialControlModel(nil, "test", capture.DefaultSettings())
	m.width = 100
	m = deliver(t, m, captureResultMsg{result: acquisition.Result{Capture: testCapture(capture.EdgeBoth, []uint16{100, 200, 300})}})

	fitOffset, fitScaleValue := m.offset, m.scale

	m = press(t, m, "right")
	if m.offset <= fitOffset {
		t.Errorf("offset after pan right = %d, want > %d", m.offset, fitOffset)
	}

	m = press(t, m, "-")
	if m.scale != fitScaleValue*2 {
		t.Errorf("scale after zoom out = %d, want %d", m.scale, fitScaleValue*2)
	}

	m = press(t, m, "f")
	if m.offset != fitOffset || m.scale != fitScaleValue {
		t.Errorf("fit = %d/%d, want %d/%d", m.offset, m.scale, fitOffset, fitScaleValue)
	}

	for i := 0; i < 20; i++ {
		m = press(t, m, "+")
	}
	if m.scale != 1 {
		t.Errorf("scale = %d, want zoom to stop at 1", m.scale)
	}
}

func TestControl_ExportRequiresCapture(t *testing.T) {
	m := initialControlModel(nil, "test", capture.DefaultSettings())

	m = press(t, m, "x")
	if m.focusedField == focusInput {
		t.Error("export prompt should not open without a capture")
	}
	if !lastLog(m).isError {
		t.Error("expected an error log entry")
	}
}

func TestControl_ExportCSV(t *testing.T) {
	m := initialControlModel(nil, "test", capture.DefaultSettings())
	c := testCapture(capture.EdgeRising, []uint16{3, 5})
	m = deliver(t, m, captureResultMsg{result: acquisition.Result{Capture: c}})

	path := filepath.Join(t.TempDir(), "out.csv")
	m = press(t, m, "x")
	if m.focusedField != focusInput || m.inputAction != inputExport {
		t.Fatal("export prompt should be open")
	}
	m = press(t, m, path, "enter")

	if m.focusedField != focusTrace {
		t.Error("focus should return to the trace")
	}
	if entry := lastLog(m); entry.isError {
		t.Fatalf("export failed: %s", entry.message)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, err := capture.ReadCSV(f)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != len(c.Rows()) {
		t.Errorf("exported %d rows, want %d", len(rows), len(c.Rows()))
	}
}

func TestControl_SaveRecord(t *testing.T) {
	m := initialControlModel(nil, "test", capture.DefaultSettings())
	c := testCapture(capture.EdgeFalling, []uint16{4, 9})
	m = deliver(t, m, captureResultMsg{result: acquisition.Result{Capture: c}})

	path := filepath.Join(t.TempDir(), "cap.cbor")
	m = press(t, m, "w", path, "enter")
	if entry := lastLog(m); entry.isError {
		t.Fatalf("save failed: %s", entry.message)
	}

	record, err := capture.LoadRecord(path)
	if err != nil {
		t.Fatalf("LoadRecord: %v", err)
	}
	if record.Settings().Edge != capture.EdgeFalling {
		t.Errorf("record edge = %s, want falling", record.Settings().Edge)
	}
	samples := record.Frame().Samples()
	if len(samples) != 2 || samples[0] != 4 || samples[1] != 9 {
		t.Errorf("record samples = %v, want [4 9]", samples)
	}
}

func TestControl_InputCancel(t *testing.T) {
	m := initialControlModel(nil, "test", capture.DefaultSettings())
	m = deliver(t, m, captureResultMsg{result: acquisition.Result{Capture: testCapture(capture.EdgeBoth, []uint16{3})}})

	m = press(t, m, "x", "esc")
	if m.focusedField != focusTrace || m.inputAction != inputNone {
		t.Error("esc should close the prompt")
	}

	// Keys typed into the prompt do not change settings
	m = press(t, m, "x", "e", "esc")
	if m.settings.Edge != capture.EdgeRising {
		t.Errorf("edge = %s, typing in the prompt should not cycle it", m.settings.Edge)
	}
}

func TestControl_AcquireWhileDisconnected(t *testing.T) {
	m := initialControlModel(nil, "test", capture.DefaultSettings())
	m = deliver(t, m, connectionLostMsg{err: io.EOF})

	model, cmd := m.Update(keyMsg("a"))
	if cmd != nil {
		t.Error("acquire should not start while the connection is lost")
	}
	if !lastLog(asControl(t, model)).isError {
		t.Error("expected an error log entry")
	}

	m = deliver(t, asControl(t, model), reconnectedMsg{connInfo: "again"})
	if m.connectionLost || m.connInfo != "again" {
		t.Error("reconnect should clear the lost flag")
	}
}

func TestControl_CaptureStartedMessages(t *testing.T) {
	m := initialControlModel(nil, "test", capture.DefaultSettings())

	m = deliver(t, m, captureStartedMsg{settings: m.settings, sent: true})
	if m.armedAt.IsZero() {
		t.Error("armedAt should be set")
	}

	m.status.State = acquisition.StateWaitingForResponse
	m = deliver(t, m, captureStartedMsg{settings: m.settings, sent: false})
	if entry := lastLog(m); entry.isError {
		t.Errorf("ignored start during a capture should be a notice, got %q", entry.message)
	}
}

func TestControl_ViewRenders(t *testing.T) {
	m := initialControlModel(nil, "test", capture.DefaultSettings())
	if m.View() == "" {
		t.Error("empty view")
	}
	m = deliver(t, m, captureResultMsg{result: acquisition.Result{Capture: testCapture(capture.EdgeBoth, []uint16{3, 5})}})
	if m.View() == "" {
		t.Error("empty view with a capture")
	}
}
