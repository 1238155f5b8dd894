// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/edgetrace/pkg/acquisition"
	"github.com/Thermoquad/edgetrace/pkg/capture"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	controlTickInterval = 250 * time.Millisecond
	maxHistory          = 50 // Captures kept in the history list
	historyWidth        = 30
	minTraceWidth       = 20
)

// Focus states
const (
	focusTrace = iota
	focusHistory
	focusInput
)

// Pending text input actions
const (
	inputNone = iota
	inputExport
	inputSave
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// historyItem is one capture in the history list
type historyItem struct {
	number  int
	capture *acquisition.Capture
}

// Implement list.Item interface
func (h historyItem) Title() string {
	return fmt.Sprintf("#%d %s %s /%d", h.number,
		h.capture.Frame.Completed().Format("15:04:05"),
		h.capture.Settings.Edge, h.capture.Settings.ClockDivision)
}

func (h historyItem) Description() string {
	desc := fmt.Sprintf("%d samples", len(h.capture.Samples))
	if h.capture.Frame.Partial() {
		desc += " PARTIAL"
	}
	if len(h.capture.Issues) > 0 {
		desc += fmt.Sprintf(" %d issue(s)", len(h.capture.Issues))
	}
	if !h.capture.Solicited {
		desc += " (passive)"
	}
	return desc
}

func (h historyItem) FilterValue() string { return fmt.Sprintf("%d", h.number) }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	// Connection manager (for sending commands and reconnection)
	connMgr  *connectionManager
	connInfo string

	// Settings for the next acquisition
	settings capture.Settings

	// Session snapshot, refreshed on every tick
	status acquisition.Status

	// Capture history
	history  list.Model
	captures int

	// Trace view
	selected *historyItem
	offset   int32 // First tick shown
	scale    int32 // Ticks per column

	// Export / save path input
	pathInput   textinput.Model
	inputAction int

	// Monitoring (reused from tui.go patterns)
	errorLog      []errorLogEntry
	maxLogEntries int

	// UI state
	focusedField   int
	width          int
	height         int
	quitting       bool
	connectionLost bool
	armedAt        time.Time
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type captureStartedMsg struct {
	settings capture.Settings
	sent     bool
	err      error
}

type captureResultMsg struct {
	result acquisition.Result
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string, settings capture.Settings) controlModel {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 40

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	history := list.New([]list.Item{}, delegate, historyWidth, 10)
	history.Title = "Captures"
	history.SetShowStatusBar(false)
	history.SetShowHelp(false)
	history.SetFilteringEnabled(false)

	m := controlModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		settings:      settings,
		history:       history,
		scale:         1,
		pathInput:     ti,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		focusedField:  focusTrace,
		width:         80,
		height:        24,
	}
	if connMgr != nil && connMgr.session != nil {
		m.status = connMgr.session.Status()
	}
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(controlTickInterval, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		return m.handleMouseMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()
		m.fitTrace()

	case controlTickMsg:
		if m.connMgr != nil {
			m.status = m.connMgr.session.Status()
			m.status.Stats.CalculateRates()
		}
		return m, controlTickCmd()

	case captureStartedMsg:
		m.handleCaptureStarted(msg)

	case captureResultMsg:
		m.handleCaptureResult(msg.result)

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
	}

	return m, nil
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	if m.focusedField == focusInput {
		switch msg.String() {
		case "enter":
			m.finishInput()
			return m, nil
		case "esc":
			m.cancelInput()
			return m, nil
		}
		var cmd tea.Cmd
		m.pathInput, cmd = m.pathInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "tab", "shift+tab":
		if m.focusedField == focusTrace {
			m.focusedField = focusHistory
		} else {
			m.focusedField = focusTrace
		}

	case "a", " ":
		return m, m.acquire()

	case "e":
		m.settings.Edge = m.settings.Edge.Next()
		m.addLogEntry(fmt.Sprintf("Trigger edge: %s", m.settings.Edge), false)

	case "c":
		m.settings.ClockDivision = m.settings.ClockDivision.Next()
		m.addLogEntry(fmt.Sprintf("Clock division: /%d", m.settings.ClockDivision), false)

	case "n":
		m.settings.NoiseCanceler = !m.settings.NoiseCanceler
		m.addLogEntry(fmt.Sprintf("Noise canceler: %s", onOff(m.settings.NoiseCanceler)), false)

	case "left", "h":
		m.pan(-1)

	case "right", "l":
		m.pan(1)

	case "+", "=":
		m.zoom(0.5)

	case "-", "_":
		m.zoom(2)

	case "f":
		m.fitTrace()

	case "x":
		m.beginInput(inputExport)

	case "w":
		m.beginInput(inputSave)

	case "up", "down", "k", "j", "pgup", "pgdown", "home", "end":
		if m.focusedField == focusHistory {
			m.history, _ = m.history.Update(msg)
			m.syncSelection()
		}
	}

	return m, nil
}

func (m *controlModel) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.zoom(0.5)
	case tea.MouseButtonWheelDown:
		m.zoom(2)
	case tea.MouseButtonWheelLeft:
		m.pan(-1)
	case tea.MouseButtonWheelRight:
		m.pan(1)
	}
	return m, nil
}

func (m *controlModel) acquire() tea.Cmd {
	if m.connectionLost {
		m.addLogEntry("Cannot acquire: connection lost", true)
		return nil
	}
	if m.connMgr == nil {
		return nil
	}
	return m.connMgr.startCapture(m.settings)
}

func (m *controlModel) handleCaptureStarted(msg captureStartedMsg) {
	switch {
	case msg.err != nil:
		m.addLogEntry(fmt.Sprintf("Acquire failed: %v", msg.err), true)
	case !msg.sent:
		if m.status.State.Active() {
			m.addLogEntry("Acquire ignored: capture already in progress", false)
		} else {
			m.addLogEntry("Acquire ignored: no connection", true)
		}
	default:
		m.armedAt = time.Now()
		m.addLogEntry(fmt.Sprintf("Armed: %s [%s]", msg.settings, capture.FormatCommand(msg.settings.Command())), false)
	}
}

func (m *controlModel) handleCaptureResult(r acquisition.Result) {
	if r.Err != nil {
		switch {
		case errors.Is(r.Err, acquisition.ErrResponseTimeout):
			m.addLogEntry("Communication timed out", true)
		default:
			m.addLogEntry(fmt.Sprintf("LINK ERROR: %v", r.Err), true)
		}
		return
	}

	c := r.Capture
	m.captures++
	item := historyItem{number: m.captures, capture: c}

	m.history.InsertItem(0, item)
	if n := len(m.history.Items()); n > maxHistory {
		m.history.RemoveItem(n - 1)
	}
	m.history.Select(0)
	m.selected = &item
	m.fitTrace()

	m.addLogEntry(fmt.Sprintf("Capture #%d: %d samples in %v", item.number, len(c.Samples),
		c.Frame.Duration().Round(time.Millisecond)), false)
	for _, issue := range c.Issues {
		m.addLogEntry(fmt.Sprintf("#%d %s: %s", item.number, issue.Type, issue.Message), true)
	}
}

//////////////////////////////////////////////////////////////
// Trace View
//////////////////////////////////////////////////////////////

func (m *controlModel) traceWidth() int {
	w := m.width - historyWidth - 12
	if w < minTraceWidth {
		w = minTraceWidth
	}
	return w
}

// fitTrace shows the whole selected waveform
func (m *controlModel) fitTrace() {
	if m.selected == nil {
		return
	}
	points := m.selected.capture.Waveform
	m.offset, _ = capture.Span(points)
	m.scale = fitScale(points, m.traceWidth())
}

// pan moves the view a quarter of its width
func (m *controlModel) pan(direction int32) {
	step := int32(m.traceWidth()/4) * m.scale
	if step < 1 {
		step = 1
	}
	m.offset += direction * step
}

// zoom scales the view around its center
func (m *controlModel) zoom(factor float64) {
	half := int32(m.traceWidth() / 2)
	center := m.offset + half*m.scale

	scale := int32(float64(m.scale) * factor)
	if scale < 1 {
		scale = 1
	}
	if scale > 1<<16 {
		scale = 1 << 16
	}
	m.scale = scale
	m.offset = center - half*m.scale
}

func (m *controlModel) syncSelection() {
	item, ok := m.history.SelectedItem().(historyItem)
	if !ok {
		return
	}
	m.selected = &item
	m.fitTrace()
}

//////////////////////////////////////////////////////////////
// Export
//////////////////////////////////////////////////////////////

func (m *controlModel) beginInput(action int) {
	if m.selected == nil {
		m.addLogEntry("Nothing to write: no capture selected", true)
		return
	}
	m.inputAction = action
	m.pathInput.SetValue("")
	switch action {
	case inputExport:
		m.pathInput.Placeholder = fmt.Sprintf("capture-%d.csv", m.selected.number)
	case inputSave:
		m.pathInput.Placeholder = fmt.Sprintf("capture-%d.cbor", m.selected.number)
	}
	m.pathInput.Focus()
	m.focusedField = focusInput
}

func (m *controlModel) cancelInput() {
	m.pathInput.Blur()
	m.inputAction = inputNone
	m.focusedField = focusTrace
}

func (m *controlModel) finishInput() {
	path := strings.TrimSpace(m.pathInput.Value())
	if path == "" {
		path = m.pathInput.Placeholder
	}
	action := m.inputAction
	m.cancelInput()

	if m.selected == nil {
		return
	}
	c := m.selected.capture

	switch action {
	case inputExport:
		rows := c.Rows()
		if err := exportCSV(path, rows); err != nil {
			m.addLogEntry(fmt.Sprintf("Export failed: %v", err), true)
			return
		}
		m.addLogEntry(fmt.Sprintf("Exported %d rows to %s", len(rows), path), false)

	case inputSave:
		if err := capture.SaveRecord(path, c.Record()); err != nil {
			m.addLogEntry(fmt.Sprintf("Save failed: %v", err), true)
			return
		}
		m.addLogEntry(fmt.Sprintf("Saved capture #%d to %s", m.selected.number, path), false)
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("EDGETRACE CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch", connStatus)))
	s.WriteString("\n")
	s.WriteString(m.renderSettingsLine(statsLabelStyle, statsValueStyle, errorStyle, warningStyle))
	s.WriteString("\n\n")

	// Layout: left panel (history) | right panel (trace)
	listStyle := boxStyle.Width(historyWidth)
	if m.focusedField == focusHistory {
		listStyle = focusedBoxStyle.Width(historyWidth)
	}
	historyPanel := listStyle.Render(m.history.View())

	traceStyle := boxStyle.Width(m.traceWidth() + 4)
	if m.focusedField == focusTrace {
		traceStyle = focusedBoxStyle.Width(m.traceWidth() + 4)
	}
	tracePanel := traceStyle.Render(m.renderTracePanel(statsLabelStyle, statsValueStyle, headerStyle, warningStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, historyPanel, " ", tracePanel))
	s.WriteString("\n\n")

	// Path prompt
	if m.focusedField == focusInput {
		label := "Export CSV to: "
		if m.inputAction == inputSave {
			label = "Save record to: "
		}
		s.WriteString(boxStyle.Width(m.width - 4).Render(statsLabelStyle.Render(label) + m.pathInput.View() + headerStyle.Render("  (enter=write esc=cancel)")))
		s.WriteString("\n\n")
	}

	// Statistics bar
	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render("a=acquire e=edge c=clock n=noise ←/→=pan +/-=zoom f=fit x=export w=save"))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderSettingsLine(statsLabelStyle, statsValueStyle, errorStyle, warningStyle lipgloss.Style) string {
	state := m.status.State
	stateText := statsValueStyle.Render(state.String())
	if state.Active() {
		elapsed := time.Since(m.armedAt).Seconds()
		stateText = warningStyle.Render(fmt.Sprintf("%s (%.1fs)", state, elapsed))
		if state == acquisition.StateReceiving {
			stateText += warningStyle.Render(fmt.Sprintf(" %d bytes", m.status.Receiving))
		}
	}

	outcome := ""
	switch m.status.Outcome {
	case acquisition.StateSucceeded:
		outcome = statsValueStyle.Render(m.status.Outcome.String())
	case acquisition.StateTimedOut, acquisition.StateFailed:
		outcome = errorStyle.Render(m.status.Outcome.String())
	}

	line := fmt.Sprintf(" %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Edge:"), statsValueStyle.Render(m.settings.Edge.String()),
		statsLabelStyle.Render("Clock:"), statsValueStyle.Render(fmt.Sprintf("/%d", m.settings.ClockDivision)),
		statsLabelStyle.Render("Noise:"), statsValueStyle.Render(onOff(m.settings.NoiseCanceler)),
		statsLabelStyle.Render("State:"), stateText,
	)
	if outcome != "" {
		line += fmt.Sprintf("  %s %s", statsLabelStyle.Render("Last:"), outcome)
	}
	return line
}

func (m controlModel) renderTracePanel(statsLabelStyle, statsValueStyle, headerStyle, warningStyle lipgloss.Style) string {
	if m.selected == nil {
		return headerStyle.Render("No capture yet. Press 'a' to acquire.")
	}

	var s strings.Builder
	c := m.selected.capture

	s.WriteString(fmt.Sprintf("%s #%d  %s %d  %s %d/%d  %s %s\n",
		statsLabelStyle.Render("Capture"), m.selected.number,
		statsLabelStyle.Render("Initial:"), c.Frame.InitialState(),
		statsLabelStyle.Render("Samples:"), len(c.Samples), c.Frame.DeclaredSamples(),
		statsLabelStyle.Render("Edge:"), statsValueStyle.Render(c.Settings.Edge.String()),
	))
	if c.Frame.Partial() {
		s.WriteString(warningStyle.Render("Frame incomplete: closed by quiet timeout"))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	for _, line := range renderTrace(c.Waveform, m.offset, m.scale, m.traceWidth()) {
		s.WriteString(line)
		s.WriteString("\n")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("offset=%d  %d tick/col", m.offset, m.scale)))

	return s.String()
}

func (m controlModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	stats := m.status.Stats
	var completePercent, errorPercent float64
	if stats.TotalFrames > 0 {
		completePercent = float64(stats.CompleteFrames) * 100.0 / float64(stats.TotalFrames)
		errorPercent = float64(stats.ErrorCount()) * 100.0 / float64(stats.TotalFrames)
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.TotalFrames)),
		statsLabelStyle.Render("Complete:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", completePercent)),
		statsLabelStyle.Render("Errors:"), func() string {
			if errorPercent > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
			}
			return statsValueStyle.Render("0.0%")
		}(),
		statsLabelStyle.Render("Timeouts:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.ResponseTimeouts)),
		statsLabelStyle.Render("Skipped:"), statsValueStyle.Render(fmt.Sprintf("%d B", stats.SkippedBytes)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 6
	if len(m.errorLog) < logHeight {
		logHeight = len(m.errorLog)
	}
	startIdx := len(m.errorLog) - logHeight

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *controlModel) updateListSize() {
	listHeight := m.height - 20
	if listHeight < 6 {
		listHeight = 6
	}
	m.history.SetSize(historyWidth-2, listHeight)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
