// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/edgetrace/pkg/acquisition"
	"github.com/Thermoquad/edgetrace/pkg/capture"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// TUI model
type model struct {
	session       *acquisition.Session
	connInfo      string
	statsInterval int
	showAll       bool
	status        acquisition.Status
	errorLog      []errorLogEntry
	maxLogEntries int
	lastSkipped   uint64
	width         int
	height        int
	quitting      bool
	linkClosed    bool
	started       time.Time
}

// Messages
type tickMsg time.Time
type resultMsg struct {
	result acquisition.Result
}
type linkClosedMsg struct {
	err error
}

// formatUptime formats a duration in milliseconds to a human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(session *acquisition.Session, connInfo string, statsInterval int, showAll bool) model {
	return model{
		session:       session,
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		status:        session.Status(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
		started:       time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.refreshStatus()
		return m, tickCmd()

	case resultMsg:
		m.handleResult(msg.result)
		m.refreshStatus()

	case linkClosedMsg:
		m.linkClosed = true
		m.addLogEntry(fmt.Sprintf("Connection closed: %v", msg.err), true)
	}

	return m, nil
}

// refreshStatus takes a new session snapshot and logs newly skipped bytes
func (m *model) refreshStatus() {
	m.status = m.session.Status()
	m.status.Stats.CalculateRates()
	if skipped := m.status.Stats.SkippedBytes; skipped > m.lastSkipped {
		m.addLogEntry(fmt.Sprintf("Skipped %d bytes outside of frames", skipped-m.lastSkipped), false)
		m.lastSkipped = skipped
	}
}

func (m *model) handleResult(r acquisition.Result) {
	if r.Err != nil {
		m.addLogEntry(fmt.Sprintf("LINK ERROR: %v", r.Err), true)
		return
	}

	c := r.Capture
	if len(c.Issues) > 0 {
		for _, issue := range c.Issues {
			m.addLogEntry(fmt.Sprintf("%s: %s", issue.Type, issue.Message), true)
		}
	} else if m.showAll {
		m.addLogEntry(fmt.Sprintf("Frame: %d samples, initial=%d (valid)", len(c.Samples), c.Frame.InitialState()), false)
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

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

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("EDGETRACE - ERROR DETECTION"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Press 'q' to quit",
		m.connInfo, func() string {
			if m.showAll {
				return "All frames"
			}
			return "Issues only"
		}())))
	s.WriteString("\n\n")

	// Link status
	if m.linkClosed {
		s.WriteString(errorStyle.Render("✗ Connection closed"))
	} else {
		s.WriteString(statsValueStyle.Render("✓ Listening"))
		s.WriteString(headerStyle.Render(fmt.Sprintf(" for %s", formatUptime(uint64(time.Since(m.started).Milliseconds())))))
	}
	if m.status.Receiving > 0 {
		s.WriteString(warningStyle.Render(fmt.Sprintf("  receiving frame (%d bytes)", m.status.Receiving)))
	}
	s.WriteString("\n\n")

	// Statistics
	stats := m.status.Stats
	var completePercent, errorPercent float64
	if stats.TotalFrames > 0 {
		completePercent = float64(stats.CompleteFrames) * 100.0 / float64(stats.TotalFrames)
		errorPercent = float64(stats.ErrorCount()) * 100.0 / float64(stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.TotalFrames)),
		statsLabelStyle.Render("Complete:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.CompleteFrames, completePercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", stats.ErrorCount(), errorPercent)),
	))

	if stats.PartialFrames > 0 || stats.CountMismatches > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Partial:"), errorStyle.Render(fmt.Sprintf("%d", stats.PartialFrames)),
			statsLabelStyle.Render("Count mismatch:"), errorStyle.Render(fmt.Sprintf("%d", stats.CountMismatches)),
		))
	}

	if stats.NonMonotonic > 0 || stats.InvalidStates > 0 || stats.OddPayloads > 0 || stats.Unexportable > 0 {
		statsContent.WriteString(fmt.Sprintf("%s (%s: %d, %s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Anomalous:"),
			headerStyle.Render("non-monotonic"), stats.NonMonotonic,
			headerStyle.Render("invalid state"), stats.InvalidStates,
			headerStyle.Render("odd payload"), stats.OddPayloads,
			headerStyle.Render("unexportable"), stats.Unexportable,
		))
	}

	if stats.SkippedBytes > 0 || stats.TransportErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Skipped bytes:"), warningStyle.Render(fmt.Sprintf("%d", stats.SkippedBytes)),
			statsLabelStyle.Render("Transport errors:"), errorStyle.Render(fmt.Sprintf("%d", stats.TransportErrors)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.2f frames/s", stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.2f err/s", stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.2f err/s", stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Last frame (only shown once a frame arrived)
	if last := m.status.Last; last != nil {
		s.WriteString(statsLabelStyle.Render("Latest Frame:"))
		s.WriteString("\n")

		frameContent := strings.Builder{}
		frameContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Initial:"), statsValueStyle.Render(fmt.Sprintf("%d", last.Frame.InitialState())),
			statsLabelStyle.Render("Samples:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", len(last.Samples), last.Frame.DeclaredSamples())),
			statsLabelStyle.Render("Duration:"), statsValueStyle.Render(last.Frame.Duration().Round(time.Millisecond).String()),
		))

		traceWidth := m.width - 10
		if traceWidth < 20 {
			traceWidth = 20
		}
		first, _ := capture.Span(last.Waveform)
		for _, line := range renderTrace(last.Waveform, first, fitScale(last.Waveform, traceWidth), traceWidth) {
			frameContent.WriteString(line)
			frameContent.WriteString("\n")
		}

		s.WriteString(boxStyle.Render(strings.TrimRight(frameContent.String(), "\n")))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 22 // Reserve space for header, stats and trace
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
