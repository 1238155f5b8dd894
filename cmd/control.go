// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/edgetrace/pkg/acquisition"
	"github.com/Thermoquad/edgetrace/pkg/capture"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for acquiring and inspecting captures",
	Long: `Arm the analyzer and inspect captures in an interactive terminal UI.

Features:
  - Acquire with the current settings (a)
  - Cycle trigger edge (e), clock division (c), toggle noise canceler (n)
  - Pan (left/right) and zoom (+/-) the trace, fit to window (f)
  - Export the selected capture as CSV (x) or save a capture record (w)
  - Capture history list (tab to focus, up/down to select)
  - Statistics tracking and event logging
  - Automatic reconnection on connection loss

A capture in flight ignores further acquire requests until the analyzer
answers or the response timeout expires.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// connectionManager handles connection lifecycle and reconnection. The
// session outlives individual connections.
type connectionManager struct {
	conn     Connection
	name     string
	connInfo string
	mu       sync.RWMutex
	session  *acquisition.Session
	ctx      context.Context
	p        *tea.Program
	done     chan struct{}
}

func (cm *connectionManager) getConn() Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn Connection, name, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.name = name
	cm.connInfo = connInfo
}

func runControl(cmd *cobra.Command, args []string) error {
	conn, name, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	session := acquisition.NewSession(sessionOptions())
	go session.Run(ctx)

	cm := &connectionManager{
		conn:     conn,
		name:     name,
		connInfo: connInfo,
		session:  session,
		ctx:      ctx,
		done:     make(chan struct{}),
	}

	m := initialControlModel(cm, connInfo, currentSettings())
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	if ports, err := listPorts(); err == nil {
		session.Post(ctx, acquisition.Listed(ports))
	} else {
		logger.Debug().Err(err).Msg("port enumeration failed")
	}
	if err := session.Post(ctx, acquisition.Opened(name, conn)); err != nil {
		conn.Close()
		return err
	}

	go cm.readerLoop()
	go cm.forwardResults()

	_, runErr := p.Run()

	close(cm.done)
	cancel()
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}

	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}

// startCapture asks the session for a capture without blocking the TUI
func (cm *connectionManager) startCapture(settings capture.Settings) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(cm.ctx, time.Second)
		defer cancel()
		sent, err := cm.session.Start(ctx, settings)
		return captureStartedMsg{settings: settings, sent: sent, err: err}
	}
}

// forwardResults delivers session results to the TUI
func (cm *connectionManager) forwardResults() {
	for {
		select {
		case <-cm.done:
			return
		case r := <-cm.session.Results():
			cm.p.Send(captureResultMsg{result: r})
		}
	}
}

// readerLoop pumps the current connection into the session and reconnects
// when it is lost
func (cm *connectionManager) readerLoop() {
	for {
		select {
		case <-cm.done:
			return
		default:
		}

		conn := cm.getConn()
		if conn == nil {
			return
		}

		err := acquisition.ReadLoop(cm.ctx, conn, cm.session.Events(), isDisconnectionError)

		select {
		case <-cm.done:
			return
		default:
		}

		cm.p.Send(connectionLostMsg{err: err})

		if !cm.reconnect() {
			return // Shutdown requested during reconnect
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		conn, name, connInfo, err := OpenConnection()
		if err == nil {
			cm.setConn(conn, name, connInfo)
			if err := cm.session.Post(cm.ctx, acquisition.Opened(name, conn)); err != nil {
				return false
			}
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}

		logger.Debug().Err(err).Dur("backoff", backoff).Msg("reconnect failed")

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
