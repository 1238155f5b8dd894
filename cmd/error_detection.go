// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/edgetrace/pkg/acquisition"
	"github.com/Thermoquad/edgetrace/pkg/capture"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and link errors",
	Long: `Track frame integrity problems and link errors with statistics.

This command validates each received frame and detects:
  - Frames closed by the quiet timeout before the payload was complete
  - Sample counts that disagree with the frame header
  - Odd payload lengths and invalid initial states
  - Timestamps that go backwards
  - Samples the dense export cannot place (duplicates, ticks below 2)
  - Bytes received outside of any frame

By default, only frames with issues are displayed. Use --show-all to display
sound frames too.

Frames are validated in real-time, with issues highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just frames with issues)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	if statsInterval < 1 {
		return fmt.Errorf("--stats-interval must be at least 1")
	}

	conn, name, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	session, readErr, err := attachSession(ctx, conn, name)
	if err != nil {
		return err
	}

	if useTUI {
		return runTUIMode(ctx, session, readErr, connInfo)
	}
	return runTextMode(ctx, session, readErr, connInfo)
}

// printIssues prints the validation issues of a frame in highlighted format
func printIssues(c *acquisition.Capture) {
	timestamp := c.Frame.Completed().Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mFRAME ISSUES:\033[0m initial=%d declared=%d received=%d\n",
		timestamp, c.Frame.InitialState(), c.Frame.DeclaredSamples(), len(c.Samples))

	for i, issue := range c.Issues {
		switch issue.Type {
		case capture.AnomalyPartialFrame, capture.AnomalySampleCountMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, issue.Message)
			if received, ok := issue.Details["received"].(int); ok {
				if expected, ok := issue.Details["expected"].(int); ok {
					fmt.Printf("    received=%d, expected=%d\n", received, expected)
				}
			}

		case capture.AnomalyNonMonotonic:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, issue.Message)

		case capture.AnomalyInvalidInitialState, capture.AnomalyOddPayload, capture.AnomalyUnexportable:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, issue.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, issue.Message)
		}
	}

	if c.Frame.Partial() {
		fmt.Printf("  >>> FRAME INCOMPLETE <<<\n\n")
	} else {
		fmt.Println()
	}
}

// printLinkError prints a transport or timeout error in highlighted format
func printLinkError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mLINK ERROR:\033[0m %v\n\n", timestamp, err)
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(ctx context.Context, session *acquisition.Session, readErr <-chan error, connInfo string) error {
	m := initialModel(session, connInfo, statsInterval, showAll)
	p := tea.NewProgram(m)

	// Session results and link loss are forwarded to the TUI
	go func() {
		for {
			select {
			case r := <-session.Results():
				p.Send(resultMsg{result: r})
			case err := <-readErr:
				p.Send(linkClosedMsg{err: err})
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(ctx context.Context, session *acquisition.Session, readErr <-chan error, connInfo string) error {
	fmt.Printf("Edgetrace - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Issues only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case r := <-session.Results():
			switch {
			case r.Err != nil:
				printLinkError(r.Err)
			case len(r.Capture.Issues) > 0:
				printIssues(r.Capture)
			case showAll:
				fmt.Print(capture.FormatFrame(r.Capture.Frame))
			}

		case <-statsTicker.C:
			stats := session.Status().Stats
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case err := <-readErr:
			stats := session.Status().Stats
			fmt.Printf("Connection closed: %v\n\n", err)
			fmt.Print(stats.String())
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}
