// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Thermoquad/edgetrace/pkg/acquisition"
	"github.com/Thermoquad/edgetrace/pkg/capture"
	"github.com/spf13/cobra"
)

var (
	captureOutput  string
	captureSave    string
	captureWidth   int
	capturePayload bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Arm the analyzer once and print the captured trace",
	Long: `Send one capture command with the selected settings and wait for the
analyzer's frame.

The frame is reconstructed into a square wave and printed as an ASCII trace.
Use --output to export the dense per-tick table as CSV and --save to keep
the raw frame for later replay.

Exit codes:
  0 - Frame received
  1 - The analyzer did not answer within --response-ms
  2 - Connection error`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().StringVarP(&captureOutput, "output", "o", "", "Write the export table to this CSV file")
	captureCmd.Flags().StringVarP(&captureSave, "save", "s", "", "Save the raw frame to this capture record file")
	captureCmd.Flags().IntVarP(&captureWidth, "width", "w", 72, "Trace width in columns")
	captureCmd.Flags().BoolVar(&capturePayload, "payload", false, "Print a hex dump of the raw payload")
}

func runCapture(cmd *cobra.Command, args []string) error {
	conn, name, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	session, readErr, err := attachSession(ctx, conn, name)
	if err != nil {
		cancel()
		conn.Close()
		return err
	}

	settings := currentSettings()
	fmt.Printf("Edgetrace - Capture\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Settings: %s\n", settings)
	fmt.Printf("Command: %s\n", capture.FormatCommand(settings.Command()))
	fmt.Printf("Waiting up to %d ms for the analyzer...\n\n", responseMS)

	c, code := awaitCapture(ctx, session, readErr, settings)

	cancel()
	conn.Close()

	if c == nil {
		os.Exit(code)
	}

	printCapture(c, captureWidth, capturePayload)
	return writeCaptureFiles(c, captureOutput, captureSave)
}

// awaitCapture arms the analyzer and waits for its answer. It returns the
// capture, or nil and the process exit code.
func awaitCapture(ctx context.Context, session *acquisition.Session, readErr <-chan error, settings capture.Settings) (*acquisition.Capture, int) {
	sent, err := session.Start(ctx, settings)
	if err != nil || !sent {
		fmt.Fprintf(os.Stderr, "Connection error: could not send capture command\n")
		return nil, 2
	}

	for {
		select {
		case r := <-session.Results():
			switch {
			case r.Err == nil && r.Capture.Solicited:
				return r.Capture, 0
			case r.Err == nil:
				logger.Debug().Msg("ignoring frame that arrived before the capture command")
			case errors.Is(r.Err, acquisition.ErrResponseTimeout):
				fmt.Fprintf(os.Stderr, "TIMEOUT: %v within %d ms\n", r.Err, responseMS)
				return nil, 1
			case errors.Is(r.Err, acquisition.ErrTransportClosed):
				fmt.Fprintf(os.Stderr, "Connection error: %v\n", r.Err)
				return nil, 2
			default:
				logger.Warn().Err(r.Err).Msg("transport error during capture")
			}

		case err := <-readErr:
			// The session reports the close through Results; only a reader
			// that stopped without a close event ends the wait here
			if errors.Is(err, context.Canceled) {
				return nil, 2
			}
			readErr = nil

		case <-ctx.Done():
			return nil, 2
		}
	}
}

// printCapture prints the frame summary, validation issues and trace
func printCapture(c *acquisition.Capture, width int, showPayload bool) {
	fmt.Print(capture.FormatFrame(c.Frame))
	if showPayload {
		fmt.Print(capture.FormatPayload(c.Frame.Payload()))
	}
	if len(c.Issues) > 0 {
		fmt.Printf("\033[1;33mVALIDATION ISSUES:\033[0m\n")
		fmt.Print(capture.FormatValidationErrors(c.Issues))
	}

	first, _ := capture.Span(c.Waveform)
	scale := fitScale(c.Waveform, width)
	fmt.Printf("\nTrace (%d tick/col, edge=%s):\n", scale, c.Settings.Edge)
	for _, line := range renderTrace(c.Waveform, first, scale, width) {
		fmt.Printf("  %s\n", line)
	}
	fmt.Println()
}

// writeCaptureFiles writes the CSV export and capture record when requested
func writeCaptureFiles(c *acquisition.Capture, csvPath, recordPath string) error {
	if csvPath != "" {
		rows := c.Rows()
		if err := exportCSV(csvPath, rows); err != nil {
			return err
		}
		fmt.Printf("Exported %d rows to %s\n", len(rows), csvPath)
	}

	if recordPath != "" {
		if err := capture.SaveRecord(recordPath, c.Record()); err != nil {
			return err
		}
		fmt.Printf("Saved capture record to %s\n", recordPath)
	}
	return nil
}

// exportCSV writes rows to path
func exportCSV(path string, rows []capture.Row) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("export path is empty")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := capture.WriteCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
