// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/edgetrace/pkg/acquisition"
	"github.com/Thermoquad/edgetrace/pkg/capture"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Capture settings
	triggerEdge   = capture.EdgeRising
	clockDivision = capture.ClockDiv8
	noiseCanceler bool

	// Protocol tuning
	legacyCount bool
	quietMS     int
	responseMS  int

	logLevel string
	logger   = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "edgetrace",
	Short: "Single channel logic analyzer host",
	Long: `Edgetrace - A CLI tool for capturing and inspecting edge timing from a
single channel logic analyzer.

The analyzer is armed with a capture command (trigger edge, noise canceler,
clock division) and answers with one frame of 16-bit edge timestamps. Frames
are reconstructed into a square wave that can be viewed, exported to CSV, or
saved for offline replay.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the EDGETRACE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Capture settings
	rootCmd.PersistentFlags().VarP(&triggerEdge, "edge", "e", "Trigger edge (rising, falling, both)")
	rootCmd.PersistentFlags().VarP(&clockDivision, "clock-div", "c", "Clock division (8, 64, 256, 1024)")
	rootCmd.PersistentFlags().BoolVarP(&noiseCanceler, "noise-canceler", "n", false, "Enable the input noise canceler")

	// Protocol tuning
	rootCmd.PersistentFlags().BoolVar(&legacyCount, "legacy-count", false, "Decode the sample count the way early host software did")
	rootCmd.PersistentFlags().IntVar(&quietMS, "quiet-ms", int(capture.DefaultQuietInterval/time.Millisecond), "Inactivity that closes a frame (milliseconds)")
	rootCmd.PersistentFlags().IntVar(&responseMS, "response-ms", int(capture.DefaultResponseTimeout/time.Millisecond), "Time allowed for the analyzer to start answering (milliseconds)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error, disabled)")
}

// setupLogging installs a console logger on stderr
func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	if quietMS <= 0 || responseMS <= 0 {
		return fmt.Errorf("--quiet-ms and --response-ms must be positive")
	}

	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		Level(level).
		With().
		Timestamp().
		Logger()
	return nil
}

// currentSettings returns the capture settings selected on the command line
func currentSettings() capture.Settings {
	return capture.Settings{
		Edge:          triggerEdge,
		ClockDivision: clockDivision,
		NoiseCanceler: noiseCanceler,
	}
}

// sessionOptions builds session options from the command line
func sessionOptions() acquisition.Options {
	return acquisition.Options{
		Settings:          currentSettings(),
		QuietInterval:     time.Duration(quietMS) * time.Millisecond,
		ResponseTimeout:   time.Duration(responseMS) * time.Millisecond,
		LegacySampleCount: legacyCount,
		Logger:            logger,
	}
}

// Execute runs the root command. Cancelling ctx stops running sessions.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
