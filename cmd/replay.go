// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/edgetrace/pkg/acquisition"
	"github.com/Thermoquad/edgetrace/pkg/capture"
	"github.com/spf13/cobra"
)

var (
	replayOutput   string
	replayWidth    int
	replayPayload  bool
	replayWaveform bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <record>",
	Short: "Reconstruct a saved capture record",
	Long: `Load a capture record written by 'capture --save' or the control TUI and
run it through the same reconstruction as a live capture.

The trigger edge stored in the record is used unless --edge is given, which
makes it possible to compare how a frame reads in each mode.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayOutput, "output", "o", "", "Write the export table to this CSV file")
	replayCmd.Flags().IntVarP(&replayWidth, "width", "w", 72, "Trace width in columns")
	replayCmd.Flags().BoolVar(&replayPayload, "payload", false, "Print a hex dump of the raw payload")
	replayCmd.Flags().BoolVar(&replayWaveform, "waveform", false, "Print the waveform vertices")
}

func runReplay(cmd *cobra.Command, args []string) error {
	record, err := capture.LoadRecord(args[0])
	if err != nil {
		return err
	}

	settings := record.Settings()
	if cmd.Flags().Changed("edge") {
		settings.Edge = triggerEdge
	}

	c := acquisition.Reconstruct(record.Frame(), settings)
	c.Port = record.Source

	fmt.Printf("Edgetrace - Replay\n")
	fmt.Printf("Record: %s (captured %s", args[0], record.CapturedAt.Format("2006-01-02 15:04:05"))
	if record.Source != "" {
		fmt.Printf(" on %s", record.Source)
	}
	fmt.Printf(")\n")
	fmt.Printf("Settings: %s\n\n", settings)

	printCapture(c, replayWidth, replayPayload)
	if replayWaveform {
		fmt.Print(capture.FormatWaveform(c.Waveform))
	}

	return writeCaptureFiles(c, replayOutput, "")
}
