// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/Thermoquad/edgetrace/pkg/capture"
	"github.com/spf13/cobra"
)

var rawLogPayload bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display received frames in human-readable format",
	Long: `Continuously decode and display analyzer frames as they arrive.

No capture command is sent; frames triggered by another host or by a
previous command are decoded with the settings given on the command line.
Each frame is shown with its timestamp, header fields and sample list.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogPayload, "payload", false, "Print a hex dump of each payload")
}

func runRawLog(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("Edgetrace - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	for {
		select {
		case r := <-session.Results():
			if r.Err != nil {
				fmt.Printf("[ERROR] %v\n", r.Err)
				continue
			}
			fmt.Print(capture.FormatFrame(r.Capture.Frame))
			if rawLogPayload {
				fmt.Print(capture.FormatPayload(r.Capture.Frame.Payload()))
			}
			if len(r.Capture.Issues) > 0 {
				fmt.Print(capture.FormatValidationErrors(r.Capture.Issues))
			}
			fmt.Println()

		case err := <-readErr:
			fmt.Printf("Connection closed: %v\n", err)
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}
