// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports present on this machine.

USB ports are shown with their vendor and product IDs, which helps pick the
analyzer out of several attached boards.`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

// listPorts returns the names of the available serial ports
func listPorts() ([]string, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	names := make([]string, 0, len(details))
	for _, d := range details {
		names = append(names, d.Name)
	}
	return names, nil
}

func runPorts(cmd *cobra.Command, args []string) error {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	if len(details) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tUSB\tVID:PID\tSERIAL\tPRODUCT")
	for _, d := range details {
		usb, ids := "no", "-"
		if d.IsUSB {
			usb = "yes"
			ids = fmt.Sprintf("%s:%s", d.VID, d.PID)
		}
		serialNumber := d.SerialNumber
		if serialNumber == "" {
			serialNumber = "-"
		}
		product := d.Product
		if product == "" {
			product = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.Name, usb, ids, serialNumber, product)
	}
	return w.Flush()
}
