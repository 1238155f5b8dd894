// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Edgetrace - Single channel logic analyzer host
//
// A CLI tool for arming the analyzer, reconstructing captured edge
// timestamps into a waveform and exporting them.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/edgetrace/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
