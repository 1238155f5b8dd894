// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"

	"github.com/Thermoquad/edgetrace/pkg/acquisition"
)

// attachSession starts a session and a reader goroutine for conn. The
// returned channel receives the reader's exit error. Both stop when ctx is
// cancelled and conn is closed.
func attachSession(ctx context.Context, conn Connection, name string) (*acquisition.Session, <-chan error, error) {
	session := acquisition.NewSession(sessionOptions())
	go session.Run(ctx)

	if err := session.Post(ctx, acquisition.Opened(name, conn)); err != nil {
		return nil, nil, err
	}

	readErr := make(chan error, 1)
	go func() {
		readErr <- acquisition.ReadLoop(ctx, conn, session.Events(), isDisconnectionError)
	}()

	return session, readErr, nil
}
