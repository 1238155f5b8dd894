// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acquisition

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
)

// ReadBufferSize is the chunk size used by ReadLoop
const ReadBufferSize = 128

// retryDelay is the pause after a transient read error
const retryDelay = 10 * time.Millisecond

// FatalFunc reports whether a read error means the link is gone
type FatalFunc func(error) bool

// IsEOF is the default FatalFunc: only io.EOF and io.ErrClosedPipe end the
// link
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe)
}

// ReadLoop copies bytes from r to the session event channel until ctx is
// cancelled or fatal reports a read error as terminal. Transient errors are
// posted as EventError and the read is retried. A terminal error is posted
// as EventClosed and returned.
//
// A blocked Read is not interrupted by ctx; close the underlying connection
// to unblock it.
func ReadLoop(ctx context.Context, r io.Reader, events chan<- Event, fatal FatalFunc) error {
	if fatal == nil {
		fatal = IsEOF
	}

	post := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	buf := make([]byte, ReadBufferSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !post(Data(data)) {
				return ctx.Err()
			}
		}
		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fatal(err) {
			post(Closed(err))
			return errors.Wrap(err, "read")
		}
		if !post(Failed(err)) {
			return ctx.Err()
		}

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
