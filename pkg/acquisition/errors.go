// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acquisition

import "github.com/pkg/errors"

var (
	// ErrResponseTimeout is reported when the analyzer does not start a
	// frame within the response window
	ErrResponseTimeout = errors.New("analyzer did not respond")

	// ErrTransportFault wraps errors reported by the transport
	ErrTransportFault = errors.New("transport fault")

	// ErrTransportClosed is reported when the link closes during a capture
	ErrTransportClosed = errors.New("transport closed")

	// ErrStopped is returned by calls made after Run has exited
	ErrStopped = errors.New("session stopped")
)

// transportError tags err as a transport fault while keeping the cause
type transportError struct {
	kind  error
	cause error
}

func (e *transportError) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *transportError) Is(target error) bool {
	return target == e.kind
}

func (e *transportError) Unwrap() error {
	return e.cause
}

// Cause implements the github.com/pkg/errors causer interface
func (e *transportError) Cause() error {
	return e.cause
}

func newTransportError(kind, cause error) error {
	return errors.WithStack(&transportError{kind: kind, cause: cause})
}
