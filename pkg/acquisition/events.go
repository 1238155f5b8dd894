// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package acquisition drives capture sessions against an edgetrace
// analyzer. A Session owns the frame decoder, the capture state and both
// protocol timers; transports feed it through a single event channel.
package acquisition

import (
	"fmt"
	"io"
)

// EventKind identifies a transport event
type EventKind int

// Transport event kinds
const (
	EventListed EventKind = iota
	EventOpened
	EventClosed
	EventError
	EventData
)

// String implements fmt.Stringer
func (k EventKind) String() string {
	switch k {
	case EventListed:
		return "LISTED"
	case EventOpened:
		return "OPENED"
	case EventClosed:
		return "CLOSED"
	case EventError:
		return "ERROR"
	case EventData:
		return "DATA"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is something the transport reports to the session.
//
//   - EventListed: Ports holds the available port names
//   - EventOpened: Port names the link, Conn is used to send commands
//   - EventClosed: the link is gone, Err may hold the cause
//   - EventError: a transient transport failure
//   - EventData: Data holds received bytes (owned by the session)
type Event struct {
	Kind  EventKind
	Ports []string
	Port  string
	Conn  io.Writer
	Data  []byte
	Err   error

	start *startRequest
}

// Listed creates an EventListed event
func Listed(ports []string) Event {
	return Event{Kind: EventListed, Ports: ports}
}

// Opened creates an EventOpened event
func Opened(port string, conn io.Writer) Event {
	return Event{Kind: EventOpened, Port: port, Conn: conn}
}

// Closed creates an EventClosed event
func Closed(err error) Event {
	return Event{Kind: EventClosed, Err: err}
}

// Failed creates an EventError event
func Failed(err error) Event {
	return Event{Kind: EventError, Err: err}
}

// Data creates an EventData event
func Data(b []byte) Event {
	return Event{Kind: EventData, Data: b}
}
