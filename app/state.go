// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"fmt"

	"github.com/bermoid/bermoid"
)

// State is one phase of the application lifecycle. Transitions only
// move forward, from [StateIdle] through [StateStopped].
type State int32

const (
	StateIdle State = iota
	StateStartupPending
	StateRunning
	StateShutdownPending
	StateStopped
)

// String implements the [fmt.Stringer] interface.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStartupPending:
		return "startup-pending"
	case StateRunning:
		return "running"
	case StateShutdownPending:
		return "shutdown-pending"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("unknown(%d)", int32(s))
}

// InvalidTransitionError occurs when a lifecycle event arrives in a
// state that does not permit it.
type InvalidTransitionError struct {
	From  State
	Event bermoid.EventType
}

// Error implements the error interface.
func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("app: event %q not permitted in state %q", e.Event, e.From)
}
