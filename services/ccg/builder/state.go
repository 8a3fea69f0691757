// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builder

import "time"

// State is a phase of one build.
//
// A build moves Scanning → Extracting → Resolving → Assembling → Done.
// Failed is reachable from any non-terminal state and only for fatal input
// errors. Scanning and Extracting overlap in time: the build enters
// Extracting when the first file is handed to a worker and stays there
// until the walk has finished and every worker has returned.
type State int

const (
	StateScanning State = iota
	StateExtracting
	StateResolving
	StateAssembling
	StateDone
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateExtracting:
		return "extracting"
	case StateResolving:
		return "resolving"
	case StateAssembling:
		return "assembling"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// next is the forward transition table. Failed is handled separately.
var next = map[State]State{
	StateScanning:   StateExtracting,
	StateExtracting: StateResolving,
	StateResolving:  StateAssembling,
	StateAssembling: StateDone,
}

// canTransition reports whether from → to is a legal transition.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return next[from] == to
}

// Phase records how long a build spent in one state.
type Phase struct {
	State    State
	Duration time.Duration
}
