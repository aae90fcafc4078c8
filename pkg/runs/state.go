// Package runs implements the durable run-orchestrator state machine
// (spec §4.1): guarded state transitions fenced by a lease token, and the
// per-phase checkpoint-then-resume execution loop that drives a run from
// CREATED to a terminal state.
package runs

import (
	"errors"
	"fmt"

	"github.com/codeready-toolchain/agentcore/ent/run"
)

// State is a run's position in the orchestrator state machine.
type State = run.State

// States, re-exported for callers that don't want to import ent/run directly.
const (
	StateCreated     = run.StateCreated
	StateValidating  = run.StateValidating
	StateDecomposing = run.StateDecomposing
	StateScheduling  = run.StateScheduling
	StateExecuting   = run.StateExecuting
	StateAggregating = run.StateAggregating
	StateFinalizing  = run.StateFinalizing
	StateCompleted   = run.StateCompleted
	StateFailed      = run.StateFailed
	StateCancelled   = run.StateCancelled
)

// transitions enumerates every legal edge of the state machine (spec §4.1).
var transitions = map[State]map[State]bool{
	StateCreated:     {StateValidating: true, StateCancelled: true},
	StateValidating:  {StateDecomposing: true, StateFailed: true, StateCancelled: true},
	StateDecomposing: {StateScheduling: true, StateFailed: true, StateCancelled: true},
	StateScheduling:  {StateExecuting: true, StateFailed: true, StateCancelled: true},
	StateExecuting:   {StateAggregating: true, StateFailed: true, StateCancelled: true},
	StateAggregating: {StateFinalizing: true, StateFailed: true, StateCancelled: true},
	StateFinalizing:  {StateCompleted: true, StateFailed: true},
}

// ErrInvalidTransition is returned when an edge is not in the transition table.
var ErrInvalidTransition = errors.New("invalid state transition")

// IsTerminal reports whether s has no outgoing transitions.
func IsTerminal(s State) bool {
	_, ok := transitions[s]
	return !ok
}

// checkTransition validates from→to against the table without touching
// the store; Machine.Transition calls this before attempting the guarded
// write.
func checkTransition(from, to State) error {
	edges, ok := transitions[from]
	if !ok || !edges[to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
