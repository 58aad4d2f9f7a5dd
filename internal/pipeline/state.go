package pipeline

import "fmt"

// State is the position of a run in Init -> Fetching -> Transcribing ->
// Synthesizing -> Done. Failed is absorbing and reachable from every
// in-progress state.
type State string

const (
	StateInit         State = "init"
	StateFetching     State = "fetching"
	StateTranscribing State = "transcribing"
	StateSynthesizing State = "synthesizing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// IsTerminal reports whether no further transition is possible.
func IsTerminal(s State) bool {
	return s == StateDone || s == StateFailed
}

func isAllowedTransition(from, to State) bool {
	if IsTerminal(from) {
		return false
	}
	if to == StateFailed {
		return true
	}
	switch from {
	case StateInit:
		return to == StateFetching
	case StateFetching:
		return to == StateTranscribing
	case StateTranscribing:
		return to == StateSynthesizing
	case StateSynthesizing:
		return to == StateDone
	default:
		return false
	}
}

// stage maps an in-progress state to the stage it executes.
func (s State) stage() Stage {
	switch s {
	case StateInit:
		return StagePrecondition
	case StateFetching:
		return StageFetch
	case StateTranscribing:
		return StageTranscribe
	case StateSynthesizing:
		return StageSynthesize
	default:
		return StageUnknown
	}
}

// machine tracks one run. It is confined to the goroutine executing the run.
type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: StateInit, history: []State{StateInit}}
}

func (m *machine) advance(to State) {
	if !isAllowedTransition(m.state, to) {
		panic(fmt.Sprintf("pipeline: disallowed transition %s -> %s", m.state, to))
	}
	m.state = to
	m.history = append(m.history, to)
}

// fail moves the run to Failed and returns the stage that was executing.
func (m *machine) fail() Stage {
	stage := m.state.stage()
	if !IsTerminal(m.state) {
		m.advance(StateFailed)
	}
	return stage
}
