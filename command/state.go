// Package command records command buffers against the driver contract. A Recorder wraps one
// command buffer: its record calls take the typed objects of resource, descriptor and pipeline,
// validate the ordering rules the driver leaves undefined, and defer the first failure to End.
package command

import "fmt"

// State is where a Recorder is in its lifecycle
type State int

const (
	// StateInitial is a freshly allocated or reset recorder
	StateInitial State = iota
	// StateRecording is between Begin and End
	StateRecording
	// StateExecutable has been ended successfully and may be submitted
	StateExecutable
	// StatePending has been submitted and not yet seen to complete
	StatePending
	// StateInvalid failed during recording, was reset with release, or completed a one-time
	// submission. It must be begun again before use.
	StateInvalid
)

var stateMapping = map[State]string{
	StateInitial:    "Initial",
	StateRecording:  "Recording",
	StateExecutable: "Executable",
	StatePending:    "Pending",
	StateInvalid:    "Invalid",
}

func (s State) String() string {
	str, ok := stateMapping[s]
	if !ok {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return str
}
