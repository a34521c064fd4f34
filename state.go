package flowgraph

import "fmt"

// State of a block, evaluated by the scheduler once per pass.
type State int32

// Block states. Done is terminal.
const (
	// BlockedIn means at least one input lacks enough items.
	BlockedIn State = iota
	// BlockedOut means at least one output lacks free space.
	BlockedOut
	// Ready means work can be called.
	Ready
	// Running means work is being executed.
	Running
	// Done means the block will never be ready again.
	Done
)

func (s State) String() string {
	switch s {
	case BlockedIn:
		return "blocked_in"
	case BlockedOut:
		return "blocked_out"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}
