package ownerloop

import (
	"fmt"
)

// Priority selects the lane a task is queued on.
//
// Lanes are strictly ordered: the owner always runs the oldest item of the
// highest non-empty lane next. Within one lane, items run in post order.
//
// The zero value is PriorityDefault.
type Priority int8

const (
	// PriorityIdle is for work that may wait behind everything else.
	PriorityIdle Priority = -1
	// PriorityDefault is the lane used by Post, and by the synchronous
	// call bridge.
	PriorityDefault Priority = 0
	// PriorityHigh is for latency sensitive signals (frame acknowledgements,
	// touch samples). Used by Invoke and Source.
	PriorityHigh Priority = 1

	numPriorities = 3
)

// String implements fmt.Stringer.
func (p Priority) String() string {
	switch p {
	case PriorityIdle:
		return "idle"
	case PriorityDefault:
		return "default"
	case PriorityHigh:
		return "high"
	default:
		return fmt.Sprintf("Priority(%d)", int8(p))
	}
}

// Valid reports whether p is one of the defined priorities.
func (p Priority) Valid() bool {
	return p >= PriorityIdle && p <= PriorityHigh
}

// lane maps p to an index in [0, numPriorities), lowest priority first.
func (p Priority) lane() int {
	return int(p - PriorityIdle)
}
