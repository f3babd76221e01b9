package ownerloop

// Task is a unit of work for the owner goroutine.
//
// Ownership of anything Run and Release close over moves to the loop when
// the task is posted. The loop guarantees Release is called exactly once:
//   - after Run returns (or panics), on the owner goroutine
//   - without Run, if the task is discarded by Close, on the closing goroutine
//   - without Run, if the post is rejected, on the posting goroutine
//
// Release is therefore the only safe place to free the task's payload. Tasks
// never repeat: each is removed after it has run once.
type Task struct {
	// Run is the task body. A nil Run is a no-op.
	Run func()
	// Release is the optional finalizer.
	Release func()
	// Priority selects the lane. The zero value is PriorityDefault.
	Priority Priority
}

// PostPayload posts body to run with payload on the owner goroutine of l,
// handing ownership of payload to the loop. The release func (optional) is
// guaranteed to be called exactly once with payload, per the Task contract,
// and is where the payload should be released.
func PostPayload[P any](l *Loop, priority Priority, payload P, body func(P), release func(P)) error {
	t := Task{Priority: priority}
	if body != nil {
		t.Run = func() { body(payload) }
	}
	if release != nil {
		t.Release = func() { release(payload) }
	}
	return l.PostTask(t)
}
