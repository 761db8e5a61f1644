package engine

// firing is one scheduled execution of an event.
type firing struct {
	// ExecTime is the simulation time the event executes at.
	ExecTime float64

	// FiredAt is the simulation time the trigger turned true.
	FiredAt float64

	// Values holds assignment values captured at trigger time, or nil
	// when they are computed at execution.
	Values []float64

	seq int64
}

// firingQueue holds an event's pending firings ordered by execution time.
// Firings with equal times keep their scheduling order.
//
// The queue is owned by a single event and only touched from the Model's
// goroutine, so it needs no locking.
type firingQueue struct {
	firings []firing
	nextSeq int64
}

// Push schedules f, keeping execution-time order (FIFO on ties).
func (q *firingQueue) Push(f firing) {
	q.nextSeq++
	f.seq = q.nextSeq

	i := len(q.firings)
	for i > 0 && q.firings[i-1].ExecTime > f.ExecTime {
		i--
	}
	q.firings = append(q.firings, firing{})
	copy(q.firings[i+1:], q.firings[i:])
	q.firings[i] = f
}

// Peek returns the earliest firing without removing it.
func (q *firingQueue) Peek() (firing, bool) {
	if len(q.firings) == 0 {
		return firing{}, false
	}
	return q.firings[0], true
}

// Pop removes and returns the earliest firing.
func (q *firingQueue) Pop() (firing, bool) {
	if len(q.firings) == 0 {
		return firing{}, false
	}
	f := q.firings[0]

	// Drop the captured values slice so it can be collected.
	q.firings[0] = firing{}

	if len(q.firings) == 1 {
		q.firings = q.firings[:0]
	} else {
		q.firings = q.firings[1:]
	}
	return f, true
}

// Clear discards every pending firing and returns how many there were.
func (q *firingQueue) Clear() int {
	n := len(q.firings)
	for i := range q.firings {
		q.firings[i] = firing{}
	}
	q.firings = q.firings[:0]
	return n
}

// Len returns the number of pending firings.
func (q *firingQueue) Len() int {
	return len(q.firings)
}
