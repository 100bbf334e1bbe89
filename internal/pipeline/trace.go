package pipeline

import "fmt"

// Status is the outcome of one state transition.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// TraceEntry records one visit of the state machine. Entries carry no
// timestamps so that identical input yields an identical trace.
type TraceEntry struct {
	State  State  `json:"state"`
	Status Status `json:"status"`
	Next   State  `json:"next,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Trace is the ordered transition log of one compilation.
type Trace struct {
	Entries []TraceEntry
	visits  map[State]int
}

func newTrace() *Trace {
	return &Trace{visits: make(map[State]int)}
}

// Complete records a successful transition out of state.
func (t *Trace) Complete(state, next State, detail string) {
	t.record(TraceEntry{State: state, Status: StatusCompleted, Next: next, Detail: detail})
}

// Fail records a failed check in state and where the machine went next.
func (t *Trace) Fail(state, next State, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	t.record(TraceEntry{State: state, Status: StatusFailed, Next: next, Detail: detail})
}

// Skip records a stage that was not attempted.
func (t *Trace) Skip(state State, reason string) {
	t.record(TraceEntry{State: state, Status: StatusSkipped, Detail: reason})
}

func (t *Trace) record(e TraceEntry) {
	t.visits[e.State]++
	t.Entries = append(t.Entries, e)
}

// Visits returns how often state has been left so far.
func (t *Trace) Visits(state State) int {
	return t.visits[state]
}

// Path returns the visited states in order, useful for logs and tests.
func (t *Trace) Path() []State {
	out := make([]State, 0, len(t.Entries))
	for _, e := range t.Entries {
		out = append(out, e.State)
	}
	return out
}

func (t *Trace) String() string {
	return fmt.Sprintf("%v", t.Path())
}
