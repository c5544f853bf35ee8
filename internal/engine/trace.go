package engine

import (
	"fmt"
	"sync"

	"lessonrun/internal/lesson"
)

// Recorder accumulates a run's trace in emission order.
type Recorder struct {
	mu    sync.Mutex
	seq   int
	trace []Entry
	// syncCount counts output events per statement emitted while that
	// statement's synchronous body was running.
	syncCount map[int]int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{syncCount: make(map[int]int)}
}

// Emit records an output event.
func (r *Recorder) Emit(origin Origin, stream Stream, text string) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := Event{Seq: r.seq, Stmt: origin.Stmt, Line: origin.Line, Stream: stream, Text: text}
	r.seq++
	r.trace = append(r.trace, Entry{Kind: EntryOutput, Event: ev, Stmt: origin.Stmt})
	return ev
}

// CountSync notes that stmt produced an event during its own body.
func (r *Recorder) CountSync(stmt int) {
	r.mu.Lock()
	r.syncCount[stmt]++
	r.mu.Unlock()
}

// SyncEvents returns how many events stmt produced during its body.
func (r *Recorder) SyncEvents(stmt int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.syncCount[stmt]
}

// RetractValues drops the completion value of every statement that also
// produced output of its own, typically through a callback that ran after
// the statement returned. Sequence numbers are reassigned.
func (r *Recorder) RetractValues() {
	r.mu.Lock()
	defer r.mu.Unlock()
	printed := make(map[int]bool)
	for _, e := range r.trace {
		if e.Kind == EntryOutput && e.Event.Stream != StreamValue {
			printed[e.Stmt] = true
		}
	}
	kept := r.trace[:0]
	seq := 0
	for _, e := range r.trace {
		if e.Kind == EntryOutput {
			if e.Event.Stream == StreamValue && printed[e.Stmt] {
				continue
			}
			e.Event.Seq = seq
			seq++
		}
		kept = append(kept, e)
	}
	r.trace = kept
	r.seq = seq
}

// Fault records a runtime fault of stmt.
func (r *Recorder) Fault(stmt int, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace = append(r.trace, Entry{Kind: EntryFault, Stmt: stmt, Message: msg})
}

// Skip records that stmt was not evaluated.
func (r *Recorder) Skip(stmt int, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace = append(r.trace, Entry{Kind: EntrySkipped, Stmt: stmt, Message: msg})
}

// Trace returns a copy of the entries recorded so far.
func (r *Recorder) Trace() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.trace...)
}

// Dependencies implements the skip policy: bindings a faulted statement
// failed to create are poisoned, and any later statement reading one of
// them is skipped (poisoning its own bindings in turn).
type Dependencies struct {
	poisoned map[string]int
	created  map[string]bool
}

// NewDependencies creates an empty tracker.
func NewDependencies() *Dependencies {
	return &Dependencies{poisoned: make(map[string]int), created: make(map[string]bool)}
}

// Poison marks the bindings of stmt as never created. Names an earlier
// statement already created keep their value and stay usable.
func (d *Dependencies) Poison(stmt lesson.Statement) {
	for _, name := range stmt.Declares {
		if d.created[name] {
			continue
		}
		if _, ok := d.poisoned[name]; !ok {
			d.poisoned[name] = stmt.Index
		}
	}
}

// Blocked reports whether stmt reads a poisoned binding and describes why.
func (d *Dependencies) Blocked(stmt lesson.Statement) (string, bool) {
	for _, name := range stmt.References {
		if src, ok := d.poisoned[name]; ok {
			return fmt.Sprintf("depends on %q, which statement %d failed to create", name, src), true
		}
	}
	return "", false
}

// Created records that stmt bound its names, lifting any earlier poison.
func (d *Dependencies) Created(stmt lesson.Statement) {
	for _, name := range stmt.Declares {
		d.created[name] = true
		delete(d.poisoned, name)
	}
}
