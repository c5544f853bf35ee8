package oracle

import (
	"lessonrun/internal/engine"
	"lessonrun/internal/lesson"
	"lessonrun/internal/report"
)

const neverProduced = "expected output was never produced"

type slot struct {
	ann      lesson.Annotation
	stmt     int
	consumed bool
}

// matcher pairs events with annotations. Slots are kept in source order
// per statement and for the whole unit.
type matcher struct {
	stmts  []lesson.Statement
	slots  []*slot
	byStmt map[int][]*slot
}

func newMatcher(unit *lesson.Unit) *matcher {
	m := &matcher{stmts: unit.Statements(), byStmt: make(map[int][]*slot)}
	for _, st := range m.stmts {
		for _, a := range st.Annotations {
			s := &slot{ann: a, stmt: st.Index}
			m.slots = append(m.slots, s)
			m.byStmt[st.Index] = append(m.byStmt[st.Index], s)
		}
	}
	return m
}

// Match turns a run's trace into Result Records, in emission order.
//
// An event with a statement and line is checked against that statement's
// annotation on the line (the end line of an output call starting there).
// An event with only a statement takes the statement's next unconsumed
// annotation; an event with neither takes the unit's next one. Unclaimed
// events are informational passes. Once a completed run is exhausted,
// annotations left on statements that ran cleanly become mismatches.
func Match(unit *lesson.Unit, run *engine.Run) []report.Result {
	m := newMatcher(unit)
	var out []report.Result
	failed := make(map[int]bool)

	for _, e := range run.Trace {
		switch e.Kind {
		case engine.EntryOutput:
			out = append(out, m.event(e.Event))
		case engine.EntryFault:
			failed[e.Stmt] = true
			out = append(out, report.Result{
				Statement: e.Stmt,
				Line:      m.stmtLine(e.Stmt),
				Status:    report.StatusFault,
				Message:   e.Message,
			})
		case engine.EntrySkipped:
			failed[e.Stmt] = true
			out = append(out, report.Result{
				Statement: e.Stmt,
				Line:      m.stmtLine(e.Stmt),
				Status:    report.StatusSkipped,
				Message:   e.Message,
			})
		}
	}

	if run.TimedOut {
		msg := "unit exceeded its timeout"
		if run.Err != "" {
			msg += ": " + run.Err
		}
		return append(out, report.Result{Statement: -1, Status: report.StatusTimeout, Message: msg})
	}
	if run.State != engine.StateCompleted {
		return out
	}
	for _, s := range m.slots {
		if s.consumed || failed[s.stmt] {
			continue
		}
		out = append(out, report.Result{
			Statement: s.stmt,
			Line:      s.ann.Line,
			Status:    report.StatusMismatch,
			Expected:  report.Text(ExpectedText(s.ann.Expected)),
			Message:   neverProduced,
		})
	}
	return out
}

func (m *matcher) stmtLine(i int) int {
	if i < 0 || i >= len(m.stmts) {
		return 0
	}
	return m.stmts[i].Line
}

func (m *matcher) event(ev engine.Event) report.Result {
	r := report.Result{Statement: ev.Stmt, Line: ev.Line, Actual: report.Text(ev.Text), Status: report.StatusPass, Pass: true}
	s := m.claim(ev)
	if s == nil {
		return r
	}
	s.consumed = true
	expected := ExpectedText(s.ann.Expected)
	r.Statement = s.stmt
	r.Line = s.ann.Line
	r.Expected = report.Text(expected)
	if !Equal(expected, ev.Text) {
		r.Status = report.StatusMismatch
		r.Pass = false
	}
	return r
}

func (m *matcher) claim(ev engine.Event) *slot {
	if ev.Stmt < 0 || ev.Stmt >= len(m.stmts) {
		return next(m.slots)
	}
	if ev.Line <= 0 {
		return next(m.byStmt[ev.Stmt])
	}
	st := &m.stmts[ev.Stmt]
	line := ev.Line
	if _, ok := st.AnnotationAt(line); !ok {
		if call, ok := st.CallStartingAt(line); ok {
			line = call.EndLine
		}
	}
	for _, s := range m.byStmt[ev.Stmt] {
		if s.ann.Line == line {
			if s.consumed {
				return nil
			}
			return s
		}
	}
	return nil
}

func next(slots []*slot) *slot {
	for _, s := range slots {
		if !s.consumed {
			return s
		}
	}
	return nil
}
