package goengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/scanner"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"

	"lessonrun/internal/engine"
	"lessonrun/internal/lesson"
)

var (
	importRe  = regexp.MustCompile(`^import[\s("]`)
	posPrefix = regexp.MustCompile(`^(?:[^\s:]+:)?\d+:\d+: `)
	// yaegi reports a recovered panic location on stderr before
	// returning the panic as an error.
	panicNote = regexp.MustCompile(`^(?:[^\s:]+:)?\d+:\d+: panic`)
)

// unitRun is one unit's evaluation. Output writes arrive on yaegi's eval
// goroutine, so the attribution state is guarded by mu.
type unitRun struct {
	ctx     context.Context
	unit    *lesson.Unit
	stmts   []lesson.Statement
	symbols interp.Exports

	in   *interp.Interpreter
	rec  *engine.Recorder
	deps *engine.Dependencies
	life *engine.Lifecycle

	stdout, stderr *lineWriter

	mu       sync.Mutex
	current  engine.Origin
	running  int
	closed   bool
	timedOut bool
}

func newUnitRun(ctx context.Context, unit *lesson.Unit, symbols interp.Exports) *unitRun {
	u := &unitRun{
		ctx:     ctx,
		unit:    unit,
		stmts:   unit.Statements(),
		symbols: symbols,
		rec:     engine.NewRecorder(),
		deps:    engine.NewDependencies(),
		life:    engine.NewLifecycle(),
		current: engine.NoOrigin,
		running: -1,
	}
	u.stdout = &lineWriter{u: u, stream: engine.StreamStdout}
	u.stderr = &lineWriter{u: u, stream: engine.StreamStderr}
	return u
}

func (u *unitRun) result(state engine.UnitState, start time.Time) *engine.Run {
	u.flushOutput()
	run := &engine.Run{
		UnitID:   u.unit.ID,
		State:    state,
		Trace:    u.rec.Trace(),
		TimedOut: u.timedOut,
		Duration: time.Since(start),
	}
	if u.timedOut {
		run.Err = engine.ErrTimeout.Error()
	}
	return run
}

// close drops output from goroutines the lesson left running.
func (u *unitRun) close() {
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()
}

func (u *unitRun) newInterpreter() error {
	in := interp.New(interp.Options{
		Stdin:  strings.NewReader(""),
		Stdout: u.stdout,
		Stderr: u.stderr,
	})
	if err := in.Use(u.symbols); err != nil {
		return fmt.Errorf("load symbols: %w", err)
	}
	u.in = in
	return nil
}

func (u *unitRun) execute() error {
	if err := u.life.To(engine.StateRunning); err != nil {
		return err
	}
	if err := u.newInterpreter(); err != nil {
		return err
	}

	hoistErr, err := u.hoist()
	if err != nil {
		return err
	}
	for i := range u.stmts {
		if u.timedOut || u.ctx.Err() != nil {
			u.timedOut = true
			break
		}
		st := u.stmts[i]
		if isHoisted(st) {
			if err, failed := hoistErr[i]; failed {
				u.rec.Fault(i, describe(err))
				u.deps.Poison(st)
			} else {
				u.deps.Created(st)
			}
			continue
		}
		if msg, blocked := u.deps.Blocked(st); blocked {
			u.rec.Skip(i, msg)
			u.deps.Poison(st)
			continue
		}

		val, err := u.eval(i, st.Text)
		if err != nil {
			if u.interrupted(err) {
				break
			}
			u.rec.Fault(i, describe(err))
			u.deps.Poison(st)
			continue
		}
		u.deps.Created(st)
		if st.EmitsValue && u.rec.SyncEvents(i) == 0 {
			if text, ok := render(val); ok {
				u.rec.Emit(engine.Origin{Stmt: i}, engine.StreamValue, text)
			}
		}
	}

	if !u.timedOut {
		// Go units have no deferred queue; the drain phase is empty.
		if err := u.life.To(engine.StateDrainingAsync); err != nil {
			return err
		}
	}
	return u.life.Finish(u.timedOut)
}

// hoist evaluates imports, then type and function declarations, as one
// file so declarations may refer to each other in any order. If that
// fails, a fresh interpreter takes them one at a time so each failure is
// pinned to its own statement.
func (u *unitRun) hoist() (map[int]error, error) {
	var order []lesson.Statement
	for _, st := range u.stmts {
		if isHoisted(st) && isImport(st) {
			order = append(order, st)
		}
	}
	for _, st := range u.stmts {
		if isHoisted(st) && !isImport(st) {
			order = append(order, st)
		}
	}
	failed := make(map[int]error)
	if len(order) == 0 {
		return failed, nil
	}

	texts := make([]string, len(order))
	for i, st := range order {
		texts[i] = st.Text
	}
	_, err := u.eval(-1, strings.Join(texts, "\n"))
	if err == nil || u.interrupted(err) {
		return failed, nil
	}

	if err := u.newInterpreter(); err != nil {
		return nil, err
	}
	for _, st := range order {
		if _, err := u.eval(st.Index, st.Text); err != nil {
			if u.interrupted(err) {
				return failed, nil
			}
			failed[st.Index] = err
		}
	}
	return failed, nil
}

func (u *unitRun) eval(idx int, src string) (reflect.Value, error) {
	u.setRunning(idx)
	defer func() {
		u.flushOutput()
		u.setRunning(-1)
	}()
	return u.in.EvalWithContext(u.ctx, src)
}

func (u *unitRun) setRunning(idx int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.running = idx
	if idx >= 0 {
		u.current = engine.Origin{Stmt: idx}
	}
}

func (u *unitRun) interrupted(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || u.ctx.Err() != nil {
		u.timedOut = true
		return true
	}
	return false
}

// emit attributes a line of output to the statement being evaluated.
// Go output carries no line, so the matcher pairs it in annotation order.
func (u *unitRun) emit(stream engine.Stream, text string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed || u.ctx.Err() != nil {
		return
	}
	if stream == engine.StreamStderr && panicNote.MatchString(text) {
		return
	}
	u.rec.Emit(u.current, stream, text)
	if u.running >= 0 {
		u.rec.CountSync(u.running)
	}
}

func (u *unitRun) flushOutput() {
	u.stdout.flush()
	u.stderr.flush()
}

func isImport(st lesson.Statement) bool {
	return importRe.MatchString(st.Text)
}

func isHoisted(st lesson.Statement) bool {
	return st.Hoisted || isImport(st)
}

func describe(err error) string {
	var p interp.Panic
	if errors.As(err, &p) {
		return "panic: " + fmt.Sprint(p.Value)
	}
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return list[0].Msg
	}
	return posPrefix.ReplaceAllString(err.Error(), "")
}

// render formats a completion value the way fmt.Println would print it.
func render(v reflect.Value) (string, bool) {
	if !v.IsValid() || !v.CanInterface() {
		return "", false
	}
	return fmt.Sprint(v.Interface()), true
}

// lineWriter turns interpreter output into one event per line. A partial
// line is held until the next newline or the end of the statement.
type lineWriter struct {
	u      *unitRun
	stream engine.Stream

	mu  sync.Mutex
	buf []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf = append(w.buf, p...)
	var lines []string
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimSuffix(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}
	w.mu.Unlock()
	for _, l := range lines {
		w.u.emit(w.stream, l)
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	rest := string(w.buf)
	w.buf = nil
	w.mu.Unlock()
	if rest != "" {
		w.u.emit(w.stream, rest)
	}
}
