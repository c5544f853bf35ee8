package jsengine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"

	"lessonrun/internal/engine"
	"lessonrun/internal/lesson"
)

const srcPrefix = "lesson:"

// preludeSource tags promise reactions with the origin they were
// registered from, so a reaction that is itself native (then(console.log))
// still reports against the right statement. It also provides
// queueMicrotask on top of the promise job queue.
const preludeSource = `(function (h) {
	var then = Promise.prototype.then;
	function bind(cb, token) {
		if (typeof cb !== "function") return cb;
		return function (v) {
			h.enter(token);
			try { return cb(v); } finally { h.exit(); }
		};
	}
	Object.defineProperty(Promise.prototype, "then", {
		value: function then_(onFulfilled, onRejected) {
			var token = h.mark();
			return then.call(this, bind(onFulfilled, token), bind(onRejected, token));
		},
		writable: true, configurable: true
	});
	Object.defineProperty(globalThis, "queueMicrotask", {
		value: function queueMicrotask(cb) {
			if (typeof cb !== "function") {
				throw new TypeError('The "callback" argument must be of type function');
			}
			Promise.resolve().then(function () { cb(); });
		},
		writable: true, configurable: true
	});
})`

var consoleMethods = []struct {
	name   string
	stream engine.Stream
}{
	{"log", engine.StreamStdout},
	{"info", engine.StreamStdout},
	{"debug", engine.StreamStdout},
	{"dir", engine.StreamStdout},
	{"trace", engine.StreamStdout},
	{"warn", engine.StreamStderr},
	{"error", engine.StreamStderr},
}

type timerTask struct {
	fn   goja.Callable
	args []goja.Value
}

// unitRun is the state of one unit's evaluation. It is only touched from
// the goroutine that called Run; the AfterFunc goroutine only calls
// Runtime.Interrupt, which is safe for concurrent use.
type unitRun struct {
	ctx   context.Context
	unit  *lesson.Unit
	stmts []lesson.Statement
	ts    bool

	vm    *goja.Runtime
	insp  *inspector
	rec   *engine.Recorder
	deps  *engine.Dependencies
	queue *engine.MacrotaskQueue
	life  *engine.Lifecycle

	current engine.Origin
	running int
	tokens  []engine.Origin
	entered []int

	rejections []*goja.Promise
	draining   bool
	timedOut   bool
}

func newUnitRun(ctx context.Context, unit *lesson.Unit, ts bool, queue *engine.MacrotaskQueue) *unitRun {
	return &unitRun{
		ctx:     ctx,
		unit:    unit,
		stmts:   unit.Statements(),
		ts:      ts,
		vm:      goja.New(),
		rec:     engine.NewRecorder(),
		deps:    engine.NewDependencies(),
		queue:   queue,
		life:    engine.NewLifecycle(),
		current: engine.NoOrigin,
		running: -1,
	}
}

func (u *unitRun) result(state engine.UnitState, start time.Time) *engine.Run {
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

func (u *unitRun) execute() error {
	if err := u.life.To(engine.StateRunning); err != nil {
		return err
	}
	if err := u.install(); err != nil {
		return fmt.Errorf("install runtime: %w", err)
	}

	stop := context.AfterFunc(u.ctx, func() { u.vm.Interrupt(engine.ErrTimeout) })
	defer stop()

	if _, err := u.vm.RunString("__lessonrun.run()"); err != nil && !u.interrupted(err) {
		return fmt.Errorf("statement driver: %w", err)
	}
	u.flushRejections()

	if !u.timedOut {
		if err := u.life.To(engine.StateDrainingAsync); err != nil {
			return err
		}
		u.drain()
	}
	u.rec.RetractValues()
	return u.life.Finish(u.timedOut)
}

func (u *unitRun) install() error {
	vm := u.vm
	vm.SetPromiseRejectionTracker(u.trackRejection)

	h, err := loadHelpers(vm)
	if err != nil {
		return err
	}
	u.insp = newInspector(vm, h)

	console := vm.NewObject()
	for _, m := range consoleMethods {
		if err := console.Set(m.name, u.consoleFunc(m.name, m.stream)); err != nil {
			return err
		}
	}
	if err := console.Set("assert", u.consoleAssert); err != nil {
		return err
	}
	globals := map[string]interface{}{
		"console":       console,
		"setTimeout":    u.scheduleFunc(false),
		"setInterval":   u.scheduleFunc(true),
		"clearTimeout":  u.clearTimer,
		"clearInterval": u.clearTimer,
	}
	for name, v := range globals {
		if err := vm.Set(name, v); err != nil {
			return err
		}
	}

	host := vm.NewObject()
	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"run":   u.runStatements,
		"mark":  u.mark,
		"enter": u.enter,
		"exit":  u.exit,
	} {
		if err := host.Set(name, fn); err != nil {
			return err
		}
	}
	if err := vm.GlobalObject().DefineDataProperty("__lessonrun", host, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		return err
	}

	prg, err := goja.Compile("lessonrun/prelude", preludeSource, false)
	if err != nil {
		return err
	}
	v, err := vm.RunProgram(prg)
	if err != nil {
		return err
	}
	prelude, ok := goja.AssertFunction(v)
	if !ok {
		return errors.New("prelude is not a function")
	}
	_, err = prelude(goja.Undefined(), host)
	return err
}

// runStatements is the body of the single outer call. Function
// declarations and var names are set up first; every statement then runs
// as its own program so its source name identifies it on the call stack.
func (u *unitRun) runStatements(goja.FunctionCall) goja.Value {
	hoistErr := u.hoist()

	for i := range u.stmts {
		if u.ctx.Err() != nil {
			u.timedOut = true
			u.vm.Interrupt(engine.ErrTimeout)
			break
		}
		st := u.stmts[i]
		if st.Hoisted {
			if err, failed := hoistErr[i]; failed {
				u.rec.Fault(i, u.describe(err))
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

		val, err := u.exec(st)
		if err != nil {
			if u.interrupted(err) {
				u.vm.Interrupt(engine.ErrTimeout)
				break
			}
			u.rec.Fault(i, u.describe(err))
			u.deps.Poison(st)
			continue
		}
		u.deps.Created(st)
		if st.EmitsValue && u.rec.SyncEvents(i) == 0 {
			u.emitValue(st, val)
		}
	}
	u.running = -1
	return goja.Undefined()
}

func (u *unitRun) hoist() map[int]error {
	failed := make(map[int]error)
	var vars []string
	for _, st := range u.stmts {
		vars = append(vars, st.VarNames...)
	}
	if len(vars) > 0 {
		// A failing name list leaves each var to its own statement.
		if _, err := u.vm.RunString("var " + strings.Join(vars, ", ") + ";"); err != nil && u.interrupted(err) {
			return failed
		}
	}
	for _, st := range u.stmts {
		if !st.Hoisted {
			continue
		}
		if _, err := u.exec(st); err != nil {
			if u.interrupted(err) {
				return failed
			}
			failed[st.Index] = err
		}
	}
	return failed
}

func (u *unitRun) exec(st lesson.Statement) (goja.Value, error) {
	u.running = st.Index
	u.current = engine.Origin{Stmt: st.Index, Line: u.lineOf(st.Line)}
	u.entered = u.entered[:0]
	defer func() { u.running = -1 }()

	src := st.Text
	if u.ts {
		js, err := stripTypes(src)
		if err != nil {
			return nil, err
		}
		src = js
	}
	prg, err := goja.Compile(srcPrefix+strconv.Itoa(st.Index), src, false)
	if err != nil {
		return nil, err
	}
	return u.vm.RunProgram(prg)
}

func (u *unitRun) drain() {
	u.draining = true
	defer func() { u.draining = false }()
	clock := u.queue.Clock()
	for {
		if u.ctx.Err() != nil {
			u.timedOut = true
			return
		}
		t, ok := u.queue.Pop()
		if !ok {
			return
		}
		if err := clock.WaitUntil(u.ctx, t.Due); err != nil {
			u.timedOut = true
			return
		}
		task := t.Payload.(timerTask)
		u.current = t.Origin
		u.entered = u.entered[:0]
		if _, err := task.fn(goja.Undefined(), task.args...); err != nil {
			if u.interrupted(err) {
				return
			}
			u.rec.Fault(t.Origin.Stmt, u.describe(err))
		}
		u.flushRejections()
		u.queue.Rearm(t)
	}
}

func (u *unitRun) interrupted(err error) bool {
	var ie *goja.InterruptedError
	if errors.As(err, &ie) || u.ctx.Err() != nil {
		u.timedOut = true
		return true
	}
	return false
}

func (u *unitRun) describe(err error) string {
	var exc *goja.Exception
	var syn *goja.CompilerSyntaxError
	var te *transpileError
	switch {
	case errors.As(err, &exc):
		return u.insp.Top(exc.Value())
	case errors.As(err, &syn):
		return "SyntaxError: " + syn.Message
	case errors.As(err, &te):
		return te.Error()
	}
	return err.Error()
}

func (u *unitRun) lineOf(line int) int {
	if u.ts {
		return 0
	}
	return line
}

// origin attributes the current emission. Lesson frames on the call stack
// win, innermost first, preferring one whose line carries an annotation.
// In a timer or promise reaction, an annotated registration site beats an
// unannotated frame, so getData(console.log) // 43 reports at its call.
// Otherwise the promise reaction being run, otherwise the statement or
// timer currently executing.
func (u *unitRun) origin() engine.Origin {
	var fallback *engine.Origin
	for _, f := range u.vm.CaptureCallStack(0, nil) {
		idx, ok := stmtIndex(f.SrcName())
		if !ok || idx >= len(u.stmts) {
			continue
		}
		st := &u.stmts[idx]
		line := st.Line + f.Position().Line - 1
		if u.ts {
			if len(st.Annotations) > 0 {
				return engine.Origin{Stmt: idx}
			}
		} else if annotatedLine(st, line) {
			return engine.Origin{Stmt: idx, Line: line}
		}
		if fallback == nil {
			fallback = &engine.Origin{Stmt: idx, Line: u.lineOf(line)}
		}
	}
	if reg, ok := u.registration(); ok && u.annotated(reg) {
		return reg
	}
	if fallback != nil {
		return *fallback
	}
	if n := len(u.entered); n > 0 {
		return u.tokens[u.entered[n-1]]
	}
	return u.current
}

// registration is the origin the running async callback was scheduled
// from, if one is running.
func (u *unitRun) registration() (engine.Origin, bool) {
	if n := len(u.entered); n > 0 {
		return u.tokens[u.entered[n-1]], true
	}
	if u.draining {
		return u.current, true
	}
	return engine.Origin{}, false
}

func (u *unitRun) annotated(o engine.Origin) bool {
	if o.Stmt < 0 || o.Stmt >= len(u.stmts) {
		return false
	}
	st := &u.stmts[o.Stmt]
	if u.ts {
		return len(st.Annotations) > 0
	}
	return annotatedLine(st, o.Line)
}

func stmtIndex(src string) (int, bool) {
	if !strings.HasPrefix(src, srcPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(src[len(srcPrefix):])
	return n, err == nil
}

func annotatedLine(st *lesson.Statement, line int) bool {
	if _, ok := st.AnnotationAt(line); ok {
		return true
	}
	if call, ok := st.CallStartingAt(line); ok {
		_, ok = st.AnnotationAt(call.EndLine)
		return ok
	}
	return false
}

func (u *unitRun) emit(stream engine.Stream, text string) {
	if u.ctx.Err() != nil {
		return
	}
	u.rec.Emit(u.origin(), stream, text)
	if u.running >= 0 {
		u.rec.CountSync(u.running)
	}
}

func (u *unitRun) emitValue(st lesson.Statement, v goja.Value) {
	if u.ctx.Err() != nil {
		return
	}
	line := 0
	if !u.ts && len(st.Annotations) > 0 {
		line = st.Annotations[0].Line
	}
	u.rec.Emit(engine.Origin{Stmt: st.Index, Line: line}, engine.StreamValue, u.insp.Top(v))
}

func (u *unitRun) consoleFunc(name string, stream engine.Stream) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var text string
		switch name {
		case "dir":
			text = u.insp.value(call.Argument(0), 0)
		case "trace":
			text = strings.TrimRight("Trace: "+u.insp.formatArgs(call.Arguments), " ")
		default:
			text = u.insp.formatArgs(call.Arguments)
		}
		u.emit(stream, text)
		return goja.Undefined()
	}
}

func (u *unitRun) consoleAssert(call goja.FunctionCall) goja.Value {
	if call.Argument(0).ToBoolean() {
		return goja.Undefined()
	}
	text := "Assertion failed"
	if len(call.Arguments) > 1 {
		text += ": " + u.insp.formatArgs(call.Arguments[1:])
	}
	u.emit(engine.StreamStderr, text)
	return goja.Undefined()
}

func (u *unitRun) scheduleFunc(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(u.vm.NewTypeError(`The "callback" argument must be of type function`))
		}
		ms := call.Argument(1).ToFloat()
		if math.IsNaN(ms) || ms < 1 {
			ms = 1
		}
		delay := time.Duration(ms * float64(time.Millisecond))
		var interval time.Duration
		if repeat {
			interval = delay
		}
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}
		id := u.queue.Schedule(delay, interval, u.origin(), timerTask{fn: fn, args: args})
		return u.vm.ToValue(id)
	}
}

func (u *unitRun) clearTimer(call goja.FunctionCall) goja.Value {
	id := call.Argument(0)
	if goja.IsUndefined(id) || goja.IsNull(id) {
		return goja.Undefined()
	}
	u.queue.Cancel(int(id.ToInteger()))
	return goja.Undefined()
}

func (u *unitRun) mark(goja.FunctionCall) goja.Value {
	u.tokens = append(u.tokens, u.origin())
	return u.vm.ToValue(len(u.tokens) - 1)
}

func (u *unitRun) enter(call goja.FunctionCall) goja.Value {
	tok := int(call.Argument(0).ToInteger())
	if tok >= 0 && tok < len(u.tokens) {
		u.entered = append(u.entered, tok)
	}
	return goja.Undefined()
}

func (u *unitRun) exit(goja.FunctionCall) goja.Value {
	if n := len(u.entered); n > 0 {
		u.entered = u.entered[:n-1]
	}
	return goja.Undefined()
}

func (u *unitRun) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		u.rejections = append(u.rejections, p)
	case goja.PromiseRejectionHandle:
		for i, q := range u.rejections {
			if q == p {
				u.rejections = append(u.rejections[:i], u.rejections[i+1:]...)
				break
			}
		}
	}
}

// flushRejections reports promises still rejected without a handler once
// the job queue has drained.
func (u *unitRun) flushRejections() {
	pending := u.rejections
	u.rejections = nil
	if u.ctx.Err() != nil {
		return
	}
	for _, p := range pending {
		u.rec.Fault(-1, "Uncaught (in promise) "+u.insp.Top(p.Result()))
	}
}
