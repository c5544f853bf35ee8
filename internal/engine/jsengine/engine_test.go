package jsengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"lessonrun/internal/engine"
	"lessonrun/internal/lesson"
	"lessonrun/internal/loader"
)

func parseUnit(t *testing.T, lang lesson.Language, src string) *lesson.Unit {
	t.Helper()
	name := "unit.js"
	if lang == lesson.LanguageTS {
		name = "unit.ts"
	}
	suite, err := loader.Parse(name, lang, []byte(src), loader.Options{})
	require.NoError(t, err)
	require.Empty(t, suite.Problems)
	require.Len(t, suite.Units, 1)
	return suite.Units[0]
}

func runJS(t *testing.T, src string) *engine.Run {
	t.Helper()
	return runWith(t, New(Options{Clocks: engine.VirtualClocks}), lesson.LanguageJS, src, 5*time.Second)
}

func runWith(t *testing.T, e *Engine, lang lesson.Language, src string, timeout time.Duration) *engine.Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	run, err := e.Run(ctx, parseUnit(t, lang, src))
	require.NoError(t, err)
	return run
}

func texts(run *engine.Run) []string {
	var out []string
	for _, ev := range run.Events() {
		out = append(out, ev.Text)
	}
	return out
}

func TestSyncOutputAttribution(t *testing.T) {
	defer goleak.VerifyNone(t)

	run := runJS(t, "const a = 1;\nconsole.log(a + 1); // 2\nconsole.log(\n  a,\n  'x'\n); // 1 x\n")
	require.Equal(t, engine.StateCompleted, run.State)
	events := run.Events()
	require.Len(t, events, 2)
	require.Equal(t, engine.Event{Seq: 0, Stmt: 1, Line: 2, Stream: engine.StreamStdout, Text: "2"}, events[0])
	require.Equal(t, 2, events[1].Stmt)
	require.Equal(t, "1 x", events[1].Text)
}

func TestCompletionValueEvent(t *testing.T) {
	run := runJS(t, "2 + 2 // 4\n\"5\" == 5 // true\n\"5\" === 5 // false\n")
	events := run.Events()
	require.Equal(t, []string{"4", "true", "false"}, texts(run))
	for i, ev := range events {
		require.Equal(t, engine.StreamValue, ev.Stream)
		require.Equal(t, i, ev.Stmt)
		require.Equal(t, i+1, ev.Line)
	}
}

func TestCompletionValueSuppressedByOutput(t *testing.T) {
	run := runJS(t, `function greet() { console.log("hi"); return 1 }
greet() // "hi"
`)
	events := run.Events()
	require.Len(t, events, 1)
	require.Equal(t, "hi", events[0].Text)
	require.Equal(t, 1, events[0].Stmt, "attributed to the annotated call site")
	require.Equal(t, 2, events[0].Line)
}

func TestMicrotasksBeforeTimers(t *testing.T) {
	run := runJS(t, `setTimeout(() => console.log("timer"), 0);
Promise.resolve().then(() => console.log("micro"));
queueMicrotask(() => console.log("queued"));
console.log("sync");
`)
	require.Equal(t, []string{"sync", "micro", "queued", "timer"}, texts(run))
	events := run.Events()
	require.Equal(t, 3, events[0].Stmt)
	require.Equal(t, 1, events[1].Stmt)
	require.Equal(t, 2, events[2].Stmt)
	require.Equal(t, 0, events[3].Stmt)
}

func TestTimersOrderedByDelayThenRegistration(t *testing.T) {
	run := runJS(t, `setTimeout(() => console.log("a"), 10);
setTimeout(() => console.log("b"), 10);
setTimeout(() => console.log("c"), 5);
setTimeout(console.log, 1, "native", 1);
`)
	require.Equal(t, []string{"native 1", "c", "a", "b"}, texts(run))
	require.Equal(t, 3, run.Events()[0].Stmt)
}

func TestTimersInterleaveWithMicrotasks(t *testing.T) {
	run := runJS(t, `setTimeout(() => {
  console.log("t1");
  Promise.resolve().then(() => console.log("m1"));
}, 1);
setTimeout(() => console.log("t2"), 1);
`)
	require.Equal(t, []string{"t1", "m1", "t2"}, texts(run))
}

func TestIntervalUntilCleared(t *testing.T) {
	run := runJS(t, `let n = 0;
const id = setInterval(() => {
  n++;
  console.log("tick " + n);
  if (n === 3) clearInterval(id);
}, 5);
`)
	require.Equal(t, []string{"tick 1", "tick 2", "tick 3"}, texts(run))
	require.Equal(t, engine.StateCompleted, run.State)
}

func TestClearTimeoutCancels(t *testing.T) {
	run := runJS(t, "const h = setTimeout(() => console.log(\"never\"), 5);\nclearTimeout(h);\nconsole.log(\"ok\");\n")
	require.Equal(t, []string{"ok"}, texts(run))
}

func TestFaultPoisonsOnlyDependents(t *testing.T) {
	run := runJS(t, `let a = 1;
let b = y + 1;
console.log(b);
console.log(a); // 1
`)
	require.Equal(t, engine.StateCompleted, run.State)
	require.Len(t, run.Trace, 3)

	require.Equal(t, engine.EntryFault, run.Trace[0].Kind)
	require.Equal(t, 1, run.Trace[0].Stmt)
	require.Equal(t, "ReferenceError: y is not defined", run.Trace[0].Message)

	require.Equal(t, engine.EntrySkipped, run.Trace[1].Kind)
	require.Equal(t, 2, run.Trace[1].Stmt)
	require.Contains(t, run.Trace[1].Message, `"b"`)

	require.Equal(t, engine.EntryOutput, run.Trace[2].Kind)
	require.Equal(t, "1", run.Trace[2].Event.Text)
}

func TestRedeclarationIsAFault(t *testing.T) {
	run := runJS(t, "let q = 1;\nlet q = 2;\nconsole.log(\"after\"); // after\n")
	require.Equal(t, engine.EntryFault, run.Trace[0].Kind)
	require.Equal(t, 1, run.Trace[0].Stmt)
	require.Contains(t, run.Trace[0].Message, "SyntaxError")
	require.Equal(t, []string{"after"}, texts(run))
}

func TestThrownValuesAreDescribed(t *testing.T) {
	run := runJS(t, "throw 5;\nthrow new TypeError(\"bad\");\n")
	require.Len(t, run.Trace, 2)
	require.Equal(t, "5", run.Trace[0].Message)
	require.Equal(t, "TypeError: bad", run.Trace[1].Message)
}

func TestHoistingFunctionsAndVars(t *testing.T) {
	run := runJS(t, `console.log(twice(4)); // 8
console.log(later); // undefined
function twice(n) {
  return n * 2;
}
var later = 1;
console.log(later); // 1
`)
	require.Equal(t, []string{"8", "undefined", "1"}, texts(run))
	for _, e := range run.Trace {
		require.Equal(t, engine.EntryOutput, e.Kind)
	}
}

func TestStderrStream(t *testing.T) {
	run := runJS(t, "console.error(\"bad\");\nconsole.warn(\"careful\");\nconsole.info(\"fine\");\n")
	events := run.Events()
	require.Equal(t, engine.StreamStderr, events[0].Stream)
	require.Equal(t, engine.StreamStderr, events[1].Stream)
	require.Equal(t, engine.StreamStdout, events[2].Stream)
}

func TestNativeReactionKeepsRegistrationOrigin(t *testing.T) {
	run := runJS(t, "const x = 3;\nPromise.resolve(x * 2).then(console.log); // 6\n")
	events := run.Events()
	require.Len(t, events, 1)
	require.Equal(t, "6", events[0].Text)
	require.Equal(t, 1, events[0].Stmt)
	require.Equal(t, 2, events[0].Line)
}

func TestCallbackOutputReplacesCompletionValue(t *testing.T) {
	run := runJS(t, "const later = (cb) => setTimeout(() => cb(43), 10);\nlater(console.log); // 43\n")
	events := run.Events()
	require.Len(t, events, 1)
	require.Equal(t, engine.Event{Seq: 0, Stmt: 1, Line: 2, Stream: engine.StreamStdout, Text: "43"}, events[0])
}

func TestCompletionValueRenderedWhenEvaluated(t *testing.T) {
	run := runJS(t, `const o = {};
o // {}
o.a = 1;
Promise.resolve(1) // Promise {1}
`)
	events := run.Events()
	require.Len(t, events, 2)
	require.Equal(t, engine.StreamValue, events[0].Stream)
	require.Equal(t, "{}", events[0].Text)
	require.Equal(t, "Promise {1}", events[1].Text)
	require.Equal(t, 4, events[1].Line)
}

func TestAsyncAwaitOrdering(t *testing.T) {
	run := runJS(t, `async function main() {
  console.log("start");
  await null;
  console.log("resumed");
}
main();
console.log("after call");
`)
	require.Equal(t, []string{"start", "after call", "resumed"}, texts(run))
}

func TestUnhandledRejectionFaults(t *testing.T) {
	run := runJS(t, "Promise.reject(new Error(\"nope\"));\nPromise.reject(1).catch(() => console.log(\"handled\"));\n")
	require.Equal(t, []string{"handled"}, texts(run))
	var faults []engine.Entry
	for _, e := range run.Trace {
		if e.Kind == engine.EntryFault {
			faults = append(faults, e)
		}
	}
	require.Len(t, faults, 1)
	require.Equal(t, -1, faults[0].Stmt)
	require.Equal(t, "Uncaught (in promise) Error: nope", faults[0].Message)
}

func TestTimerCallbackFaultAttributedToScheduler(t *testing.T) {
	run := runJS(t, "console.log(\"first\");\nsetTimeout(() => { throw new Error(\"boom\") }, 1);\nsetTimeout(() => console.log(\"still runs\"), 2);\n")
	require.Equal(t, []string{"first", "still runs"}, texts(run))
	require.Equal(t, engine.EntryFault, run.Trace[1].Kind)
	require.Equal(t, 1, run.Trace[1].Stmt)
	require.Equal(t, "Error: boom", run.Trace[1].Message)
}

func TestTimeoutStopsPendingTimer(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := New(Options{})
	run := runWith(t, e, lesson.LanguageJS, "console.log(\"before\");\nsetTimeout(() => console.log(\"done\"), 10000);\n", 100*time.Millisecond)
	require.True(t, run.TimedOut)
	require.Equal(t, engine.StateFaulted, run.State)
	require.Equal(t, []string{"before"}, texts(run))
	require.Equal(t, engine.ErrTimeout.Error(), run.Err)
}

func TestTimeoutInterruptsBusyLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := New(Options{Clocks: engine.VirtualClocks})
	start := time.Now()
	run := runWith(t, e, lesson.LanguageJS, "console.log(\"a\");\nwhile (true) {}\nconsole.log(\"b\");\n", 100*time.Millisecond)
	require.Less(t, time.Since(start), 5*time.Second)
	require.True(t, run.TimedOut)
	require.Equal(t, engine.StateFaulted, run.State)
	require.Equal(t, []string{"a"}, texts(run))
}

func TestFreshRuntimePerUnit(t *testing.T) {
	e := New(Options{Clocks: engine.VirtualClocks})
	src := "let x = 1;\nconsole.log(typeof leaked); // undefined\nvar leaked = true;\n"
	for i := 0; i < 2; i++ {
		run := runWith(t, e, lesson.LanguageJS, src, 5*time.Second)
		for _, entry := range run.Trace {
			require.NotEqual(t, engine.EntryFault, entry.Kind, entry.Message)
		}
		require.Equal(t, []string{"undefined"}, texts(run))
	}
}

func TestRejectsOtherLanguages(t *testing.T) {
	unit := parseUnit(t, lesson.LanguageTS, "1\n")
	_, err := New(Options{}).Run(context.Background(), unit)
	require.True(t, errors.Is(err, engine.ErrUnsupportedLanguage))
}

func TestRunIsRepeatable(t *testing.T) {
	src := `setTimeout(() => console.log("t"), 3);
Promise.resolve("p").then(console.log);
console.log({a: [1, 2]});
`
	first := runJS(t, src)
	second := runJS(t, src)
	if diff := cmp.Diff(first.Trace, second.Trace); diff != "" {
		t.Fatalf("trace differs between runs (-first +second):\n%s", diff)
	}
}
