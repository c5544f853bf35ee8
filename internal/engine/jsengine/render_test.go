package jsengine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lessonrun/internal/engine"
)

func TestRenderValues(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"top level string is raw", `console.log("it's")`, "it's"},
		{"primitives", `console.log(1, 0.5, true, null, undefined, NaN)`, "1 0.5 true null undefined NaN"},
		{"plain object", `console.log({a: 1, b: "x"})`, `{a: 1, b: "x"}`},
		{"quoted keys", `console.log({"my-key": 1, ok: 2})`, `{"my-key": 1, ok: 2}`},
		{"empty object", `console.log({})`, "{}"},
		{"nested arrays", `console.log([1, "a", [2, [3]]])`, `[1, "a", [2, [3]]]`},
		{"holes", `console.log([1, , , 4])`, "[1, empty x2, 4]"},
		{"depth limit", `console.log({a: {b: {c: {d: {e: 1}}}}})`, "{a: {b: {c: {d: [Object]}}}}"},
		{"map", `console.log(new Map([["k", {v: 1}]]))`, `Map(1) {"k" => {v: 1}}`},
		{"set", `console.log(new Set([1, "two"]))`, `Set(2) {1, "two"}`},
		{"error", `console.log(new TypeError("bad"))`, "TypeError: bad"},
		{"regexp", `console.log(/a+b/g)`, "/a+b/g"},
		{"date", `console.log(new Date(0))`, "1970-01-01T00:00:00.000Z"},
		{"named function", `console.log(function foo() {})`, "[Function: foo]"},
		{"anonymous function", `console.log([() => 1][0])`, "[Function (anonymous)]"},
		{"symbol", `console.log(Symbol("s"))`, "Symbol(s)"},
		{"symbol without description", `console.log([Symbol()])`, "[Symbol()]"},
		{"negative zero", `console.log(-0, [-0], 0)`, "-0 [-0] 0"},
		{"nested collections", `console.log({m: new Map(), s: new Set([[1]])})`, "{m: Map(0) {}, s: Set(1) {[1]}}"},
		{"promise in array", `console.log([Promise.resolve("x")])`, `[Promise {"x"}]`},
		{"fulfilled promise", `console.log(Promise.resolve(3))`, "Promise {3}"},
		{"pending promise", `console.log(new Promise(() => {}))`, "Promise {<pending>}"},
		{"string in object is quoted", `console.log({s: "a\"b"})`, `{s: "a\"b"}`},
		{"format specifiers", `console.log("%s is %d years", "Ada", 36)`, "Ada is 36 years"},
		{"integer specifier truncates", `console.log("%i", 3.9)`, "3"},
		{"object specifier", `console.log("got %o", {a: [1]})`, "got {a: [1]}"},
		{"json specifier", `console.log("%j", {a: [1]})`, `{"a":[1]}`},
		{"escaped percent", `console.log("100%%")`, "100%"},
		{"missing argument", `console.log("%d")`, "%d"},
		{"css specifier", `console.log("%cstyled", "color: red")`, "styled"},
		{"extra arguments", `console.log("%s", "a", "b")`, "a b"},
		{"dir quotes strings", `console.dir("x")`, `"x"`},
		{"trace prefix", `console.trace("here")`, "Trace: here"},
		{"empty log", `console.log()`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := runJS(t, tt.src+"\n")
			require.Equal(t, []string{tt.want}, texts(run))
		})
	}
}

func TestRenderIgnoresShadowedCollectionGlobals(t *testing.T) {
	run := runJS(t, `const m = new Map([["k", 1]]);
globalThis.Map = function Map() {};
console.log(m);
`)
	require.Equal(t, []string{`Map(1) {"k" => 1}`}, texts(run))
}

func TestRenderClassInstanceAndClass(t *testing.T) {
	run := runJS(t, `class Person {
  constructor(name) {
    this.name = name;
  }
}
console.log(new Person("Ada"));
console.log(Person);
`)
	require.Equal(t, []string{`Person {name: "Ada"}`, "[class Person]"}, texts(run))
}

func TestRenderCircularAndNullPrototype(t *testing.T) {
	run := runJS(t, `const o = {name: "o"};
o.self = o;
console.log(o);
const bare = Object.create(null);
bare.a = 1;
console.log(bare);
const shared = [1];
console.log([shared, shared]);
`)
	require.Equal(t, []string{
		`{name: "o", self: [Circular]}`,
		"[Object: null prototype] {a: 1}",
		"[[1], [1]]",
	}, texts(run))
}

func TestConsoleAssert(t *testing.T) {
	run := runJS(t, "console.assert(true, \"fine\");\nconsole.assert(1 > 2, \"nope\", 3);\nconsole.assert(false);\n")
	events := run.Events()
	require.Len(t, events, 2)
	require.Equal(t, "Assertion failed: nope 3", events[0].Text)
	require.Equal(t, engine.StreamStderr, events[0].Stream)
	require.Equal(t, "Assertion failed", events[1].Text)
}

func TestTimerRequiresCallback(t *testing.T) {
	run := runJS(t, "setTimeout(\"code\", 1);\n")
	require.Len(t, run.Trace, 1)
	require.Equal(t, engine.EntryFault, run.Trace[0].Kind)
	require.Contains(t, run.Trace[0].Message, "TypeError")
}
