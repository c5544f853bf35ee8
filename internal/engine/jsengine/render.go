package jsengine

import (
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"lessonrun/internal/oracle"
)

const maxInspectDepth = 4

// helpersSource builds the JS helpers the inspector calls back into.
const helpersSource = `(function () {
	return {
		entries: function (c) { return Array.from(c); },
		json: function (v) { return JSON.stringify(v); },
		iso: function (d) { return isNaN(d.getTime()) ? "Invalid Date" : d.toISOString(); }
	};
})()`

type helpers struct {
	entries goja.Callable
	json    goja.Callable
	iso     goja.Callable

	// Captured before lesson code runs, so shadowing the globals does not
	// change how collections render.
	mapCtor *goja.Object
	setCtor *goja.Object
}

func loadHelpers(vm *goja.Runtime) (helpers, error) {
	v, err := vm.RunString(helpersSource)
	if err != nil {
		return helpers{}, err
	}
	obj := v.ToObject(vm)
	var h helpers
	var ok bool
	if h.entries, ok = goja.AssertFunction(obj.Get("entries")); !ok {
		return helpers{}, errHelper("entries")
	}
	if h.json, ok = goja.AssertFunction(obj.Get("json")); !ok {
		return helpers{}, errHelper("json")
	}
	if h.iso, ok = goja.AssertFunction(obj.Get("iso")); !ok {
		return helpers{}, errHelper("iso")
	}
	if h.mapCtor, ok = vm.Get("Map").(*goja.Object); !ok {
		return helpers{}, errHelper("Map")
	}
	if h.setCtor, ok = vm.Get("Set").(*goja.Object); !ok {
		return helpers{}, errHelper("Set")
	}
	return h, nil
}

type errHelper string

func (e errHelper) Error() string { return "jsengine: helper " + string(e) + " is not callable" }

// inspector renders goja values in the canonical form the oracle compares
// against: strings are raw at the top level and double-quoted inside
// structures, objects list own enumerable keys in insertion order.
type inspector struct {
	vm   *goja.Runtime
	help helpers
	seen map[*goja.Object]bool
}

func newInspector(vm *goja.Runtime, h helpers) *inspector {
	return &inspector{vm: vm, help: h, seen: make(map[*goja.Object]bool)}
}

// Top renders a value as an output call prints it.
func (in *inspector) Top(v goja.Value) string {
	if s, ok := stringValue(v); ok {
		return s
	}
	return in.value(v, 0)
}

func stringValue(v goja.Value) (string, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", false
	}
	if _, isObj := v.(*goja.Object); isObj {
		return "", false
	}
	if _, isSym := v.(*goja.Symbol); isSym {
		return "", false
	}
	if t := v.ExportType(); t != nil && t.Kind() == reflect.String {
		return v.String(), true
	}
	return "", false
}

func (in *inspector) value(v goja.Value, depth int) string {
	switch {
	case v == nil, goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if sym, ok := v.(*goja.Symbol); ok {
		return "Symbol(" + sym.String() + ")"
	}
	obj, isObj := v.(*goja.Object)
	if !isObj {
		if s, ok := stringValue(v); ok {
			return oracle.QuoteString(s)
		}
		switch n := v.Export().(type) {
		case *big.Int:
			return v.String() + "n"
		case float64:
			if n == 0 && math.Signbit(n) {
				return "-0"
			}
		}
		return v.String()
	}
	if in.seen[obj] {
		return "[Circular]"
	}
	in.seen[obj] = true
	defer delete(in.seen, obj)
	return in.object(obj, depth)
}

func (in *inspector) object(obj *goja.Object, depth int) string {
	if _, ok := goja.AssertFunction(obj); ok {
		return in.function(obj)
	}
	// Map, Set and Promise instances report the generic "Object" class.
	if _, ok := obj.Export().(*goja.Promise); ok {
		return in.promise(obj, depth)
	}
	if kind := in.collectionKind(obj); kind != "" {
		if depth >= maxInspectDepth {
			return "[" + kind + "]"
		}
		return in.collection(obj, kind, depth)
	}
	switch obj.ClassName() {
	case "Array":
		if depth >= maxInspectDepth {
			return "[Array]"
		}
		return in.array(obj, depth)
	case "Error":
		return obj.String()
	case "RegExp":
		return obj.String()
	case "Date":
		if s, err := in.help.iso(goja.Undefined(), obj); err == nil {
			return s.String()
		}
		return "Invalid Date"
	}
	if depth >= maxInspectDepth {
		return "[Object]"
	}
	return in.plain(obj, depth)
}

func (in *inspector) function(obj *goja.Object) string {
	name := ""
	if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
		name = n.String()
	}
	if strings.HasPrefix(strings.TrimSpace(obj.String()), "class") {
		if name == "" {
			return "[class (anonymous)]"
		}
		return "[class " + name + "]"
	}
	if name == "" {
		return "[Function (anonymous)]"
	}
	return "[Function: " + name + "]"
}

func (in *inspector) array(obj *goja.Object, depth int) string {
	n := int(obj.Get("length").ToInteger())
	parts := make([]string, 0, n)
	holes := 0
	flush := func() {
		if holes > 0 {
			parts = append(parts, "empty x"+strconv.Itoa(holes))
			holes = 0
		}
	}
	for i := 0; i < n; i++ {
		el := obj.Get(strconv.Itoa(i))
		if el == nil {
			holes++
			continue
		}
		flush()
		parts = append(parts, in.value(el, depth+1))
	}
	flush()
	return "[" + strings.Join(parts, ", ") + "]"
}

func (in *inspector) collectionKind(obj *goja.Object) string {
	switch {
	case in.vm.InstanceOf(obj, in.help.mapCtor):
		return "Map"
	case in.vm.InstanceOf(obj, in.help.setCtor):
		return "Set"
	}
	return ""
}

func (in *inspector) collection(obj *goja.Object, kind string, depth int) string {
	size := obj.Get("size").ToInteger()
	head := kind + "(" + strconv.FormatInt(size, 10) + ")"
	items, err := in.help.entries(goja.Undefined(), obj)
	if err != nil {
		return head + " {}"
	}
	arr := items.ToObject(in.vm)
	n := int(arr.Get("length").ToInteger())
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		item := arr.Get(strconv.Itoa(i))
		if kind == "Map" {
			pair := item.ToObject(in.vm)
			parts = append(parts, in.value(pair.Get("0"), depth+1)+" => "+in.value(pair.Get("1"), depth+1))
			continue
		}
		parts = append(parts, in.value(item, depth+1))
	}
	return head + " {" + strings.Join(parts, ", ") + "}"
}

func (in *inspector) promise(obj *goja.Object, depth int) string {
	p, ok := obj.Export().(*goja.Promise)
	if !ok {
		return "Promise {}"
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return "Promise {" + in.value(p.Result(), depth+1) + "}"
	case goja.PromiseStateRejected:
		return "Promise {<rejected> " + in.value(p.Result(), depth+1) + "}"
	default:
		return "Promise {<pending>}"
	}
}

func (in *inspector) plain(obj *goja.Object, depth int) string {
	prefix := ""
	if proto := obj.Prototype(); proto == nil {
		prefix = "[Object: null prototype] "
	} else if name := constructorName(proto); name != "" && name != "Object" {
		prefix = name + " "
	}
	keys := obj.Keys()
	if len(keys) == 0 {
		return prefix + "{}"
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		key := k
		if !oracle.IsBareKey(k) {
			key = oracle.QuoteString(k)
		}
		parts = append(parts, key+": "+in.value(obj.Get(k), depth+1))
	}
	return prefix + "{" + strings.Join(parts, ", ") + "}"
}

func constructorName(proto *goja.Object) string {
	ctor, ok := proto.Get("constructor").(*goja.Object)
	if !ok {
		return ""
	}
	if n := ctor.Get("name"); n != nil && !goja.IsUndefined(n) {
		return n.String()
	}
	return ""
}

// formatArgs implements console's printf-style formatting: %s %d %i %f
// %o %O %j %c and %%. Arguments left over are appended space-separated.
func (in *inspector) formatArgs(args []goja.Value) string {
	if len(args) == 0 {
		return ""
	}
	var out []string
	rest := args
	if f, ok := stringValue(args[0]); ok && strings.Contains(f, "%") {
		formatted, used := in.printf(f, args[1:])
		out = append(out, formatted)
		rest = args[1+used:]
	}
	for _, a := range rest {
		out = append(out, in.Top(a))
	}
	return strings.Join(out, " ")
}

func (in *inspector) printf(format string, args []goja.Value) (string, int) {
	var b strings.Builder
	used := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			b.WriteByte(c)
			continue
		}
		verb := format[i+1]
		if verb == '%' {
			b.WriteByte('%')
			i++
			continue
		}
		if !strings.ContainsRune("sdifoOjc", rune(verb)) {
			b.WriteByte(c)
			continue
		}
		i++
		if used >= len(args) {
			b.WriteByte('%')
			b.WriteByte(verb)
			continue
		}
		arg := args[used]
		used++
		switch verb {
		case 's':
			b.WriteString(in.Top(arg))
		case 'd':
			b.WriteString(in.vm.ToValue(arg.ToFloat()).String())
		case 'i':
			b.WriteString(strconv.FormatInt(arg.ToInteger(), 10))
		case 'f':
			b.WriteString(in.vm.ToValue(arg.ToFloat()).String())
		case 'o', 'O':
			b.WriteString(in.value(arg, 0))
		case 'j':
			if s, err := in.help.json(goja.Undefined(), arg); err == nil && !goja.IsUndefined(s) {
				b.WriteString(s.String())
			} else {
				b.WriteString("[Circular]")
			}
		case 'c':
		}
	}
	return b.String(), used
}
