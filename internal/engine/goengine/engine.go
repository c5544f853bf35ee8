// Package goengine evaluates Go lesson units with the yaegi interpreter.
// Statements are fed to a fresh interpreter one at a time the way a REPL
// reads them; imports, type and function declarations go first.
package goengine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"lessonrun/internal/engine"
	"lessonrun/internal/lesson"
	"lessonrun/internal/logging"
)

// DefaultAllowed is the import allow-list used when none is configured.
var DefaultAllowed = []string{
	"bytes",
	"container/heap",
	"container/list",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"math/rand",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"sync",
	"time",
	"unicode",
	"unicode/utf8",
}

// denied packages are never importable from a lesson, whatever the
// configuration says.
var denied = map[string]bool{
	"net":       true,
	"net/http":  true,
	"os":        true,
	"os/exec":   true,
	"os/signal": true,
	"plugin":    true,
	"syscall":   true,
	"unsafe":    true,
}

// Options configures an Engine.
type Options struct {
	// Allowed lists importable standard library packages by import path.
	Allowed []string
}

// Engine runs Go units.
type Engine struct {
	symbols interp.Exports
	allowed []string
}

// New builds the restricted symbol table once; every run shares it
// read-only.
func New(opts Options) *Engine {
	allowed := opts.Allowed
	if len(allowed) == 0 {
		allowed = DefaultAllowed
	}
	set := make(map[string]bool, len(allowed))
	for _, p := range allowed {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if denied[p] {
			logging.Get(logging.CategoryEngine).Warn("go engine: package %s is never importable, ignoring", p)
			continue
		}
		set[p] = true
	}

	symbols := make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		// Keys are "<import path>/<package name>".
		i := strings.LastIndex(key, "/")
		if i < 0 || !set[key[:i]] {
			continue
		}
		symbols[key] = syms
	}

	e := &Engine{symbols: symbols}
	for p := range set {
		e.allowed = append(e.allowed, p)
	}
	sort.Strings(e.allowed)
	return e
}

// Language implements engine.Engine.
func (e *Engine) Language() lesson.Language { return lesson.LanguageGo }

// Allowed returns the effective import allow-list.
func (e *Engine) Allowed() []string { return append([]string(nil), e.allowed...) }

// Run evaluates unit in a fresh interpreter.
func (e *Engine) Run(ctx context.Context, unit *lesson.Unit) (run *engine.Run, err error) {
	if unit.Language != lesson.LanguageGo {
		return nil, fmt.Errorf("%w: go engine cannot run %s unit %s", engine.ErrUnsupportedLanguage, unit.Language, unit.ID)
	}
	start := time.Now()
	u := newUnitRun(ctx, unit, e.symbols)
	defer u.close()

	defer func() {
		if r := recover(); r != nil {
			logging.EngineError("panic in unit %s: %v\n%s", unit.ID, r, debug.Stack())
			u.rec.Fault(-1, fmt.Sprintf("engine panic: %v", r))
			run = u.result(engine.StateFaulted, start)
			run.Err = fmt.Sprintf("engine panic: %v", r)
			err = nil
		}
	}()

	logging.EngineDebug("running go unit %s (%d statements)", unit.ID, unit.Len())
	if execErr := u.execute(); execErr != nil {
		logging.EngineError("unit %s: %v", unit.ID, execErr)
		u.rec.Fault(-1, execErr.Error())
		run = u.result(engine.StateFaulted, start)
		run.Err = execErr.Error()
		return run, nil
	}
	run = u.result(u.life.State(), start)
	logging.EngineDebug("unit %s finished %s in %v", unit.ID, run.State, run.Duration)
	return run, nil
}
