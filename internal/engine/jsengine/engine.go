// Package jsengine evaluates JavaScript and TypeScript lesson units on
// goja. Each unit gets its own Runtime; statements run in order inside
// one outer call so promise jobs only drain where a script would drain
// them, then timers run off the harness macrotask queue.
package jsengine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"lessonrun/internal/engine"
	"lessonrun/internal/lesson"
	"lessonrun/internal/logging"
)

// Options configures an Engine.
type Options struct {
	// Language is js or ts. TS statements are type-stripped first.
	Language lesson.Language
	// Clocks builds the clock for each unit's timer queue.
	Clocks engine.ClockFactory
}

// Engine runs JS or TS units.
type Engine struct {
	lang   lesson.Language
	clocks engine.ClockFactory
}

// New creates an engine. The zero Options give a JS engine on real time.
func New(opts Options) *Engine {
	if opts.Language == "" {
		opts.Language = lesson.LanguageJS
	}
	if opts.Clocks == nil {
		opts.Clocks = engine.RealClocks
	}
	return &Engine{lang: opts.Language, clocks: opts.Clocks}
}

// Language implements engine.Engine.
func (e *Engine) Language() lesson.Language { return e.lang }

// Run evaluates unit in a fresh runtime. A panic inside the runtime is
// contained: it becomes a fault at statement -1 and the run is Faulted.
func (e *Engine) Run(ctx context.Context, unit *lesson.Unit) (run *engine.Run, err error) {
	if unit.Language != e.lang {
		return nil, fmt.Errorf("%w: %s engine cannot run %s unit %s", engine.ErrUnsupportedLanguage, e.lang, unit.Language, unit.ID)
	}
	start := time.Now()
	u := newUnitRun(ctx, unit, e.lang == lesson.LanguageTS, engine.NewMacrotaskQueue(e.clocks()))

	defer func() {
		if r := recover(); r != nil {
			logging.EngineError("panic in unit %s: %v\n%s", unit.ID, r, debug.Stack())
			u.rec.Fault(-1, fmt.Sprintf("engine panic: %v", r))
			run = u.result(engine.StateFaulted, start)
			run.Err = fmt.Sprintf("engine panic: %v", r)
			err = nil
		}
	}()

	logging.EngineDebug("running %s unit %s (%d statements)", e.lang, unit.ID, unit.Len())
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
