// Package harness runs a lesson suite: it loads units, evaluates them in
// parallel on fresh runtimes, matches each trace against the unit's
// annotations and collects everything into a report.
package harness

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"lessonrun/internal/engine"
	"lessonrun/internal/engine/goengine"
	"lessonrun/internal/engine/jsengine"
	"lessonrun/internal/lesson"
	"lessonrun/internal/loader"
	"lessonrun/internal/logging"
	"lessonrun/internal/oracle"
	"lessonrun/internal/report"
)

// DefaultUnitTimeout bounds a unit when neither config, flag nor
// directive sets a timeout.
const DefaultUnitTimeout = 5 * time.Second

// ErrNoUnits is returned when the inputs contain no runnable unit.
var ErrNoUnits = errors.New("no lesson units found")

// Options configures a Harness.
type Options struct {
	Loader loader.Options
	// Parallel bounds concurrently evaluated units. Zero means NumCPU.
	Parallel int
	// UnitTimeout is the wall-clock budget of one unit. A unit's
	// `@lesson timeout` directive overrides it.
	UnitTimeout time.Duration
	// VirtualTime makes timer waits instantaneous.
	VirtualTime bool
	// GoAllowed is the import allow-list of the Go engine.
	GoAllowed []string
	// Registry overrides the engines. Nil builds the js, ts and go engines.
	Registry *engine.Registry
	// Config is echoed into the report document.
	Config any
}

// Harness evaluates suites. It holds no per-run state and is safe for
// concurrent use.
type Harness struct {
	opts     Options
	registry *engine.Registry
}

// New creates a harness.
func New(opts Options) *Harness {
	if opts.Parallel <= 0 {
		opts.Parallel = runtime.NumCPU()
	}
	if opts.UnitTimeout <= 0 {
		opts.UnitTimeout = DefaultUnitTimeout
	}
	reg := opts.Registry
	if reg == nil {
		reg = DefaultRegistry(opts)
	}
	return &Harness{opts: opts, registry: reg}
}

// DefaultRegistry builds the standard engines for the given options.
func DefaultRegistry(opts Options) *engine.Registry {
	clocks := engine.RealClocks
	if opts.VirtualTime {
		clocks = engine.VirtualClocks
	}
	return engine.NewRegistry(
		jsengine.New(jsengine.Options{Language: lesson.LanguageJS, Clocks: clocks}),
		jsengine.New(jsengine.Options{Language: lesson.LanguageTS, Clocks: clocks}),
		goengine.New(goengine.Options{Allowed: opts.GoAllowed}),
	)
}

// Outcome is the result of one harness run.
type Outcome struct {
	Suite    *loader.Suite
	Document *report.Document
	// Runs holds each evaluated unit's trace, by unit index. Skipped
	// units have no run.
	Runs map[int]*engine.Run
}

// ExitCode maps the outcome to the process exit status.
func (o *Outcome) ExitCode() int { return ExitCode(o.Document) }

// Load loads the suite from paths with the harness loader options.
func (h *Harness) Load(ctx context.Context, paths []string) (*loader.Suite, error) {
	return loader.Load(ctx, paths, h.opts.Loader)
}

// Run loads paths and evaluates every unit.
func (h *Harness) Run(ctx context.Context, paths []string) (*Outcome, error) {
	suite, err := h.Load(ctx, paths)
	if err != nil {
		return nil, err
	}
	return h.RunSuite(ctx, suite, suite.Units)
}

// RunSuite evaluates units (a subset of suite.Units) and builds the
// report. Load problems of the suite are always reported.
func (h *Harness) RunSuite(ctx context.Context, suite *loader.Suite, units []*lesson.Unit) (*Outcome, error) {
	if len(units) == 0 && len(suite.Problems) == 0 {
		return nil, ErrNoUnits
	}
	started := time.Now()
	agg := report.NewAggregator()
	runs, err := h.evaluate(ctx, units, agg)
	if err != nil {
		return nil, err
	}
	if err := addProblems(agg, suite); err != nil {
		return nil, err
	}

	doc := report.NewDocument(agg, started, h.opts.Config)
	for _, p := range suite.Problems {
		doc.Problems = append(doc.Problems, p.Error())
	}
	logging.Harness("run %s: %d units, %d pass, %d fail, %d skipped in %v",
		doc.RunID, doc.Summary.Units, doc.Summary.Counts.Pass, doc.Summary.Counts.Fail,
		doc.Summary.Counts.Skipped, doc.Duration.Round(time.Millisecond))
	return &Outcome{Suite: suite, Document: doc, Runs: runs}, nil
}

func (h *Harness) evaluate(ctx context.Context, units []*lesson.Unit, agg *report.Aggregator) (map[int]*engine.Run, error) {
	runs := make([]*engine.Run, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.Parallel)
	for i, u := range units {
		g.Go(func() error {
			results, run, info := h.RunUnit(gctx, u)
			runs[i] = run
			return agg.Add(u.Index, u.Title, u.ID, results, info)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluate units: %w", err)
	}
	out := make(map[int]*engine.Run, len(units))
	for i, u := range units {
		if runs[i] != nil {
			out[u.Index] = runs[i]
		}
	}
	return out, nil
}

// Timeout returns the budget for unit: its directive, else the harness
// default.
func (h *Harness) Timeout(unit *lesson.Unit) time.Duration {
	if unit.Directives.Timeout > 0 {
		return unit.Directives.Timeout
	}
	return h.opts.UnitTimeout
}

// RunUnit evaluates one unit and matches its trace. It never fails: an
// engine error becomes a fault result so other units are unaffected.
func (h *Harness) RunUnit(ctx context.Context, unit *lesson.Unit) ([]report.Result, *engine.Run, report.UnitInfo) {
	info := report.UnitInfo{Source: unit.Source, Language: string(unit.Language)}
	if unit.Directives.Skip {
		info.State = "SKIPPED"
		logging.HarnessDebug("unit %s skipped by directive", unit.ID)
		return []report.Result{{Statement: -1, Line: unit.Line, Status: report.StatusSkipped, Message: "skipped by @lesson skip"}}, nil, info
	}

	eng, err := h.registry.For(unit.Language)
	if err != nil {
		info.State = string(engine.StateFaulted)
		return []report.Result{{Statement: -1, Line: unit.Line, Status: report.StatusFault, Message: err.Error()}}, nil, info
	}

	timeout := h.Timeout(unit)
	uctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run, err := eng.Run(uctx, unit)
	if err != nil {
		logging.HarnessWarn("unit %s: %v", unit.ID, err)
		info.State = string(engine.StateFaulted)
		return []report.Result{{Statement: -1, Line: unit.Line, Status: report.StatusFault, Message: err.Error()}}, nil, info
	}
	if run.TimedOut {
		logging.HarnessWarn("unit %s exceeded its %v timeout", unit.ID, timeout)
	}
	info.State = string(run.State)
	info.Duration = run.Duration
	return oracle.Match(unit, run), run, info
}

// addProblems reports each malformed unit as one result, indexed after
// the loaded units.
func addProblems(agg *report.Aggregator, suite *loader.Suite) error {
	base := len(suite.Units)
	for i, p := range suite.Problems {
		res := report.Result{Statement: -1, Line: p.Line, Status: report.StatusMalformed, Message: p.Message}
		info := report.UnitInfo{Source: p.File, State: "MALFORMED"}
		if lang, ok := lesson.LanguageForPath(p.File); ok {
			info.Language = string(lang)
		}
		if err := agg.Add(base+i, p.Unit, p.UnitID, []report.Result{res}, info); err != nil {
			return err
		}
	}
	return nil
}
