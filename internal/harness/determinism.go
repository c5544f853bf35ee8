package harness

import (
	"context"

	"github.com/google/go-cmp/cmp"

	"lessonrun/internal/lesson"
	"lessonrun/internal/loader"
	"lessonrun/internal/logging"
	"lessonrun/internal/report"
)

// Determinism evaluates units twice, each time on fresh runtimes, and
// records every unit whose result sequences differ. Units tagged
// `@lesson nondeterministic` still run but are not compared. The
// returned outcome carries the first run's results with the drift.
func (h *Harness) Determinism(ctx context.Context, suite *loader.Suite, units []*lesson.Unit) (*Outcome, error) {
	first, err := h.RunSuite(ctx, suite, units)
	if err != nil {
		return nil, err
	}
	again := report.NewAggregator()
	if _, err := h.evaluate(ctx, units, again); err != nil {
		return nil, err
	}

	second := make(map[int][]report.Result)
	for _, u := range again.Units() {
		second[u.Index] = u.Results
	}
	exempt := make(map[int]bool)
	for _, u := range units {
		exempt[u.Index] = u.Directives.Nondeterministic
	}

	for _, u := range first.Document.Units {
		rerun, ran := second[u.Index]
		if !ran || exempt[u.Index] {
			continue
		}
		if d := cmp.Diff(u.Results, rerun); d != "" {
			logging.HarnessWarn("unit %s is nondeterministic", u.ID)
			first.Document.Drift = append(first.Document.Drift, report.DeterminismDrift{UnitID: u.ID, Diff: d})
		}
	}
	logging.Harness("determinism check: %d of %d units drifted", len(first.Document.Drift), len(units))
	return first, nil
}
