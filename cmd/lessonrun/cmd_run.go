package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lessonrun/internal/harness"
	"lessonrun/internal/lesson"
	"lessonrun/internal/loader"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run [paths...]",
		Short: "Run every lesson unit under the given files or directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := a.load(cmd.Context(), args)
			if err != nil {
				return err
			}
			return a.evaluate(cmd.Context(), suite, suite.Units, false)
		},
	}
}

func newUnitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unit <name> [paths...]",
		Short: "Run one unit, by ID (file#TITLE) or case-insensitive title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := a.load(cmd.Context(), args[1:])
			if err != nil {
				return err
			}
			sub, units, err := selectUnit(suite, args[0])
			if err != nil {
				return err
			}
			return a.evaluate(cmd.Context(), sub, units, false)
		},
	}
}

func newDeterminismCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "determinism [paths...]",
		Short: "Run the suite twice and report units whose results differ",
		Long: `Runs every unit twice, each time on a fresh runtime, and compares the
two result sequences. Units tagged "// @lesson nondeterministic" are run
but not compared. Any drift fails the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := a.load(cmd.Context(), args)
			if err != nil {
				return err
			}
			return a.evaluate(cmd.Context(), suite, suite.Units, true)
		},
	}
}

func (a *app) load(ctx context.Context, paths []string) (*loader.Suite, error) {
	suite, err := a.harness().Load(ctx, paths)
	if err != nil {
		return nil, loadError(err)
	}
	return suite, nil
}

func (a *app) evaluate(ctx context.Context, suite *loader.Suite, units []*lesson.Unit, twice bool) error {
	h := a.harness()
	var (
		out *harness.Outcome
		err error
	)
	if twice {
		out, err = h.Determinism(ctx, suite, units)
	} else {
		out, err = h.RunSuite(ctx, suite, units)
	}
	switch {
	case errors.Is(err, harness.ErrNoUnits):
		return loadError(err)
	case err != nil:
		return failureError(err)
	}
	if err := a.writeReport(out.Document); err != nil {
		return err
	}
	a.exitCode = out.ExitCode()
	return nil
}

// selectUnit narrows suite to the unit called name. Load problems of a
// malformed unit with that name are kept so they are still reported.
func selectUnit(suite *loader.Suite, name string) (*loader.Suite, []*lesson.Unit, error) {
	units := suite.Find(name)
	var problems []*loader.LoadProblem
	for _, p := range suite.Problems {
		if p.UnitID == name || strings.EqualFold(p.Unit, name) {
			problems = append(problems, p)
		}
	}

	if len(units)+len(problems) > 1 {
		var ids []string
		for _, u := range units {
			ids = append(ids, u.ID)
		}
		for _, p := range problems {
			ids = append(ids, p.UnitID)
		}
		return nil, nil, usageError(fmt.Errorf("unit name %q is ambiguous; candidates:\n  %s", name, strings.Join(ids, "\n  ")))
	}
	if len(units)+len(problems) == 0 {
		return nil, nil, usageError(fmt.Errorf("no unit named %q", name))
	}
	return &loader.Suite{Units: suite.Units, Problems: problems}, units, nil
}
