package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"lessonrun/internal/loader"
	"lessonrun/internal/report"
)

func determinism(t *testing.T, src string) *Outcome {
	t.Helper()
	h := New(Options{VirtualTime: true})
	suite := parseSuite(t, "d.js", src, loader.Options{})
	out, err := h.Determinism(context.Background(), suite, suite.Units)
	require.NoError(t, err)
	return out
}

func TestDeterminismStableUnits(t *testing.T) {
	out := determinism(t, "///-- STABLE\nconst xs = [3, 1, 2].sort()\nconsole.log(xs) // [1, 2, 3]\nsetTimeout(() => console.log('later'), 10)\n")
	require.Empty(t, out.Document.Drift)
	require.Equal(t, ExitOK, out.ExitCode())
}

func TestDeterminismFlagsDrift(t *testing.T) {
	out := determinism(t, "///-- RANDOM\nconsole.log(Math.random())\n///-- FIXED\nconsole.log(1) // 1\n")
	require.Len(t, out.Document.Drift, 1)
	require.Equal(t, "d.js#RANDOM", out.Document.Drift[0].UnitID)
	require.NotEmpty(t, out.Document.Drift[0].Diff)
	require.Equal(t, ExitFailure, out.ExitCode())

	require.Len(t, out.Document.Units, 2)
	require.False(t, out.Document.Summary.Has(report.StatusMismatch), "drift is reported apart from the results")
}

func TestDeterminismSkipsTaggedUnits(t *testing.T) {
	out := determinism(t, "///-- RANDOM\n// @lesson nondeterministic\nconsole.log(Math.random())\n")
	require.Empty(t, out.Document.Drift)
	require.Equal(t, ExitOK, out.ExitCode())
}
