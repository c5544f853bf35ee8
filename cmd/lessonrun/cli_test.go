package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lessonrun/internal/harness"
)

// lessonrun runs the CLI in-process with a config path that does not
// exist, so only defaults and flags apply.
func lessonrun(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{args[0], "--config", filepath.Join(t.TempDir(), "none.yaml"), "--virtual-time"}, args[1:]...)
	code := execute(context.Background(), full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunPassingSuite(t *testing.T) {
	code, out, _ := lessonrun(t, "run", "testdata/pass")
	require.Equal(t, harness.ExitOK, code)
	assert.Contains(t, out, "ok   01-basics.js#ARRAYS")
	assert.Contains(t, out, "02-more.ts#ARRAYS")
	assert.Contains(t, out, "total: 4 pass, 0 fail")
	assert.NotContains(t, out, "\x1b[", "non-terminal output is never colored")
}

func TestRunMismatchExitsOne(t *testing.T) {
	code, out, _ := lessonrun(t, "run", "testdata/fail")
	require.Equal(t, harness.ExitFailure, code)
	assert.Contains(t, out, "FAIL 01-wrong.js#WRONG")
	assert.Contains(t, out, "expected: 3")
	assert.Contains(t, out, "actual:   2")
}

func TestStrictFlagIsALoadError(t *testing.T) {
	code, _, _ := lessonrun(t, "run", "testdata/strict")
	require.Equal(t, harness.ExitOK, code)

	code, out, _ := lessonrun(t, "run", "--strict", "testdata/strict")
	require.Equal(t, harness.ExitLoad, code)
	assert.Contains(t, out, "01-loose.js:2")
	assert.Contains(t, out, "console.log")
}

func TestMissingInputIsALoadError(t *testing.T) {
	code, _, errOut := lessonrun(t, "run", "testdata/does-not-exist")
	require.Equal(t, harness.ExitLoad, code)
	assert.Contains(t, errOut, "does-not-exist")
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"run", "--frobnicate", "testdata/pass"}},
		{"bad format", []string{"run", "--format", "html", "testdata/pass"}},
		{"bad color", []string{"run", "--color", "rainbow", "testdata/pass"}},
		{"non-positive timeout", []string{"run", "--timeout", "0s", "testdata/pass"}},
		{"unit without name", []string{"unit"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := lessonrun(t, tt.args...)
			require.Equal(t, harness.ExitUsage, code)
			assert.Contains(t, errOut, "lessonrun:")
		})
	}
}

func TestBadConfigFileIsAUsageError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lessonrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte("harness:\n  unit_timeout: soon\n"), 0644))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"run", "--config", path, "testdata/pass"}, &stdout, &stderr)
	require.Equal(t, harness.ExitUsage, code)
	assert.Contains(t, stderr.String(), "harness.unit_timeout")
}

func TestUnitCommand(t *testing.T) {
	code, out, _ := lessonrun(t, "unit", "strings", "testdata/pass")
	require.Equal(t, harness.ExitOK, code)
	assert.Contains(t, out, "01-basics.js#STRINGS")
	assert.NotContains(t, out, "#ARRAYS")

	code, out, _ = lessonrun(t, "unit", "02-more.ts#ARRAYS", "testdata/pass")
	require.Equal(t, harness.ExitOK, code)
	assert.Contains(t, out, "02-more.ts#ARRAYS")

	code, _, errOut := lessonrun(t, "unit", "arrays", "testdata/pass")
	require.Equal(t, harness.ExitUsage, code)
	assert.Contains(t, errOut, "ambiguous")
	assert.Contains(t, errOut, "01-basics.js#ARRAYS")
	assert.Contains(t, errOut, "02-more.ts#ARRAYS")

	code, _, errOut = lessonrun(t, "unit", "nothing", "testdata/pass")
	require.Equal(t, harness.ExitUsage, code)
	assert.Contains(t, errOut, `no unit named "nothing"`)
}

func TestListJSON(t *testing.T) {
	code, out, _ := lessonrun(t, "list", "--format", "json", "testdata/pass")
	require.Equal(t, harness.ExitOK, code)

	var l listing
	require.NoError(t, json.Unmarshal([]byte(out), &l))
	require.Len(t, l.Units, 3)
	assert.Equal(t, "01-basics.js#ARRAYS", l.Units[0].ID)
	assert.Equal(t, 3, l.Units[0].Statements)
	assert.Equal(t, 2, l.Units[0].Annotations)
	assert.Equal(t, 2, l.Units[2].Index)
}

func TestListText(t *testing.T) {
	code, out, _ := lessonrun(t, "list", "testdata/pass")
	require.Equal(t, harness.ExitOK, code)
	assert.Contains(t, out, "UNIT")
	assert.Contains(t, out, "01-basics.js#STRINGS")
}

func TestDeterminismCommand(t *testing.T) {
	code, out, _ := lessonrun(t, "determinism", "--format", "json", "testdata/pass")
	require.Equal(t, harness.ExitOK, code)

	var doc struct {
		Drift []any `json:"drift"`
		Units []any `json:"units"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Empty(t, doc.Drift)
	assert.Len(t, doc.Units, 3)
}

func TestReportToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	code, out, _ := lessonrun(t, "run", "--format", "md", "--output", path, "testdata/fail")
	require.Equal(t, harness.ExitFailure, code)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# lessonrun report")
	assert.Contains(t, string(data), "## Failures")
}
