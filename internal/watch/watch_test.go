package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lessonrun/internal/diff"
	"lessonrun/internal/report"
)

func TestWatcherBatchesSettledChanges(t *testing.T) {
	dir := t.TempDir()
	lessonPath := filepath.Join(dir, "01.js")
	require.NoError(t, os.WriteFile(lessonPath, []byte("1 // 1\n"), 0o644))

	batches := make(chan []string, 4)
	w, err := New([]string{dir}, Options{Debounce: 50 * time.Millisecond}, func(_ context.Context, changed []string) {
		batches <- changed
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(lessonPath, []byte("2 // 2\n"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	select {
	case got := <-batches:
		require.Equal(t, []string{lessonPath}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change batch delivered")
	}
	stats := w.Stats()
	require.Equal(t, 1, stats.Batches)
	require.Equal(t, lessonPath, stats.LastEventPath)
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()
	batches := make(chan []string, 4)
	w, err := New([]string{dir}, Options{Debounce: 50 * time.Millisecond}, func(_ context.Context, changed []string) {
		batches <- changed
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	sub := filepath.Join(dir, "part2")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Let the watcher register the directory before writing into it.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "02.ts"), []byte("1 // 1\n"), 0o644))

	select {
	case got := <-batches:
		require.Equal(t, []string{filepath.Join(sub, "02.ts")}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change batch delivered")
	}
}

func TestNewRejectsNilCallback(t *testing.T) {
	_, err := New(nil, Options{}, nil)
	require.Error(t, err)
}

func TestStartMissingRoot(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "gone")}, Options{}, func(context.Context, []string) {})
	require.NoError(t, err)
	require.Error(t, w.Start(context.Background()))
	w.Stop()
}

func doc(results ...report.Result) *report.Document {
	return &report.Document{Units: []report.UnitReport{{ID: "a.js#A", Results: results}}}
}

func TestChangesBetweenRuns(t *testing.T) {
	prev := doc(
		report.Result{Statement: 0, Line: 1, Status: report.StatusPass, Actual: report.Text("1")},
		report.Result{Statement: 1, Line: 2, Status: report.StatusPass, Actual: report.Text("2")},
	)
	next := doc(
		report.Result{Statement: 0, Line: 1, Status: report.StatusPass, Actual: report.Text("1")},
		report.Result{Statement: 1, Line: 2, Status: report.StatusMismatch, Actual: report.Text("3")},
	)

	lines := Changes(prev, next)
	require.Equal(t, []diff.Line{
		{Op: diff.Delete, Content: `a.js#A statement 1 line 2: pass "2"`},
		{Op: diff.Insert, Content: `a.js#A statement 1 line 2: mismatch "3"`},
	}, lines)
	require.Equal(t, "- a.js#A statement 1 line 2: pass \"2\"\n+ a.js#A statement 1 line 2: mismatch \"3\"\n", FormatChanges(lines))

	require.Empty(t, Changes(next, next))
	require.Len(t, Changes(nil, next), 2)
}
