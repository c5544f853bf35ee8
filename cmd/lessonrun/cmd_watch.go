package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"lessonrun/internal/harness"
	"lessonrun/internal/logging"
	"lessonrun/internal/report"
	"lessonrun/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Re-run the suite whenever a lesson file changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd.Context(), args, debounce)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a re-run")
	return cmd
}

// watch runs the suite once, then again after every settled batch of
// changes, printing which results changed since the previous run. It
// returns when ctx is cancelled.
func (a *app) watch(ctx context.Context, paths []string, debounce time.Duration) error {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	var (
		mu   sync.Mutex
		prev *report.Document
	)
	rerun := func(ctx context.Context) {
		mu.Lock()
		defer mu.Unlock()
		out, err := a.harness().Run(ctx, paths)
		if err != nil {
			logging.WatchError("run failed: %v", err)
			fmt.Fprintf(a.stderr, "lessonrun: %v\n", err)
			return
		}
		if err := a.writeReport(out.Document); err != nil {
			fmt.Fprintf(a.stderr, "lessonrun: %v\n", err)
		}
		if prev != nil {
			if changes := watch.Changes(prev, out.Document); len(changes) > 0 {
				fmt.Fprintf(a.stdout, "\nchanged since last run:\n%s", watch.FormatChanges(changes))
			} else {
				fmt.Fprintln(a.stdout, "\nno result changed since last run")
			}
		}
		prev = out.Document
		a.exitCode = out.ExitCode()
	}

	rerun(ctx)
	w, err := watch.New(paths, watch.Options{Debounce: debounce}, func(ctx context.Context, changed []string) {
		logging.Watch("re-running after changes to %v", changed)
		rerun(ctx)
	})
	if err != nil {
		return failureError(err)
	}
	if err := w.Start(ctx); err != nil {
		return loadError(err)
	}
	fmt.Fprintf(a.stderr, "watching %v (ctrl-c to stop)\n", paths)

	<-ctx.Done()
	w.Stop()
	a.exitCode = harness.ExitOK
	return nil
}
