// Command lessonrun runs annotated lesson files and checks every
// statement's output against the expected-output comments beside it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"lessonrun/internal/harness"
	"lessonrun/internal/logging"
)

// exitError carries the process status for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error   { return &exitError{code: harness.ExitUsage, err: err} }
func loadError(err error) error    { return &exitError{code: harness.ExitLoad, err: err} }
func failureError(err error) error { return &exitError{code: harness.ExitFailure, err: err} }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	logging.Sync()
	os.Exit(code)
}

// execute runs the command line and returns the exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return a.exitCode
	}
	fmt.Fprintf(stderr, "lessonrun: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// Flag and argument errors come straight from cobra.
	return harness.ExitUsage
}
