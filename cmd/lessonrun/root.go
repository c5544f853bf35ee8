package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lessonrun/internal/config"
	"lessonrun/internal/harness"
	"lessonrun/internal/loader"
	"lessonrun/internal/logging"
	"lessonrun/internal/report"
)

// app holds the flag values and resolved configuration of one
// invocation.
type app struct {
	stdout, stderr io.Writer

	// Global flags
	configPath  string
	verbose     bool
	strict      bool
	timeout     time.Duration
	parallel    int
	format      string
	output      string
	render      bool
	color       string
	virtualTime bool

	cfg      *config.Config
	exitCode int
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "lessonrun",
		Short: "Run annotated lessons and check their expected output",
		Long: `lessonrun executes every unit of a lesson file statement by statement
and compares what each statement prints with the comment beside it:

  console.log([1, 2].map(x => x * 2)) // [2, 4]
  2 + 2                               // 4

Units are separated by ///-- TITLE header lines. JavaScript, TypeScript
and REPL-style Go lessons are supported.

Exit status: 0 all pass, 1 mismatch or fault, 2 timeout, 3 load error,
4 usage or configuration error.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configure(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", config.DefaultPath, "Config file")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging and list passing results")
	pf.BoolVar(&a.strict, "strict", false, "Require an annotation on every output call")
	pf.DurationVar(&a.timeout, "timeout", 0, "Per-unit timeout (default from config, 5s)")
	pf.IntVarP(&a.parallel, "parallel", "j", 0, "Units evaluated concurrently (default NumCPU)")
	pf.StringVar(&a.format, "format", "", "Report format: text, json, yaml or markdown")
	pf.StringVar(&a.output, "output", "", "Write the report to a file instead of stdout")
	pf.BoolVar(&a.render, "render", false, "Render markdown reports for the terminal")
	pf.StringVar(&a.color, "color", "", "Color text reports: auto, always or never")
	pf.BoolVar(&a.virtualTime, "virtual-time", false, "Fire timers without waiting for their delay")

	root.AddCommand(
		newRunCmd(a),
		newUnitCmd(a),
		newListCmd(a),
		newWatchCmd(a),
		newDeterminismCmd(a),
	)
	return root
}

// configure loads the config file, lets explicitly set flags override it,
// validates the result and sets up logging.
func (a *app) configure(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return usageError(err)
	}

	flags := cmd.Flags()
	if flags.Changed("strict") {
		cfg.Loader.Strict = a.strict
	}
	if flags.Changed("timeout") {
		if a.timeout <= 0 {
			return usageError(fmt.Errorf("--timeout must be positive, got %v", a.timeout))
		}
		cfg.Harness.UnitTimeout = a.timeout.String()
	}
	if flags.Changed("parallel") {
		cfg.Harness.Parallel = a.parallel
	}
	if flags.Changed("virtual-time") {
		cfg.Harness.VirtualTime = a.virtualTime
	}
	if flags.Changed("format") {
		f, err := report.ParseFormat(a.format)
		if err != nil {
			return usageError(err)
		}
		cfg.Report.Format = string(f)
	}
	if flags.Changed("output") {
		cfg.Report.Output = a.output
	}
	if flags.Changed("render") {
		cfg.Report.Render = a.render
	}
	if flags.Changed("color") {
		cfg.Report.Color = a.color
	}
	if err := cfg.Validate(); err != nil {
		return usageError(err)
	}

	logOpts := cfg.Logging.Options(a.verbose)
	logOpts.Output = a.stderr
	if err := logging.Configure(logOpts); err != nil {
		return usageError(err)
	}
	logging.BootDebug("config %s: timeout=%s parallel=%d format=%s", a.configPath,
		cfg.Harness.UnitTimeout, cfg.Harness.Parallel, cfg.Report.Format)
	a.cfg = cfg
	return nil
}

func (a *app) harness() *harness.Harness {
	c := a.cfg
	return harness.New(harness.Options{
		Loader: loader.Options{
			HeaderPattern: c.Loader.HeaderPattern,
			Extensions:    c.Loader.Extensions,
			Strict:        c.Loader.Strict,
		},
		Parallel:    c.Harness.Parallel,
		UnitTimeout: c.GetUnitTimeout(),
		VirtualTime: c.Harness.VirtualTime,
		GoAllowed:   c.Engines.Go.Allowed,
		Config:      c,
	})
}

// writeReport renders doc to the configured output.
func (a *app) writeReport(doc *report.Document) error {
	w := a.stdout
	if path := a.cfg.Report.Output; path != "" {
		f, err := os.Create(path)
		if err != nil {
			return failureError(fmt.Errorf("create report: %w", err))
		}
		defer f.Close()
		w = f
	}

	format, err := report.ParseFormat(a.cfg.Report.Format)
	if err != nil {
		return usageError(err)
	}
	opts := report.Options{
		Format:  format,
		Render:  a.cfg.Report.Render,
		Verbose: a.verbose,
	}
	switch a.cfg.Report.Color {
	case "always":
		opts.Color = true
	case "never":
		opts.Color = false
	default:
		opts.Color = report.IsTerminal(w)
	}

	if err := report.Render(w, doc, opts); err != nil {
		return failureError(fmt.Errorf("write report: %w", err))
	}
	logging.ReportDebug("wrote %s report for run %s", format, doc.RunID)
	return nil
}
