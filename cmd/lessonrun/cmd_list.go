package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"lessonrun/internal/harness"
	"lessonrun/internal/lesson"
	"lessonrun/internal/loader"
	"lessonrun/internal/report"
)

// unitListing is one row of `lessonrun list`.
type unitListing struct {
	Index       int               `json:"index" yaml:"index"`
	ID          string            `json:"id" yaml:"id"`
	Language    lesson.Language   `json:"language" yaml:"language"`
	Statements  int               `json:"statements" yaml:"statements"`
	Annotations int               `json:"annotations" yaml:"annotations"`
	Directives  lesson.Directives `json:"directives,omitempty" yaml:"directives,omitempty"`
}

type listing struct {
	Units    []unitListing         `json:"units" yaml:"units"`
	Problems []*loader.LoadProblem `json:"problems,omitempty" yaml:"problems,omitempty"`
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [paths...]",
		Short: "List lesson units with their statement and annotation counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := a.load(cmd.Context(), args)
			if err != nil {
				return err
			}
			l := listing{Problems: suite.Problems}
			for _, u := range suite.Units {
				l.Units = append(l.Units, unitListing{
					Index:       u.Index,
					ID:          u.ID,
					Language:    u.Language,
					Statements:  u.Len(),
					Annotations: u.AnnotationCount(),
					Directives:  u.Directives,
				})
			}
			if err := writeListing(a.stdout, report.Format(a.cfg.Report.Format), l); err != nil {
				return failureError(err)
			}
			if len(suite.Problems) > 0 {
				a.exitCode = harness.ExitLoad
			}
			return nil
		},
	}
}

func writeListing(w io.Writer, format report.Format, l listing) error {
	switch format {
	case report.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(l)
	case report.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(l); err != nil {
			return err
		}
		return enc.Close()
	}

	width := len("UNIT")
	for _, u := range l.Units {
		width = max(width, len(u.ID))
	}
	var b strings.Builder
	row := func(layout string, args ...any) {
		b.WriteString(strings.TrimRight(fmt.Sprintf(layout, args...), " "))
		b.WriteString("\n")
	}
	row("%5s  %-*s  %-4s  %5s  %5s  %s", "#", width, "UNIT", "LANG", "STMTS", "CHECK", "FLAGS")
	for _, u := range l.Units {
		row("%5d  %-*s  %-4s  %5d  %5d  %s", u.Index, width, u.ID, u.Language, u.Statements, u.Annotations, flags(u.Directives))
	}
	for _, p := range l.Problems {
		fmt.Fprintf(&b, "malformed %s: %s:%d: %s\n", p.UnitID, p.File, p.Line, p.Message)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func flags(d lesson.Directives) string {
	var out []string
	if d.Skip {
		out = append(out, "skip")
	}
	if d.Strict {
		out = append(out, "strict")
	}
	if d.Nondeterministic {
		out = append(out, "nondeterministic")
	}
	if d.Timeout > 0 {
		out = append(out, "timeout="+d.Timeout.String())
	}
	return strings.Join(out, ",")
}
