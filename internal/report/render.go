package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

// Format selects a renderer.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatMarkdown}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "yml":
		return FormatYAML, nil
	case "":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown report format %q (want text, json, yaml or markdown)", s)
}

// Options control rendering.
type Options struct {
	Format Format
	// Color enables lipgloss styling in text reports and a styled glamour
	// theme for markdown.
	Color bool
	// Render passes markdown through glamour.
	Render bool
	// Verbose lists passing and informational results too.
	Verbose bool
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Render writes doc to w in the requested format.
func Render(w io.Writer, doc *Document, opts Options) error {
	switch opts.Format {
	case FormatText, "":
		return renderText(w, doc, opts)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}
		return enc.Close()
	case FormatMarkdown:
		md := Markdown(doc, opts.Verbose)
		if opts.Render {
			out, err := renderGlamour(md, opts.Color)
			if err != nil {
				return fmt.Errorf("render markdown: %w", err)
			}
			md = out
		}
		_, err := io.WriteString(w, md)
		return err
	}
	return fmt.Errorf("unknown report format %q", opts.Format)
}

func renderGlamour(md string, color bool) (string, error) {
	style := glamour.WithStylePath("notty")
	if color {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(100))
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

// Markdown builds the markdown form of the report.
func Markdown(doc *Document, verbose bool) string {
	var b strings.Builder
	s := doc.Summary
	fmt.Fprintf(&b, "# lessonrun report\n\n")
	fmt.Fprintf(&b, "Run %s: %d units, %d pass, %d fail, %d skipped, pass rate %.1f%%.\n\n",
		mdCode(doc.RunID), s.Units, s.Counts.Pass, s.Counts.Fail, s.Counts.Skipped, s.PassRate*100)

	if len(doc.Problems) > 0 {
		b.WriteString("## Load problems\n\n")
		for _, p := range doc.Problems {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}

	b.WriteString("| # | Unit | Pass | Fail | Skipped | Info |\n|---|---|---|---|---|---|\n")
	for _, u := range s.PerUnit {
		fmt.Fprintf(&b, "| %d | %s | %d | %d | %d | %d |\n",
			u.Index, mdCode(u.ID), u.Counts.Pass, u.Counts.Fail, u.Counts.Skipped, u.Counts.Info)
	}

	wroteHeader := false
	for _, u := range doc.Units {
		var lines []string
		for _, r := range u.Results {
			if !verbose && !r.Status.Failed() {
				continue
			}
			lines = append(lines, "- "+mdResult(r))
		}
		if len(lines) == 0 {
			continue
		}
		if !wroteHeader {
			if verbose {
				b.WriteString("\n## Results\n")
			} else {
				b.WriteString("\n## Failures\n")
			}
			wroteHeader = true
		}
		fmt.Fprintf(&b, "\n### %s\n\n%s\n", u.ID, strings.Join(lines, "\n"))
	}

	if len(doc.Drift) > 0 {
		b.WriteString("\n## Nondeterministic units\n")
		for _, d := range doc.Drift {
			fmt.Fprintf(&b, "\n### %s\n\n```diff\n%s\n```\n", d.UnitID, strings.TrimRight(d.Diff, "\n"))
		}
	}
	return b.String()
}

func mdResult(r Result) string {
	where := location(r)
	switch {
	case r.Expected != nil && r.Actual != nil:
		return fmt.Sprintf("**%s** %s: expected %s, got %s", r.Status, where, mdCode(*r.Expected), mdCode(*r.Actual))
	case r.Expected != nil:
		return fmt.Sprintf("**%s** %s: expected %s, %s", r.Status, where, mdCode(*r.Expected), r.Message)
	case r.Actual != nil:
		return fmt.Sprintf("**%s** %s: %s", r.Status, where, mdCode(*r.Actual))
	}
	return fmt.Sprintf("**%s** %s: %s", r.Status, where, r.Message)
}

func mdCode(s string) string {
	if strings.Contains(s, "`") {
		return "`` " + s + " ``"
	}
	return "`" + s + "`"
}

func location(r Result) string {
	if r.Statement < 0 {
		return "unit"
	}
	if r.Line > 0 {
		return fmt.Sprintf("statement %d, line %d", r.Statement, r.Line)
	}
	return fmt.Sprintf("statement %d", r.Statement)
}
