package watch

import (
	"fmt"
	"strings"

	"lessonrun/internal/diff"
	"lessonrun/internal/report"
)

// Snapshot flattens a report into one line per result, for comparing
// consecutive runs.
func Snapshot(doc *report.Document) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	for _, u := range doc.Units {
		for _, r := range u.Results {
			fmt.Fprintf(&b, "%s statement %d line %d: %s", u.ID, r.Statement, r.Line, r.Status)
			if r.Actual != nil {
				fmt.Fprintf(&b, " %q", *r.Actual)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Changes lists the result lines that differ between two runs.
func Changes(prev, next *report.Document) []diff.Line {
	return diff.Default.Lines(Snapshot(prev), Snapshot(next), 0)
}

// FormatChanges renders changes as `-`/`+` prefixed lines.
func FormatChanges(lines []diff.Line) string {
	var b strings.Builder
	for _, l := range lines {
		switch l.Op {
		case diff.Delete:
			b.WriteString("- ")
		case diff.Insert:
			b.WriteString("+ ")
		default:
			b.WriteString("  ")
		}
		b.WriteString(l.Content)
		b.WriteString("\n")
	}
	return b.String()
}
