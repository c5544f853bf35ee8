package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"lessonrun/internal/diff"
)

var (
	colorPass  = lipgloss.Color("#8BC34A")
	colorFail  = lipgloss.Color("#e53935")
	colorSkip  = lipgloss.Color("#FFC107")
	colorInfo  = lipgloss.Color("#2196F3")
	colorMuted = lipgloss.Color("#7a8699")
)

// styles renders through lipgloss when color is on and returns text
// untouched otherwise, so piped reports stay free of escape codes.
type styles struct {
	color bool

	header, pass, fail, skip, info, muted lipgloss.Style
	del, ins                              lipgloss.Style
}

func newStyles(w io.Writer, color bool) *styles {
	r := lipgloss.NewRenderer(w)
	return &styles{
		color:  color,
		header: r.NewStyle().Bold(true),
		pass:   r.NewStyle().Foreground(colorPass),
		fail:   r.NewStyle().Foreground(colorFail).Bold(true),
		skip:   r.NewStyle().Foreground(colorSkip),
		info:   r.NewStyle().Foreground(colorInfo),
		muted:  r.NewStyle().Foreground(colorMuted),
		del:    r.NewStyle().Foreground(colorFail).Strikethrough(true),
		ins:    r.NewStyle().Foreground(colorPass).Underline(true),
	}
}

func (s *styles) render(st lipgloss.Style, text string) string {
	if !s.color {
		return text
	}
	return st.Render(text)
}

func (s *styles) status(st Status) string {
	text := string(st)
	switch {
	case st == StatusPass:
		return s.render(s.pass, text)
	case st == StatusSkipped:
		return s.render(s.skip, text)
	case st.Failed():
		return s.render(s.fail, text)
	}
	return text
}

// inline renders a character diff. Without color, deletions read [-x-]
// and insertions {+y+}.
func (s *styles) inline(segs []diff.Segment) string {
	var b strings.Builder
	for _, seg := range segs {
		switch seg.Op {
		case diff.Delete:
			if s.color {
				b.WriteString(s.del.Render(seg.Text))
			} else {
				b.WriteString("[-" + seg.Text + "-]")
			}
		case diff.Insert:
			if s.color {
				b.WriteString(s.ins.Render(seg.Text))
			} else {
				b.WriteString("{+" + seg.Text + "+}")
			}
		default:
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

func renderText(w io.Writer, doc *Document, opts Options) error {
	st := newStyles(w, opts.Color)
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n\n", st.render(st.header, "lessonrun"),
		st.render(st.muted, fmt.Sprintf("run %s, %d units, %s", doc.RunID, doc.Summary.Units, doc.Duration.Round(time.Millisecond))))

	for _, p := range doc.Problems {
		fmt.Fprintf(&b, "%s %s\n", st.render(st.fail, "load"), p)
	}
	if len(doc.Problems) > 0 {
		b.WriteString("\n")
	}

	width := 0
	for _, u := range doc.Units {
		if len(u.ID) > width {
			width = len(u.ID)
		}
	}
	counts := make(map[int]Counts, len(doc.Summary.PerUnit))
	for _, us := range doc.Summary.PerUnit {
		counts[us.Index] = us.Counts
	}

	for _, u := range doc.Units {
		c := counts[u.Index]
		mark := st.render(st.pass, "ok  ")
		switch {
		case c.Fail > 0:
			mark = st.render(st.fail, "FAIL")
		case c.Checks() == 0 && c.Skipped > 0:
			mark = st.render(st.skip, "skip")
		}
		fmt.Fprintf(&b, "%s %-*s  %s\n", mark, width, u.ID, unitCounts(st, c))

		for _, r := range u.Results {
			if !opts.Verbose && !r.Status.Failed() {
				continue
			}
			writeResult(&b, st, r)
		}
	}

	if len(doc.Drift) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.render(st.header, "nondeterministic units"))
		for _, d := range doc.Drift {
			fmt.Fprintf(&b, "  %s\n", d.UnitID)
			for _, l := range strings.Split(strings.TrimRight(d.Diff, "\n"), "\n") {
				fmt.Fprintf(&b, "    %s\n", l)
			}
		}
	}

	s := doc.Summary
	fmt.Fprintf(&b, "\n%s %s, %s, %s, %s %s\n",
		st.render(st.header, "total:"),
		st.render(st.pass, fmt.Sprintf("%d pass", s.Counts.Pass)),
		st.render(st.fail, fmt.Sprintf("%d fail", s.Counts.Fail)),
		st.render(st.skip, fmt.Sprintf("%d skipped", s.Counts.Skipped)),
		st.render(st.info, fmt.Sprintf("%d informational", s.Counts.Info)),
		st.render(st.muted, fmt.Sprintf("(%.1f%% pass rate)", s.PassRate*100)))

	_, err := io.WriteString(w, b.String())
	return err
}

func unitCounts(st *styles, c Counts) string {
	parts := []string{fmt.Sprintf("%d pass", c.Pass)}
	if c.Fail > 0 {
		parts = append(parts, st.render(st.fail, fmt.Sprintf("%d fail", c.Fail)))
	}
	if c.Skipped > 0 {
		parts = append(parts, st.render(st.skip, fmt.Sprintf("%d skipped", c.Skipped)))
	}
	if c.Info > 0 {
		parts = append(parts, st.render(st.muted, fmt.Sprintf("%d info", c.Info)))
	}
	return strings.Join(parts, "  ")
}

func writeResult(b *strings.Builder, st *styles, r Result) {
	fmt.Fprintf(b, "    %s %s", st.render(st.muted, location(r)), st.status(r.Status))
	if r.Message != "" {
		fmt.Fprintf(b, "  %s", r.Message)
	}
	b.WriteString("\n")
	if r.Expected != nil {
		fmt.Fprintf(b, "      expected: %s\n", *r.Expected)
	}
	if r.Actual != nil {
		fmt.Fprintf(b, "      actual:   %s\n", *r.Actual)
	}
	if r.Status == StatusMismatch && r.Expected != nil && r.Actual != nil {
		fmt.Fprintf(b, "      diff:     %s\n", st.inline(diff.Default.Inline(*r.Expected, *r.Actual)))
	}
}
