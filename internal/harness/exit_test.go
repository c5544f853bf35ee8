package harness

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lessonrun/internal/report"
)

func docWith(problems []string, drift bool, statuses ...report.Status) *report.Document {
	var rs []report.Result
	for _, s := range statuses {
		rs = append(rs, report.Result{Status: s})
	}
	doc := &report.Document{
		Summary:  report.Summarize([]report.UnitReport{{ID: "u", Results: rs}}),
		Problems: problems,
	}
	if drift {
		doc.Drift = []report.DeterminismDrift{{UnitID: "u"}}
	}
	return doc
}

func TestExitCodePrecedence(t *testing.T) {
	tests := []struct {
		name string
		doc  *report.Document
		want int
	}{
		{"nil", nil, ExitOK},
		{"all pass", docWith(nil, false, report.StatusPass, report.StatusSkipped), ExitOK},
		{"mismatch", docWith(nil, false, report.StatusPass, report.StatusMismatch), ExitFailure},
		{"fault", docWith(nil, false, report.StatusFault), ExitFailure},
		{"drift", docWith(nil, true, report.StatusPass), ExitFailure},
		{"timeout beats mismatch", docWith(nil, false, report.StatusMismatch, report.StatusTimeout), ExitTimeout},
		{"load beats timeout", docWith([]string{"bad"}, false, report.StatusTimeout), ExitLoad},
		{"malformed result", docWith(nil, false, report.StatusMalformed, report.StatusFault), ExitLoad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ExitCode(tt.doc))
		})
	}
}
