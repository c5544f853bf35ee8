package harness

import "lessonrun/internal/report"

// Process exit statuses.
const (
	ExitOK      = 0
	ExitFailure = 1 // mismatch, runtime fault or determinism drift
	ExitTimeout = 2
	ExitLoad    = 3 // malformed unit or unreadable input
	ExitUsage   = 4 // bad flags or configuration
)

// ExitCode reduces a report to an exit status. A load error outranks a
// timeout, which outranks a mismatch or fault.
func ExitCode(doc *report.Document) int {
	if doc == nil {
		return ExitOK
	}
	s := doc.Summary
	switch {
	case len(doc.Problems) > 0 || s.Has(report.StatusMalformed):
		return ExitLoad
	case s.Has(report.StatusTimeout):
		return ExitTimeout
	case s.Has(report.StatusMismatch) || s.Has(report.StatusFault) || len(doc.Drift) > 0:
		return ExitFailure
	}
	return ExitOK
}
