// Package report collects per-unit Result Records, summarizes them and
// renders the run report as text, JSON, YAML or markdown.
package report

import "time"

// Status is the outcome of one check.
type Status string

const (
	StatusPass      Status = "pass"
	StatusMismatch  Status = "mismatch"
	StatusFault     Status = "fault"
	StatusSkipped   Status = "skipped"
	StatusTimeout   Status = "timeout"
	StatusMalformed Status = "malformed"
)

// Failed reports whether the status counts as a failure.
func (s Status) Failed() bool {
	switch s {
	case StatusMismatch, StatusFault, StatusTimeout, StatusMalformed:
		return true
	}
	return false
}

// Result is one Result Record. It is built once by the matcher or the
// harness and never changed afterwards.
type Result struct {
	Unit      string  `json:"unit" yaml:"unit"`
	UnitID    string  `json:"unit_id" yaml:"unit_id"`
	Statement int     `json:"statement" yaml:"statement"`
	Line      int     `json:"line,omitempty" yaml:"line,omitempty"`
	Status    Status  `json:"status" yaml:"status"`
	Expected  *string `json:"expected,omitempty" yaml:"expected,omitempty"`
	Actual    *string `json:"actual,omitempty" yaml:"actual,omitempty"`
	Pass      bool    `json:"pass" yaml:"pass"`
	Message   string  `json:"message,omitempty" yaml:"message,omitempty"`
}

// Informational reports a passing result that checked nothing: output no
// annotation claimed.
func (r Result) Informational() bool {
	return r.Status == StatusPass && r.Expected == nil
}

// Text returns a pointer to a copy of s, for Expected and Actual.
func Text(s string) *string { return &s }

// UnitInfo describes how a unit ran.
type UnitInfo struct {
	Source   string        `json:"source" yaml:"source"`
	Language string        `json:"language" yaml:"language"`
	State    string        `json:"state" yaml:"state"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// UnitReport is one unit's slot in the report.
type UnitReport struct {
	Index   int      `json:"index" yaml:"index"`
	ID      string   `json:"id" yaml:"id"`
	Title   string   `json:"title" yaml:"title"`
	Info    UnitInfo `json:"info" yaml:"info"`
	Results []Result `json:"results" yaml:"results"`
}
