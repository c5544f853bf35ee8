package report

import "sort"

// Counts tallies results. Fail covers mismatch, fault, timeout and
// malformed; Info counts passing results without an expectation.
type Counts struct {
	Pass    int `json:"pass" yaml:"pass"`
	Fail    int `json:"fail" yaml:"fail"`
	Skipped int `json:"skipped" yaml:"skipped"`
	Info    int `json:"informational" yaml:"informational"`
}

func (c *Counts) add(r Result) {
	switch {
	case r.Status == StatusSkipped:
		c.Skipped++
	case r.Status.Failed():
		c.Fail++
	case r.Informational():
		c.Info++
	default:
		c.Pass++
	}
}

// Checks is the number of results that compared something.
func (c Counts) Checks() int { return c.Pass + c.Fail }

// UnitSummary is the per-unit line of a summary.
type UnitSummary struct {
	Index  int    `json:"index" yaml:"index"`
	ID     string `json:"id" yaml:"id"`
	Counts Counts `json:"counts" yaml:"counts"`
}

// Summary aggregates counts over a run.
type Summary struct {
	Units        int           `json:"units" yaml:"units"`
	Counts       Counts        `json:"counts" yaml:"counts"`
	PassRate     float64       `json:"pass_rate" yaml:"pass_rate"`
	FailureKinds []Status      `json:"failure_kinds,omitempty" yaml:"failure_kinds,omitempty"`
	PerUnit      []UnitSummary `json:"per_unit" yaml:"per_unit"`
}

// Has reports whether any result of the given status was seen.
func (s Summary) Has(st Status) bool {
	for _, k := range s.FailureKinds {
		if k == st {
			return true
		}
	}
	return false
}

// Summarize computes a Summary from ordered unit reports.
func Summarize(units []UnitReport) Summary {
	s := Summary{Units: len(units)}
	kinds := make(map[Status]bool)
	for _, u := range units {
		us := UnitSummary{Index: u.Index, ID: u.ID}
		for _, r := range u.Results {
			us.Counts.add(r)
			s.Counts.add(r)
			if r.Status.Failed() {
				kinds[r.Status] = true
			}
		}
		s.PerUnit = append(s.PerUnit, us)
	}
	if n := s.Counts.Checks(); n > 0 {
		s.PassRate = float64(s.Counts.Pass) / float64(n)
	} else {
		s.PassRate = 1
	}
	for k := range kinds {
		s.FailureKinds = append(s.FailureKinds, k)
	}
	sort.Slice(s.FailureKinds, func(i, j int) bool { return s.FailureKinds[i] < s.FailureKinds[j] })
	return s
}
