package report

import (
	"time"

	"github.com/google/uuid"
)

// Document is the full run report.
type Document struct {
	RunID    string        `json:"run_id" yaml:"run_id"`
	Started  time.Time     `json:"started" yaml:"started"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	// Config echoes the effective configuration the run used.
	Config   any                `json:"config,omitempty" yaml:"config,omitempty"`
	Summary  Summary            `json:"summary" yaml:"summary"`
	Units    []UnitReport       `json:"units" yaml:"units"`
	Problems []string           `json:"problems,omitempty" yaml:"problems,omitempty"`
	Drift    []DeterminismDrift `json:"drift,omitempty" yaml:"drift,omitempty"`
}

// DeterminismDrift records a unit whose two runs disagreed.
type DeterminismDrift struct {
	UnitID string `json:"unit_id" yaml:"unit_id"`
	Diff   string `json:"diff" yaml:"diff"`
}

// NewDocument snapshots the aggregator into a report with a fresh run id.
func NewDocument(agg *Aggregator, started time.Time, config any) *Document {
	units := agg.Units()
	return &Document{
		RunID:    uuid.NewString(),
		Started:  started,
		Duration: time.Since(started),
		Config:   config,
		Summary:  Summarize(units),
		Units:    units,
	}
}
