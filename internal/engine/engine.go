// Package engine defines how a lesson unit is evaluated: the Engine
// interface implemented per language, the ordered trace a run produces,
// the per-unit state machine and the deferred-work queue shared by the
// engines that model timers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"lessonrun/internal/lesson"
)

var (
	// ErrTimeout reports that a unit exceeded its wall-clock budget.
	ErrTimeout = errors.New("unit timed out")
	// ErrUnsupportedLanguage is returned by the registry for languages
	// without an engine.
	ErrUnsupportedLanguage = errors.New("unsupported lesson language")
)

// Stream names where an output event came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	// StreamValue is a statement's completion value.
	StreamValue Stream = "value"
)

// Event is one captured rendering produced during evaluation.
type Event struct {
	Seq    int    `json:"seq" yaml:"seq"`
	Stmt   int    `json:"stmt" yaml:"stmt"`
	Line   int    `json:"line,omitempty" yaml:"line,omitempty"`
	Stream Stream `json:"stream" yaml:"stream"`
	Text   string `json:"text" yaml:"text"`
}

// EntryKind discriminates trace entries.
type EntryKind string

const (
	EntryOutput  EntryKind = "output"
	EntryFault   EntryKind = "fault"
	EntrySkipped EntryKind = "skipped"
)

// Entry is one element of a run's trace, in the order it happened.
type Entry struct {
	Kind    EntryKind `json:"kind" yaml:"kind"`
	Event   Event     `json:"event,omitempty" yaml:"event,omitempty"`
	Stmt    int       `json:"stmt" yaml:"stmt"`
	Message string    `json:"message,omitempty" yaml:"message,omitempty"`
}

// Run is the outcome of evaluating one unit.
type Run struct {
	UnitID   string        `json:"unit_id" yaml:"unit_id"`
	State    UnitState     `json:"state" yaml:"state"`
	Trace    []Entry       `json:"trace" yaml:"trace"`
	TimedOut bool          `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
	Err      string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Events returns only the output entries of the trace.
func (r *Run) Events() []Event {
	var out []Event
	for _, e := range r.Trace {
		if e.Kind == EntryOutput {
			out = append(out, e.Event)
		}
	}
	return out
}

// Engine evaluates units of one language.
type Engine interface {
	Language() lesson.Language
	Run(ctx context.Context, unit *lesson.Unit) (*Run, error)
}

// Registry maps languages to engines.
type Registry struct {
	mu      sync.RWMutex
	engines map[lesson.Language]Engine
}

// NewRegistry creates a registry holding the given engines.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[lesson.Language]Engine)}
	for _, e := range engines {
		r.Register(e)
	}
	return r
}

// Register adds or replaces the engine for its language.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Language()] = e
}

// For returns the engine for lang.
func (r *Registry) For(lang lesson.Language) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	return e, nil
}

// Languages lists registered languages in sorted order.
func (r *Registry) Languages() []lesson.Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]lesson.Language, 0, len(r.engines))
	for l := range r.engines {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
