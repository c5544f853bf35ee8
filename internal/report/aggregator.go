package report

import (
	"fmt"
	"sort"
	"sync"
)

// Aggregator is the run's only shared store. Each unit is added in one
// call; readers always see units ordered by index and results in the
// order the matcher produced them.
type Aggregator struct {
	mu    sync.RWMutex
	units map[int]*UnitReport
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{units: make(map[int]*UnitReport)}
}

// Add stores the results of one unit. Adding the same index twice is an
// error.
func (a *Aggregator) Add(index int, title, id string, results []Result, info UnitInfo) error {
	rs := append([]Result(nil), results...)
	for i := range rs {
		rs[i].Unit = title
		rs[i].UnitID = id
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, dup := a.units[index]; dup {
		return fmt.Errorf("unit index %d already reported by %s", index, prev.ID)
	}
	a.units[index] = &UnitReport{Index: index, ID: id, Title: title, Info: info, Results: rs}
	return nil
}

// Len returns the number of units reported.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.units)
}

// Units returns copies of the unit reports ordered by index.
func (a *Aggregator) Units() []UnitReport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	idx := make([]int, 0, len(a.units))
	for i := range a.units {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]UnitReport, 0, len(idx))
	for _, i := range idx {
		u := *a.units[i]
		u.Results = append([]Result(nil), u.Results...)
		out = append(out, u)
	}
	return out
}

// Results returns every result, ordered by unit index then emission.
func (a *Aggregator) Results() []Result {
	var out []Result
	for _, u := range a.Units() {
		out = append(out, u.Results...)
	}
	return out
}

// Summary counts the results reported so far.
func (a *Aggregator) Summary() Summary {
	return Summarize(a.Units())
}
