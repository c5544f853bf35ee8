package engine

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Origin attributes deferred work to the statement (and line) that
// scheduled it.
type Origin struct {
	Stmt int
	Line int
}

// NoOrigin marks work that cannot be attributed to a statement.
var NoOrigin = Origin{Stmt: -1}

// Task is a macrotask: a timer callback waiting in the queue.
type Task struct {
	ID       int
	Due      time.Time
	Interval time.Duration
	Origin   Origin
	Payload  any

	seq   uint64
	index int
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

// Earlier due time first; equal due times keep registration order.
func (h taskHeap) Less(i, j int) bool {
	if !h[i].Due.Equal(h[j].Due) {
		return h[i].Due.Before(h[j].Due)
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// MacrotaskQueue orders timer callbacks: shorter delays strictly before
// longer ones, registration order for equal due times.
type MacrotaskQueue struct {
	mu     sync.Mutex
	clock  Clock
	heap   taskHeap
	byID   map[int]*Task
	nextID int
	seq    uint64
}

// NewMacrotaskQueue creates an empty queue reading time from clock.
func NewMacrotaskQueue(clock Clock) *MacrotaskQueue {
	if clock == nil {
		clock = RealClock{}
	}
	return &MacrotaskQueue{clock: clock, byID: make(map[int]*Task)}
}

// Clock returns the queue's clock.
func (q *MacrotaskQueue) Clock() Clock { return q.clock }

// Schedule registers payload to run after delay. A positive interval
// re-arms the task after every run until it is cancelled.
func (q *MacrotaskQueue) Schedule(delay, interval time.Duration, origin Origin, payload any) int {
	if delay < 0 {
		delay = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.seq++
	t := &Task{
		ID:       q.nextID,
		Due:      q.clock.Now().Add(delay),
		Interval: interval,
		Origin:   origin,
		Payload:  payload,
		seq:      q.seq,
	}
	heap.Push(&q.heap, t)
	q.byID[t.ID] = t
	return t.ID
}

// Cancel removes a pending task. Unknown ids are ignored.
func (q *MacrotaskQueue) Cancel(id int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.byID[id]
	if !ok {
		return
	}
	delete(q.byID, id)
	if t.index >= 0 {
		heap.Remove(&q.heap, t.index)
	}
}

// Pop removes and returns the earliest task.
func (q *MacrotaskQueue) Pop() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return nil, false
	}
	t := heap.Pop(&q.heap).(*Task)
	if t.Interval <= 0 {
		delete(q.byID, t.ID)
	}
	return t, true
}

// Rearm puts an interval task back for its next tick, unless it was
// cancelled while running.
func (q *MacrotaskQueue) Rearm(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t.Interval <= 0 {
		return false
	}
	if _, live := q.byID[t.ID]; !live {
		return false
	}
	q.seq++
	t.seq = q.seq
	t.Due = t.Due.Add(t.Interval)
	if now := q.clock.Now(); t.Due.Before(now) {
		t.Due = now
	}
	heap.Push(&q.heap, t)
	return true
}

// Len returns the number of pending tasks.
func (q *MacrotaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Clock is the time source for timer due dates.
type Clock interface {
	Now() time.Time
	// WaitUntil blocks until t or until ctx is done.
	WaitUntil(ctx context.Context, t time.Time) error
}

// RealClock waits in wall-clock time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) WaitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// VirtualClock jumps straight to the next due time. The wall-clock
// budget still applies since WaitUntil honours ctx.
type VirtualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewVirtualClock starts at start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *VirtualClock) WaitUntil(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if t.After(c.now) {
		c.now = t
	}
	c.mu.Unlock()
	return nil
}

// ClockFactory builds a fresh clock for each unit.
type ClockFactory func() Clock

// RealClocks returns wall-clock time for every unit.
func RealClocks() Clock { return RealClock{} }

// VirtualClocks gives every unit its own virtual clock.
func VirtualClocks() Clock { return NewVirtualClock(time.Unix(0, 0)) }
