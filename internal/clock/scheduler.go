// Package clock provides simulated time and a deferred-task queue.
//
// Every suspension in the simulation (an alarm reaction delay, the fire's
// growth and lethality loops, a cough pause) is a task keyed by wake time.
// Tasks are processed when the owning simulation advances the clock, never by
// blocking, and each can be cancelled through its Handle or by owner.
package clock

import (
	"container/heap"
	"math"
	"time"
)

// Seconds converts a configuration value in seconds to a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

type task struct {
	id       uint64
	at       time.Duration
	seq      uint64
	period   time.Duration
	owner    any
	fn       func()
	canceled bool
	index    int
}

// Handle refers to a scheduled task. The zero Handle refers to nothing.
type Handle struct {
	id uint64
	s  *Scheduler
}

// Cancel removes the task if it has not run yet (or stops a repeating task).
// Reports whether anything was cancelled.
func (h Handle) Cancel() bool {
	if h.s == nil {
		return false
	}
	return h.s.cancel(h.id)
}

// Pending reports whether the task is still scheduled.
func (h Handle) Pending() bool {
	if h.s == nil {
		return false
	}
	_, ok := h.s.byID[h.id]
	return ok
}

// Scheduler is a wake-time ordered queue of deferred tasks driven by
// simulated time. Not safe for concurrent use.
type Scheduler struct {
	now    time.Duration
	queue  taskHeap
	byID   map[uint64]*task
	nextID uint64
	seq    uint64
}

// NewScheduler creates a scheduler at time zero.
func NewScheduler() *Scheduler {
	return &Scheduler{byID: make(map[uint64]*task)}
}

// Now returns the current simulated time. While a task runs, Now is that
// task's wake time.
func (s *Scheduler) Now() time.Duration { return s.now }

// Len returns the number of scheduled tasks.
func (s *Scheduler) Len() int { return len(s.byID) }

// After schedules fn to run once, d after Now.
func (s *Scheduler) After(owner any, d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	return s.push(owner, s.now+d, 0, fn)
}

// Every schedules fn to run every period, first at Now+period.
// A non-positive period schedules nothing.
func (s *Scheduler) Every(owner any, period time.Duration, fn func()) Handle {
	if period <= 0 {
		return Handle{}
	}
	return s.push(owner, s.now+period, period, fn)
}

// CancelOwner cancels every task scheduled by owner and returns how many
// were cancelled.
func (s *Scheduler) CancelOwner(owner any) int {
	if owner == nil {
		return 0
	}
	n := 0
	for id, t := range s.byID {
		if t.owner == owner {
			t.canceled = true
			delete(s.byID, id)
			n++
		}
	}
	return n
}

// Advance moves time forward by d, running due tasks. Returns tasks run.
func (s *Scheduler) Advance(d time.Duration) int {
	return s.AdvanceTo(s.now + d)
}

// AdvanceTo moves time forward to t, running every task with a wake time at
// or before t in wake order (ties in scheduling order). Tasks scheduled by a
// running task that fall due before t also run in this call.
func (s *Scheduler) AdvanceTo(t time.Duration) int {
	ran := 0
	for s.queue.Len() > 0 {
		next := s.queue[0]
		if next.at > t {
			break
		}
		heap.Pop(&s.queue)
		if next.canceled {
			continue
		}
		s.now = next.at
		if next.period == 0 {
			delete(s.byID, next.id)
		}
		next.fn()
		ran++
		if next.period > 0 && !next.canceled {
			next.at += next.period
			s.seq++
			next.seq = s.seq
			heap.Push(&s.queue, next)
		}
	}
	if t > s.now {
		s.now = t
	}
	return ran
}

func (s *Scheduler) push(owner any, at, period time.Duration, fn func()) Handle {
	s.nextID++
	s.seq++
	t := &task{id: s.nextID, at: at, seq: s.seq, period: period, owner: owner, fn: fn}
	s.byID[t.id] = t
	heap.Push(&s.queue, t)
	return Handle{id: t.id, s: s}
}

func (s *Scheduler) cancel(id uint64) bool {
	t, ok := s.byID[id]
	if !ok {
		return false
	}
	t.canceled = true
	delete(s.byID, id)
	return true
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].at == h[j].at {
		return h[i].seq < h[j].seq
	}
	return h[i].at < h[j].at
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
