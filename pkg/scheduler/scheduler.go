package scheduler

import (
	"sync"
	"time"
)

// CancelFunc cancels a scheduled callback. Calling it after the callback has
// fired is a no-op.
type CancelFunc func()

// Scheduler abstracts time for polling loops so cancellation and backoff are
// testable without real sleeps.
type Scheduler interface {
	Now() time.Time
	Schedule(d time.Duration, fn func()) CancelFunc
}

type realScheduler struct{}

// New returns a Scheduler backed by the wall clock.
func New() Scheduler {
	return realScheduler{}
}

func (realScheduler) Now() time.Time {
	return time.Now()
}

func (realScheduler) Schedule(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Manual is a deterministic Scheduler for tests. Time only moves when Advance
// is called; due callbacks run synchronously on the advancing goroutine.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*manualTask
}

type manualTask struct {
	due       time.Time
	fn        func()
	cancelled bool
	fired     bool
}

func NewManual() *Manual {
	return &Manual{now: time.Unix(0, 0)}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Schedule(d time.Duration, fn func()) CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := &manualTask{due: m.now.Add(d), fn: fn}
	m.tasks = append(m.tasks, task)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		task.cancelled = true
	}
}

// Advance moves time forward by d, firing due callbacks in due order.
// Callbacks scheduled while advancing also fire if they fall within d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		task := m.nextDueLocked(target)
		if task == nil {
			break
		}
		if task.due.After(m.now) {
			m.now = task.due
		}
		task.fired = true
		fn := task.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// PendingCount reports callbacks that are scheduled but not yet fired or
// cancelled.
func (m *Manual) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, task := range m.tasks {
		if !task.fired && !task.cancelled {
			n++
		}
	}
	return n
}

func (m *Manual) nextDueLocked(until time.Time) *manualTask {
	var next *manualTask
	for _, task := range m.tasks {
		if task.fired || task.cancelled || task.due.After(until) {
			continue
		}
		if next == nil || task.due.Before(next.due) {
			next = task
		}
	}
	return next
}
