package clock

import (
	"sync"
	"time"
)

// Clock is the single source of "now" for the defense components
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC
type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fake is a settable clock for tests
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}
