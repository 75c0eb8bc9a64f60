// Package timer provides a deadline scheduler shared by any number of
// timers. One worker goroutine serves every Timer created from a Service.
package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Callback is invoked when a timer fires. deadline is the scheduled
// firing time, not the time the callback actually runs.
type Callback func(deadline time.Time)

// Service owns the deadline-ordered entry set and the worker that fires
// them. The zero value is not usable; use NewService.
type Service struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	entries entryHeap
	byTimer map[*Timer]*entry
	started bool
	stopped bool

	wakeCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewService(log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		log:     log,
		byTimer: make(map[*Timer]*entry),
		wakeCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// NewTimer creates an idle timer bound to svc. name only shows up in logs.
func (svc *Service) NewTimer(name string) *Timer {
	return &Timer{svc: svc, name: name}
}

// Close stops the worker and waits for it to exit. Pending entries are
// discarded. Calling Close more than once is harmless.
func (svc *Service) Close() {
	svc.mu.Lock()
	if svc.stopped {
		svc.mu.Unlock()
		return
	}
	svc.stopped = true
	started := svc.started
	svc.entries = nil
	svc.byTimer = make(map[*Timer]*entry)
	svc.mu.Unlock()

	close(svc.stopCh)
	if started {
		<-svc.doneCh
	}
}

// Pending reports the number of armed timers.
func (svc *Service) Pending() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return len(svc.entries)
}

func (svc *Service) set(t *Timer, d, period time.Duration, cb Callback) {
	svc.mu.Lock()
	if svc.stopped {
		svc.mu.Unlock()
		svc.log.WithField("timer", t.name).Warn("Timer set on a closed service")
		return
	}
	deadline := time.Now().Add(d)
	if e := svc.byTimer[t]; e != nil {
		e.deadline = deadline
		e.period = period
		e.cb = cb
		heap.Fix(&svc.entries, e.index)
	} else {
		e = &entry{timer: t, deadline: deadline, period: period, cb: cb}
		heap.Push(&svc.entries, e)
		svc.byTimer[t] = e
	}
	if !svc.started {
		svc.started = true
		go svc.run()
	}
	svc.mu.Unlock()
	svc.wake()
}

func (svc *Service) cancel(t *Timer) bool {
	svc.mu.Lock()
	e := svc.byTimer[t]
	if e != nil {
		heap.Remove(&svc.entries, e.index)
		delete(svc.byTimer, t)
	}
	svc.mu.Unlock()
	if e != nil {
		svc.wake()
	}
	return e != nil
}

func (svc *Service) pending(t *Timer) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.byTimer[t] != nil
}

func (svc *Service) wake() {
	select {
	case svc.wakeCh <- struct{}{}:
	default:
	}
}

func (svc *Service) run() {
	defer close(svc.doneCh)

	for {
		svc.mu.Lock()
		for len(svc.entries) > 0 {
			e := svc.entries[0]
			if e.deadline.After(time.Now()) {
				break
			}
			deadline, cb := e.deadline, e.cb
			if e.period > 0 {
				// The next deadline is derived from the previous one so
				// that a periodic timer does not drift.
				e.deadline = e.deadline.Add(e.period)
				heap.Fix(&svc.entries, 0)
			} else {
				heap.Pop(&svc.entries)
				delete(svc.byTimer, e.timer)
			}
			svc.mu.Unlock()
			svc.fire(e.timer, deadline, cb)
			svc.mu.Lock()
		}
		wait := time.Duration(-1)
		if len(svc.entries) > 0 {
			wait = time.Until(svc.entries[0].deadline)
		}
		svc.mu.Unlock()

		var expiry <-chan time.Time
		var tm *time.Timer
		if wait >= 0 {
			tm = time.NewTimer(wait)
			expiry = tm.C
		}
		select {
		case <-svc.wakeCh:
		case <-expiry:
		case <-svc.stopCh:
			if tm != nil {
				tm.Stop()
			}
			return
		}
		if tm != nil {
			tm.Stop()
		}
	}
}

func (svc *Service) fire(t *Timer, deadline time.Time, cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			svc.log.WithField("timer", t.name).Errorf("Timer callback panicked: %v", r)
		}
	}()
	cb(deadline)
}

// Timer is a re-armable one-shot or periodic deadline. At most one
// deadline is pending per Timer.
type Timer struct {
	svc  *Service
	name string
}

func (t *Timer) Name() string { return t.name }

// Set arms the timer to fire after d and then every period (zero period
// means one-shot). Any pending deadline is replaced.
func (t *Timer) Set(d, period time.Duration, cb Callback) {
	if cb == nil {
		t.svc.log.WithField("timer", t.name).Warn("Timer set without callback")
		return
	}
	if d < 0 {
		d = 0
	}
	if period < 0 {
		period = 0
	}
	t.svc.set(t, d, period, cb)
}

// Cancel removes the pending deadline, if any, and reports whether one
// was removed. A callback already running is not interrupted.
func (t *Timer) Cancel() bool {
	return t.svc.cancel(t)
}

func (t *Timer) Pending() bool {
	return t.svc.pending(t)
}

// Close cancels the timer. The timer must not be used afterwards.
func (t *Timer) Close() {
	t.svc.cancel(t)
}
