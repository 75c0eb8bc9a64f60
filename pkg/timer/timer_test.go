package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneShot(t *testing.T) {
	svc := NewService(nil)
	defer svc.Close()

	fired := make(chan time.Time, 1)
	tm := svc.NewTimer("oneshot")
	tm.Set(10*time.Millisecond, 0, func(deadline time.Time) { fired <- deadline })
	assert.True(t, tm.Pending())

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	assert.Eventually(t, func() bool { return !tm.Pending() }, time.Second, time.Millisecond)
	assert.Equal(t, 0, svc.Pending())
}

func TestPeriodicDoesNotDrift(t *testing.T) {
	svc := NewService(nil)
	defer svc.Close()

	const period = 15 * time.Millisecond
	const firings = 6

	var mu sync.Mutex
	var deadlines []time.Time
	done := make(chan struct{})
	tm := svc.NewTimer("periodic")
	tm.Set(period, period, func(deadline time.Time) {
		mu.Lock()
		defer mu.Unlock()
		deadlines = append(deadlines, deadline)
		if len(deadlines) == firings {
			tm.Cancel()
			close(done)
		}
		// Callback work must not push later deadlines.
		time.Sleep(3 * time.Millisecond)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("periodic timer stalled")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, deadlines, firings)
	for k := 1; k < firings; k++ {
		assert.Equal(t, deadlines[0].Add(time.Duration(k)*period), deadlines[k])
	}
}

func TestSetReplacesPendingDeadline(t *testing.T) {
	svc := NewService(nil)
	defer svc.Close()

	var mu sync.Mutex
	var calls []string
	fired := make(chan struct{}, 2)
	tm := svc.NewTimer("replace")
	tm.Set(time.Hour, 0, func(time.Time) {
		mu.Lock()
		calls = append(calls, "first")
		mu.Unlock()
		fired <- struct{}{}
	})
	tm.Set(5*time.Millisecond, 0, func(time.Time) {
		mu.Lock()
		calls = append(calls, "second")
		mu.Unlock()
		fired <- struct{}{}
	})
	assert.Equal(t, 1, svc.Pending())

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	mu.Lock()
	assert.Equal(t, []string{"second"}, calls)
	mu.Unlock()
}

func TestCancel(t *testing.T) {
	svc := NewService(nil)
	defer svc.Close()

	fired := make(chan struct{}, 1)
	tm := svc.NewTimer("cancel")
	tm.Set(20*time.Millisecond, 0, func(time.Time) { fired <- struct{}{} })
	assert.True(t, tm.Cancel())
	assert.False(t, tm.Cancel())

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestCallbackMayRearm(t *testing.T) {
	svc := NewService(nil)
	defer svc.Close()

	count := 0
	done := make(chan struct{})
	tm := svc.NewTimer("rearm")
	var cb Callback
	cb = func(time.Time) {
		count++
		if count == 3 {
			close(done)
			return
		}
		tm.Set(time.Millisecond, 0, cb)
	}
	tm.Set(time.Millisecond, 0, cb)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("re-armed timer stalled")
	}
	assert.Equal(t, 3, count)
}

func TestEarlierTimerWakesWorker(t *testing.T) {
	svc := NewService(nil)
	defer svc.Close()

	late := svc.NewTimer("late")
	late.Set(time.Hour, 0, func(time.Time) {})

	fired := make(chan struct{})
	early := svc.NewTimer("early")
	early.Set(5*time.Millisecond, 0, func(time.Time) { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("worker kept sleeping on the later deadline")
	}
	assert.True(t, late.Pending())
}

func TestClosedServiceIgnoresSet(t *testing.T) {
	svc := NewService(nil)
	svc.Close()
	svc.Close()

	tm := svc.NewTimer("closed")
	tm.Set(time.Millisecond, 0, func(time.Time) { t.Error("fired on closed service") })
	assert.False(t, tm.Pending())
	time.Sleep(10 * time.Millisecond)
}
