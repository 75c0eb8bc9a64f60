package xmppsession

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
)

type stateEvent struct {
	listener string
	newState State
	oldState State
}

type recorder struct {
	name string

	mu       sync.Mutex
	events   *[]stateEvent
	features [][]*xmlobj.Object
}

func (r *recorder) OnStateChange(_ *Session, newState, oldState State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.events = append(*r.events, stateEvent{r.name, newState, oldState})
}

func (r *recorder) OnFeatures(_ *Session, features []*xmlobj.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.features = append(r.features, features)
}

var allStates = []State{StateClosed, StateConnecting, StateNegotiating, StateBound, StateClosing}

func TestChangeStateLegality(t *testing.T) {
	legal := map[State][]State{
		StateClosed:      {StateClosed, StateConnecting},
		StateConnecting:  {StateClosed, StateNegotiating, StateClosing},
		StateNegotiating: {StateClosed, StateNegotiating, StateBound, StateClosing},
		StateBound:       {StateClosed, StateClosing},
		StateClosing:     {StateClosed},
	}

	for _, from := range allStates {
		for _, to := range allStates {
			name := fmt.Sprintf("%s->%s", from, to)
			var events []stateEvent
			s := New(nil, nil, nil)
			s.AddListener(&recorder{name: "first", events: &events})
			s.AddListener(&recorder{name: "second", events: &events})
			s.state = from

			want := false
			for _, ok := range legal[from] {
				if ok == to {
					want = true
				}
			}
			got := s.changeState(to)
			assert.Equal(t, want, got, name)
			if want {
				assert.Equal(t, to, s.State(), name)
				assert.Equal(t, []stateEvent{
					{"first", to, from},
					{"second", to, from},
				}, events, name)
			} else {
				assert.Equal(t, from, s.State(), name)
				assert.Empty(t, events, name)
			}
		}
	}
}

func TestListenerRegistrationIsIdempotent(t *testing.T) {
	var events []stateEvent
	s := New(nil, nil, nil)
	l := &recorder{name: "l", events: &events}
	s.AddListener(l)
	s.AddListener(l)
	s.changeState(StateConnecting)
	assert.Len(t, events, 1)

	s.RemoveListener(l)
	s.changeState(StateClosed)
	assert.Len(t, events, 1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "negotiating", StateNegotiating.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.False(t, legalTransition(State(42), StateClosed))
}
