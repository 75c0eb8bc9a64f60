package xmppsession

import (
	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
)

// Module extends a session. Modules are offered every received object in
// registration order until one handles it.
type Module interface {
	Name() string
	ModuleRegistered(s *Session)
	ModuleUnregistered(s *Session)
	// ProcessXMLObject returns true when the module handled obj.
	ProcessXMLObject(s *Session, obj *xmlobj.Object) bool
}

// Listener observes a session.
type Listener interface {
	OnStateChange(s *Session, newState, oldState State)
	OnFeatures(s *Session, features []*xmlobj.Object)
}

// RegisterModule appends m to the module chain. Registering a module
// twice has no effect.
func (s *Session) RegisterModule(m Module) {
	s.chainMu.Lock()
	for _, have := range s.modules {
		if have == m {
			s.chainMu.Unlock()
			return
		}
	}
	s.modules = append(s.modules, m)
	s.chainMu.Unlock()
	s.log.Debugf("Registered module %s", m.Name())
	m.ModuleRegistered(s)
}

func (s *Session) UnregisterModule(m Module) {
	s.chainMu.Lock()
	found := false
	for i, have := range s.modules {
		if have == m {
			s.modules = append(s.modules[:i:i], s.modules[i+1:]...)
			found = true
			break
		}
	}
	s.chainMu.Unlock()
	if found {
		s.log.Debugf("Unregistered module %s", m.Name())
		m.ModuleUnregistered(s)
	}
}

func (s *Session) AddListener(l Listener) {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()
	for _, have := range s.listeners {
		if have == l {
			return
		}
	}
	s.listeners = append(s.listeners, l)
}

func (s *Session) RemoveListener(l Listener) {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()
	for i, have := range s.listeners {
		if have == l {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *Session) moduleChain() []Module {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()
	return append([]Module(nil), s.modules...)
}

func (s *Session) listenerList() []Listener {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()
	return append([]Listener(nil), s.listeners...)
}
