// Package xmppim carries the RFC 6121 instant messaging layer of a client
// session: initial presence, the roster and message delivery.
package xmppim

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppcore"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppsession"
)

type session interface {
	JID() xmppcore.JID
	Features() []*xmlobj.Object
	SendStanza(obj *xmlobj.Object) bool
}

// Module sends the initial presence and fetches the roster once the
// session is bound, then keeps the roster current from server pushes.
// Received messages and presences go to the callbacks, when set.
type Module struct {
	Presence   ClientPresence
	OnMessage  func(msg ClientMessage)
	OnPresence func(p ClientPresence)

	log logrus.FieldLogger

	mu       sync.Mutex
	rosterID string
	ver      string
	roster   map[string]RosterItem
}

var (
	_ xmppsession.Module   = (*Module)(nil)
	_ xmppsession.Listener = (*Module)(nil)
)

func New(log logrus.FieldLogger) *Module {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Module{
		log:    log.WithField("module", "im"),
		roster: make(map[string]RosterItem),
	}
}

func (m *Module) Name() string { return "im" }

func (m *Module) ModuleRegistered(s *xmppsession.Session) { s.AddListener(m) }

func (m *Module) ModuleUnregistered(s *xmppsession.Session) { s.RemoveListener(m) }

func (m *Module) OnStateChange(s *xmppsession.Session, newState, _ xmppsession.State) {
	if newState == xmppsession.StateBound {
		m.bound(s)
	}
}

func (m *Module) OnFeatures(*xmppsession.Session, []*xmlobj.Object) {}

func (m *Module) ProcessXMLObject(s *xmppsession.Session, obj *xmlobj.Object) bool {
	return m.process(s, obj)
}

// Roster returns the known contacts ordered by address.
func (m *Module) Roster() []RosterItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]RosterItem, 0, len(m.roster))
	for _, it := range m.roster {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].JID.String() < items[j].JID.String() })
	return items
}

func (m *Module) bound(s session) {
	id, err := xmppcore.NewID()
	if err != nil {
		m.log.Errorf("Unable to generate roster id: %v", err)
		return
	}
	m.mu.Lock()
	m.rosterID = id
	ver := m.ver
	m.mu.Unlock()

	// RFC 6121  2.6.1: ver only goes to servers that announce versioning.
	// An empty ver asks for the full roster.
	get := RosterIQGet{}
	if xmppcore.FindFeature(s.Features(), "ver", RosterVerNS) != nil {
		get.Ver = &ver
	}
	iq, err := xmppcore.NewIQ(xmppcore.IQTypeGet, id, nil, get)
	if err != nil {
		m.log.Errorf("Unable to build roster request: %v", err)
		return
	}
	s.SendStanza(iq.Object())

	presence, err := xmlobj.Marshal(m.Presence)
	if err != nil {
		m.log.Errorf("Unable to build presence: %v", err)
		return
	}
	s.SendStanza(presence)
}

func (m *Module) process(s session, obj *xmlobj.Object) bool {
	switch {
	case obj.Is("message", xmppcore.JabberClientNS):
		var msg ClientMessage
		if err := obj.Unmarshal(&msg); err != nil {
			m.log.Warnf("Dropping malformed message: %v", err)
			return true
		}
		if m.OnMessage != nil {
			m.OnMessage(msg)
		}
		return true

	case obj.Is("presence", xmppcore.JabberClientNS):
		var p ClientPresence
		if err := obj.Unmarshal(&p); err != nil {
			m.log.Warnf("Dropping malformed presence: %v", err)
			return true
		}
		if m.OnPresence != nil {
			m.OnPresence(p)
		}
		return true
	}

	iq, ok := xmppcore.AsIQ(obj)
	if !ok {
		return false
	}
	m.mu.Lock()
	rosterID := m.rosterID
	m.mu.Unlock()

	switch {
	case iq.Type() == xmppcore.IQTypeSet && iq.Payload().Is("query", RosterNS):
		return m.push(s, iq)
	case rosterID != "" && iq.ID() == rosterID:
		m.mu.Lock()
		m.rosterID = ""
		m.mu.Unlock()
		if iq.Type() != xmppcore.IQTypeResult {
			m.log.Warnf("Roster request failed: %s", obj)
			return true
		}
		// No payload means the cached roster is current.
		if p := iq.Payload(); p != nil {
			var q RosterQuery
			if err := p.Unmarshal(&q); err != nil {
				m.log.Warnf("Malformed roster: %v", err)
				return true
			}
			m.replace(q)
		}
		return true
	}
	return false
}

// push applies a roster push. RFC 6121  2.1.6: pushes from anyone but
// the account itself are ignored.
func (m *Module) push(s session, iq xmppcore.IQ) bool {
	if from := iq.From(); !from.IsEmpty() && !from.Equal(s.JID().BareJID()) {
		m.log.Warnf("Ignoring roster push from %s", from)
		return false
	}
	var q RosterQuery
	if err := iq.Payload().Unmarshal(&q); err != nil || len(q.Item) != 1 {
		s.SendStanza(iq.ErrorReply(xmppcore.StanzaErrorTypeModify, xmppcore.StanzaErrorConditionBadRequest).Object())
		return true
	}

	item := q.Item[0]
	m.mu.Lock()
	if item.Subscription == RosterItemSubscriptionRemove {
		delete(m.roster, item.JID.Bare())
	} else {
		m.roster[item.JID.Bare()] = item
	}
	if q.Ver != "" {
		m.ver = q.Ver
	}
	m.mu.Unlock()
	m.log.Debugf("Roster push for %s", item.JID.Bare())
	s.SendStanza(iq.Result().Object())
	return true
}

func (m *Module) replace(q RosterQuery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster = make(map[string]RosterItem, len(q.Item))
	for _, it := range q.Item {
		m.roster[it.JID.Bare()] = it
	}
	m.ver = q.Ver
	m.log.Infof("Roster received with %d contacts", len(q.Item))
}
