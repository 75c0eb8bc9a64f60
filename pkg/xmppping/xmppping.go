// XEP-0199
package xmppping

import (
	"encoding/xml"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppcore"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppsession"
)

const NS = "urn:xmpp:ping"

type Ping struct {
	XMLName xml.Name `xml:"urn:xmpp:ping ping"`
}

const timeoutPrefix = "ping:"

// session is the part of xmppsession.Session the module uses.
type session interface {
	SendStanza(obj *xmlobj.Object) bool
	SetTimeout(id string, d time.Duration)
	CancelTimeout(id string) bool
}

// Module answers pings and sends its own. A ping that gets no answer
// within Timeout is reported to OnTimeout.
type Module struct {
	Timeout   time.Duration
	OnTimeout func(id string)

	log logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]struct{}
}

var _ xmppsession.Module = (*Module)(nil)

func New(log logrus.FieldLogger) *Module {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Module{
		Timeout: 30 * time.Second,
		log:     log.WithField("module", "ping"),
		pending: make(map[string]struct{}),
	}
}

func (m *Module) Name() string { return "ping" }

func (m *Module) ModuleRegistered(*xmppsession.Session) {}

func (m *Module) ModuleUnregistered(*xmppsession.Session) {
	m.mu.Lock()
	m.pending = make(map[string]struct{})
	m.mu.Unlock()
}

func (m *Module) ProcessXMLObject(s *xmppsession.Session, obj *xmlobj.Object) bool {
	return m.process(s, obj)
}

// Send pings to, or the server when to is nil, and returns the iq id.
func (m *Module) Send(s *xmppsession.Session, to *xmppcore.JID) (string, error) {
	return m.send(s, to)
}

func (m *Module) send(s session, to *xmppcore.JID) (string, error) {
	id, err := xmppcore.NewID()
	if err != nil {
		return "", err
	}
	iq, err := xmppcore.NewIQ(xmppcore.IQTypeGet, id, to, Ping{})
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.pending[id] = struct{}{}
	m.mu.Unlock()
	if !s.SendStanza(iq.Object()) {
		m.forget(id)
		return "", xmppsession.ErrNoStream
	}
	s.SetTimeout(timeoutPrefix+id, m.Timeout)
	return id, nil
}

func (m *Module) process(s session, obj *xmlobj.Object) bool {
	if id, ok := xmlobj.TimeoutID(obj); ok {
		if !strings.HasPrefix(id, timeoutPrefix) {
			return false
		}
		id = strings.TrimPrefix(id, timeoutPrefix)
		if !m.forget(id) {
			return true
		}
		m.log.Warnf("Ping %s timed out", id)
		if m.OnTimeout != nil {
			m.OnTimeout(id)
		}
		return true
	}

	iq, ok := xmppcore.AsIQ(obj)
	if !ok {
		return false
	}
	if iq.IsRequest() {
		p := iq.Payload()
		if iq.Type() != xmppcore.IQTypeGet || !p.Is("ping", NS) {
			return false
		}
		m.log.Debugf("Answering ping %s from %s", iq.ID(), iq.From())
		s.SendStanza(iq.Result().Object())
		return true
	}

	// Any response, error included, proves the peer is alive.
	if !m.forget(iq.ID()) {
		return false
	}
	s.CancelTimeout(timeoutPrefix + iq.ID())
	return true
}

func (m *Module) forget(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[id]; !ok {
		return false
	}
	delete(m.pending, id)
	return true
}
