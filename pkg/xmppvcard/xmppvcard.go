package xmppvcard

import (
	"encoding/xml"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppcore"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppsession"
)

// XEP-0054

const NS = "vcard-temp"

type IQGet struct {
	XMLName xml.Name `xml:"vcard-temp vCard"`
}

type IQResult struct {
	XMLName  xml.Name `xml:"vcard-temp vCard"`
	FullName string   `xml:"FN,omitempty"`
	Nickname string   `xml:"NICKNAME,omitempty"`
	URL      string   `xml:"URL,omitempty"`
	Desc     string   `xml:"DESC,omitempty"`
}

// ErrNotFound is reported for an entity without a vCard.
var ErrNotFound = errors.New("xmppvcard: no vcard")

// Callback receives the outcome of a Fetch.
type Callback func(card IQResult, err error)

type session interface {
	SendStanza(obj *xmlobj.Object) bool
}

// Module retrieves vCards.
type Module struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]Callback
}

var _ xmppsession.Module = (*Module)(nil)

func New(log logrus.FieldLogger) *Module {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Module{log: log.WithField("module", "vcard"), pending: make(map[string]Callback)}
}

func (m *Module) Name() string { return "vcard" }

func (m *Module) ModuleRegistered(*xmppsession.Session) {}

// ModuleUnregistered drops outstanding requests without calling back.
func (m *Module) ModuleUnregistered(*xmppsession.Session) {
	m.mu.Lock()
	m.pending = make(map[string]Callback)
	m.mu.Unlock()
}

func (m *Module) ProcessXMLObject(s *xmppsession.Session, obj *xmlobj.Object) bool {
	return m.process(obj)
}

// Fetch requests the vCard of to, or of the account itself when to is
// nil. cb runs on the session's dispatch goroutine.
func (m *Module) Fetch(s *xmppsession.Session, to *xmppcore.JID, cb Callback) error {
	return m.fetch(s, to, cb)
}

func (m *Module) fetch(s session, to *xmppcore.JID, cb Callback) error {
	id, err := xmppcore.NewID()
	if err != nil {
		return err
	}
	iq, err := xmppcore.NewIQ(xmppcore.IQTypeGet, id, to, IQGet{})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.pending[id] = cb
	m.mu.Unlock()
	if !s.SendStanza(iq.Object()) {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return xmppsession.ErrNoStream
	}
	return nil
}

func (m *Module) process(obj *xmlobj.Object) bool {
	iq, ok := xmppcore.AsIQ(obj)
	if !ok || iq.IsRequest() {
		return false
	}
	m.mu.Lock()
	cb, ok := m.pending[iq.ID()]
	delete(m.pending, iq.ID())
	m.mu.Unlock()
	if !ok {
		return false
	}

	var card IQResult
	switch {
	case iq.Type() == xmppcore.IQTypeError:
		cb(card, errors.Errorf("xmppvcard: request failed: %s", xmppcore.StanzaErrorConditionOf(iq.Error())))
	case iq.Payload() == nil:
		// XEP-0054  3.1: an empty result means there is no vCard.
		cb(card, ErrNotFound)
	default:
		if err := iq.Payload().Unmarshal(&card); err != nil {
			cb(card, err)
			return true
		}
		cb(card, nil)
	}
	return true
}
