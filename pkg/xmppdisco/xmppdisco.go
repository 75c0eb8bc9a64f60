package xmppdisco

import (
	"encoding/xml"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppcore"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppsession"
)

// XEP-0030: Service Discovery

const (
	InfoNS  = "http://jabber.org/protocol/disco#info"
	ItemsNS = "http://jabber.org/protocol/disco#items"
)

type InfoIQGet struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/disco#info query"`
}

type InfoIQResult struct {
	XMLName  xml.Name   `xml:"http://jabber.org/protocol/disco#info query"`
	Node     string     `xml:"node,attr,omitempty"`
	Identity []Identity `xml:"identity,omitempty"`
	Feature  []Feature  `xml:"feature,omitempty"`
}

type ItemsIQGet struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/disco#items query"`
}

type ItemsIQResult struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/disco#items query"`
	Node    string   `xml:"node,attr,omitempty"`
	Item    []Item   `xml:"item,omitempty"`
}

// https://xmpp.org/registrar/disco-categories.html
const (
	IdentityCategoryAccount    = "account"
	IdentityCategoryAutomation = "automation"
	IdentityCategoryClient     = "client"
	IdentityCategoryGateway    = "gateway"
)

const IdentityTypeClientPC = "pc"

type Identity struct {
	Category string `xml:"category,attr"`
	Name     string `xml:"name,attr,omitempty"`
	Type     string `xml:"type,attr"`
}

type Feature struct {
	Var string `xml:"var,attr"`
}

type Item struct {
	JID  xmppcore.JID `xml:"jid,attr"`
	Name string       `xml:"name,attr,omitempty"`
	Node string       `xml:"node,attr,omitempty"`
}

type session interface {
	SendStanza(obj *xmlobj.Object) bool
}

// Module answers disco#info and disco#items queries about this client.
type Module struct {
	log logrus.FieldLogger

	mu       sync.Mutex
	identity Identity
	features map[string]struct{}
	items    []Item
}

var _ xmppsession.Module = (*Module)(nil)

// New creates a responder announcing identity and features. The
// disco#info feature itself is always announced.
func New(identity Identity, log logrus.FieldLogger, features ...string) *Module {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Module{
		log:      log.WithField("module", "disco"),
		identity: identity,
		features: map[string]struct{}{InfoNS: {}},
	}
	for _, f := range features {
		m.features[f] = struct{}{}
	}
	return m
}

func (m *Module) AddFeature(ns string) {
	m.mu.Lock()
	m.features[ns] = struct{}{}
	m.mu.Unlock()
}

func (m *Module) AddItem(item Item) {
	m.mu.Lock()
	m.items = append(m.items, item)
	m.mu.Unlock()
}

func (m *Module) Name() string { return "disco" }

func (m *Module) ModuleRegistered(*xmppsession.Session) {}

func (m *Module) ModuleUnregistered(*xmppsession.Session) {}

func (m *Module) ProcessXMLObject(s *xmppsession.Session, obj *xmlobj.Object) bool {
	return m.process(s, obj)
}

func (m *Module) process(s session, obj *xmlobj.Object) bool {
	iq, ok := xmppcore.AsIQ(obj)
	if !ok || iq.Type() != xmppcore.IQTypeGet {
		return false
	}
	query := iq.Payload()
	var payload interface{}
	switch {
	case query.Is("query", InfoNS):
		payload = m.info(query.Attr("node"))
	case query.Is("query", ItemsNS):
		payload = m.itemList(query.Attr("node"))
	default:
		return false
	}

	res, err := iq.ResultWith(payload)
	if err != nil {
		m.log.Errorf("Unable to build disco result: %v", err)
		s.SendStanza(iq.ErrorReply(xmppcore.StanzaErrorTypeCancel,
			xmppcore.StanzaErrorConditionFeatureNotImplemented).Object())
		return true
	}
	s.SendStanza(res.Object())
	return true
}

func (m *Module) info(node string) InfoIQResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := InfoIQResult{Node: node, Identity: []Identity{m.identity}}
	vars := make([]string, 0, len(m.features))
	for f := range m.features {
		vars = append(vars, f)
	}
	sort.Strings(vars)
	for _, v := range vars {
		res.Feature = append(res.Feature, Feature{Var: v})
	}
	return res
}

func (m *Module) itemList(node string) ItemsIQResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ItemsIQResult{Node: node, Item: append([]Item(nil), m.items...)}
}
