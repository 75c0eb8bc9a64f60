// Package xmpptls negotiates STARTTLS on a client session.
//
// RFC 6120  5
package xmpptls

import (
	"github.com/sirupsen/logrus"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppcore"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppsession"
)

type session interface {
	SendStanza(obj *xmlobj.Object) bool
	StartTLS(cb func(error))
	TLSEnabled() bool
	Stop(fast bool)
}

// Module upgrades the transport when the server offers STARTTLS. With
// Required set, a server that does not offer it on a plain transport is
// disconnected.
type Module struct {
	Required bool

	log logrus.FieldLogger
}

var _ xmppsession.Module = (*Module)(nil)

func New(log logrus.FieldLogger) *Module {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Module{log: log.WithField("module", "tls")}
}

func (m *Module) Name() string { return "starttls" }

func (m *Module) ModuleRegistered(*xmppsession.Session)   {}
func (m *Module) ModuleUnregistered(*xmppsession.Session) {}

func (m *Module) ProcessXMLObject(s *xmppsession.Session, obj *xmlobj.Object) bool {
	return m.process(s, obj)
}

func (m *Module) process(s session, obj *xmlobj.Object) bool {
	switch {
	case xmppcore.IsStreamFeatures(obj):
		// Servers do not offer STARTTLS again on an upgraded stream.
		if s.TLSEnabled() {
			return false
		}
		offer := obj.Child("starttls", xmppcore.TLSNS)
		if offer == nil {
			if m.Required {
				m.log.Error("Server does not offer STARTTLS")
				s.Stop(false)
				return true
			}
			return false
		}
		m.log.WithField("required", xmppcore.TLSRequired(offer)).Debug("Requesting STARTTLS")
		s.SendStanza(xmlobj.MustMarshal(xmppcore.TLSStartTLS{}))
		return true

	case obj.Is("proceed", xmppcore.TLSNS):
		s.StartTLS(func(err error) {
			if err != nil {
				m.log.Errorf("TLS negotiation failed: %v", err)
				return
			}
			m.log.Info("TLS established")
		})
		return true

	case obj.Is("failure", xmppcore.TLSNS):
		// The server closes the stream after a failure.
		m.log.Error("Server refused STARTTLS")
		s.Stop(false)
		return true
	}
	return false
}
