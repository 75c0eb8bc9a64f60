// Package xmppsasl authenticates a client session with SASL PLAIN.
//
// RFC 6120  6, RFC 4616
package xmppsasl

import (
	"encoding/base64"

	"github.com/sirupsen/logrus"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppcore"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppsession"
)

const MechanismPlain = "PLAIN"

type session interface {
	Config() xmppsession.Config
	SendStanza(obj *xmlobj.Object) bool
	RestartStream()
	Stop(fast bool)
}

// Module authenticates as Config.UserID with Password when the server
// offers PLAIN. OnFailure, if set, receives the failure the server
// reported.
type Module struct {
	Password  string
	OnFailure func(failure xmppcore.SASLFailure)

	log logrus.FieldLogger
}

var _ xmppsession.Module = (*Module)(nil)

func New(password string, log logrus.FieldLogger) *Module {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Module{Password: password, log: log.WithField("module", "sasl")}
}

func (m *Module) Name() string { return "sasl" }

func (m *Module) ModuleRegistered(*xmppsession.Session)   {}
func (m *Module) ModuleUnregistered(*xmppsession.Session) {}

func (m *Module) ProcessXMLObject(s *xmppsession.Session, obj *xmlobj.Object) bool {
	return m.process(s, obj)
}

func (m *Module) process(s session, obj *xmlobj.Object) bool {
	switch {
	case xmppcore.IsStreamFeatures(obj):
		mechs := obj.Child("mechanisms", xmppcore.SASLNS)
		if mechs == nil {
			return false
		}
		var offer xmppcore.SASLMechanisms
		if err := mechs.Unmarshal(&offer); err != nil {
			m.log.Errorf("Malformed mechanisms: %v", err)
			return false
		}
		if !offers(offer, MechanismPlain) {
			m.log.Errorf("Server offers no supported mechanism: %v", offer.Mechanism)
			s.Stop(false)
			return true
		}
		user := s.Config().UserID
		if user == "" {
			m.log.Error("Authentication requires a user id")
			s.Stop(false)
			return true
		}
		s.SendStanza(xmlobj.MustMarshal(xmppcore.SASLAuth{
			Mechanism: MechanismPlain,
			CharData:  plain("", user, m.Password),
		}))
		return true

	case obj.Is("success", xmppcore.SASLNS):
		var success xmppcore.SASLSuccess
		if err := obj.Unmarshal(&success); err != nil {
			m.log.Warnf("Malformed success: %v", err)
		} else if success.Data != "" {
			m.log.Debugf("Ignoring additional data with success: %s", success.Data)
		}
		m.log.Info("Authenticated")
		s.RestartStream()
		return true

	case obj.Is("failure", xmppcore.SASLNS):
		failure := xmppcore.SASLFailureOf(obj)
		m.log.WithField("condition", failure.Condition).
			Errorf("Authentication failed: %s %s", failure.Condition.Description(), failure.Text)
		if m.OnFailure != nil {
			m.OnFailure(failure)
		}
		s.Stop(false)
		return true
	}
	return false
}

func offers(offer xmppcore.SASLMechanisms, name string) bool {
	for _, mech := range offer.Mechanism {
		if mech == name {
			return true
		}
	}
	return false
}

// plain encodes the RFC 4616 message: authzid NUL authcid NUL passwd.
func plain(authzid, authcid, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(authzid + "\x00" + authcid + "\x00" + password))
}
