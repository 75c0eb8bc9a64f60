package xmppcore

import (
	"encoding/xml"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
)

const StanzasNS = "urn:ietf:params:xml:ns:xmpp-stanzas"

// RFC 6120  8.3.2
const (
	StanzaErrorTypeAuth     = "auth"
	StanzaErrorTypeCancel   = "cancel"
	StanzaErrorTypeContinue = "continue"
	StanzaErrorTypeModify   = "modify"
	StanzaErrorTypeWait     = "wait"
)

// RFC 6120  8.3.2
type StanzaError struct {
	XMLName         xml.Name `xml:"jabber:client error"`
	By              string   `xml:"by,attr,omitempty"`
	Type            string   `xml:"type,attr"`
	Condition       StanzaErrorCondition
	Text            string      `xml:"text,omitempty"`
	CustomCondition interface{} `xml:",omitempty"`
}

type StanzaErrorCondition struct {
	XMLName xml.Name
}

var (
	StanzaErrorConditionBadRequest            = StanzaErrorCondition{xml.Name{Space: StanzasNS, Local: "bad-request"}}
	StanzaErrorConditionConflict              = StanzaErrorCondition{xml.Name{Space: StanzasNS, Local: "conflict"}}
	StanzaErrorConditionFeatureNotImplemented = StanzaErrorCondition{xml.Name{Space: StanzasNS, Local: "feature-not-implemented"}}
	StanzaErrorConditionItemNotFound          = StanzaErrorCondition{xml.Name{Space: StanzasNS, Local: "item-not-found"}}
	StanzaErrorConditionNotAllowed            = StanzaErrorCondition{xml.Name{Space: StanzasNS, Local: "not-allowed"}}
	StanzaErrorConditionServiceUnavailable    = StanzaErrorCondition{xml.Name{Space: StanzasNS, Local: "service-unavailable"}}
)

// StanzaErrorConditionOf returns the defined condition of a received
// stanza error element, or "" if it carries none.
func StanzaErrorConditionOf(obj *xmlobj.Object) string {
	for _, c := range obj.Children() {
		if c.Namespace() == StanzasNS && c.Name() != "text" {
			return c.Name()
		}
	}
	return ""
}
