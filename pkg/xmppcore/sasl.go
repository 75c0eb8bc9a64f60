package xmppcore

import (
	"encoding/xml"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
)

// RFC 6120  6  SASL Negotiation

const SASLNS = "urn:ietf:params:xml:ns:xmpp-sasl"

// RFC 6120  6.4.1
type SASLMechanisms struct {
	XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl mechanisms"`
	Mechanism []string `xml:"mechanism"`
}

// RFC 6120  6.4.2
type SASLAuth struct {
	XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl auth"`
	Mechanism string   `xml:"mechanism,attr"`
	CharData  string   `xml:",chardata"`
}

// RFC 6120  6.4.6
type SASLSuccess struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl success"`
	// Data is the optional base64 additional data with success.
	Data string `xml:",chardata"`
}

type SASLFailure struct {
	XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl failure"`
	Condition SASLFailureCondition
	Text      string `xml:"text"`
}

type SASLFailureCondition struct {
	XMLName xml.Name // Deliberately un-tagged
}

// RFC 6120 section 6.5
var (
	SASLFailureConditionAborted              = saslFailureCondition("aborted")
	SASLFailureConditionAccountDisabled      = saslFailureCondition("account-disabled")
	SASLFailureConditionCredentialsExpired   = saslFailureCondition("credentials-expired")
	SASLFailureConditionEncryptionRequired   = saslFailureCondition("encryption-required")
	SASLFailureConditionIncorrectEncoding    = saslFailureCondition("incorrect-encoding")
	SASLFailureConditionInvalidAuthzid       = saslFailureCondition("invalid-authzid")
	SASLFailureConditionInvalidMechanism     = saslFailureCondition("invalid-mechanism")
	SASLFailureConditionMalformedRequest     = saslFailureCondition("malformed-request")
	SASLFailureConditionMechanismTooWeak     = saslFailureCondition("mechanism-too-weak")
	SASLFailureConditionNotAuthorized        = saslFailureCondition("not-authorized")
	SASLFailureConditionTemporaryAuthFailure = saslFailureCondition("temporary-auth-failure")
)

var saslFailureDescriptions = map[SASLFailureCondition]string{
	SASLFailureConditionAborted:              "exchange aborted",
	SASLFailureConditionAccountDisabled:      "account disabled",
	SASLFailureConditionCredentialsExpired:   "credentials expired",
	SASLFailureConditionEncryptionRequired:   "mechanism requires encryption",
	SASLFailureConditionIncorrectEncoding:    "incorrectly encoded data",
	SASLFailureConditionInvalidAuthzid:       "invalid authorization identity",
	SASLFailureConditionInvalidMechanism:     "unsupported mechanism",
	SASLFailureConditionMalformedRequest:     "malformed request",
	SASLFailureConditionMechanismTooWeak:     "mechanism too weak for policy",
	SASLFailureConditionNotAuthorized:        "invalid credentials",
	SASLFailureConditionTemporaryAuthFailure: "temporary server error",
}

func saslFailureCondition(local string) SASLFailureCondition {
	return SASLFailureCondition{XMLName: xml.Name{Space: SASLNS, Local: local}}
}

func (c SASLFailureCondition) String() string { return c.XMLName.Local }

// Description is a short explanation of a defined condition, or "" for
// an unknown one.
func (c SASLFailureCondition) Description() string {
	return saslFailureDescriptions[c]
}

// SASLFailureOf decodes a received failure element. Conditions take the
// SASL namespace whatever prefix the server used.
//
// RFC 6120  6.4.5
func SASLFailureOf(obj *xmlobj.Object) SASLFailure {
	f := SASLFailure{XMLName: xml.Name{Space: SASLNS, Local: "failure"}}
	for _, c := range obj.Children() {
		switch {
		case c.Name() == "text":
			f.Text = c.Content()
		case f.Condition.XMLName.Local == "":
			f.Condition = saslFailureCondition(c.Name())
		}
	}
	return f
}
