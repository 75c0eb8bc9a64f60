package xmppcore

import (
	"encoding/xml"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
)

// RFC 6120  5  STARTTLS Negotiation

const TLSNS = "urn:ietf:params:xml:ns:xmpp-tls"

type TLSStartTLS struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-tls starttls"`
	Required *string  `xml:"required,omitempty"`
}

type TLSProceed struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-tls proceed"`
}

type TLSFailure struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-tls failure"`
}

// TLSRequired reports whether a starttls feature is marked mandatory.
//
// RFC 6120  5.3.1
func TLSRequired(feature *xmlobj.Object) bool {
	return feature.Child("required", TLSNS) != nil
}
