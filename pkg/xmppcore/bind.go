package xmppcore

import (
	"encoding/xml"
)

// RFC 6120  7. Resource Binding

const BindNS = "urn:ietf:params:xml:ns:xmpp-bind"

type BindIQSet struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
	Resource string   `xml:"resource,omitempty"`
}

type BindIQResult struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
	JID     *JID     `xml:"jid"`
}
