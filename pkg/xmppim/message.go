package xmppim

import (
	"encoding/xml"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmppcore"
)

// RFC 6121 section 5.2.2
const (
	MessageTypeChat      = "chat"
	MessageTypeError     = "error"
	MessageTypeGroupChat = "groupchat"
	MessageTypeHeadline  = "headline"
	MessageTypeNormal    = "normal"
)

type ClientMessage struct {
	XMLName xml.Name              `xml:"jabber:client message"`
	ID      string                `xml:"id,attr,omitempty"`
	From    *xmppcore.JID         `xml:"from,attr,omitempty"`
	To      *xmppcore.JID         `xml:"to,attr,omitempty"`
	Type    string                `xml:"type,attr,omitempty"` // Any of MessageType*
	Subject string                `xml:"subject,omitempty"`
	Body    string                `xml:"body,omitempty"`
	Thread  *ClientMessageThread  `xml:",omitempty"`
	Error   *xmppcore.StanzaError `xml:",omitempty"`
}

// RFC 6121 5.2.5
type ClientMessageThread struct {
	XMLName xml.Name `xml:"jabber:client thread"`
	Parent  string   `xml:"parent,attr,omitempty"`
	ID      string   `xml:",chardata"`
}
