package xmppim

import (
	"encoding/xml"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmppcore"
)

// RFC 6121  4.7.1
const (
	PresenceTypeError        = "error"
	PresenceTypeSubscribe    = "subscribe"
	PresenceTypeSubscribed   = "subscribed"
	PresenceTypeUnavailable  = "unavailable"
	PresenceTypeUnsubscribe  = "unsubscribe"
	PresenceTypeUnsubscribed = "unsubscribed"
)

// RFC 6121  4.7.2.1
const (
	PresenceShowAway = "away"
	PresenceShowChat = "chat"
	PresenceShowDND  = "dnd"
	PresenceShowXA   = "xa"
)

// RFC 6121  4.7.
type ClientPresence struct {
	XMLName  xml.Name              `xml:"jabber:client presence"`
	ID       string                `xml:"id,attr,omitempty"`
	Type     string                `xml:"type,attr,omitempty"`
	From     *xmppcore.JID         `xml:"from,attr,omitempty"`
	To       *xmppcore.JID         `xml:"to,attr,omitempty"`
	Show     string                `xml:"show,omitempty"`
	Status   string                `xml:"status,omitempty"`
	Priority int8                  `xml:"priority,omitempty"`
	Error    *xmppcore.StanzaError `xml:",omitempty"`
	CapsC    *CapsC                `xml:",omitempty"`
}

//TODO: move this to its own package (XEP-0115)

const CapsNS = "http://jabber.org/protocol/caps"

type CapsC struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/caps c"`
	Hash    string   `xml:"hash,attr"`
	Node    string   `xml:"node,attr"`
	Ver     string   `xml:"ver,attr"`
}
