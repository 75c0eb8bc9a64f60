package xmppim

import (
	"encoding/xml"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmppcore"
)

// RFC 6121  2

const (
	RosterNS = "jabber:iq:roster"
	// RosterVerNS is the stream feature announcing roster versioning.
	RosterVerNS = "urn:xmpp:features:rosterver"
)

type RosterIQGet struct {
	XMLName xml.Name `xml:"jabber:iq:roster query"`
	Ver     *string  `xml:"ver,attr,omitempty"`
}

// RosterQuery is the payload of a roster result and of a roster push.
type RosterQuery struct {
	XMLName xml.Name     `xml:"jabber:iq:roster query"`
	Ver     string       `xml:"ver,attr,omitempty"`
	Item    []RosterItem `xml:"item,omitempty"`
}

const (
	RosterItemAskSubscribe = "subscribe"
)

const (
	RosterItemSubscriptionBoth   = "both"
	RosterItemSubscriptionFrom   = "from"
	RosterItemSubscriptionNone   = "none"
	RosterItemSubscriptionRemove = "remove"
	RosterItemSubscriptionTo     = "to"
)

type RosterItem struct {
	XMLName      xml.Name     `xml:"jabber:iq:roster item"`
	Approved     bool         `xml:"approved,attr,omitempty"`
	Ask          string       `xml:"ask,attr,omitempty"`
	JID          xmppcore.JID `xml:"jid,attr"`
	Name         string       `xml:"name,attr,omitempty"`
	Subscription string       `xml:"subscription,attr,omitempty"`
	Group        []string     `xml:"group,omitempty"`
}
