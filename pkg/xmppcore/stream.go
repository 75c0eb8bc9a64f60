package xmppcore

import (
	"encoding/xml"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
)

// RFC 6120  4.9  Stream Errors

// RFC 6120  4.9.2
type StreamError struct {
	XMLName   xml.Name `xml:"http://etherx.jabber.org/streams error"`
	Condition StreamErrorCondition
	Text      string `xml:"urn:ietf:params:xml:ns:xmpp-streams text,omitempty"`
}

// RFC 6120  4.9.3  Defined Stream Error Conditions

// Per latest revision of RFC 6120, stream error conditions are empty elements.
type StreamErrorCondition struct {
	XMLName xml.Name
}

var StreamErrorConditionBadFormat = StreamErrorCondition{xml.Name{Space: StreamsNS, Local: "bad-format"}}

// StreamErrorConditionOf returns the defined condition of a received
// stream error element, or "" if it carries none.
func StreamErrorConditionOf(obj *xmlobj.Object) string {
	for _, c := range obj.Children() {
		if c.Namespace() == StreamsNS && c.Name() != "text" {
			return c.Name()
		}
	}
	return ""
}

// StreamErrorText returns the optional descriptive text of a received
// stream error element.
func StreamErrorText(obj *xmlobj.Object) string {
	if t := obj.Child("text", StreamsNS); t != nil {
		return t.Content()
	}
	return ""
}

// NewStreamHeader builds the opening tag of a client stream to domain.
//
// RFC 6120  4.7
func NewStreamHeader(domain string) *xmlobj.Object {
	return xmlobj.New("stream", JabberStreamsNS, false).
		SetAlias("stream", JabberStreamsNS).
		SetAlias("", JabberClientNS).
		SetAttr("to", domain).
		SetAttr("version", "1.0").
		SetPart(xmlobj.PartStart)
}

// NewStreamEnd builds the closing tag of a client stream.
func NewStreamEnd() *xmlobj.Object {
	return xmlobj.New("stream", JabberStreamsNS, false).
		SetAlias("stream", JabberStreamsNS).
		SetPart(xmlobj.PartEnd)
}

// IsStreamStart reports whether obj opens a stream.
func IsStreamStart(obj *xmlobj.Object) bool {
	return obj.Is("stream", JabberStreamsNS) && obj.Part() == xmlobj.PartStart
}

// IsStreamEnd reports whether obj closes a stream.
func IsStreamEnd(obj *xmlobj.Object) bool {
	return obj.Is("stream", JabberStreamsNS) && obj.Part() == xmlobj.PartEnd
}

// RFC 6120  4.3.2  Streams Features Format

func IsStreamFeatures(obj *xmlobj.Object) bool {
	return obj.Is("features", JabberStreamsNS)
}

func IsStreamError(obj *xmlobj.Object) bool {
	return obj.Is("error", JabberStreamsNS)
}

// FindFeature returns the advertised feature with the given name and
// namespace, or nil.
func FindFeature(features []*xmlobj.Object, name, namespace string) *xmlobj.Object {
	for _, f := range features {
		if f.Is(name, namespace) {
			return f
		}
	}
	return nil
}
