package xmppcore

import (
	"encoding/xml"

	"github.com/pkg/errors"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
)

//TODO: xml:lang

// Standard IQ types
//
// RFC 6120  8.2.3
const (
	IQTypeGet    = "get"
	IQTypeSet    = "set"
	IQTypeResult = "result"
	IQTypeError  = "error"
)

type ClientIQ struct {
	XMLName xml.Name     `xml:"jabber:client iq"`
	ID      string       `xml:"id,attr,omitempty"`
	Type    string       `xml:"type,attr"` // Any of IQType*
	From    *JID         `xml:"from,attr,omitempty"`
	To      *JID         `xml:"to,attr,omitempty"`
	Payload []byte       `xml:",innerxml"`
	Error   *StanzaError `xml:",omitempty"`
}

// IQ is a checked view of an iq stanza. It shares the underlying Object.
type IQ struct {
	obj *xmlobj.Object
}

// AsIQ returns the IQ view of obj if obj is an iq stanza of a known type.
func AsIQ(obj *xmlobj.Object) (IQ, bool) {
	if !obj.Is("iq", JabberClientNS) {
		return IQ{}, false
	}
	switch obj.Attr("type") {
	case IQTypeGet, IQTypeSet, IQTypeResult, IQTypeError:
		return IQ{obj: obj}, true
	}
	return IQ{}, false
}

// NewIQ builds an iq stanza whose payload is the encoding of payload, if
// not nil.
func NewIQ(iqType, id string, to *JID, payload interface{}) (IQ, error) {
	iq := ClientIQ{ID: id, Type: iqType, To: to}
	if payload != nil {
		p, err := xml.Marshal(payload)
		if err != nil {
			return IQ{}, errors.Wrap(err, "iq payload")
		}
		iq.Payload = p
	}
	obj, err := xmlobj.Marshal(iq)
	if err != nil {
		return IQ{}, err
	}
	return IQ{obj: obj}, nil
}

func (iq IQ) Object() *xmlobj.Object { return iq.obj }

func (iq IQ) ID() string { return iq.obj.Attr("id") }

func (iq IQ) Type() string { return iq.obj.Attr("type") }

// IsRequest reports whether the iq expects a response.
func (iq IQ) IsRequest() bool {
	t := iq.Type()
	return t == IQTypeGet || t == IQTypeSet
}

func (iq IQ) From() JID { return attrJID(iq.obj, "from") }

func (iq IQ) To() JID { return attrJID(iq.obj, "to") }

// Payload returns the first child that is not a stanza error.
func (iq IQ) Payload() *xmlobj.Object {
	for _, c := range iq.obj.Children() {
		if !c.Is("error", JabberClientNS) {
			return c
		}
	}
	return nil
}

// Error returns the stanza error of an error response.
func (iq IQ) Error() *xmlobj.Object {
	return iq.obj.Child("error", JabberClientNS)
}

// Result builds the empty result response.
func (iq IQ) Result() IQ {
	res := ClientIQ{ID: iq.ID(), Type: IQTypeResult}
	if from := iq.From(); !from.IsEmpty() {
		res.To = &from
	}
	return IQ{obj: xmlobj.MustMarshal(res)}
}

// ResultWith builds the result response carrying payload.
func (iq IQ) ResultWith(payload interface{}) (IQ, error) {
	var to *JID
	if from := iq.From(); !from.IsEmpty() {
		to = &from
	}
	return NewIQ(IQTypeResult, iq.ID(), to, payload)
}

// ErrorReply builds the error response carrying cond.
//
// RFC 6120  8.3.1
func (iq IQ) ErrorReply(errType string, cond StanzaErrorCondition) IQ {
	res := ClientIQ{
		ID:    iq.ID(),
		Type:  IQTypeError,
		Error: &StanzaError{Type: errType, Condition: cond},
	}
	if from := iq.From(); !from.IsEmpty() {
		res.To = &from
	}
	return IQ{obj: xmlobj.MustMarshal(res)}
}

func attrJID(obj *xmlobj.Object, name string) JID {
	if !obj.HasAttr(name) {
		return JID{}
	}
	jid, err := ParseJID(obj.Attr(name))
	if err != nil {
		return JID{}
	}
	return jid
}
