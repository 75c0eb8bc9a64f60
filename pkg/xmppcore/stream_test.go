package xmppcore

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
)

func TestStreamErrorConditionBadFormatEncoding(t *testing.T) {
	def := StreamErrorConditionBadFormat
	xmlBuf, err := xml.Marshal(def)
	assert.Nil(t, err)
	assert.Equal(t,
		[]byte(`<bad-format xmlns="urn:ietf:params:xml:ns:xmpp-streams"></bad-format>`),
		xmlBuf)
}

func TestStreamErrorConditionOf(t *testing.T) {
	obj, err := xmlobj.Marshal(StreamError{
		Condition: StreamErrorConditionBadFormat,
		Text:      "unclosed tag",
	})
	require.NoError(t, err)
	assert.True(t, IsStreamError(obj))
	assert.Equal(t, "bad-format", StreamErrorConditionOf(obj))
	assert.Equal(t, "unclosed tag", StreamErrorText(obj))

	obj, err = xmlobj.Marshal(StreamError{Condition: StreamErrorConditionBadFormat})
	require.NoError(t, err)
	assert.Nil(t, obj.Child("text", StreamsNS))

	obj = xmlobj.New("error", JabberStreamsNS, false).
		AddChild(xmlobj.New("text", StreamsNS, true).SetContent("bye")).
		AddChild(xmlobj.New("conflict", StreamsNS, true))
	assert.Equal(t, "conflict", StreamErrorConditionOf(obj))
	assert.Equal(t, "bye", StreamErrorText(obj))
}

func TestStreamHeader(t *testing.T) {
	h := NewStreamHeader("example.com")
	assert.True(t, IsStreamStart(h))
	assert.Equal(t,
		`<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' to='example.com' version='1.0'>`,
		h.String())
	assert.True(t, IsStreamEnd(NewStreamEnd()))
	assert.Equal(t, `</stream:stream>`, NewStreamEnd().String())
}

func TestFindFeature(t *testing.T) {
	features := []*xmlobj.Object{
		xmlobj.New("starttls", TLSNS, true),
		xmlobj.New("bind", BindNS, true),
	}
	assert.NotNil(t, FindFeature(features, "bind", BindNS))
	assert.Nil(t, FindFeature(features, "bind", SASLNS))
}
