package xmppvcard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppcore"
)

type fakeSession struct {
	sent []*xmlobj.Object
	down bool
}

func (f *fakeSession) SendStanza(obj *xmlobj.Object) bool {
	if f.down {
		return false
	}
	f.sent = append(f.sent, obj)
	return true
}

type outcome struct {
	card IQResult
	err  error
}

func fetch(t *testing.T, m *Module, s *fakeSession, to *xmppcore.JID) (string, *[]outcome) {
	var got []outcome
	require.NoError(t, m.fetch(s, to, func(card IQResult, err error) {
		got = append(got, outcome{card, err})
	}))
	iq, ok := xmppcore.AsIQ(s.sent[len(s.sent)-1])
	require.True(t, ok)
	return iq.ID(), &got
}

func reply(t *testing.T, s string) *xmlobj.Object {
	obj, err := xmlobj.ParseOne([]byte(s))
	require.NoError(t, err)
	return obj
}

func TestFetch(t *testing.T) {
	m := New(nil)
	s := &fakeSession{}
	to := xmppcore.JID{Local: "romeo", Domain: "example.net"}
	id, got := fetch(t, m, s, &to)

	iq, _ := xmppcore.AsIQ(s.sent[0])
	assert.Equal(t, "romeo@example.net", iq.To().String())
	assert.True(t, iq.Payload().Is("vCard", NS))

	assert.True(t, m.process(reply(t, `<iq xmlns='jabber:client' type='result' id='`+id+`'>`+
		`<vCard xmlns='vcard-temp'><FN>Romeo Montague</FN><NICKNAME>ro</NICKNAME></vCard></iq>`)))
	require.Len(t, *got, 1)
	assert.NoError(t, (*got)[0].err)
	assert.Equal(t, "Romeo Montague", (*got)[0].card.FullName)
	assert.Equal(t, "ro", (*got)[0].card.Nickname)

	// Answered once.
	assert.False(t, m.process(reply(t, `<iq xmlns='jabber:client' type='result' id='`+id+`'/>`)))
}

func TestFetchWithoutVCard(t *testing.T) {
	m := New(nil)
	s := &fakeSession{}
	id, got := fetch(t, m, s, nil)
	assert.True(t, m.process(reply(t, `<iq xmlns='jabber:client' type='result' id='`+id+`'/>`)))
	require.Len(t, *got, 1)
	assert.Equal(t, ErrNotFound, (*got)[0].err)
}

func TestFetchError(t *testing.T) {
	m := New(nil)
	s := &fakeSession{}
	id, got := fetch(t, m, s, nil)
	assert.True(t, m.process(reply(t, `<iq xmlns='jabber:client' type='error' id='`+id+`'>`+
		`<error type='cancel'><item-not-found xmlns='urn:ietf:params:xml:ns:xmpp-stanzas'/></error></iq>`)))
	require.Len(t, *got, 1)
	assert.EqualError(t, (*got)[0].err, "xmppvcard: request failed: item-not-found")
}

func TestFetchWithoutStream(t *testing.T) {
	m := New(nil)
	err := m.fetch(&fakeSession{down: true}, nil, func(IQResult, error) {})
	assert.Error(t, err)
	assert.Empty(t, m.pending)
}

func TestIgnoresRequests(t *testing.T) {
	m := New(nil)
	assert.False(t, m.process(reply(t, `<iq xmlns='jabber:client' type='get' id='x'><vCard xmlns='vcard-temp'/></iq>`)))
}
