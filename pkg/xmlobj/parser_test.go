package xmlobj

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	streamsNS = "http://etherx.jabber.org/streams"
	clientNS  = "jabber:client"
)

type collector struct {
	objs []*Object
	errs []error
}

func newCollector(rootName, rootNS string) (*Parser, *collector) {
	c := &collector{}
	p := NewParser(rootName, rootNS,
		func(o *Object) { c.objs = append(c.objs, o) },
		func(err error) { c.errs = append(c.errs, err) })
	return p, c
}

const streamDoc = `<?xml version='1.0'?>` +
	`<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' id='s1' from='example.com' version='1.0'>` +
	`<stream:features><bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'/></stream:features>` +
	"\n  " +
	`<message to='juliet@example.com'><body>hi &amp; bye</body></message>` +
	`</stream:stream>`

func checkStreamEvents(t *testing.T, c *collector) {
	t.Helper()
	require.Empty(t, c.errs)
	require.Len(t, c.objs, 4)

	start := c.objs[0]
	assert.Equal(t, PartStart, start.Part())
	assert.True(t, start.Is("stream", streamsNS))
	assert.False(t, start.IsDefaultNamespace())
	assert.Equal(t, "s1", start.Attr("id"))
	assert.Equal(t, "example.com", start.Attr("from"))
	def, ok := start.Alias("")
	assert.True(t, ok)
	assert.Equal(t, clientNS, def)
	assert.Empty(t, start.Children())

	features := c.objs[1]
	assert.Equal(t, PartAll, features.Part())
	assert.True(t, features.Is("features", streamsNS))
	assert.False(t, features.IsDefaultNamespace())
	bind := features.Child("bind", "urn:ietf:params:xml:ns:xmpp-bind")
	require.NotNil(t, bind)
	assert.True(t, bind.IsDefaultNamespace())

	msg := c.objs[2]
	assert.True(t, msg.Is("message", clientNS))
	assert.True(t, msg.IsDefaultNamespace())
	assert.Equal(t, "juliet@example.com", msg.Attr("to"))
	body := msg.Child("body", clientNS)
	require.NotNil(t, body)
	assert.Equal(t, "hi & bye", body.Content())

	end := c.objs[3]
	assert.Equal(t, PartEnd, end.Part())
	assert.True(t, end.Is("stream", streamsNS))
	assert.Equal(t, "</stream:stream>", end.String())
}

func TestParserStreamEvents(t *testing.T) {
	p, c := newCollector("stream", streamsNS)
	defer p.Close()
	p.Parse([]byte(streamDoc))
	checkStreamEvents(t, c)
}

func TestParserByteByByte(t *testing.T) {
	p, c := newCollector("stream", streamsNS)
	defer p.Close()
	for i := 0; i < len(streamDoc); i++ {
		p.Parse([]byte{streamDoc[i]})
	}
	checkStreamEvents(t, c)
}

func TestParserStanzaDeliveredWhenComplete(t *testing.T) {
	p, c := newCollector("stream", streamsNS)
	defer p.Close()

	p.Parse([]byte(`<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'>`))
	require.Len(t, c.objs, 1)

	p.Parse([]byte(`<iq type='get' id='1'><query xmlns='urn:x'>`))
	assert.Len(t, c.objs, 1)
	p.Parse([]byte(`</query></iq>`))
	require.Len(t, c.objs, 2)
	assert.True(t, c.objs[1].Is("iq", clientNS))
	assert.NotNil(t, c.objs[1].Child("query", "urn:x"))
}

func TestParserDefaultNamespaceNearestAncestor(t *testing.T) {
	objs, err := Parse([]byte(`<a xmlns='n1'><b><c xmlns='n2'/></b></a>`))
	require.NoError(t, err)
	require.Len(t, objs, 1)

	a := objs[0]
	assert.Equal(t, "n1", a.Namespace())
	assert.True(t, a.IsDefaultNamespace())
	b := a.Child("b", "")
	require.NotNil(t, b)
	assert.Equal(t, "n1", b.Namespace())
	assert.True(t, b.IsDefaultNamespace())
	c := b.Child("c", "")
	require.NotNil(t, c)
	assert.Equal(t, "n2", c.Namespace())
	assert.True(t, c.IsDefaultNamespace())
}

func TestParserEmptyDefaultInherits(t *testing.T) {
	// Undeclaring the default keeps the nearest non-empty one, so a child
	// written with xmlns='' reads back in its parent's namespace.
	objs, err := Parse([]byte(New("a", "n1", true).AddChild(New("b", "", false).SetContent("x")).String()))
	require.NoError(t, err)
	require.Len(t, objs, 1)
	b := objs[0].Child("b", "n1")
	require.NotNil(t, b)
	assert.Equal(t, "x", b.Content())
}

func TestParserDefaultNamespaceAnyDepth(t *testing.T) {
	for depth := 1; depth <= 8; depth++ {
		doc := "<r xmlns='outer'><m xmlns='inner'>" +
			strings.Repeat("<e>", depth) + strings.Repeat("</e>", depth) +
			"</m></r>"
		objs, err := Parse([]byte(doc))
		require.NoError(t, err)
		e := objs[0].Child("m", "inner")
		require.NotNil(t, e)
		for i := 0; i < depth; i++ {
			e = e.Child("e", "")
			require.NotNil(t, e, "depth %d", i)
			assert.Equal(t, "inner", e.Namespace())
			assert.True(t, e.IsDefaultNamespace())
		}
	}
}

func TestParserPrefixResolution(t *testing.T) {
	objs, err := Parse([]byte(
		`<a xmlns='d' xmlns:p='urn:p' xmlns:q='d'><p:b><q:c/><u:x/></p:b></a>`))
	require.NoError(t, err)
	b := objs[0].Child("b", "urn:p")
	require.NotNil(t, b)
	assert.False(t, b.IsDefaultNamespace())

	// An alias equal to the nearest default marks the element default.
	c := b.Child("c", "d")
	require.NotNil(t, c)
	assert.True(t, c.IsDefaultNamespace())

	// An unknown prefix is kept as the namespace.
	x := b.Child("x", "u")
	require.NotNil(t, x)
	assert.False(t, x.IsDefaultNamespace())
}

func TestParserRejectsInternalNamespaces(t *testing.T) {
	for _, doc := range []string{
		`<timeout xmlns='internal-timer' id='close'/>`,
		`<e:rx-error xmlns:e='internal-error' errnum='1'/>`,
	} {
		p, c := newCollector("", "")
		p.Parse([]byte(doc))
		assert.Empty(t, c.objs, doc)
		assert.Len(t, c.errs, 1, doc)
		assert.True(t, p.Failed())
		p.Close()
	}
}

func TestParserIgnoresInputAfterError(t *testing.T) {
	p, c := newCollector("", "")
	defer p.Close()

	p.Parse([]byte(`<a></b>`))
	require.Len(t, c.errs, 1)
	p.Parse([]byte(`<ok/>`))
	assert.Empty(t, c.objs)
	assert.Len(t, c.errs, 1)

	p.Reset()
	assert.False(t, p.Failed())
	p.Parse([]byte(`<ok/>`))
	require.Len(t, c.objs, 1)
	assert.Equal(t, "ok", c.objs[0].Name())
}

func TestParserResetMidStream(t *testing.T) {
	p, c := newCollector("stream", streamsNS)
	defer p.Close()

	p.Parse([]byte(`<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'><message><bo`))
	require.Len(t, c.objs, 1)

	p.Reset()
	p.Parse([]byte(`<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams' id='s2'><presence/>`))
	require.Empty(t, c.errs)
	require.Len(t, c.objs, 3)
	assert.Equal(t, PartStart, c.objs[1].Part())
	assert.Equal(t, "s2", c.objs[1].Attr("id"))
	assert.True(t, c.objs[2].Is("presence", clientNS))
}

func TestParserRootTextIgnored(t *testing.T) {
	p, c := newCollector("stream", streamsNS)
	defer p.Close()
	p.Parse([]byte(`<stream:stream xmlns:stream='http://etherx.jabber.org/streams'>  ` + "\n" + `  <a/> `))
	require.Len(t, c.objs, 2)
	assert.Equal(t, "", c.objs[0].Content())
}

func TestParseIncomplete(t *testing.T) {
	_, err := Parse([]byte(`<a><b/>`))
	assert.Error(t, err)
	_, err = ParseOne([]byte(`<a/><b/>`))
	assert.Error(t, err)
}
