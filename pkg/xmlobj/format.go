package xmlobj

import (
	"encoding/xml"
	"sort"
	"strings"
)

// scope is what the enclosing elements of a serialization declared.
type scope struct {
	defaultNS string
	aliases   map[string]string
}

type decl struct {
	name, value string
}

// String serializes the object with no enclosing namespace context.
func (o *Object) String() string {
	return o.Format("")
}

// Format serializes the object as if it were written inside an element
// whose default namespace is defaultNS. Stanzas sent on a client stream
// use "jabber:client" so that they carry no redundant declaration.
func (o *Object) Format(defaultNS string) string {
	var b strings.Builder
	o.write(&b, scope{defaultNS: defaultNS}, o.part)
	return b.String()
}

func (o *Object) write(b *strings.Builder, sc scope, part Part) {
	if o == nil {
		return
	}
	if part == PartBody {
		escape(b, o.content)
		return
	}
	if !o.Valid() {
		return
	}
	qname, decls, inner := o.layout(sc)
	if part == PartEnd {
		b.WriteString("</")
		b.WriteString(qname)
		b.WriteByte('>')
		return
	}

	b.WriteByte('<')
	b.WriteString(qname)
	for _, d := range decls {
		writeAttr(b, d.name, d.value)
	}
	for _, name := range o.attrNames() {
		writeAttr(b, name, o.attrs[name])
	}
	if part == PartStart {
		b.WriteByte('>')
		return
	}
	if len(o.children) == 0 && o.content == "" {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	escape(b, o.content)
	for _, c := range o.children {
		c.write(b, inner, PartAll)
	}
	b.WriteString("</")
	b.WriteString(qname)
	b.WriteByte('>')
}

// layout decides the qualified name, the namespace declarations to write
// and the scope seen by the children.
func (o *Object) layout(sc scope) (string, []decl, scope) {
	var decls []decl
	inner := sc

	prefixes := make([]string, 0, len(o.aliases))
	for p := range o.aliases {
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	sort.Strings(prefixes)
	if len(prefixes) > 0 {
		inner.aliases = make(map[string]string, len(sc.aliases)+len(prefixes))
		for p, uri := range sc.aliases {
			inner.aliases[p] = uri
		}
	}

	prefix := ""
	if !o.defaultNS && o.namespace != "" {
		for _, p := range prefixes {
			if o.aliases[p] == o.namespace {
				prefix = p
				break
			}
		}
		if prefix == "" {
			for p, uri := range sc.aliases {
				if uri == o.namespace && (prefix == "" || p < prefix) {
					prefix = p
				}
			}
		}
	}

	qname := o.name
	if prefix != "" {
		qname = prefix + ":" + o.name
		// An explicit default declaration on a prefixed element is kept.
		if def, ok := o.aliases[""]; ok {
			decls = append(decls, decl{"xmlns", def})
			inner.defaultNS = def
		}
	} else if o.namespace != sc.defaultNS {
		decls = append(decls, decl{"xmlns", o.namespace})
		inner.defaultNS = o.namespace
	}
	for _, p := range prefixes {
		decls = append(decls, decl{"xmlns:" + p, o.aliases[p]})
		inner.aliases[p] = o.aliases[p]
	}
	return qname, decls, inner
}

func writeAttr(b *strings.Builder, name, value string) {
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteString("='")
	escape(b, value)
	b.WriteByte('\'')
}

func escape(b *strings.Builder, s string) {
	if s == "" {
		return
	}
	// strings.Builder never fails a write.
	_ = xml.EscapeText(b, []byte(s))
}
