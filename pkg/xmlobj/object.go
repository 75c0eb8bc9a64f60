// Package xmlobj holds the XML element tree exchanged on an XMPP stream
// and the incremental parser producing it.
package xmlobj

import (
	"sort"
)

// Part selects how much of an Object is serialized.
type Part int

const (
	// PartAll serializes the complete element.
	PartAll Part = iota
	// PartStart serializes only the opening tag with its attributes.
	PartStart
	// PartBody serializes only the escaped text content.
	PartBody
	// PartEnd serializes only the closing tag.
	PartEnd
)

func (p Part) String() string {
	switch p {
	case PartAll:
		return "all"
	case PartStart:
		return "start"
	case PartBody:
		return "body"
	case PartEnd:
		return "end"
	}
	return "unknown"
}

// Object is an XML element. An Object with an empty name is not valid.
//
// The namespace is the resolved URI. When defaultNS is set the element
// is written unprefixed in its namespace; otherwise an alias mapping to
// the namespace is used for the prefix if one is known.
type Object struct {
	name      string
	namespace string
	defaultNS bool

	// Namespace declarations by prefix. The empty prefix holds the
	// default namespace declared on a prefixed element.
	aliases  map[string]string
	attrs    map[string]string
	children []*Object
	content  string
	part     Part
}

// New creates an element. isDefault marks namespace as the element's
// default namespace.
func New(name, namespace string, isDefault bool) *Object {
	return &Object{name: name, namespace: namespace, defaultNS: isDefault}
}

func (o *Object) Valid() bool {
	return o != nil && o.name != ""
}

func (o *Object) Name() string { return o.name }

func (o *Object) SetName(name string) *Object {
	o.name = name
	return o
}

func (o *Object) Namespace() string { return o.namespace }

func (o *Object) IsDefaultNamespace() bool { return o.defaultNS }

func (o *Object) SetNamespace(namespace string, isDefault bool) *Object {
	o.namespace = namespace
	o.defaultNS = isDefault
	return o
}

// Is reports whether the element has the given name and namespace. An
// empty namespace matches any.
func (o *Object) Is(name, namespace string) bool {
	return o.Valid() && o.name == name && (namespace == "" || o.namespace == namespace)
}

func (o *Object) Alias(prefix string) (string, bool) {
	uri, ok := o.aliases[prefix]
	return uri, ok
}

// SetAlias declares prefix for uri on this element. The empty prefix
// declares the default namespace of the element's content.
func (o *Object) SetAlias(prefix, uri string) *Object {
	if o.aliases == nil {
		o.aliases = make(map[string]string)
	}
	o.aliases[prefix] = uri
	return o
}

func (o *Object) Aliases() map[string]string {
	m := make(map[string]string, len(o.aliases))
	for k, v := range o.aliases {
		m[k] = v
	}
	return m
}

func (o *Object) Attr(name string) string {
	if o == nil {
		return ""
	}
	return o.attrs[name]
}

func (o *Object) HasAttr(name string) bool {
	if o == nil {
		return false
	}
	_, ok := o.attrs[name]
	return ok
}

func (o *Object) SetAttr(name, value string) *Object {
	if o.attrs == nil {
		o.attrs = make(map[string]string)
	}
	o.attrs[name] = value
	return o
}

func (o *Object) RemoveAttr(name string) *Object {
	delete(o.attrs, name)
	return o
}

func (o *Object) Attrs() map[string]string {
	m := make(map[string]string, len(o.attrs))
	for k, v := range o.attrs {
		m[k] = v
	}
	return m
}

func (o *Object) attrNames() []string {
	names := make([]string, 0, len(o.attrs))
	for k := range o.attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (o *Object) Children() []*Object {
	if o == nil {
		return nil
	}
	return o.children
}

// AddChild appends child. Invalid children are ignored.
func (o *Object) AddChild(child *Object) *Object {
	if child.Valid() {
		o.children = append(o.children, child)
	}
	return o
}

func (o *Object) ClearChildren() *Object {
	o.children = nil
	return o
}

// Child returns the first child with the given name and namespace, or
// nil. An empty namespace matches any.
func (o *Object) Child(name, namespace string) *Object {
	for _, c := range o.Children() {
		if c.Is(name, namespace) {
			return c
		}
	}
	return nil
}

func (o *Object) ChildrenNamed(name, namespace string) []*Object {
	var out []*Object
	for _, c := range o.Children() {
		if c.Is(name, namespace) {
			out = append(out, c)
		}
	}
	return out
}

func (o *Object) Content() string {
	if o == nil {
		return ""
	}
	return o.content
}

func (o *Object) SetContent(content string) *Object {
	o.content = content
	return o
}

func (o *Object) AppendContent(content string) *Object {
	o.content += content
	return o
}

func (o *Object) Part() Part { return o.part }

func (o *Object) SetPart(p Part) *Object {
	o.part = p
	return o
}

// Clone returns a deep copy.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	c := &Object{
		name:      o.name,
		namespace: o.namespace,
		defaultNS: o.defaultNS,
		content:   o.content,
		part:      o.part,
	}
	if o.aliases != nil {
		c.aliases = o.Aliases()
	}
	if o.attrs != nil {
		c.attrs = o.Attrs()
	}
	for _, child := range o.children {
		c.children = append(c.children, child.Clone())
	}
	return c
}

// Equal compares name, namespace, attributes, content and children in
// order. Namespace declarations and the part are not compared.
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}
	if o.name != other.name || o.namespace != other.namespace || o.content != other.content {
		return false
	}
	if len(o.attrs) != len(other.attrs) || len(o.children) != len(other.children) {
		return false
	}
	for k, v := range o.attrs {
		if ov, ok := other.attrs[k]; !ok || ov != v {
			return false
		}
	}
	for i, c := range o.children {
		if !c.Equal(other.children[i]) {
			return false
		}
	}
	return true
}
