package xmlobj

import (
	"encoding/xml"

	"github.com/pkg/errors"
)

// Parse parses a complete document fragment and returns its top-level
// elements.
func Parse(data []byte) ([]*Object, error) {
	var objs []*Object
	var perr error
	p := NewParser("", "", func(o *Object) { objs = append(objs, o) }, func(err error) { perr = err })
	defer p.Close()

	p.Parse(data)
	if perr != nil {
		return nil, errors.Wrap(perr, "xmlobj: parse")
	}
	if p.depth() > 0 {
		return nil, errors.New("xmlobj: unexpected end of input")
	}
	return objs, nil
}

// ParseOne parses data holding exactly one element.
func ParseOne(data []byte) (*Object, error) {
	objs, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if len(objs) != 1 {
		return nil, errors.Errorf("xmlobj: expected one element, got %d", len(objs))
	}
	return objs[0], nil
}

// Marshal converts an encoding/xml value into an Object.
func Marshal(v interface{}) (*Object, error) {
	data, err := xml.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "xmlobj: marshal")
	}
	return ParseOne(data)
}

// MustMarshal is Marshal for values whose encoding cannot fail.
func MustMarshal(v interface{}) *Object {
	o, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return o
}

// Unmarshal decodes the element into v with encoding/xml.
func (o *Object) Unmarshal(v interface{}) error {
	if !o.Valid() {
		return errors.New("xmlobj: unmarshal of invalid object")
	}
	c := o
	if o.part != PartAll {
		c = o.Clone().SetPart(PartAll)
	}
	return errors.Wrap(xml.Unmarshal([]byte(c.String()), v), "xmlobj: unmarshal")
}
