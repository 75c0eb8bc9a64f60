package xmlobj

import (
	"encoding/xml"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

const xmlURI = "http://www.w3.org/XML/1998/namespace"

// Parser turns an arbitrarily chunked byte stream into Objects.
//
// When the first top-level element matches the configured root, the
// parser emits a PartStart object for it, one complete Object per direct
// child and a PartEnd object when the root closes. Any other top-level
// element is emitted complete once it closes.
//
// A syntax error is reported once through the error callback; further
// input is ignored until Reset.
type Parser struct {
	rootName string
	rootNS   string
	onObject func(*Object)
	onError  func(error)

	mu   sync.Mutex
	pump *pump
}

// NewParser creates a parser for the root element rootName in rootNS. An
// empty rootName disables root detection and an empty rootNS matches any
// namespace. Callbacks run on the parser's goroutine, and all callbacks
// caused by a chunk complete before Parse returns.
func NewParser(rootName, rootNS string, onObject func(*Object), onError func(error)) *Parser {
	if onObject == nil {
		onObject = func(*Object) {}
	}
	if onError == nil {
		onError = func(error) {}
	}
	p := &Parser{
		rootName: rootName,
		rootNS:   rootNS,
		onObject: onObject,
		onError:  onError,
	}
	p.pump = p.start()
	return p
}

// Parse feeds data to the parser.
func (p *Parser) Parse(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pm := p.pump
	if pm == nil || len(data) == 0 || pm.failed.Load() {
		return
	}
	select {
	case pm.chunks <- data:
	case <-pm.done:
		return
	}
	select {
	case <-pm.drained:
	case <-pm.done:
	}
}

// Reset discards any partial document and re-arms root detection.
func (p *Parser) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pump != nil {
		p.pump.stop()
	}
	p.pump = p.start()
}

// Close stops the parser. Parse is a no-op afterwards.
func (p *Parser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pump != nil {
		p.pump.stop()
		p.pump = nil
	}
}

// Failed reports whether a syntax error stopped the parser.
func (p *Parser) Failed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pump != nil && p.pump.failed.Load()
}

// depth is only meaningful between Parse calls.
func (p *Parser) depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pump == nil {
		return 0
	}
	return len(p.pump.frames)
}

func (p *Parser) start() *pump {
	pm := &pump{
		chunks:  make(chan []byte),
		drained: make(chan struct{}),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	pm.dec = xml.NewDecoder(pm)
	go p.run(pm)
	return pm
}

// pump owns one decoder and the state of the document being parsed. Its
// fields are only touched by the pump goroutine while it runs.
type pump struct {
	chunks  chan []byte
	drained chan struct{}
	quit    chan struct{}
	done    chan struct{}
	failed  atomic.Bool

	buf     []byte
	started bool
	dec     *xml.Decoder

	frames []*frame
	inRoot bool
}

type frame struct {
	raw       xml.Name
	obj       *Object
	defaultNS string
	aliases   map[string]string
}

func (pm *pump) stop() {
	close(pm.quit)
	<-pm.done
}

// ReadByte hands the decoder one byte. Once a chunk is consumed it tells
// Parse so before waiting for the next one.
func (pm *pump) ReadByte() (byte, error) {
	for len(pm.buf) == 0 {
		if pm.started {
			select {
			case pm.drained <- struct{}{}:
			case <-pm.quit:
				return 0, io.EOF
			}
		}
		select {
		case chunk := <-pm.chunks:
			pm.buf = chunk
			pm.started = true
		case <-pm.quit:
			return 0, io.EOF
		}
	}
	b := pm.buf[0]
	pm.buf = pm.buf[1:]
	return b, nil
}

func (pm *pump) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b, err := pm.ReadByte()
	if err != nil {
		return 0, err
	}
	p[0] = b
	n := 1
	for n < len(p) && len(pm.buf) > 0 {
		p[n] = pm.buf[0]
		pm.buf = pm.buf[1:]
		n++
	}
	return n, nil
}

func (p *Parser) run(pm *pump) {
	defer close(pm.done)
	for {
		tok, err := pm.dec.RawToken()
		if err == nil {
			err = p.handle(pm, tok)
		}
		if err != nil {
			select {
			case <-pm.quit:
			default:
				pm.failed.Store(true)
				p.onError(err)
			}
			return
		}
	}
}

func (p *Parser) syntaxError(pm *pump, format string, args ...interface{}) error {
	line, _ := pm.dec.InputPos()
	return &xml.SyntaxError{Msg: fmt.Sprintf(format, args...), Line: line}
}

func (p *Parser) handle(pm *pump, tok xml.Token) error {
	switch t := tok.(type) {
	case xml.StartElement:
		return p.startElement(pm, t)
	case xml.EndElement:
		return p.endElement(pm, t)
	case xml.CharData:
		n := len(pm.frames)
		if n == 0 || (pm.inRoot && n == 1) {
			return nil
		}
		pm.frames[n-1].obj.AppendContent(string(t))
	}
	// Comments, processing instructions and directives carry nothing.
	return nil
}

func (p *Parser) startElement(pm *pump, t xml.StartElement) error {
	f := &frame{raw: t.Name}
	var attrs []xml.Attr
	for _, a := range t.Attr {
		switch {
		case a.Name.Space == "xmlns":
			if f.aliases == nil {
				f.aliases = make(map[string]string)
			}
			f.aliases[a.Name.Local] = a.Value
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			f.defaultNS = a.Value
		default:
			attrs = append(attrs, a)
		}
	}
	pm.frames = append(pm.frames, f)

	ns, isDefault := pm.resolve(t.Name.Space)
	if IsInternalNamespace(ns) {
		return p.syntaxError(pm, "reserved namespace %q on element <%s>", ns, t.Name.Local)
	}
	obj := New(t.Name.Local, ns, isDefault)
	for prefix, uri := range f.aliases {
		obj.SetAlias(prefix, uri)
	}
	if t.Name.Space != "" && f.defaultNS != "" {
		obj.SetAlias("", f.defaultNS)
	}
	for _, a := range attrs {
		name := a.Name.Local
		if a.Name.Space != "" {
			name = a.Name.Space + ":" + name
		}
		obj.SetAttr(name, a.Value)
	}
	f.obj = obj

	if len(pm.frames) == 1 && p.rootName != "" && obj.Is(p.rootName, p.rootNS) {
		pm.inRoot = true
		// The root's object is handed out as is; its children and text
		// are never attached to it.
		p.onObject(obj.SetPart(PartStart))
	}
	return nil
}

func (p *Parser) endElement(pm *pump, t xml.EndElement) error {
	n := len(pm.frames)
	if n == 0 {
		return p.syntaxError(pm, "unexpected end element </%s>", qualified(t.Name))
	}
	f := pm.frames[n-1]
	if f.raw != t.Name {
		return p.syntaxError(pm, "element <%s> closed by </%s>", qualified(f.raw), qualified(t.Name))
	}
	pm.frames[n-1] = nil
	pm.frames = pm.frames[:n-1]
	depth := n - 1

	switch {
	case pm.inRoot && depth == 0:
		pm.inRoot = false
		end := New(f.obj.name, f.obj.namespace, f.obj.defaultNS).SetPart(PartEnd)
		for prefix, uri := range f.aliases {
			end.SetAlias(prefix, uri)
		}
		p.onObject(end)
	case (pm.inRoot && depth == 1) || depth == 0:
		p.onObject(f.obj)
	default:
		pm.frames[depth-1].obj.AddChild(f.obj)
	}
	return nil
}

// resolve maps an element prefix to its namespace, walking from the
// innermost open element outward. The boolean reports whether the
// namespace is the nearest default namespace.
func (pm *pump) resolve(prefix string) (string, bool) {
	nearest := ""
	for i := len(pm.frames) - 1; i >= 0; i-- {
		if ns := pm.frames[i].defaultNS; ns != "" {
			nearest = ns
			break
		}
	}
	if prefix == "" {
		return nearest, nearest != ""
	}
	for i := len(pm.frames) - 1; i >= 0; i-- {
		if uri, ok := pm.frames[i].aliases[prefix]; ok {
			return uri, uri == nearest
		}
	}
	if prefix == "xml" {
		return xmlURI, false
	}
	return prefix, false
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
