package simconnect

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"fsrewire/pkg/model"
)

// Header is the declaration written at the top of SimConnect.xml. The file is
// always written in Windows-1252, whatever the input declared.
const Header = `<?xml version="1.0" encoding="Windows-1252"?>`

const indentUnit = "    "

// element names of the modelled fields
const (
	elemDescr       = "Descr"
	elemFilename    = "Filename"
	elemProtocol    = "Protocol"
	elemScope       = "Scope"
	elemMaxClients  = "MaxClients"
	elemMaxRecvSize = "MaxRecvSize"
	elemAddress     = "Address"
	elemPort        = "Port"
)

var commFields = []string{elemDescr, elemProtocol, elemScope, elemMaxClients, elemMaxRecvSize, elemAddress, elemPort}

// Parse builds a Document from SimConnect.xml text. The text is already decoded,
// so the charset named in the declaration is not applied again. Names keep the
// namespace prefixes they were written with, and only unprefixed elements are
// matched against the modelled fields.
func Parse(text string) (*model.Document, error) {
	d := xml.NewDecoder(strings.NewReader(text))
	d.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	p := &parser{d: d, text: text}

	var doc *model.Document
	for {
		tok, err := p.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		if _, ok := tok.(xml.StartElement); !ok {
			continue
		}
		start, err := p.literal()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		if doc != nil {
			return nil, fmt.Errorf("%w: unexpected second root element <%s>", ErrParse, qualified(start.Name))
		}
		if doc, err = p.document(start); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: no root element", ErrParse)
	}
	return doc, nil
}

// parser reads tokens while remembering where each one started in text. The
// decoder replaces prefixes with namespace URLs; start tags are read a second
// time from the source to get the names back as written.
type parser struct {
	d    *xml.Decoder
	text string
	off  int64 // start of the token last returned by next
}

func (p *parser) next() (xml.Token, error) {
	p.off = p.d.InputOffset()
	return p.d.Token()
}

// literal returns the start tag just read by next without namespace translation.
func (p *parser) literal() (xml.StartElement, error) {
	raw := p.text[p.off:p.d.InputOffset()]
	tok, err := xml.NewDecoder(strings.NewReader(raw)).RawToken()
	if err != nil {
		return xml.StartElement{}, err
	}
	start, ok := tok.(xml.StartElement)
	if !ok {
		return xml.StartElement{}, fmt.Errorf("offset %d: expected a start tag", p.off)
	}
	return start, nil
}

// unknown skips the element whose start tag was just read and returns its source.
func (p *parser) unknown(start xml.StartElement) (*model.UnknownElement, error) {
	begin := p.off
	if err := p.d.Skip(); err != nil {
		return nil, err
	}
	raw := p.text[begin:p.d.InputOffset()]
	return &model.UnknownElement{
		Name: qualified(start.Name),
		Raw:  strings.ReplaceAll(raw, "\r\n", "\n"),
	}, nil
}

func (p *parser) fieldText(start xml.StartElement) (string, error) {
	var v string
	if err := p.d.DecodeElement(&v, &start); err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

func (p *parser) document(start xml.StartElement) (*model.Document, error) {
	doc := &model.Document{Root: qualified(start.Name)}
	for _, a := range start.Attr {
		switch {
		case a.Name.Space == "" && a.Name.Local == "Type":
			doc.Type = a.Value
		case a.Name.Space == "" && a.Name.Local == "version":
			doc.Version = a.Value
		default:
			doc.Attrs = append(doc.Attrs, a)
		}
	}
	seen := map[string]bool{}
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := p.literal()
			if err != nil {
				return nil, err
			}
			name := modelledName(child.Name)
			switch {
			case (name == elemDescr || name == elemFilename) && !seen[name]:
				v, err := p.fieldText(t)
				if err != nil {
					return nil, err
				}
				if name == elemDescr {
					doc.Descr = v
				} else {
					doc.Filename = v
				}
				seen[name] = true
				setFieldAttrs(&doc.FieldAttrs, name, child.Attr)
				doc.Layout = append(doc.Layout, model.Child{Name: name})
			case name == model.CommElement:
				sec, err := p.comm(child)
				if err != nil {
					return nil, err
				}
				doc.Layout = append(doc.Layout, model.Child{Name: model.CommElement, Index: len(doc.CommSection)})
				doc.CommSection = append(doc.CommSection, sec)
			default:
				u, err := p.unknown(child)
				if err != nil {
					return nil, err
				}
				doc.Layout = append(doc.Layout, model.Child{Unknown: u})
			}
		case xml.Comment:
			c := string(t)
			doc.Layout = append(doc.Layout, model.Child{Comment: &c})
		case xml.EndElement:
			return doc, nil
		}
	}
}

// comm reads one section. A field that appears again is kept as an unknown
// element so the first occurrence decides the section's meaning.
func (p *parser) comm(start xml.StartElement) (model.CommSection, error) {
	sec := model.CommSection{Attrs: start.Attr}
	seen := map[string]bool{}
	for {
		tok, err := p.next()
		if err != nil {
			return sec, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := p.literal()
			if err != nil {
				return sec, err
			}
			name := modelledName(child.Name)
			if !isCommField(name) || seen[name] {
				u, err := p.unknown(child)
				if err != nil {
					return sec, err
				}
				sec.Layout = append(sec.Layout, model.Child{Unknown: u})
				continue
			}
			v, err := p.fieldText(t)
			if err != nil {
				return sec, err
			}
			seen[name] = true
			setCommField(&sec, name, v)
			setFieldAttrs(&sec.FieldAttrs, name, child.Attr)
			sec.Layout = append(sec.Layout, model.Child{Name: name})
		case xml.Comment:
			c := string(t)
			sec.Layout = append(sec.Layout, model.Child{Comment: &c})
		case xml.EndElement:
			return sec, nil
		}
	}
}

// modelledName is the local name of an unprefixed element, or "" for a
// prefixed one, which never matches a modelled field.
func modelledName(n xml.Name) string {
	if n.Space != "" {
		return ""
	}
	return n.Local
}

func setFieldAttrs(m *map[string][]xml.Attr, name string, attrs []xml.Attr) {
	if len(attrs) == 0 {
		return
	}
	if *m == nil {
		*m = map[string][]xml.Attr{}
	}
	(*m)[name] = attrs
}

func isCommField(name string) bool {
	for _, f := range commFields {
		if f == name {
			return true
		}
	}
	return false
}

func setCommField(sec *model.CommSection, name, value string) {
	switch name {
	case elemDescr:
		sec.Descr = value
	case elemProtocol:
		sec.Protocol = value
	case elemScope:
		sec.Scope = value
	case elemMaxClients:
		sec.MaxClients = value
	case elemMaxRecvSize:
		sec.MaxRecvSize = value
	case elemAddress:
		sec.Address = model.StringPtr(value)
	case elemPort:
		sec.Port = model.StringPtr(value)
	}
}

// commField returns the value of a modelled field and whether it is present.
func commField(sec *model.CommSection, name string) (string, bool) {
	switch name {
	case elemDescr:
		return sec.Descr, true
	case elemProtocol:
		return sec.Protocol, true
	case elemScope:
		return sec.Scope, true
	case elemMaxClients:
		return sec.MaxClients, true
	case elemMaxRecvSize:
		return sec.MaxRecvSize, true
	case elemAddress:
		if sec.Address == nil {
			return "", false
		}
		return *sec.Address, true
	case elemPort:
		if sec.Port == nil {
			return "", false
		}
		return *sec.Port, true
	}
	return "", false
}

// Serialize renders doc as SimConnect.xml text: the Windows-1252 declaration, a
// blank line, then the document indented by four spaces. Children keep the order
// they were parsed in; fields and sections added since are written after them.
func Serialize(doc *model.Document) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("%w: nil document", ErrSerialize)
	}
	w := &xmlWriter{}
	w.b.WriteString(Header)
	w.b.WriteString("\n\n")

	root := doc.Root
	if root == "" {
		root = model.RootElement
	}
	attrs := make([]xml.Attr, 0, len(doc.Attrs)+2)
	attrs = append(attrs,
		xml.Attr{Name: xml.Name{Local: "Type"}, Value: doc.Type},
		xml.Attr{Name: xml.Name{Local: "version"}, Value: doc.Version},
	)
	attrs = append(attrs, doc.Attrs...)

	w.open(root, attrs)
	writeDocumentChildren(w, doc)
	w.close(root)
	w.b.WriteByte('\n')
	if w.err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialize, w.err)
	}
	return w.b.String(), nil
}

func writeDocumentChildren(w *xmlWriter, doc *model.Document) {
	if len(doc.Layout) == 0 {
		w.leaf(elemDescr, doc.FieldAttrs[elemDescr], doc.Descr)
		w.leaf(elemFilename, doc.FieldAttrs[elemFilename], doc.Filename)
		for i := range doc.CommSection {
			writeComm(w, &doc.CommSection[i])
		}
		return
	}

	written := map[string]bool{}
	commWritten := make([]bool, len(doc.CommSection))
	for _, c := range doc.Layout {
		switch {
		case c.Comment != nil:
			w.comment(*c.Comment)
		case c.Unknown != nil:
			w.raw(c.Unknown)
		case c.Name == model.CommElement:
			if c.Index >= 0 && c.Index < len(doc.CommSection) && !commWritten[c.Index] {
				writeComm(w, &doc.CommSection[c.Index])
				commWritten[c.Index] = true
			}
		case c.Name == elemDescr && !written[elemDescr]:
			w.leaf(elemDescr, doc.FieldAttrs[elemDescr], doc.Descr)
			written[elemDescr] = true
		case c.Name == elemFilename && !written[elemFilename]:
			w.leaf(elemFilename, doc.FieldAttrs[elemFilename], doc.Filename)
			written[elemFilename] = true
		}
	}
	if !written[elemDescr] && doc.Descr != "" {
		w.leaf(elemDescr, doc.FieldAttrs[elemDescr], doc.Descr)
	}
	if !written[elemFilename] && doc.Filename != "" {
		w.leaf(elemFilename, doc.FieldAttrs[elemFilename], doc.Filename)
	}
	for i := range doc.CommSection {
		if !commWritten[i] {
			writeComm(w, &doc.CommSection[i])
		}
	}
}

func writeComm(w *xmlWriter, sec *model.CommSection) {
	w.open(model.CommElement, sec.Attrs)
	defer w.close(model.CommElement)

	if len(sec.Layout) == 0 {
		for _, name := range commFields {
			if v, ok := commField(sec, name); ok {
				w.leaf(name, sec.FieldAttrs[name], v)
			}
		}
		return
	}

	written := map[string]bool{}
	for _, c := range sec.Layout {
		switch {
		case c.Comment != nil:
			w.comment(*c.Comment)
		case c.Unknown != nil:
			w.raw(c.Unknown)
		case !written[c.Name]:
			if v, ok := commField(sec, c.Name); ok {
				w.leaf(c.Name, sec.FieldAttrs[c.Name], v)
				written[c.Name] = true
			}
		}
	}
	for _, name := range commFields {
		if written[name] {
			continue
		}
		v, ok := commField(sec, name)
		if !ok {
			continue
		}
		optional := name == elemAddress || name == elemPort
		if optional || v != "" {
			w.leaf(name, sec.FieldAttrs[name], v)
		}
	}
}

// xmlWriter renders elements one per line, indented by depth. The first error is
// kept and the remaining output is discarded by the caller.
type xmlWriter struct {
	b     strings.Builder
	depth int
	// hasChildren tracks, per open element, whether anything was written inside it.
	hasChildren []bool
	err         error
}

func (w *xmlWriter) newline() {
	w.b.WriteByte('\n')
	for i := 0; i < w.depth; i++ {
		w.b.WriteString(indentUnit)
	}
}

// begin starts a new child of the current element on its own line.
func (w *xmlWriter) begin() {
	if n := len(w.hasChildren); n > 0 {
		w.hasChildren[n-1] = true
		w.newline()
	}
}

func (w *xmlWriter) startTag(name string, attrs []xml.Attr) {
	if name == "" {
		w.fail(errors.New("empty element name"))
	}
	w.b.WriteByte('<')
	w.b.WriteString(name)
	for _, a := range attrs {
		w.b.WriteByte(' ')
		w.b.WriteString(qualified(a.Name))
		w.b.WriteString(`="`)
		w.escape(a.Value)
		w.b.WriteByte('"')
	}
	w.b.WriteByte('>')
}

func (w *xmlWriter) open(name string, attrs []xml.Attr) {
	w.begin()
	w.startTag(name, attrs)
	w.hasChildren = append(w.hasChildren, false)
	w.depth++
}

func (w *xmlWriter) close(name string) {
	w.depth--
	n := len(w.hasChildren) - 1
	if w.hasChildren[n] {
		w.newline()
	}
	w.hasChildren = w.hasChildren[:n]
	w.b.WriteString("</" + name + ">")
}

func (w *xmlWriter) leaf(name string, attrs []xml.Attr, value string) {
	w.begin()
	w.startTag(name, attrs)
	w.escape(value)
	w.b.WriteString("</" + name + ">")
}

func (w *xmlWriter) comment(text string) {
	if strings.Contains(text, "-->") {
		w.fail(fmt.Errorf("comment %q contains \"-->\"", text))
	}
	w.begin()
	w.b.WriteString("<!--")
	w.b.WriteString(text)
	w.b.WriteString("-->")
}

// raw writes an unknown element back as it was read.
func (w *xmlWriter) raw(u *model.UnknownElement) {
	if u.Raw == "" {
		w.fail(fmt.Errorf("unknown element <%s> has no source text", u.Name))
		return
	}
	w.begin()
	w.b.WriteString(u.Raw)
}

func (w *xmlWriter) escape(s string) {
	if err := xml.EscapeText(&w.b, []byte(s)); err != nil {
		w.fail(err)
	}
}

func (w *xmlWriter) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// qualified joins a name read without namespace translation back into
// prefix:local form.
func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
