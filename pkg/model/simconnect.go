package model

import (
	"encoding/xml"
	"strings"
)

const (
	// RootElement is the root element name of SimConnect.xml.
	RootElement = "SimBase.Document"
	// CommElement is the element name of one communication section.
	CommElement = "SimConnect.Comm"
	// ProtocolIPv4 is the Protocol value of an IPv4 section.
	ProtocolIPv4 = "IPv4"
	// DynamicMarker in a section description marks a dynamically allocated endpoint.
	DynamicMarker = "Dynamic"
)

// Document is SimConnect.xml in memory. Layout records the order of the children
// as they were read (including comments and elements this package does not model)
// so that writing the document back keeps everything it did not touch.
type Document struct {
	Root        string // as written, including any prefix
	Type        string
	Version     string
	Attrs       []xml.Attr // besides Type and version; Name.Space is the prefix as written
	Descr       string
	Filename    string
	CommSection []CommSection
	Layout      []Child
	// FieldAttrs holds the attributes of the Descr and Filename elements.
	FieldAttrs map[string][]xml.Attr
}

// CommSection is one <SimConnect.Comm> endpoint. Address and Port are optional:
// nil means the element is absent and it is not written back.
type CommSection struct {
	Descr       string
	Protocol    string
	Scope       string
	MaxClients  string
	MaxRecvSize string
	Address     *string
	Port        *string
	Attrs       []xml.Attr
	Layout      []Child
	// FieldAttrs holds the attributes of modelled field elements, by element name.
	FieldAttrs map[string][]xml.Attr
}

// Child is one entry of a Layout. Exactly one of Name, Comment or Unknown is set.
// Name refers to a modelled field; for CommElement, Index is the position in
// Document.CommSection.
type Child struct {
	Name    string
	Index   int
	Comment *string
	Unknown *UnknownElement
}

// UnknownElement keeps an element that is not modelled. Raw is its source text,
// from the start tag to the end tag, with CRLF line ends folded to LF.
type UnknownElement struct {
	Name string
	Raw  string
}

// IsStaticIPv4 reports whether the section is an IPv4 endpoint that is not
// dynamically allocated.
func (c CommSection) IsStaticIPv4() bool {
	return c.Protocol == ProtocolIPv4 && !strings.Contains(c.Descr, DynamicMarker)
}

// StringPtr returns a pointer to a copy of s, for the optional section fields.
func StringPtr(s string) *string {
	return &s
}

// Endpoint is the address/port pair a static IPv4 section advertises.
type Endpoint struct {
	Address string `json:"address"`
	Port    string `json:"port"`
}

func (e Endpoint) String() string {
	return e.Address + ":" + e.Port
}
