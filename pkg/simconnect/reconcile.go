package simconnect

import (
	"bytes"
	"strings"

	"fsrewire/pkg/model"
	"fsrewire/pkg/textfile"
)

// Defaults are the values the static IPv4 section is normalized to.
type Defaults struct {
	Address     string
	Port        string
	Descr       string
	Scope       string
	MaxClients  string
	MaxRecvSize string
}

// DefaultValues binds SimConnect on every interface, port 500.
func DefaultValues() Defaults {
	return Defaults{
		Address:     "0.0.0.0",
		Port:        "500",
		Descr:       "Static IP4 port",
		Scope:       "local",
		MaxClients:  "64",
		MaxRecvSize: "4188",
	}
}

// Result describes one reconciliation of a file.
type Result struct {
	Path     string
	Endpoint model.Endpoint
	Changed  bool // the reconciled bytes differ from the bytes read
	Created  bool // a static IPv4 section had to be appended
	Written  bool
}

// Reconciler makes SimConnect.xml expose a static IPv4 endpoint.
type Reconciler struct {
	defaults Defaults
	// SkipUnchanged leaves the file untouched when reconciling would not change it.
	SkipUnchanged bool
}

// NewReconciler returns a Reconciler; empty fields of d take DefaultValues.
func NewReconciler(d Defaults) *Reconciler {
	def := DefaultValues()
	fill := func(v *string, fallback string) {
		if strings.TrimSpace(*v) == "" {
			*v = fallback
		}
	}
	fill(&d.Address, def.Address)
	fill(&d.Port, def.Port)
	fill(&d.Descr, def.Descr)
	fill(&d.Scope, def.Scope)
	fill(&d.MaxClients, def.MaxClients)
	fill(&d.MaxRecvSize, def.MaxRecvSize)
	return &Reconciler{defaults: d}
}

// Defaults returns the values the reconciler normalizes to.
func (r *Reconciler) Defaults() Defaults {
	return r.defaults
}

// Apply normalizes doc in place and returns the endpoint it now advertises. The
// first static IPv4 section gets the configured address and keeps its port when
// it has one; without such a section a new one is appended. created reports the
// latter. Other sections are not touched.
func (r *Reconciler) Apply(doc *model.Document) (ep model.Endpoint, created bool) {
	ep = model.Endpoint{Address: r.defaults.Address, Port: r.defaults.Port}
	for i := range doc.CommSection {
		sec := &doc.CommSection[i]
		if !sec.IsStaticIPv4() {
			continue
		}
		if sec.Port != nil && strings.TrimSpace(*sec.Port) != "" {
			ep.Port = *sec.Port
		}
		sec.Address = model.StringPtr(ep.Address)
		sec.Port = model.StringPtr(ep.Port)
		return ep, false
	}

	doc.CommSection = append(doc.CommSection, model.CommSection{
		Descr:       r.defaults.Descr,
		Protocol:    model.ProtocolIPv4,
		Scope:       r.defaults.Scope,
		MaxClients:  r.defaults.MaxClients,
		MaxRecvSize: r.defaults.MaxRecvSize,
		Address:     model.StringPtr(ep.Address),
		Port:        model.StringPtr(ep.Port),
	})
	return ep, true
}

// Reconcile reads path, normalizes it with Apply and writes it back in
// Windows-1252. The file is written on every call unless SkipUnchanged is set.
// Errors can be classified with Kind.
func (r *Reconciler) Reconcile(path string) (Result, error) {
	res := Result{Path: path}
	raw, text, err := textfile.Load(path)
	if err != nil {
		return res, err
	}
	doc, err := Parse(text)
	if err != nil {
		return res, err
	}
	res.Endpoint, res.Created = r.Apply(doc)

	out, err := Serialize(doc)
	if err != nil {
		return res, err
	}
	data := textfile.Encode(out)
	res.Changed = !bytes.Equal(data, raw)
	if !res.Changed && r.SkipUnchanged {
		return res, nil
	}
	if err := textfile.WriteBytes(path, data); err != nil {
		return res, err
	}
	res.Written = true
	return res, nil
}
