// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"maps"
	"slices"
	"strconv"
)

// Format is a metadata encoding, independent of the image container carrying it.
type Format int

const (
	// EXIF is the EXIF/TIFF format.
	EXIF Format = iota + 1
	// IPTC is the IPTC-IIM format.
	IPTC
	// XMP is the XMP/RDF format.
	XMP
	// PNG is the PNG tEXt family of text chunks.
	PNG
	// GIF is the GIF Comment Extension.
	GIF
)

var formatNames = map[Format]string{
	EXIF: "EXIF",
	IPTC: "IPTC",
	XMP:  "XMP",
	PNG:  "PNG",
	GIF:  "GIF",
}

// Formats lists all formats in the order they are serialized.
var Formats = []Format{XMP, EXIF, IPTC, PNG, GIF}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "Format(" + strconv.Itoa(int(f)) + ")"
}

// Payload is the structured value set of one format.
type Payload interface {
	// Format returns the format of the payload.
	Format() Format

	isEmpty() bool
	clone() Payload
}

// EXIFData maps IFD name (e.g. "IFD0") to tag name to value.
type EXIFData map[string]map[string]string

// IPTCData maps a DataSet key (e.g. "2#116") to its values.
type IPTCData map[string][]string

// XMPData maps namespace URI to property name to values.
type XMPData map[string]map[string][]string

// PNGTextData maps a PNG text keyword to its values.
type PNGTextData map[string][]string

// GIFCommentData holds the GIF comments under the "Comment" key.
type GIFCommentData map[string][]string

func (EXIFData) Format() Format       { return EXIF }
func (IPTCData) Format() Format       { return IPTC }
func (XMPData) Format() Format        { return XMP }
func (PNGTextData) Format() Format    { return PNG }
func (GIFCommentData) Format() Format { return GIF }

func (d EXIFData) isEmpty() bool {
	for _, tags := range d {
		if len(tags) > 0 {
			return false
		}
	}
	return true
}

func (d IPTCData) isEmpty() bool       { return listMapEmpty(d) }
func (d PNGTextData) isEmpty() bool    { return listMapEmpty(d) }
func (d GIFCommentData) isEmpty() bool { return listMapEmpty(d) }

func (d XMPData) isEmpty() bool {
	for _, props := range d {
		if !listMapEmpty(props) {
			return false
		}
	}
	return true
}

func (d EXIFData) clone() Payload {
	c := make(EXIFData, len(d))
	for ifd, tags := range d {
		if len(tags) > 0 {
			c[ifd] = maps.Clone(tags)
		}
	}
	return c
}

func (d IPTCData) clone() Payload       { return IPTCData(cloneListMap(d)) }
func (d PNGTextData) clone() Payload    { return PNGTextData(cloneListMap(d)) }
func (d GIFCommentData) clone() Payload { return GIFCommentData(cloneListMap(d)) }

func (d XMPData) clone() Payload {
	c := make(XMPData, len(d))
	for ns, props := range d {
		if !listMapEmpty(props) {
			c[ns] = cloneListMap(props)
		}
	}
	return c
}

func listMapEmpty(m map[string][]string) bool {
	for _, v := range m {
		if len(v) > 0 {
			return false
		}
	}
	return true
}

func cloneListMap(m map[string][]string) map[string][]string {
	c := make(map[string][]string, len(m))
	for k, v := range m {
		if len(v) > 0 {
			c[k] = slices.Clone(v)
		}
	}
	return c
}

// Metadata is an immutable set of payloads keyed by format.
// The zero value is empty and ready to use.
type Metadata struct {
	payloads map[Format]Payload
}

// NewMetadata creates a new Metadata from the given payloads.
// The payloads are copied; empty payloads are ignored.
// If the same format is given more than once, the last one wins.
func NewMetadata(payloads ...Payload) Metadata {
	m := Metadata{}
	for _, p := range payloads {
		if p == nil || p.isEmpty() {
			continue
		}
		if m.payloads == nil {
			m.payloads = make(map[Format]Payload)
		}
		m.payloads[p.Format()] = p.clone()
	}
	return m
}

// IsEmpty reports whether m holds no payloads.
func (m Metadata) IsEmpty() bool {
	return len(m.payloads) == 0
}

// Has reports whether m holds a payload of the given format.
func (m Metadata) Has(f Format) bool {
	_, ok := m.payloads[f]
	return ok
}

// Get returns a copy of the payload of the given format.
func (m Metadata) Get(f Format) (Payload, bool) {
	p, ok := m.payloads[f]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// EXIF returns a copy of the EXIF payload, nil if not set.
func (m Metadata) EXIF() EXIFData {
	if p, ok := m.payloads[EXIF]; ok {
		return p.clone().(EXIFData)
	}
	return nil
}

// IPTC returns a copy of the IPTC payload, nil if not set.
func (m Metadata) IPTC() IPTCData {
	if p, ok := m.payloads[IPTC]; ok {
		return p.clone().(IPTCData)
	}
	return nil
}

// XMP returns a copy of the XMP payload, nil if not set.
func (m Metadata) XMP() XMPData {
	if p, ok := m.payloads[XMP]; ok {
		return p.clone().(XMPData)
	}
	return nil
}

// PNG returns a copy of the PNG text payload, nil if not set.
func (m Metadata) PNG() PNGTextData {
	if p, ok := m.payloads[PNG]; ok {
		return p.clone().(PNGTextData)
	}
	return nil
}

// GIF returns a copy of the GIF comment payload, nil if not set.
func (m Metadata) GIF() GIFCommentData {
	if p, ok := m.payloads[GIF]; ok {
		return p.clone().(GIFCommentData)
	}
	return nil
}

// The accessors below do not copy and must not be used to mutate.

func (m Metadata) exifData() EXIFData {
	d, _ := m.payloads[EXIF].(EXIFData)
	return d
}

func (m Metadata) iptcData() IPTCData {
	d, _ := m.payloads[IPTC].(IPTCData)
	return d
}

func (m Metadata) xmpData() XMPData {
	d, _ := m.payloads[XMP].(XMPData)
	return d
}

func (m Metadata) pngData() PNGTextData {
	d, _ := m.payloads[PNG].(PNGTextData)
	return d
}

func (m Metadata) gifData() GIFCommentData {
	d, _ := m.payloads[GIF].(GIFCommentData)
	return d
}

// PreserveKeys selects, per format, which values are written to a derivative image.
// A nil allow-list preserves nothing for that format.
type PreserveKeys struct {
	// EXIF maps IFD name to tag names, e.g. {"IFD0": {"Copyright", "Artist"}}.
	EXIF map[string][]string
	// IPTC lists DataSet keys, e.g. "2#116".
	IPTC []string
	// XMP maps namespace URI to property names.
	XMP map[string][]string
	// PNG lists PNG text keywords.
	PNG []string
	// GIF lists GIF comment keys, i.e. "Comment".
	GIF []string
}

// DefaultPreserveKeys returns the keys preserved when nothing else is configured.
func DefaultPreserveKeys() PreserveKeys {
	return PreserveKeys{
		EXIF: map[string][]string{
			"IFD0": {"Copyright", "Artist"},
		},
		IPTC: []string{"2#116", "2#080", "2#115", "2#110"},
		XMP: map[string][]string{
			nsDC:        {"rights", "creator"},
			nsPhotoshop: {"Source", "Credit"},
		},
		PNG: []string{"Copyright", "Author"},
		GIF: []string{gifCommentKey},
	}
}
