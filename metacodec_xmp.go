// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

const (
	nsRDF       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsDC        = "http://purl.org/dc/elements/1.1/"
	nsXMP       = "http://ns.adobe.com/xap/1.0/"
	nsXMPRights = "http://ns.adobe.com/xap/1.0/rights/"
	nsPhotoshop = "http://ns.adobe.com/photoshop/1.0/"
	nsIPTCCore  = "http://iptc.org/std/Iptc4xmpCore/1.0/xmlns/"
	nsEXIF      = "http://ns.adobe.com/exif/1.0/"
	nsTIFF      = "http://ns.adobe.com/tiff/1.0/"
	nsXMLNS     = "xmlns"
	nsXML       = "http://www.w3.org/XML/1998/namespace"

	xmpPacketID = "W5M0MpCehiHzreSzNTczkc9d"
)

// xmpKnownPrefixes maps the conventional prefix of well known namespaces to their URI.
// Used to resolve undeclared prefixes in sloppy XMP and to pick prefixes when writing.
var xmpKnownPrefixes = map[string]string{
	"rdf":          nsRDF,
	"dc":           nsDC,
	"xmp":          nsXMP,
	"xmpRights":    nsXMPRights,
	"photoshop":    nsPhotoshop,
	"Iptc4xmpCore": nsIPTCCore,
	"exif":         nsEXIF,
	"tiff":         nsTIFF,
}

var xmpKnownNamespaces = func() map[string]string {
	m := make(map[string]string, len(xmpKnownPrefixes))
	for prefix, ns := range xmpKnownPrefixes {
		m[ns] = prefix
	}
	return m
}()

var errXMPNoDescription = errors.New("XMP: no rdf:Description found")

// decodeXMP decodes the properties of all rdf:Description elements in b.
// Simple properties may be given as attributes or child elements;
// rdf:Bag, rdf:Seq and rdf:Alt containers produce one value per rdf:li.
func decodeXMP(b []byte) (XMPData, error) {
	b = bytes.Trim(b, "\x00")

	d := &metaDecoderXMP{
		dec:  xml.NewDecoder(bytes.NewReader(b)),
		data: XMPData{},
	}

	if err := d.decode(); err != nil {
		return nil, err
	}
	if !d.foundDescription {
		return nil, errXMPNoDescription
	}

	return d.data, nil
}

type metaDecoderXMP struct {
	dec              *xml.Decoder
	data             XMPData
	foundDescription bool
}

func (d *metaDecoderXMP) decode() error {
	for {
		tok, err := d.dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("XMP: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || !isRDF(start.Name, "Description") {
			continue
		}

		d.foundDescription = true
		if err := d.decodeDescription(start); err != nil {
			return err
		}
	}
}

func (d *metaDecoderXMP) decodeDescription(start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Space == nsXMLNS || attr.Name.Local == nsXMLNS {
			continue
		}
		ns := resolveXMPNamespace(attr.Name.Space)
		if ns == nsRDF || ns == nsXML || ns == "" {
			continue
		}
		d.add(ns, attr.Name.Local, attr.Value)
	}

	for {
		tok, err := d.dec.Token()
		if err != nil {
			return fmt.Errorf("XMP: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			values, err := d.decodeProperty(el)
			if err != nil {
				return err
			}
			ns := resolveXMPNamespace(el.Name.Space)
			if ns == nsRDF || ns == "" {
				continue
			}
			for _, v := range values {
				d.add(ns, el.Name.Local, v)
			}
		case xml.EndElement:
			return nil
		}
	}
}

// decodeProperty reads the property element started by start, including its end element.
func (d *metaDecoderXMP) decodeProperty(start xml.StartElement) ([]string, error) {
	var (
		values []string
		text   strings.Builder
		depth  = 1
		inList bool
	)

	for depth > 0 {
		tok, err := d.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("XMP: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case isRDF(el.Name, "Bag"), isRDF(el.Name, "Seq"), isRDF(el.Name, "Alt"):
				inList = true
			case isRDF(el.Name, "li") && inList:
				var li struct {
					Value string `xml:",chardata"`
				}
				if err := d.dec.DecodeElement(&li, &el); err != nil {
					return nil, fmt.Errorf("XMP: %w", err)
				}
				depth--
				if v := strings.TrimSpace(li.Value); v != "" {
					values = append(values, v)
				}
			default:
				// Structured values are not supported.
				if err := d.dec.Skip(); err != nil {
					return nil, fmt.Errorf("XMP: %w", err)
				}
				depth--
			}
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 1 {
				text.Write(el)
			}
		}
	}

	if !inList {
		if v := strings.TrimSpace(text.String()); v != "" {
			values = append(values, v)
		}
	}

	return values, nil
}

func (d *metaDecoderXMP) add(ns, name, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if d.data[ns] == nil {
		d.data[ns] = make(map[string][]string)
	}
	d.data[ns][name] = append(d.data[ns][name], value)
}

func isRDF(name xml.Name, local string) bool {
	return name.Local == local && resolveXMPNamespace(name.Space) == nsRDF
}

// resolveXMPNamespace returns the URI for space.
// The decoder leaves undeclared prefixes as is, so map the well known ones.
func resolveXMPNamespace(space string) string {
	if ns, ok := xmpKnownPrefixes[space]; ok {
		return ns
	}
	return space
}

// buildXMP resolves the XMP values to write from m, filtered by keys.
func buildXMP(m Metadata, keys map[string][]string) XMPData {
	d := XMPData{}
	set := func(ns, name string, values []string) {
		if d[ns] == nil {
			d[ns] = make(map[string][]string)
		}
		d[ns][name] = slices.Clone(values)
	}

	for ns, props := range m.xmpData() {
		for name, values := range props {
			set(ns, name, values)
		}
	}
	for _, rv := range resolveAll(m, XMP) {
		set(rv.target.Namespace, rv.target.Key, rv.values)
	}

	for ns, props := range d {
		for name := range props {
			if !slices.Contains(keys[ns], name) {
				delete(props, name)
			}
		}
		if len(props) == 0 {
			delete(d, ns)
		}
	}
	return d
}

// serializeXMP returns the XMP packet to embed for m, or nil if there is nothing to write.
func serializeXMP(m Metadata, keys map[string][]string, warnf func(string, ...any)) []byte {
	return encodeXMP(buildXMP(m, keys), warnf)
}

// encodeXMP writes d as an XMP packet with a single rdf:Description.
// Single values are written as attributes, multiple values as an rdf:Bag.
func encodeXMP(d XMPData, warnf func(string, ...any)) []byte {
	type property struct {
		prefix, name string
		values       []string
	}

	namespaces := slices.Sorted(maps.Keys(d))
	prefixes := make(map[string]string, len(namespaces))
	var unknown int
	for _, ns := range namespaces {
		if ns == nsRDF {
			continue
		}
		if prefix, ok := xmpKnownNamespaces[ns]; ok {
			prefixes[ns] = prefix
			continue
		}
		unknown++
		prefixes[ns] = fmt.Sprintf("ns%d", unknown)
	}

	var attrs, children []property
	for _, ns := range namespaces {
		prefix, ok := prefixes[ns]
		if !ok {
			continue
		}
		for _, name := range slices.Sorted(maps.Keys(d[ns])) {
			if !isXMLName(name) {
				warnf("imagecopyright: XMP property name %q is not a valid XML name, skipping", name)
				continue
			}
			var values []string
			for _, v := range d[ns][name] {
				if v = strings.TrimSpace(toValidUTF8(v)); v != "" {
					values = append(values, v)
				}
			}
			switch len(values) {
			case 0:
			case 1:
				attrs = append(attrs, property{prefix, name, values})
			default:
				children = append(children, property{prefix, name, values})
			}
		}
	}

	if len(attrs) == 0 && len(children) == 0 {
		return nil
	}

	var buf bytes.Buffer
	escape := func(s string) {
		xml.EscapeText(&buf, []byte(s))
	}

	fmt.Fprintf(&buf, "<?xpacket begin=\"\xef\xbb\xbf\" id=%q?>\n", xmpPacketID)
	buf.WriteString("<x:xmpmeta xmlns:x=\"adobe:ns:meta/\">\n")
	fmt.Fprintf(&buf, " <rdf:RDF xmlns:rdf=%q>\n", nsRDF)
	buf.WriteString("  <rdf:Description rdf:about=\"\"")

	for _, ns := range namespaces {
		if prefix, ok := prefixes[ns]; ok {
			fmt.Fprintf(&buf, "\n    xmlns:%s=\"", prefix)
			escape(ns)
			buf.WriteString("\"")
		}
	}
	for _, p := range attrs {
		fmt.Fprintf(&buf, "\n    %s:%s=\"", p.prefix, p.name)
		escape(p.values[0])
		buf.WriteString("\"")
	}

	if len(children) == 0 {
		buf.WriteString("/>\n")
	} else {
		buf.WriteString(">\n")
		for _, p := range children {
			fmt.Fprintf(&buf, "   <%s:%s>\n    <rdf:Bag>\n", p.prefix, p.name)
			for _, v := range p.values {
				buf.WriteString("     <rdf:li>")
				escape(v)
				buf.WriteString("</rdf:li>\n")
			}
			fmt.Fprintf(&buf, "    </rdf:Bag>\n   </%s:%s>\n", p.prefix, p.name)
		}
		buf.WriteString("  </rdf:Description>\n")
	}

	buf.WriteString(" </rdf:RDF>\n</x:xmpmeta>\n<?xpacket end=\"w\"?>")

	return buf.Bytes()
}

// isXMLName reports whether s can be used as the local part of an XML element name.
func isXMLName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r > 0x7f:
		case i > 0 && (r == '-' || r == '.' || r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}
