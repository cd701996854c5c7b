// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"slices"
	"strings"
)

// attribute is a semantic attribution field that exists, under different
// names, in several formats.
type attribute int

const (
	attrCopyright attribute = iota + 1
	attrCreator
	attrSource
	attrCredit
	attrTitle
)

var attributes = []attribute{attrCopyright, attrCreator, attrSource, attrCredit, attrTitle}

func (a attribute) String() string {
	switch a {
	case attrCopyright:
		return "copyright"
	case attrCreator:
		return "creator"
	case attrSource:
		return "source"
	case attrCredit:
		return "credit"
	case attrTitle:
		return "title"
	default:
		return "unknown"
	}
}

// field addresses one value set in a Metadata instance.
// Namespace is the IFD name for EXIF and the namespace URI for XMP;
// it is empty for the other formats.
type field struct {
	Format    Format
	Namespace string
	Key       string
}

// lookup returns the trimmed, non-empty values of f in m.
func (f field) lookup(m Metadata) []string {
	switch f.Format {
	case EXIF:
		return nonEmpty(m.exifData()[f.Namespace][f.Key])
	case IPTC:
		return nonEmpty(m.iptcData()[f.Key]...)
	case XMP:
		return nonEmpty(m.xmpData()[f.Namespace][f.Key]...)
	case PNG:
		return nonEmpty(m.pngData()[f.Key]...)
	case GIF:
		return nonEmpty(m.gifData()[f.Key]...)
	}
	return nil
}

var (
	exifCopyright = field{EXIF, exifIFD0, "Copyright"}
	exifArtist    = field{EXIF, exifIFD0, "Artist"}

	iptcCopyright = field{IPTC, "", iptcKeyCopyright}
	iptcByline    = field{IPTC, "", iptcKeyByline}
	iptcSource    = field{IPTC, "", iptcKeySource}
	iptcCredit    = field{IPTC, "", iptcKeyCredit}
	iptcTitle     = field{IPTC, "", iptcKeyObjectName}

	xmpRights  = field{XMP, nsDC, "rights"}
	xmpCreator = field{XMP, nsDC, "creator"}
	xmpSource  = field{XMP, nsPhotoshop, "Source"}
	xmpCredit  = field{XMP, nsPhotoshop, "Credit"}
	xmpTitle   = field{XMP, nsDC, "title"}

	pngCopyright = field{PNG, "", "Copyright"}
	pngAuthor    = field{PNG, "", "Author"}
	pngSource    = field{PNG, "", "Source"}
	pngTitle     = field{PNG, "", "Title"}

	gifComment = field{GIF, "", gifCommentKey}
)

// fallbackChains lists, per target format and attribute, the fields
// consulted in priority order. The first entry is always the target's own field.
var fallbackChains = map[Format]map[attribute][]field{
	EXIF: {
		attrCopyright: {exifCopyright, xmpRights, iptcCopyright, pngCopyright, gifComment},
		attrCreator:   {exifArtist, xmpCreator, iptcByline, pngAuthor},
	},
	IPTC: {
		attrCopyright: {iptcCopyright, xmpRights, exifCopyright, pngCopyright, gifComment},
		attrCreator:   {iptcByline, xmpCreator, exifArtist, pngAuthor},
		attrSource:    {iptcSource, xmpSource, pngSource},
		attrCredit:    {iptcCredit, xmpCredit},
		attrTitle:     {iptcTitle, xmpTitle, pngTitle},
	},
	XMP: {
		attrCopyright: {xmpRights, iptcCopyright, exifCopyright, pngCopyright, gifComment},
		attrCreator:   {xmpCreator, iptcByline, exifArtist, pngAuthor},
		attrSource:    {xmpSource, iptcSource, pngSource},
		attrCredit:    {xmpCredit, iptcCredit},
		attrTitle:     {xmpTitle, iptcTitle, pngTitle},
	},
	PNG: {
		attrCopyright: {pngCopyright, xmpRights, iptcCopyright, exifCopyright, gifComment},
		attrCreator:   {pngAuthor, xmpCreator, iptcByline, exifArtist},
		attrSource:    {pngSource, xmpSource, iptcSource},
		attrTitle:     {pngTitle, xmpTitle, iptcTitle},
	},
	GIF: {
		attrCopyright: {gifComment, xmpRights, iptcCopyright, exifCopyright, pngCopyright},
	},
}

// resolve returns the first non-empty value set for the given attribute
// as seen from the target format, and the field it was found in.
func resolve(m Metadata, target Format, attr attribute) ([]string, field, bool) {
	for _, f := range fallbackChains[target][attr] {
		if vals := f.lookup(m); len(vals) > 0 {
			return vals, f, true
		}
	}
	return nil, field{}, false
}

// resolvedValue is a value set ready to be written to its target field.
type resolvedValue struct {
	target field
	values []string
}

// resolveAll resolves every attribute the target format has a field for.
// The target's own values for other keys are not included.
func resolveAll(m Metadata, target Format) []resolvedValue {
	var result []resolvedValue
	resolved := make(map[attribute][]string)
	for _, attr := range attributes {
		chain, ok := fallbackChains[target][attr]
		if !ok {
			continue
		}
		vals, _, found := resolve(m, target, attr)
		if !found {
			continue
		}
		resolved[attr] = vals
		result = append(result, resolvedValue{target: chain[0], values: vals})
	}

	if target == EXIF {
		// Artist is dropped when it would only repeat the copyright notice,
		// unless Artist itself was set in EXIF.
		creator, copyright := resolved[attrCreator], resolved[attrCopyright]
		if creator != nil && len(exifArtist.lookup(m)) == 0 && strings.Join(creator, "; ") == strings.Join(copyright, "; ") {
			result = slices.DeleteFunc(result, func(rv resolvedValue) bool {
				return rv.target == exifArtist
			})
		}
	}

	return result
}
