// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// jxlContainerSignature is the "JXL " signature box starting a JPEG XL container.
var jxlContainerSignature = []byte{0x00, 0x00, 0x00, 0x0c, 'J', 'X', 'L', ' ', 0x0d, 0x0a, 0x87, 0x0a}

// ISOBMFF box and item types used in HEIF, AVIF and JPEG XL containers.
var (
	fccMeta = fourCC{'m', 'e', 't', 'a'}
	fccIinf = fourCC{'i', 'i', 'n', 'f'}
	fccInfe = fourCC{'i', 'n', 'f', 'e'}
	fccIloc = fourCC{'i', 'l', 'o', 'c'}
	fccIdat = fourCC{'i', 'd', 'a', 't'}
	fccExif = fourCC{'E', 'x', 'i', 'f'}
	fccMime = fourCC{'m', 'i', 'm', 'e'}
	fccXML  = fourCC{'x', 'm', 'l', ' '}
	fccBrob = fourCC{'b', 'r', 'o', 'b'}
)

const mimeTypeXMP = "application/rdf+xml"

// isobmffBox is the location of a box.
type isobmffBox struct {
	typ   fourCC
	start int64 // Start of the box header.
	data  int64 // Start of the box payload.
	end   int64 // math.MaxInt64 if the box extends to the end of the file.
}

type isobmffItem struct {
	id          uint32
	typ         fourCC
	contentType string
}

type isobmffExtent struct {
	offset, length uint64
}

type isobmffLocation struct {
	constructionMethod uint16
	baseOffset         uint64
	extents            []isobmffExtent
}

// imageCodecISOBMFF reads metadata from HEIF, AVIF and JPEG XL files.
// Writing is not supported; the image is copied verbatim.
type imageCodecISOBMFF struct {
	*baseImageCodec
}

// isobmffScan is collected in the first pass and resolved in the second,
// so box ordering doesn't matter.
type isobmffScan struct {
	items     []isobmffItem
	locations map[uint32]isobmffLocation
	idat      *isobmffBox
	exifBoxes []isobmffBox
	xmlBoxes  []isobmffBox
}

// readBox reads a box header at the current position, bounded by parentEnd.
// It returns false on a clean EOF.
func (e *imageCodecISOBMFF) readBox(parentEnd int64) (isobmffBox, bool) {
	var box isobmffBox
	box.start = e.pos()
	size := uint64(e.read4())
	if e.isEOF {
		return box, false
	}
	box.typ = e.readFourCC()
	if e.isEOF {
		panic(newInvalidFormatErrorf("ISOBMFF: truncated box header"))
	}

	switch size {
	case 0:
		// Box extends to the end of its parent.
		box.end = parentEnd
	case 1:
		// Extended size: next 8 bytes hold the actual size.
		size = e.read8()
		fallthrough
	default:
		box.data = e.pos()
		if size < uint64(box.data-box.start) || size > math.MaxInt64-uint64(box.start) {
			panic(newInvalidFormatErrorf("ISOBMFF: invalid size %d for box %s", size, box.typ))
		}
		box.end = box.start + int64(size)
		if box.end > parentEnd {
			panic(newInvalidFormatErrorf("ISOBMFF: box %s exceeds its parent", box.typ))
		}
	}
	if box.data == 0 {
		box.data = e.pos()
	}

	return box, true
}

func (e *imageCodecISOBMFF) decode() error {
	// Pass 1: collect boxes, items and locations.
	s := e.scan()

	// Pass 2: read the payloads.
	for _, box := range s.exifBoxes {
		e.addPayload(EXIF, trimEXIFHeader(e.readBoxPayload("Exif box", box)))
	}
	for _, box := range s.xmlBoxes {
		e.addPayload(XMP, e.readBoxPayload("xml box", box))
	}

	for _, item := range s.items {
		var f Format
		switch {
		case item.typ == fccExif:
			f = EXIF
		case item.typ == fccMime && item.contentType == mimeTypeXMP:
			f = XMP
		default:
			continue
		}

		loc, found := s.locations[item.id]
		if !found {
			e.opts.Warnf("imagecopyright: no location for %s item %d", f, item.id)
			continue
		}

		b := e.readItem(f, loc, s.idat)
		if f == EXIF {
			b = trimEXIFHeader(b)
		}
		e.addPayload(f, b)
	}

	return nil
}

// scan walks the top level boxes from the current position and
// collects the metadata boxes, items and item locations.
func (e *imageCodecISOBMFF) scan() *isobmffScan {
	s := &isobmffScan{locations: make(map[uint32]isobmffLocation)}

	for {
		box, ok := e.readBox(math.MaxInt64)
		if !ok {
			break
		}

		switch box.typ {
		case fccMeta:
			e.decodeMeta(s, box)
		case fccExif:
			s.exifBoxes = append(s.exifBoxes, box)
		case fccXML:
			s.xmlBoxes = append(s.xmlBoxes, box)
		case fccBrob:
			e.opts.Warnf("imagecopyright: skipping Brotli compressed JPEG XL box")
		}

		if box.end == math.MaxInt64 {
			break
		}
		e.seek(box.end)
	}

	return s
}

// readBoxPayload reads the payload of a top level box.
func (e *imageCodecISOBMFF) readBoxPayload(what string, box isobmffBox) []byte {
	e.seek(box.data)
	if box.end != math.MaxInt64 {
		return e.readPayload(what, box.end-box.data)
	}

	// The last box in the file.
	b, err := io.ReadAll(io.LimitReader(e.r, int64(e.opts.LimitPayloadSize)+1))
	if err != nil {
		e.stop(noSilentEOF(err))
	}
	if len(b) > int(e.opts.LimitPayloadSize) {
		e.opts.Warnf("imagecopyright: %s payload exceeds limit %d, skipping", what, e.opts.LimitPayloadSize)
		return nil
	}
	return b
}

// decodeMeta walks the children of a meta box.
func (e *imageCodecISOBMFF) decodeMeta(s *isobmffScan, meta isobmffBox) {
	// meta is a FullBox: skip version+flags.
	e.skip(4)

	for e.pos()+8 <= meta.end {
		box, ok := e.readBox(meta.end)
		if !ok {
			return
		}

		switch box.typ {
		case fccIinf:
			s.items = append(s.items, e.decodeIinf(box)...)
		case fccIloc:
			e.decodeIloc(s.locations)
		case fccIdat:
			idat := box
			s.idat = &idat
		}

		if box.end == meta.end {
			return
		}
		e.seek(box.end)
	}
}

func (e *imageCodecISOBMFF) decodeIinf(iinf isobmffBox) []isobmffItem {
	// iinf is a FullBox: read version+flags then item count.
	version := e.read4() >> 24
	var count uint32
	if version == 0 {
		count = uint32(e.read2())
	} else {
		count = e.read4()
	}

	var items []isobmffItem
	for range count {
		if e.pos()+8 > iinf.end {
			break
		}
		box, ok := e.readBox(iinf.end)
		if !ok {
			break
		}
		if box.typ == fccInfe {
			if item, ok := e.decodeInfe(box); ok {
				items = append(items, item)
			}
		}
		e.seek(box.end)
	}
	return items
}

func (e *imageCodecISOBMFF) decodeInfe(infe isobmffBox) (isobmffItem, bool) {
	// infe is a FullBox: read version+flags.
	version := e.read4() >> 24

	var item isobmffItem
	switch version {
	case 0, 1:
		item.id = uint32(e.read2())
		e.skip(2) // protectionIndex
		e.readNullTerminatedBytes(infe.end) // item_name
		item.typ = fccMime
		item.contentType = string(e.readNullTerminatedBytes(infe.end))
	case 2, 3:
		if version == 2 {
			item.id = uint32(e.read2())
		} else {
			// Version 3: 32-bit item ID.
			item.id = e.read4()
		}
		e.skip(2) // protectionIndex
		item.typ = e.readFourCC()
		e.readNullTerminatedBytes(infe.end) // item_name
		if item.typ == fccMime {
			item.contentType = string(e.readNullTerminatedBytes(infe.end))
		}
	default:
		e.opts.Warnf("imagecopyright: infe version %d not supported, skipping", version)
		return item, false
	}

	return item, true
}

// decodeIloc adds the item locations in the iloc box to locations.
func (e *imageCodecISOBMFF) decodeIloc(locations map[uint32]isobmffLocation) {
	// iloc is a FullBox: read version+flags.
	version := uint8(e.read4() >> 24)
	if version > 2 {
		e.opts.Warnf("imagecopyright: iloc version %d not supported, skipping", version)
		return
	}

	b1 := e.read1()
	offsetSize := int(b1 >> 4)
	lengthSize := int(b1 & 0x0f)

	b2 := e.read1()
	baseOffsetSize := int(b2 >> 4)
	indexSize := 0
	if version >= 1 {
		indexSize = int(b2 & 0x0f)
	}

	var count uint32
	if version < 2 {
		count = uint32(e.read2())
	} else {
		count = e.read4()
	}

	for range count {
		var itemID uint32
		if version < 2 {
			itemID = uint32(e.read2())
		} else {
			itemID = e.read4()
		}

		var loc isobmffLocation
		if version >= 1 {
			loc.constructionMethod = e.read2() & 0x0f
		}
		e.skip(2) // dataReferenceIndex
		loc.baseOffset = e.readVarUint(baseOffsetSize)

		extentCount := e.read2()
		for range extentCount {
			e.readVarUint(indexSize) // extent index, discard
			off := e.readVarUint(offsetSize)
			length := e.readVarUint(lengthSize)
			loc.extents = append(loc.extents, isobmffExtent{offset: off, length: length})
		}

		locations[itemID] = loc
	}
}

// readItem concatenates the extents of an item.
// idat is nil if the meta box has no idat box.
func (e *imageCodecISOBMFF) readItem(f Format, loc isobmffLocation, idat *isobmffBox) []byte {
	var base uint64
	switch loc.constructionMethod {
	case 0:
		// File offset.
	case 1:
		if idat == nil {
			e.opts.Warnf("imagecopyright: %s item refers to missing idat box", f)
			return nil
		}
		base = uint64(idat.data)
	default:
		e.opts.Warnf("imagecopyright: %s item construction method %d not supported", f, loc.constructionMethod)
		return nil
	}

	var total uint64
	for _, ext := range loc.extents {
		total += ext.length
	}
	if total > uint64(e.opts.LimitPayloadSize) {
		e.opts.Warnf("imagecopyright: %s item of %d bytes exceeds limit %d, skipping", f, total, e.opts.LimitPayloadSize)
		return nil
	}

	b := make([]byte, 0, total)
	for _, ext := range loc.extents {
		if ext.length == 0 {
			e.opts.Warnf("imagecopyright: %s item with implicit extent length not supported", f)
			return nil
		}
		offset := base + loc.baseOffset + ext.offset
		if offset > math.MaxInt64 {
			panic(newInvalidFormatErrorf("ISOBMFF: extent offset %d out of range", offset))
		}
		e.seek(int64(offset))
		b = append(b, e.readBytes(int64(ext.length))...)
	}
	return b
}

// encode copies the image verbatim. Writing metadata to ISOBMFF files is not supported.
func (e *imageCodecISOBMFF) encode(w io.Writer, m Metadata, keys PreserveKeys) error {
	e.opts.Warnf("imagecopyright: writing metadata to ISOBMFF files is not supported, copying as is")
	e.copyRest(w)
	return nil
}

// trimEXIFHeader strips the headers that may precede the TIFF structure:
// the "Exif\0\0" identifier and the 4 byte TIFF header offset used in ISOBMFF.
func trimEXIFHeader(b []byte) []byte {
	if isTIFFHeader(b) {
		return b
	}
	if bytes.HasPrefix(b, exifPrefix) {
		return b[len(exifPrefix):]
	}
	if len(b) < 4 {
		return b
	}
	offset := uint64(binary.BigEndian.Uint32(b))
	if 4+offset > uint64(len(b)) {
		return b
	}
	return bytes.TrimPrefix(b[4+offset:], exifPrefix)
}

func isTIFFHeader(b []byte) bool {
	return bytes.HasPrefix(b, []byte("II*\x00")) || bytes.HasPrefix(b, []byte("MM\x00*"))
}
