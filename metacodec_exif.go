// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

const (
	exifIFD0 = "IFD0"

	byteOrderBigEndian    = 0x4d4d
	byteOrderLittleEndian = 0x4949

	unknownTagPrefix = "UnknownTag_"
)

// exifPrefix is the header preceding the TIFF structure in JPEG APP1 and some WebP files.
var exifPrefix = []byte("Exif\x00\x00")

// exifType represents the basic tiff tag data types.
type exifType uint16

const (
	exifTypeUnsignedByte  exifType = 1
	exifTypeASCII         exifType = 2
	exifTypeUnsignedShort exifType = 3
	exifTypeUnsignedLong  exifType = 4
	exifTypeUnsignedRat   exifType = 5
	exifTypeSignedByte    exifType = 6
	exifTypeUndef         exifType = 7
	exifTypeSignedShort   exifType = 8
	exifTypeSignedLong    exifType = 9
	exifTypeSignedRat     exifType = 10
	exifTypeFloat         exifType = 11
	exifTypeDouble        exifType = 12
)

// Size in bytes of each type.
var exifTypeSize = map[exifType]uint32{
	exifTypeUnsignedByte:  1,
	exifTypeASCII:         1,
	exifTypeUnsignedShort: 2,
	exifTypeUnsignedLong:  4,
	exifTypeUnsignedRat:   8,
	exifTypeSignedByte:    1,
	exifTypeUndef:         1,
	exifTypeSignedShort:   2,
	exifTypeSignedLong:    4,
	exifTypeSignedRat:     8,
	exifTypeFloat:         4,
	exifTypeDouble:        8,
}

// exifFieldsIFD0 are the tags commonly found in IFD0.
var exifFieldsIFD0 = map[uint16]string{
	0x100:  "ImageWidth",
	0x101:  "ImageLength",
	0x102:  "BitsPerSample",
	0x103:  "Compression",
	0x106:  "PhotometricInterpretation",
	0x10d:  "DocumentName",
	0x10e:  "ImageDescription",
	0x10f:  "Make",
	0x110:  "Model",
	0x111:  "StripOffsets",
	0x112:  "Orientation",
	0x115:  "SamplesPerPixel",
	0x116:  "RowsPerStrip",
	0x117:  "StripByteCounts",
	0x11a:  "XResolution",
	0x11b:  "YResolution",
	0x11c:  "PlanarConfiguration",
	0x11d:  "PageName",
	0x128:  "ResolutionUnit",
	0x131:  "Software",
	0x132:  "DateTime",
	0x13b:  "Artist",
	0x13c:  "HostComputer",
	0x13e:  "WhitePoint",
	0x13f:  "PrimaryChromaticities",
	0x201:  "JPEGInterchangeFormat",
	0x202:  "JPEGInterchangeFormatLength",
	0x211:  "YCbCrCoefficients",
	0x212:  "YCbCrSubSampling",
	0x213:  "YCbCrPositioning",
	0x214:  "ReferenceBlackWhite",
	0x8298: "Copyright",
	0x8769: "ExifIFDPointer",
	0x8825: "GPSInfoIFDPointer",
	0x9c9b: "XPTitle",
	0x9c9c: "XPComment",
	0x9c9d: "XPAuthor",
	0x9c9e: "XPKeywords",
	0x9c9f: "XPSubject",
}

// exifIFDPointers point to sub-IFDs, which are not decoded.
var exifIFDPointers = map[uint16]bool{
	0x8769: true,
	0x8825: true,
	0xa005: true,
}

// exifWritableTags are the ASCII tags that can be written, keyed by name.
var exifWritableTags = map[string]uint16{
	"DocumentName":     0x10d,
	"ImageDescription": 0x10e,
	"Make":             0x10f,
	"Model":            0x110,
	"PageName":         0x11d,
	"Software":         0x131,
	"DateTime":         0x132,
	"Artist":           0x13b,
	"HostComputer":     0x13c,
	"Copyright":        0x8298,
}

// decodeEXIF decodes IFD0 of the TIFF structure in b.
// b may start with the "Exif\0\0" header.
func decodeEXIF(b []byte) (EXIFData, error) {
	b = bytes.TrimPrefix(b, exifPrefix)
	if len(b) < 8 {
		return nil, fmt.Errorf("EXIF: %d bytes is too short for a TIFF header", len(b))
	}

	var byteOrder binary.ByteOrder
	switch binary.BigEndian.Uint16(b) {
	case byteOrderBigEndian:
		byteOrder = binary.BigEndian
	case byteOrderLittleEndian:
		byteOrder = binary.LittleEndian
	default:
		return nil, fmt.Errorf("EXIF: invalid byte order marker %x", b[:2])
	}

	if magic := byteOrder.Uint16(b[2:]); magic != 42 {
		return nil, fmt.Errorf("EXIF: invalid TIFF magic %d", magic)
	}

	ifd0Offset := byteOrder.Uint32(b[4:])
	if ifd0Offset < 8 || uint64(ifd0Offset)+2 > uint64(len(b)) {
		return nil, fmt.Errorf("EXIF: IFD0 offset %d out of range", ifd0Offset)
	}

	d := &metaDecoderEXIF{b: b, byteOrder: byteOrder}
	tags, err := d.decodeIFD(int(ifd0Offset))
	if err != nil {
		return nil, err
	}

	return EXIFData{exifIFD0: tags}, nil
}

type metaDecoderEXIF struct {
	b         []byte
	byteOrder binary.ByteOrder
}

// A tag is represented in 12 bytes:
//   - 2 bytes for the tag ID
//   - 2 bytes for the data type
//   - 4 bytes for the number of data values of the specified type
//   - 4 bytes for the value itself, if it fits, otherwise for a pointer to another location where the data may be found;
//     this could be a pointer to the beginning of another IFD.
func (e *metaDecoderEXIF) decodeIFD(offset int) (map[string]string, error) {
	numTags := int(e.byteOrder.Uint16(e.b[offset:]))
	offset += 2
	if offset+numTags*12 > len(e.b) {
		return nil, fmt.Errorf("EXIF: IFD with %d entries exceeds payload", numTags)
	}

	tags := make(map[string]string, numTags)
	for i := range numTags {
		entry := e.b[offset+i*12 : offset+(i+1)*12]
		tagID := e.byteOrder.Uint16(entry)
		if exifIFDPointers[tagID] {
			continue
		}

		typ := exifType(e.byteOrder.Uint16(entry[2:]))
		count := e.byteOrder.Uint32(entry[4:])
		size, ok := exifTypeSize[typ]
		if !ok || count == 0 || count > 0x10000 {
			continue
		}

		valLen := uint64(size) * uint64(count)
		val := entry[8:12]
		if valLen > 4 {
			valOffset := uint64(e.byteOrder.Uint32(entry[8:]))
			if valOffset+valLen > uint64(len(e.b)) {
				// Broken offset, skip the tag.
				continue
			}
			val = e.b[valOffset : valOffset+valLen]
		} else {
			val = val[:valLen]
		}

		tagName, found := exifFieldsIFD0[tagID]
		if !found {
			tagName = fmt.Sprintf("%s0x%x", unknownTagPrefix, tagID)
		}

		tags[tagName] = e.convertValues(typ, int(count), val)
	}

	return tags, nil
}

func (e *metaDecoderEXIF) convertValues(typ exifType, count int, b []byte) string {
	switch typ {
	case exifTypeASCII:
		return printableString(decodeText(trimBytesNulls(b)))
	case exifTypeUnsignedByte, exifTypeUndef:
		if s := trimBytesNulls(b); typ == exifTypeUndef && len(s) > 0 && isPrintableASCII(s) {
			return string(s)
		}
	}

	values := make([]string, count)
	size := int(exifTypeSize[typ])
	for i := range count {
		values[i] = e.convertValue(typ, b[i*size:(i+1)*size])
	}
	return strings.Join(values, " ")
}

func (e *metaDecoderEXIF) convertValue(typ exifType, b []byte) string {
	switch typ {
	case exifTypeUnsignedByte, exifTypeUndef:
		return strconv.FormatUint(uint64(b[0]), 10)
	case exifTypeSignedByte:
		return strconv.FormatInt(int64(int8(b[0])), 10)
	case exifTypeUnsignedShort:
		return strconv.FormatUint(uint64(e.byteOrder.Uint16(b)), 10)
	case exifTypeSignedShort:
		return strconv.FormatInt(int64(int16(e.byteOrder.Uint16(b))), 10)
	case exifTypeUnsignedLong:
		return strconv.FormatUint(uint64(e.byteOrder.Uint32(b)), 10)
	case exifTypeSignedLong:
		return strconv.FormatInt(int64(int32(e.byteOrder.Uint32(b))), 10)
	case exifTypeUnsignedRat:
		return rat[uint32]{num: e.byteOrder.Uint32(b), den: e.byteOrder.Uint32(b[4:])}.String()
	case exifTypeSignedRat:
		return rat[int32]{num: int32(e.byteOrder.Uint32(b)), den: int32(e.byteOrder.Uint32(b[4:]))}.String()
	case exifTypeFloat:
		return strconv.FormatFloat(float64(math.Float32frombits(e.byteOrder.Uint32(b))), 'g', -1, 32)
	case exifTypeDouble:
		return strconv.FormatFloat(math.Float64frombits(e.byteOrder.Uint64(b)), 'g', -1, 64)
	}
	return ""
}

func isPrintableASCII(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// buildEXIF resolves the EXIF values to write from m, filtered by keys.
func buildEXIF(m Metadata, keys map[string][]string) EXIFData {
	d := EXIFData{}
	for ifd, tags := range m.exifData() {
		for tag, v := range tags {
			setEXIF(d, ifd, tag, v)
		}
	}
	for _, rv := range resolveAll(m, EXIF) {
		setEXIF(d, rv.target.Namespace, rv.target.Key, strings.Join(rv.values, "; "))
	}

	for ifd, tags := range d {
		for tag := range tags {
			if !slices.Contains(keys[ifd], tag) {
				delete(tags, tag)
			}
		}
		if len(tags) == 0 {
			delete(d, ifd)
		}
	}
	return d
}

func setEXIF(d EXIFData, ifd, tag, v string) {
	if d[ifd] == nil {
		d[ifd] = make(map[string]string)
	}
	d[ifd][tag] = v
}

// serializeEXIF returns the TIFF block to embed for m, or nil if there is nothing to write.
func serializeEXIF(m Metadata, keys map[string][]string, warnf func(string, ...any)) ([]byte, error) {
	return encodeEXIF(buildEXIF(m, keys), warnf)
}

// exifMaxOffset is the largest offset a TIFF value can end at.
var exifMaxOffset uint64 = math.MaxUint32

type exifEntry struct {
	tag   uint16
	value []byte
}

// encodeEXIF writes the IFD0 tags in d as a little-endian TIFF structure.
// Only the ASCII tags in exifWritableTags are written; others are skipped with a warning.
func encodeEXIF(d EXIFData, warnf func(string, ...any)) ([]byte, error) {
	var entries []exifEntry
	for ifd, tags := range d {
		for name, v := range tags {
			tag, ok := exifWritableTags[name]
			if ifd != exifIFD0 || !ok {
				warnf("imagecopyright: EXIF tag %s/%s is not writable, skipping", ifd, name)
				continue
			}
			v = toValidUTF8(strings.TrimSpace(v))
			if v == "" {
				continue
			}
			entries = append(entries, exifEntry{tag: tag, value: []byte(v)})
		}
	}

	if len(entries) == 0 {
		return nil, nil
	}

	slices.SortFunc(entries, func(a, b exifEntry) int {
		return int(a.tag) - int(b.tag)
	})

	bo := binary.LittleEndian
	ifdSize := 2 + 12*len(entries) + 4
	dataOffset := uint64(8 + ifdSize)

	var buf bytes.Buffer
	buf.WriteString("II")
	buf.Write(bo.AppendUint16(nil, 42))
	buf.Write(bo.AppendUint32(nil, 8))
	buf.Write(bo.AppendUint16(nil, uint16(len(entries))))

	var data []byte
	for _, entry := range entries {
		buf.Write(bo.AppendUint16(nil, entry.tag))
		buf.Write(bo.AppendUint16(nil, uint16(exifTypeASCII)))
		buf.Write(bo.AppendUint32(nil, uint32(len(entry.value))))

		if len(entry.value) <= 4 {
			var inline [4]byte
			copy(inline[:], entry.value)
			buf.Write(inline[:])
			continue
		}

		if len(data)%2 != 0 {
			// Keep value offsets on word boundaries.
			data = append(data, 0)
		}
		offset := dataOffset + uint64(len(data))
		if offset+uint64(len(entry.value)) > exifMaxOffset {
			return nil, ErrEXIFOffsetOverflow
		}
		buf.Write(bo.AppendUint32(nil, uint32(offset)))
		data = append(data, entry.value...)
	}

	// No IFD1.
	buf.Write(bo.AppendUint32(nil, 0))
	buf.Write(data)

	return buf.Bytes(), nil
}
