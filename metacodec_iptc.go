// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const (
	iptcKeyObjectName = "2#005"
	iptcKeyByline     = "2#080"
	iptcKeyCredit     = "2#110"
	iptcKeySource     = "2#115"
	iptcKeyCopyright  = "2#116"

	iptcCodedCharacterSet = 90
	iptcMetaDataBlockID   = 0x0404
	iptcTagMarker         = 0x1c
)

var (
	photoshopPrefix   = []byte("Photoshop 3.0\x00")
	photoshop25Prefix = []byte("Adobe_Photoshop2.5:")
	irbSignature      = []byte("8BIM")

	// ESC % G declares UTF-8.
	iptcUTF8Marker = []byte{0x1b, 0x25, 0x47}
)

type iptcField struct {
	name       string
	repeatable bool
}

// iptcApplicationFields are the record 2 datasets we know about.
// Datasets not listed here are non repeatable.
var iptcApplicationFields = map[uint8]iptcField{
	5:   {"ObjectName", false},
	25:  {"Keywords", true},
	80:  {"Byline", true},
	85:  {"BylineTitle", true},
	105: {"Headline", false},
	110: {"Credit", false},
	115: {"Source", false},
	116: {"CopyrightNotice", false},
	118: {"Contact", true},
	120: {"Caption", false},
	122: {"WriterEditor", true},
}

// iptcMaxLen returns the byte length values of the given dataset are truncated to when written.
func iptcMaxLen(dataset uint8) int {
	switch dataset {
	case 116:
		return 128
	case 5:
		return 64
	default:
		return 32
	}
}

func iptcKey(record, dataset uint8) string {
	return fmt.Sprintf("%d#%03d", record, dataset)
}

// parseIPTCKey parses keys on the form "2#116".
func parseIPTCKey(key string) (record, dataset uint8, ok bool) {
	rs, ds, found := strings.Cut(key, "#")
	if !found {
		return 0, 0, false
	}
	r, err := strconv.ParseUint(rs, 10, 8)
	if err != nil {
		return 0, 0, false
	}
	d, err := strconv.ParseUint(ds, 10, 8)
	if err != nil {
		return 0, 0, false
	}
	return uint8(r), uint8(d), true
}

// decodeIPTC decodes IPTC-IIM data, either wrapped in Photoshop image resource blocks
// (optionally preceded by a Photoshop APP13 header) or as raw datasets.
// Only record 2 datasets are returned.
func decodeIPTC(b []byte) (IPTCData, error) {
	if bytes.HasPrefix(b, photoshopPrefix) {
		b = b[len(photoshopPrefix):]
	} else if bytes.HasPrefix(b, photoshop25Prefix) {
		b = b[len(photoshop25Prefix):]
	}

	d := &metaDecoderIPTC{data: IPTCData{}}

	switch {
	case bytes.HasPrefix(b, irbSignature):
		if err := d.decodeBlocks(b); err != nil {
			return nil, err
		}
	case len(b) > 0 && b[0] == iptcTagMarker:
		if err := d.decodeRecords(b); err != nil {
			return nil, err
		}
	default:
		if i := bytes.Index(b, irbSignature); i >= 0 {
			if err := d.decodeBlocks(b[i:]); err != nil {
				return nil, err
			}
		} else if i := bytes.IndexByte(b, iptcTagMarker); i >= 0 {
			if err := d.decodeRecords(b[i:]); err != nil {
				return nil, err
			}
		} else {
			return nil, fmt.Errorf("IPTC: no image resource block or dataset found")
		}
	}

	return d.data, nil
}

type metaDecoderIPTC struct {
	utf8 bool
	data IPTCData
}

// decodeBlocks decodes the image resource blocks starting with 8BIM.
func (e *metaDecoderIPTC) decodeBlocks(b []byte) error {
	for len(b) >= 4 && bytes.HasPrefix(b, irbSignature) {
		b = b[4:]
		if len(b) < 3 {
			return fmt.Errorf("IPTC: truncated image resource block")
		}
		identifier := binary.BigEndian.Uint16(b)
		b = b[2:]

		// Pascal string, padded to even length including the length byte.
		nameLength := int(b[0]) + 1
		if nameLength%2 == 1 {
			nameLength++
		}
		if len(b) < nameLength+4 {
			return fmt.Errorf("IPTC: truncated image resource block")
		}
		b = b[nameLength:]

		dataSize := int(binary.BigEndian.Uint32(b))
		b = b[4:]
		if dataSize > len(b) {
			return fmt.Errorf("IPTC: image resource block size %d exceeds payload", dataSize)
		}

		if identifier == iptcMetaDataBlockID {
			if err := e.decodeRecords(b[:dataSize]); err != nil {
				return err
			}
		}

		if dataSize%2 != 0 && dataSize < len(b) {
			dataSize++
		}
		b = b[dataSize:]
	}
	return nil
}

// decodeRecords decodes the IPTC datasets delimited by 0x1C.
func (e *metaDecoderIPTC) decodeRecords(b []byte) error {
	type rawDataset struct {
		record, dataset uint8
		value           []byte
	}
	var datasets []rawDataset

	for len(b) > 0 && b[0] == iptcTagMarker {
		if len(b) < 5 {
			return fmt.Errorf("IPTC: truncated dataset header")
		}
		record, dataset := b[1], b[2]
		size := int(binary.BigEndian.Uint16(b[3:]))
		b = b[5:]

		if size&0x8000 != 0 {
			// Extended dataset, the lower bits hold the length of the size field.
			n := size & 0x7fff
			if n > 4 || len(b) < n {
				return fmt.Errorf("IPTC: invalid extended dataset size")
			}
			size = 0
			for _, c := range b[:n] {
				size = size<<8 | int(c)
			}
			b = b[n:]
		}

		if size > len(b) {
			return fmt.Errorf("IPTC: dataset %s of %d bytes exceeds payload", iptcKey(record, dataset), size)
		}

		if record == 1 && dataset == iptcCodedCharacterSet {
			e.utf8 = bytes.HasPrefix(b[:size], iptcUTF8Marker)
		}
		datasets = append(datasets, rawDataset{record, dataset, b[:size]})
		b = b[size:]
	}

	// The coded character set applies to all datasets regardless of order.
	for _, ds := range datasets {
		if ds.record != 2 {
			continue
		}
		v := e.decodeValue(ds.value)
		if v == "" {
			continue
		}
		key := iptcKey(ds.record, ds.dataset)
		e.data[key] = append(e.data[key], v)
	}

	return nil
}

func (e *metaDecoderIPTC) decodeValue(b []byte) string {
	b = trimBytesNulls(b)
	var s string
	if e.utf8 {
		s = toValidUTF8(string(b))
	} else {
		s = decodeText(b)
	}
	return strings.TrimSpace(s)
}

// buildIPTC resolves the IPTC values to write from m, filtered by keys.
func buildIPTC(m Metadata, keys []string) IPTCData {
	d := IPTCData{}
	for k, v := range m.iptcData() {
		d[k] = slices.Clone(v)
	}
	for _, rv := range resolveAll(m, IPTC) {
		d[rv.target.Key] = slices.Clone(rv.values)
	}
	for k := range d {
		if !slices.Contains(keys, k) {
			delete(d, k)
		}
	}
	return d
}

// serializeIPTC returns the image resource block to embed for m, or nil if there is nothing to write.
func serializeIPTC(m Metadata, keys []string, warnf func(string, ...any)) []byte {
	return encodeIPTC(buildIPTC(m, keys), warnf)
}

// encodeIPTC writes the record 2 datasets in d, preceded by a UTF-8
// coded character set dataset, wrapped in an 8BIM image resource block.
func encodeIPTC(d IPTCData, warnf func(string, ...any)) []byte {
	type dataset struct {
		number uint8
		values []string
	}
	var datasets []dataset
	for k, v := range d {
		record, number, ok := parseIPTCKey(k)
		if !ok || record != 2 {
			warnf("imagecopyright: IPTC key %q is not writable, skipping", k)
			continue
		}
		datasets = append(datasets, dataset{number, v})
	}
	slices.SortFunc(datasets, func(a, b dataset) int {
		return int(a.number) - int(b.number)
	})

	var iim bytes.Buffer
	writeDataset := func(record, number uint8, value []byte) {
		iim.Write([]byte{iptcTagMarker, record, number})
		iim.Write(binary.BigEndian.AppendUint16(nil, uint16(len(value))))
		iim.Write(value)
	}

	writeDataset(1, iptcCodedCharacterSet, iptcUTF8Marker)
	headerLen := iim.Len()

	for _, ds := range datasets {
		values := ds.values
		if f, ok := iptcApplicationFields[ds.number]; ok && !f.repeatable && len(values) > 1 {
			values = values[:1]
		}
		for _, v := range values {
			v = truncateUTF8(toValidUTF8(strings.TrimSpace(v)), iptcMaxLen(ds.number))
			if v == "" {
				continue
			}
			writeDataset(2, ds.number, []byte(v))
		}
	}

	if iim.Len() == headerLen {
		return nil
	}

	return wrapIRB(iptcMetaDataBlockID, iim.Bytes())
}

// wrapIRB wraps data in a Photoshop image resource block with an empty name.
func wrapIRB(id uint16, data []byte) []byte {
	b := make([]byte, 0, 12+len(data)+1)
	b = append(b, irbSignature...)
	b = binary.BigEndian.AppendUint16(b, id)
	b = append(b, 0, 0)
	b = binary.BigEndian.AppendUint32(b, uint32(len(data)))
	b = append(b, data...)
	if len(data)%2 != 0 {
		b = append(b, 0)
	}
	return b
}
