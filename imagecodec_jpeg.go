// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"bytes"
	"io"
)

const (
	markerSOI   = 0xd8
	markerEOI   = 0xd9
	markerSOS   = 0xda
	markerTEM   = 0x01
	markerRST0  = 0xd0
	markerRST7  = 0xd7
	markerAPP1  = 0xe1
	markerAPP13 = 0xed

	// The max segment length, including the 2 length bytes.
	jpegMaxSegmentLen = 0xffff
)

var markerXMP = []byte("http://ns.adobe.com/xap/1.0/\x00")

type imageCodecJPEG struct {
	*baseImageCodec
}

// jpegMarker is a marker with the fill bytes preceding it.
type jpegMarker struct {
	code uint8
	fill int
}

// standalone reports whether the marker has no length and payload.
func (m jpegMarker) standalone() bool {
	return m.code == markerTEM || m.code == markerSOI || (m.code >= markerRST0 && m.code <= markerRST7)
}

func (m jpegMarker) bytes() []byte {
	b := bytes.Repeat([]byte{0xff}, m.fill+1)
	return append(b, m.code)
}

// readMarker reads the next marker. It returns false on a clean EOF.
func (e *imageCodecJPEG) readMarker() (jpegMarker, bool) {
	b := e.read1()
	if e.isEOF {
		return jpegMarker{}, false
	}
	if b != 0xff {
		panic(newInvalidFormatErrorf("JPEG: expected marker, got 0x%02x at offset %d", b, e.pos()-1))
	}
	var m jpegMarker
	for {
		m.code = e.read1()
		if e.isEOF {
			panic(newInvalidFormatErrorf("JPEG: truncated marker"))
		}
		if m.code != 0xff {
			return m, true
		}
		m.fill++
	}
}

// readSegmentLength reads the segment length and returns the number of payload bytes.
func (e *imageCodecJPEG) readSegmentLength() int64 {
	// The value includes the 2 bytes for the length itself.
	length := e.read2()
	if length < 2 {
		panic(newInvalidFormatErrorf("JPEG: invalid segment length %d", length))
	}
	return int64(length) - 2
}

func (e *imageCodecJPEG) readSOI() {
	if soi := e.read2(); soi != 0xff00|markerSOI {
		panic(newInvalidFormatErrorf("JPEG: missing SOI marker"))
	}
}

func (e *imageCodecJPEG) decode() error {
	e.readSOI()

	for {
		marker, ok := e.readMarker()
		if !ok {
			return nil
		}

		switch {
		case marker.code == markerSOS, marker.code == markerEOI:
			// Start of scan. We're done.
			return nil
		case marker.standalone():
			continue
		}

		length := e.readSegmentLength()

		switch marker.code {
		case markerAPP1:
			b := e.readPayload("APP1", length)
			switch {
			case bytes.HasPrefix(b, exifPrefix):
				e.addPayload(EXIF, b[len(exifPrefix):])
			case bytes.HasPrefix(b, markerXMP):
				e.addPayload(XMP, b[len(markerXMP):])
			}
		case markerAPP13:
			b := e.readPayload("APP13", length)
			if bytes.HasPrefix(b, photoshopPrefix) || bytes.HasPrefix(b, photoshop25Prefix) {
				e.addPayload(IPTC, b)
			}
		default:
			e.skip(length)
		}
	}
}

func (e *imageCodecJPEG) encode(w io.Writer, m Metadata, keys PreserveKeys) error {
	xmp := serializeXMP(m, keys.XMP, e.opts.Warnf)
	exif, err := serializeEXIF(m, keys.EXIF, e.opts.Warnf)
	if err != nil {
		return err
	}
	iptc := serializeIPTC(m, keys.IPTC, e.opts.Warnf)

	var segments bytes.Buffer
	writeSegment := func(code uint8, prefix, payload []byte) error {
		if len(payload) == 0 {
			return nil
		}
		length := 2 + len(prefix) + len(payload)
		if length > jpegMaxSegmentLen {
			return newInvalidFormatErrorf("JPEG: segment of %d bytes exceeds the max segment length", length)
		}
		segments.Write([]byte{0xff, code, byte(length >> 8), byte(length)})
		segments.Write(prefix)
		segments.Write(payload)
		return nil
	}
	if err := writeSegment(markerAPP1, markerXMP, xmp); err != nil {
		return err
	}
	if err := writeSegment(markerAPP1, exifPrefix, exif); err != nil {
		return err
	}
	if err := writeSegment(markerAPP13, photoshopPrefix, iptc); err != nil {
		return err
	}

	// Existing segments of a kind we write are dropped.
	replace := func(b []byte) bool {
		switch {
		case bytes.HasPrefix(b, markerXMP):
			return len(xmp) > 0
		case bytes.HasPrefix(b, exifPrefix):
			return len(exif) > 0
		case bytes.HasPrefix(b, photoshopPrefix), bytes.HasPrefix(b, photoshop25Prefix):
			return len(iptc) > 0
		}
		return false
	}

	e.readSOI()
	e.write(w, []byte{0xff, markerSOI})

	for {
		marker, ok := e.readMarker()
		if !ok {
			return newInvalidFormatErrorf("JPEG: missing SOS marker")
		}

		switch {
		case marker.code == markerSOS, marker.code == markerEOI:
			e.write(w, segments.Bytes())
			e.write(w, marker.bytes())
			// Entropy-coded data and everything after it is copied verbatim.
			e.copyRest(w)
			return nil
		case marker.standalone():
			e.write(w, marker.bytes())
			continue
		}

		length := e.readSegmentLength()

		if marker.code == markerAPP1 || marker.code == markerAPP13 {
			b := e.readBytes(length)
			if !replace(b) {
				e.write(w, marker.bytes())
				e.write(w, []byte{byte((length + 2) >> 8), byte(length + 2)})
				e.write(w, b)
			}
			continue
		}

		e.write(w, marker.bytes())
		e.write(w, []byte{byte((length + 2) >> 8), byte(length + 2)})
		e.copyN(w, length)
	}
}
