// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"
	"strings"
	"unicode"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

var (
	pngChunkIDAT = fourCC{'I', 'D', 'A', 'T'}
	pngChunkIEND = fourCC{'I', 'E', 'N', 'D'}
	pngChunkEXIF = fourCC{'e', 'X', 'I', 'f'}
	pngChunkTEXT = fourCC{'t', 'E', 'X', 't'}
	pngChunkZTXT = fourCC{'z', 'T', 'X', 't'}
	pngChunkITXT = fourCC{'i', 'T', 'X', 't'}
)

const (
	pngKeywordXMP            = "XML:com.adobe.xmp"
	pngKeywordRawProfileIPTC = "Raw profile type iptc"
	pngKeywordRawProfileEXIF = "Raw profile type exif"
	pngKeywordRawProfileAPP1 = "Raw profile type APP1"

	// The max length of a chunk as given by the PNG specification.
	pngMaxChunkLen = 1<<31 - 1
)

type imageCodecPNG struct {
	*baseImageCodec
}

// readChunkHeader reads the length and type of the next chunk. It returns false on a clean EOF.
func (e *imageCodecPNG) readChunkHeader() (uint32, fourCC, bool) {
	length := e.read4()
	if e.isEOF {
		return 0, fourCC{}, false
	}
	typ := e.readFourCC()
	if e.isEOF {
		panic(newInvalidFormatErrorf("PNG: truncated chunk header"))
	}
	if length > pngMaxChunkLen {
		panic(newInvalidFormatErrorf("PNG: chunk %s length %d exceeds the max chunk length", typ, length))
	}
	return length, typ, true
}

func (e *imageCodecPNG) decode() error {
	// Skip signature.
	e.skip(int64(len(pngSignature)))

	for {
		length, typ, ok := e.readChunkHeader()
		if !ok {
			return nil
		}

		switch typ {
		case pngChunkIEND:
			return nil
		case pngChunkEXIF:
			e.addPayload(EXIF, e.readPayload("eXIf", int64(length)))
		case pngChunkTEXT, pngChunkZTXT, pngChunkITXT:
			if b := e.readPayload(typ.String(), int64(length)); b != nil {
				e.handleText(typ, b)
			}
		default:
			e.skip(int64(length))
		}

		e.skip(4) // skip CRC
	}
}

// handleText dispatches a text chunk to the format it carries.
func (e *imageCodecPNG) handleText(typ fourCC, b []byte) {
	keyword, text, err := parsePNGTextChunk(typ, b, int64(e.opts.LimitPayloadSize))
	if err != nil {
		e.opts.Warnf("imagecopyright: skipping invalid PNG %s chunk: %v", typ, err)
		return
	}

	switch keyword {
	case pngKeywordXMP:
		e.addPayload(XMP, []byte(text))
	case pngKeywordRawProfileIPTC:
		e.addRawProfile(IPTC, text)
	case pngKeywordRawProfileEXIF, pngKeywordRawProfileAPP1:
		e.addRawProfile(EXIF, text)
	default:
		e.addPayload(PNG, []byte(keyword+"\x00"+text))
	}
}

func (e *imageCodecPNG) addRawProfile(f Format, text string) {
	b, err := decodePNGRawProfile(text)
	if err != nil {
		e.opts.Warnf("imagecopyright: skipping invalid PNG raw %s profile: %v", f, err)
		return
	}
	e.addPayload(f, b)
}

func (e *imageCodecPNG) encode(w io.Writer, m Metadata, keys PreserveKeys) error {
	xmp := serializeXMP(m, keys.XMP, e.opts.Warnf)
	exif, err := serializeEXIF(m, keys.EXIF, e.opts.Warnf)
	if err != nil {
		return err
	}
	iptc := serializeIPTC(m, keys.IPTC, e.opts.Warnf)
	texts := serializePNGText(m, keys.PNG)

	var chunks bytes.Buffer
	if len(xmp) > 0 {
		writePNGChunk(&chunks, pngChunkITXT, pngITXt(pngKeywordXMP, string(xmp), true))
	}
	if len(exif) > 0 {
		writePNGChunk(&chunks, pngChunkEXIF, exif)
	}
	if len(iptc) > 0 {
		writePNGChunk(&chunks, pngChunkITXT, pngITXt(pngKeywordRawProfileIPTC, encodePNGRawProfile("IPTC profile", iptc), false))
	}
	textKeywords := make(map[string]bool)
	for _, t := range texts {
		textKeywords[t.keyword] = true
		writePNGChunk(&chunks, pngChunkITXT, pngITXt(t.keyword, t.text, false))
	}

	// Existing chunks of a kind we write are dropped.
	replace := func(keyword string) bool {
		switch keyword {
		case pngKeywordXMP:
			return len(xmp) > 0
		case pngKeywordRawProfileIPTC:
			return len(iptc) > 0
		case pngKeywordRawProfileEXIF, pngKeywordRawProfileAPP1:
			return len(exif) > 0
		}
		return textKeywords[keyword]
	}

	e.write(w, e.readBytes(int64(len(pngSignature))))

	injected := false
	inject := func() {
		if !injected {
			e.write(w, chunks.Bytes())
			injected = true
		}
	}

	for {
		length, typ, ok := e.readChunkHeader()
		if !ok {
			return newInvalidFormatErrorf("PNG: missing IEND chunk")
		}

		if typ == pngChunkIDAT || typ == pngChunkIEND {
			inject()
		}

		header := binary.BigEndian.AppendUint32(nil, length)
		header = append(header, typ[:]...)

		switch typ {
		case pngChunkEXIF:
			if len(exif) > 0 {
				e.skip(int64(length) + 4)
				continue
			}
		case pngChunkTEXT, pngChunkZTXT, pngChunkITXT:
			b := e.readBytes(int64(length))
			keyword, _, _ := bytes.Cut(b, []byte{0})
			if replace(string(keyword)) {
				e.skip(4)
				continue
			}
			e.write(w, header)
			e.write(w, b)
			e.copyN(w, 4)
			continue
		}

		e.write(w, header)
		e.copyN(w, int64(length)+4)

		if typ == pngChunkIEND {
			e.copyRest(w)
			return nil
		}
	}
}

// writePNGChunk writes a chunk with its CRC computed over type and data.
func writePNGChunk(w *bytes.Buffer, typ fourCC, data []byte) {
	w.Write(binary.BigEndian.AppendUint32(nil, uint32(len(data))))
	w.Write(typ[:])
	w.Write(data)

	crc := crc32.NewIEEE()
	crc.Write(typ[:])
	crc.Write(data)
	w.Write(binary.BigEndian.AppendUint32(nil, crc.Sum32()))
}

// pngITXt returns the data of an iTXt chunk with empty language and translated keyword.
// If compress is set, the text is compressed when that makes it smaller.
func pngITXt(keyword, text string, compress bool) []byte {
	b := []byte(pngKeyword(keyword))
	b = append(b, 0)

	payload := []byte(text)
	compressed := false
	if compress {
		var zb bytes.Buffer
		zw := zlib.NewWriter(&zb)
		if _, err := zw.Write(payload); err == nil && zw.Close() == nil && zb.Len() < len(payload) {
			payload = zb.Bytes()
			compressed = true
		}
	}

	if compressed {
		b = append(b, 1, 0)
	} else {
		b = append(b, 0, 0)
	}
	// Language tag and translated keyword.
	b = append(b, 0, 0)
	return append(b, payload...)
}

// parsePNGTextChunk returns the keyword and the UTF-8 text of a tEXt, zTXt or iTXt chunk.
func parsePNGTextChunk(typ fourCC, b []byte, limit int64) (string, string, error) {
	keyword, rest, found := bytes.Cut(b, []byte{0})
	if !found {
		return "", "", fmt.Errorf("missing keyword separator")
	}
	kw := decodeText(keyword)

	switch typ {
	case pngChunkTEXT:
		return kw, decodeText(rest), nil
	case pngChunkZTXT:
		if len(rest) < 1 {
			return "", "", fmt.Errorf("missing compression method")
		}
		text, err := pngInflate(rest[1:], limit)
		if err != nil {
			return "", "", err
		}
		return kw, decodeText(text), nil
	case pngChunkITXT:
		if len(rest) < 2 {
			return "", "", fmt.Errorf("missing compression flag")
		}
		compressed := rest[0] == 1
		rest = rest[2:]
		// Skip language tag and translated keyword.
		for range 2 {
			var ok bool
			if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
				return "", "", fmt.Errorf("missing iTXt separator")
			}
		}
		if compressed {
			text, err := pngInflate(rest, limit)
			if err != nil {
				return "", "", err
			}
			rest = text
		}
		return kw, toValidUTF8(string(rest)), nil
	}

	return "", "", fmt.Errorf("unsupported text chunk %s", typ)
}

// pngInflate decompresses zlib data of at most limit bytes.
func pngInflate(b []byte, limit int64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	text, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(text)) > limit {
		return nil, fmt.Errorf("decompressed text exceeds limit %d", limit)
	}
	return text, nil
}

// encodePNGRawProfile encodes b as a raw profile: a newline, the profile name,
// the decimal length and the hex encoded data as a single run.
func encodePNGRawProfile(name string, b []byte) string {
	return fmt.Sprintf("\n%s\n%8d\n%s", name, len(b), hex.EncodeToString(b))
}

// decodePNGRawProfile decodes a raw profile as written by encodePNGRawProfile.
// Whitespace in the hex data is ignored.
func decodePNGRawProfile(text string) ([]byte, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' })
	if len(fields) < 2 {
		return nil, fmt.Errorf("missing raw profile header")
	}
	length, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil || length < 0 {
		return nil, fmt.Errorf("invalid raw profile length %q", fields[1])
	}

	h := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.Join(fields[2:], ""))

	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, err
	}
	if len(b) < length {
		return nil, fmt.Errorf("raw profile has %d bytes, expected %d", len(b), length)
	}
	return b[:length], nil
}
