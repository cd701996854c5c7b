// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"testing"

	qt "github.com/frankban/quicktest"
)

// pngChunkTypes returns the chunk types in b, verifying the CRCs.
func pngChunkTypes(c *qt.C, b []byte) []string {
	c.Helper()
	c.Assert(bytes.HasPrefix(b, pngSignature), qt.IsTrue)
	b = b[len(pngSignature):]

	var types []string
	for len(b) > 0 {
		c.Assert(len(b) >= 12, qt.IsTrue)
		length := int(binary.BigEndian.Uint32(b))
		c.Assert(len(b) >= 12+length, qt.IsTrue)
		typ := b[4:8]
		data := b[8 : 8+length]
		crc := crc32.NewIEEE()
		crc.Write(typ)
		crc.Write(data)
		c.Assert(binary.BigEndian.Uint32(b[8+length:]), qt.Equals, crc.Sum32(), qt.Commentf("CRC of %s", typ))
		types = append(types, string(typ))
		b = b[12+length:]
		if string(typ) == "IEND" {
			break
		}
	}
	return types
}

func TestPNG(t *testing.T) {
	c := qt.New(t)

	irb := encodeIPTC(IPTCData{iptcKeyCopyright: {"IPTC copyright"}}, c.Fatalf)

	var ztxt bytes.Buffer
	ztxt.WriteString(pngKeywordRawProfileIPTC + "\x00\x00")
	zw := zlib.NewWriter(&ztxt)
	zw.Write([]byte(encodePNGRawProfile("IPTC profile", irb)))
	zw.Close()

	img := buildPNG(
		pngChunk("eXIf", testTIFF),
		pngChunk("iTXt", pngITXt(pngKeywordXMP, testXMP, true)),
		pngTEXt("Copyright", "PNG copyright"),
		pngTEXt("Author", "A"),
		pngTEXt("Author", "B"),
		pngChunk("zTXt", ztxt.Bytes()),
	)

	c.Run("Parse", func(c *qt.C) {
		m := parseBytes(c, img)
		c.Assert(m.EXIF(), qt.DeepEquals, testEXIFData)
		c.Assert(m.XMP(), qt.DeepEquals, testXMPData)
		c.Assert(m.IPTC(), qt.DeepEquals, IPTCData{iptcKeyCopyright: {"IPTC copyright"}})
		c.Assert(m.PNG(), qt.DeepEquals, PNGTextData{
			"Copyright": {"PNG copyright"},
			"Author":    {"A", "B"},
		})
	})

	c.Run("Raw EXIF profile", func(c *qt.C) {
		profile := encodePNGRawProfile("exif", append(append([]byte{}, exifPrefix...), testTIFF...))
		m := parseBytes(c, buildPNG(pngTEXt(pngKeywordRawProfileEXIF, profile)))
		c.Assert(m.EXIF(), qt.DeepEquals, testEXIFData)
		c.Assert(m.Has(PNG), qt.IsFalse)
	})

	c.Run("Apply", func(c *qt.C) {
		derivative := buildPNG()
		out := applyBytes(c, derivative, testMetadata, DefaultPreserveKeys())

		c.Assert(pngChunkTypes(c, out), qt.DeepEquals, []string{
			"IHDR", "iTXt", "eXIf", "iTXt", "iTXt", "iTXt", "iTXt", "IDAT", "IEND",
		})

		m := parseBytes(c, out)
		c.Assert(m.EXIF(), qt.DeepEquals, appliedEXIF)
		c.Assert(m.XMP(), qt.DeepEquals, appliedXMP)
		c.Assert(m.IPTC(), qt.DeepEquals, appliedIPTC)
		c.Assert(m.PNG(), qt.DeepEquals, appliedPNG)

		head := len(pngSignature) + len(pngIHDR)
		c.Assert(out[:head], qt.DeepEquals, derivative[:head])
		c.Assert(bytes.HasSuffix(out, append(append([]byte{}, pngIDAT...), pngIEND...)), qt.IsTrue)
	})

	c.Run("Idempotent", func(c *qt.C) {
		out1 := applyBytes(c, buildPNG(), testMetadata, DefaultPreserveKeys())
		out2 := applyBytes(c, out1, testMetadata, DefaultPreserveKeys())
		c.Assert(out2, qt.DeepEquals, out1)
	})

	c.Run("Replaces text chunks", func(c *qt.C) {
		comment := pngTEXt("Comment", "Keep me")
		gamma := pngChunk("gAMA", []byte{0, 0, 0xb1, 0x8f})
		derivative := buildPNG(gamma, pngTEXt("Copyright", "Old"), comment, pngChunk("eXIf", testTIFF))
		out := applyBytes(c, derivative, NewMetadata(PNGTextData{"Copyright": {"New"}}), DefaultPreserveKeys())

		c.Assert(bytes.Contains(out, gamma), qt.IsTrue)
		c.Assert(bytes.Contains(out, comment), qt.IsTrue)
		c.Assert(bytes.Contains(out, []byte("Old")), qt.IsFalse)
		c.Assert(bytes.Contains(out, testTIFF), qt.IsFalse)

		m := parseBytes(c, out)
		c.Assert(m.PNG(), qt.DeepEquals, PNGTextData{"Copyright": {"New"}, "Comment": {"Keep me"}})
		c.Assert(m.EXIF(), qt.DeepEquals, EXIFData{exifIFD0: {"Copyright": "New"}})
	})

	c.Run("Trailing data", func(c *qt.C) {
		derivative := append(buildPNG(), "trailing"...)
		out := applyBytes(c, derivative, testMetadata, DefaultPreserveKeys())
		c.Assert(bytes.HasSuffix(out, []byte("trailing")), qt.IsTrue)
	})

	c.Run("Invalid text chunk is skipped", func(c *qt.C) {
		var w warnRecorder
		codec := New(Options{Warnf: w.warnf})
		m, err := codec.Parse(bytes.NewReader(buildPNG(pngChunk("zTXt", []byte("Comment\x00\x00garbage")), pngTEXt("Title", "T"))))
		c.Assert(err, qt.IsNil)
		c.Assert(m.PNG(), qt.DeepEquals, PNGTextData{"Title": {"T"}})
		c.Assert(w.warnings, qt.HasLen, 1)
	})
}

func TestPNGInvalid(t *testing.T) {
	c := qt.New(t)

	img := buildPNG(pngTEXt("Copyright", "PNG copyright"))

	for _, test := range []struct {
		name string
		b    []byte
	}{
		{"Truncated chunk", img[:len(pngSignature)+len(pngIHDR)+12]},
		{"Truncated chunk header", img[:len(pngSignature)+6]},
		{"Chunk length", append(append([]byte{}, pngSignature...), 0xff, 0xff, 0xff, 0xff, 'I', 'H', 'D', 'R')},
	} {
		c.Run(test.name, func(c *qt.C) {
			_, err := Parse(bytes.NewReader(test.b))
			c.Assert(IsInvalidFormat(err), qt.IsTrue, qt.Commentf("%v", err))

			err = ApplyCopyrightToStream(bytes.NewReader(test.b), &bytes.Buffer{}, testMetadata, DefaultPreserveKeys())
			c.Assert(IsInvalidFormat(err), qt.IsTrue, qt.Commentf("%v", err))
		})
	}

	c.Run("Missing IEND", func(c *qt.C) {
		b := append(append([]byte{}, pngSignature...), pngIHDR...)
		m, err := Parse(bytes.NewReader(b))
		c.Assert(err, qt.IsNil)
		c.Assert(m.IsEmpty(), qt.IsTrue)

		err = ApplyCopyrightToStream(bytes.NewReader(b), &bytes.Buffer{}, testMetadata, DefaultPreserveKeys())
		c.Assert(err, qt.ErrorMatches, ".*PNG: missing IEND chunk")
	})
}
