// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestStringer(t *testing.T) {
	c := qt.New(t)

	var format Format
	var format42 Format = 42
	c.Assert(EXIF.String(), qt.Equals, "EXIF")
	c.Assert(IPTC.String(), qt.Equals, "IPTC")
	c.Assert(XMP.String(), qt.Equals, "XMP")
	c.Assert(PNG.String(), qt.Equals, "PNG")
	c.Assert(GIF.String(), qt.Equals, "GIF")
	c.Assert(format.String(), qt.Equals, "Format(0)")
	c.Assert(format42.String(), qt.Equals, "Format(42)")

	var kind containerKind
	c.Assert(containerJPEG.String(), qt.Equals, "JPEG")
	c.Assert(containerWebP.String(), qt.Equals, "WebP")
	c.Assert(containerISOBMFF.String(), qt.Equals, "ISOBMFF")
	c.Assert(kind.String(), qt.Equals, "unknown")

	c.Assert(attrCopyright.String(), qt.Equals, "copyright")
	c.Assert(attrTitle.String(), qt.Equals, "title")
	c.Assert(fccXML.String(), qt.Equals, "xml ")
}

func BenchmarkPrintableString(b *testing.B) {
	runBench := func(b *testing.B, name, s string) {
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = printableString(s)
			}
		})
	}

	runBench(b, "ASCII", "Hello, World!")
	runBench(b, "ASCII with whitespace", "   Hello, World!   ")
	runBench(b, "UTF-8", "Hello, 世界!")
	runBench(b, "Unprintable", "Hello, \x00World!")
}

func TestRat(t *testing.T) {
	c := qt.New(t)

	c.Assert(rat[uint32]{num: 1, den: 2}.String(), qt.Equals, "1/2")
	c.Assert(rat[uint32]{num: 72, den: 1}.String(), qt.Equals, "72")
	c.Assert(rat[int32]{num: -1, den: 3}.String(), qt.Equals, "-1/3")
}

func TestPrintableString(t *testing.T) {
	c := qt.New(t)

	c.Assert(printableString("  Hello, \x00World!\x07 "), qt.Equals, "Hello, World!")
	c.Assert(printableString("© 2024"), qt.Equals, "© 2024")
}

func TestTrimBytesNulls(t *testing.T) {
	c := qt.New(t)

	c.Assert(string(trimBytesNulls([]byte("\x00\x00abc\x00"))), qt.Equals, "abc")
	c.Assert(string(trimBytesNulls([]byte("a\x00b"))), qt.Equals, "a\x00b")
	c.Assert(trimBytesNulls([]byte("\x00\x00")), qt.IsNil)
	c.Assert(trimBytesNulls(nil), qt.IsNil)
}

func TestToValidUTF8(t *testing.T) {
	c := qt.New(t)

	c.Run("Valid", func(c *qt.C) {
		c.Assert(toValidUTF8("© Jane Doe"), qt.Equals, "© Jane Doe")
	})

	c.Run("NUL", func(c *qt.C) {
		c.Assert(toValidUTF8("a\x00b"), qt.Equals, "a�b")
	})

	c.Run("Invalid sequence", func(c *qt.C) {
		c.Assert(toValidUTF8("a\xffb"), qt.Equals, "a�b")
	})
}

func TestDecodeText(t *testing.T) {
	c := qt.New(t)

	c.Assert(decodeText([]byte("Jøran")), qt.Equals, "Jøran")
	// ISO-8859-1.
	c.Assert(decodeText([]byte("J\xf8ran \xa9")), qt.Equals, "Jøran ©")
}

func TestTruncateUTF8(t *testing.T) {
	c := qt.New(t)

	c.Assert(truncateUTF8("abc", 5), qt.Equals, "abc")
	c.Assert(truncateUTF8("abcdef", 3), qt.Equals, "abc")
	// "ø" is 2 bytes and must not be split.
	c.Assert(truncateUTF8("abø", 3), qt.Equals, "ab")
	c.Assert(truncateUTF8("abø", 4), qt.Equals, "abø")
	c.Assert(truncateUTF8("世界", 4), qt.Equals, "世")
	c.Assert(truncateUTF8("a"+strings.Repeat("©", 132), 128), qt.HasLen, 127)
	c.Assert(truncateUTF8(strings.Repeat("©", 132), 128), qt.HasLen, 128)
}

func TestNonEmpty(t *testing.T) {
	c := qt.New(t)

	c.Assert(nonEmpty(" a ", "", "  ", "b"), qt.DeepEquals, []string{"a", "b"})
	c.Assert(nonEmpty("", " "), qt.IsNil)
}
