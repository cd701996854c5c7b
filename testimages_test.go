// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"bytes"
	"encoding/binary"
	"fmt"

	qt "github.com/frankban/quicktest"
)

// Builders for small, structurally valid images.

// jpegScan is the entropy-coded data and EOI of the test JPEGs.
var jpegScan = []byte{
	0xff, markerSOS, 0x00, 0x08, 0x01, 0x01, 0x00, 0x00, 0x3f, 0x00,
	0x12, 0x34, 0xff, 0x00, 0x56, 0xff, 0xd0, 0x78,
	0xff, markerEOI,
}

func jpegSegment(code uint8, payload ...[]byte) []byte {
	data := bytes.Join(payload, nil)
	b := []byte{0xff, code}
	b = binary.BigEndian.AppendUint16(b, uint16(len(data)+2))
	return append(b, data...)
}

func buildJPEG(segments ...[]byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, markerSOI})
	buf.Write(jpegSegment(0xe0, []byte("JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")))
	for _, s := range segments {
		buf.Write(s)
	}
	// DQT and SOF0.
	buf.Write(jpegSegment(0xdb, make([]byte, 65)))
	buf.Write(jpegSegment(0xc0, []byte{0x08, 0x00, 0x01, 0x00, 0x01, 0x01, 0x01, 0x11, 0x00}))
	buf.Write(jpegScan)
	return buf.Bytes()
}

func jpegEXIFSegment(tiff []byte) []byte {
	return jpegSegment(markerAPP1, exifPrefix, tiff)
}

func jpegXMPSegment(xmp string) []byte {
	return jpegSegment(markerAPP1, markerXMP, []byte(xmp))
}

func jpegIPTCSegment(irb []byte) []byte {
	return jpegSegment(markerAPP13, photoshopPrefix, irb)
}

var (
	pngIHDR = pngChunk("IHDR", []byte{0, 0, 0, 1, 0, 0, 0, 1, 8, 0, 0, 0, 0})
	pngIDAT = pngChunk("IDAT", []byte{0x78, 0x9c, 0x62, 0x60, 0x00, 0x00, 0x00, 0x02, 0x00, 0x01})
	pngIEND = pngChunk("IEND", nil)
)

func pngChunk(typ string, data []byte) []byte {
	var t fourCC
	copy(t[:], typ)
	var buf bytes.Buffer
	writePNGChunk(&buf, t, data)
	return buf.Bytes()
}

func pngTEXt(keyword, text string) []byte {
	return pngChunk("tEXt", []byte(keyword+"\x00"+text))
}

func buildPNG(chunks ...[]byte) []byte {
	var buf bytes.Buffer
	buf.Write(pngSignature)
	buf.Write(pngIHDR)
	for _, c := range chunks {
		buf.Write(c)
	}
	buf.Write(pngIDAT)
	buf.Write(pngIEND)
	return buf.Bytes()
}

// gifImage is an image descriptor without local color table followed by its data and the trailer.
var gifImage = []byte{
	gifImageDescriptor, 0, 0, 0, 0, 1, 0, 1, 0, 0x00,
	0x02, 0x02, 0x4c, 0x01, 0x00,
	gifTrailer,
}

func gifCommentExtension(text string) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{gifExtensionIntroducer, gifCommentLabel})
	writeGIFSubBlocks(&buf, []byte(text))
	return buf.Bytes()
}

func gifXMPExtension(xmp string) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{gifExtensionIntroducer, gifApplicationLabel, byte(len(gifAppIDXMP))})
	buf.Write(gifAppIDXMP)
	buf.WriteString(xmp)
	buf.Write(gifXMPTrailer)
	return buf.Bytes()
}

// gifGraphicControlExtension is left alone by the codec.
var gifGraphicControlExtension = []byte{gifExtensionIntroducer, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00}

func buildGIF(version string, extensions ...[]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(version)
	// 1x1 canvas with a global color table of 2 entries.
	buf.Write([]byte{1, 0, 1, 0, 0x80, 0, 0})
	buf.Write([]byte{0, 0, 0, 0xff, 0xff, 0xff})
	for _, e := range extensions {
		buf.Write(e)
	}
	buf.Write(gifImage)
	return buf.Bytes()
}

func webpChunkBytes(id string, data []byte) []byte {
	b := []byte(id)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(data)))
	b = append(b, data...)
	if len(data)%2 != 0 {
		b = append(b, 0)
	}
	return b
}

// webpVP8L returns a lossless bitstream header for a w x h image.
// The length is odd to exercise chunk padding.
func webpVP8L(w, h uint32, alpha bool) []byte {
	bits := (w - 1) | (h-1)<<14
	if alpha {
		bits |= 1 << 28
	}
	b := []byte{0x2f}
	b = binary.LittleEndian.AppendUint32(b, bits)
	return append(b, 0x00, 0x01)
}

// webpVP8 returns a lossy key frame header for a w x h image.
func webpVP8(w, h uint16) []byte {
	b := []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}
	b = binary.LittleEndian.AppendUint16(b, w)
	b = binary.LittleEndian.AppendUint16(b, h)
	return append(b, 0xaa, 0xbb)
}

func webpVP8X(flags byte, w, h uint32) []byte {
	b := make([]byte, webpVP8XLen)
	b[0] = flags
	putUint24(b[4:], w-1)
	putUint24(b[7:], h-1)
	return b
}

func buildWebP(chunks ...[]byte) []byte {
	payload := bytes.Join(chunks, nil)
	b := []byte("RIFF")
	b = binary.LittleEndian.AppendUint32(b, uint32(4+len(payload)))
	b = append(b, "WEBP"...)
	return append(b, payload...)
}

func isoBox(typ string, payload ...[]byte) []byte {
	data := bytes.Join(payload, nil)
	b := binary.BigEndian.AppendUint32(nil, uint32(8+len(data)))
	b = append(b, typ...)
	return append(b, data...)
}

func isoFullBox(typ string, version uint8, payload ...[]byte) []byte {
	return isoBox(typ, append([]byte{version, 0, 0, 0}, bytes.Join(payload, nil)...))
}

func be16(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }
func be32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

// buildHEIF returns an AVIF file with an Exif item and an XMP item.
// The items are stored in the idat box if inIdat is set, else in mdat.
func buildHEIF(tiff []byte, xmp string, inIdat bool) []byte {
	// Exif items start with the offset to the TIFF header.
	exifItem := append(be32(uint32(len(exifPrefix))), exifPrefix...)
	exifItem = append(exifItem, tiff...)
	xmpItem := []byte(xmp)

	ftyp := isoBox("ftyp", []byte("avif"), be32(0), []byte("mif1avifmiaf"))

	infe := func(id uint16, typ, contentType string) []byte {
		b := append(be16(id), be16(0)...)
		b = append(b, typ...)
		b = append(b, 0)
		if contentType != "" {
			b = append(b, contentType...)
			b = append(b, 0)
		}
		return isoFullBox("infe", 2, b)
	}

	meta := func(exifOffset, xmpOffset uint32) []byte {
		var method uint16
		if inIdat {
			method = 1
		}
		item := func(id uint16, offset, length uint32) []byte {
			b := append(be16(id), be16(method)...)
			b = append(b, be16(0)...) // data reference index
			b = append(b, be16(1)...) // extent count
			b = append(b, be32(offset)...)
			return append(b, be32(length)...)
		}
		iloc := isoFullBox("iloc", 1,
			[]byte{0x44, 0x00}, be16(2),
			item(1, exifOffset, uint32(len(exifItem))),
			item(2, xmpOffset, uint32(len(xmpItem))),
		)
		iinf := isoFullBox("iinf", 0, be16(3),
			infe(1, "Exif", ""),
			infe(2, "mime", mimeTypeXMP),
			infe(3, "av01", ""),
		)
		hdlr := isoFullBox("hdlr", 0, be32(0), []byte("pict"), make([]byte, 12), []byte{0})
		children := [][]byte{hdlr, iinf, iloc}
		if inIdat {
			children = append(children, isoBox("idat", exifItem, xmpItem))
		}
		return isoFullBox("meta", 0, children...)
	}

	if inIdat {
		return bytes.Join([][]byte{ftyp, meta(0, uint32(len(exifItem)))}, nil)
	}

	// The box sizes do not depend on the offsets.
	mdatData := uint32(len(ftyp) + len(meta(0, 0)) + 8)
	mdat := isoBox("mdat", exifItem, xmpItem, []byte{0xde, 0xad})
	return bytes.Join([][]byte{ftyp, meta(mdatData, mdatData+uint32(len(exifItem))), mdat}, nil)
}

// buildJXL returns a JPEG XL container with Exif and xml boxes.
func buildJXL(tiff []byte, xmp string) []byte {
	return bytes.Join([][]byte{
		jxlContainerSignature,
		isoBox("ftyp", []byte("jxl "), be32(0), []byte("jxl ")),
		isoBox("jxlc", []byte{0xff, 0x0a, 0x01, 0x02}),
		isoBox("Exif", be32(0), tiff),
		isoBox("xml ", []byte(xmp)),
	}, nil)
}

// tiffEntry is an IFD entry with its raw value.
type tiffEntry struct {
	tag   uint16
	typ   exifType
	count uint32
	value []byte
}

func tiffASCII(tag uint16, s string) tiffEntry {
	return tiffEntry{tag: tag, typ: exifTypeASCII, count: uint32(len(s) + 1), value: append([]byte(s), 0)}
}

// buildTIFF returns a TIFF structure with a single IFD holding entries.
func buildTIFF(bo interface {
	binary.ByteOrder
	binary.AppendByteOrder
}, entries ...tiffEntry,
) []byte {
	var b []byte
	if bo == binary.BigEndian {
		b = append(b, "MM"...)
	} else {
		b = append(b, "II"...)
	}
	b = bo.AppendUint16(b, 42)
	b = bo.AppendUint32(b, 8)
	b = bo.AppendUint16(b, uint16(len(entries)))

	dataOffset := 8 + 2 + 12*len(entries) + 4
	var data []byte
	for _, e := range entries {
		b = bo.AppendUint16(b, e.tag)
		b = bo.AppendUint16(b, uint16(e.typ))
		b = bo.AppendUint32(b, e.count)
		if len(e.value) <= 4 {
			var inline [4]byte
			copy(inline[:], e.value)
			b = append(b, inline[:]...)
			continue
		}
		b = bo.AppendUint32(b, uint32(dataOffset+len(data)))
		data = append(data, e.value...)
	}
	b = bo.AppendUint32(b, 0)
	return append(b, data...)
}

const testXMP = `<?xpacket begin="` + "\ufeff" + `" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about=""
    xmlns:dc="http://purl.org/dc/elements/1.1/"
    xmlns:photoshop="http://ns.adobe.com/photoshop/1.0/"
    xmlns:xmp="http://ns.adobe.com/xap/1.0/"
    photoshop:Credit="Credit Line"
    xmp:CreatorTool="Darktable">
   <dc:rights>
    <rdf:Alt>
     <rdf:li xml:lang="x-default">© 2024 Jane Doe</rdf:li>
    </rdf:Alt>
   </dc:rights>
   <dc:creator>
    <rdf:Seq>
     <rdf:li>Jane Doe</rdf:li>
     <rdf:li>John Roe</rdf:li>
    </rdf:Seq>
   </dc:creator>
   <photoshop:Source>Agency</photoshop:Source>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`

// testXMPData is testXMP decoded.
var testXMPData = XMPData{
	nsDC: {
		"rights":  {"© 2024 Jane Doe"},
		"creator": {"Jane Doe", "John Roe"},
	},
	nsPhotoshop: {
		"Credit": {"Credit Line"},
		"Source": {"Agency"},
	},
	nsXMP: {
		"CreatorTool": {"Darktable"},
	},
}

// testTIFF holds Copyright, Artist and Make in IFD0.
var testTIFF = buildTIFF(binary.BigEndian,
	tiffASCII(0x10f, "Canon"),
	tiffASCII(0x13b, "Jane Doe"),
	tiffASCII(0x8298, "© 2024 Jane Doe"),
)

var testEXIFData = EXIFData{
	exifIFD0: {
		"Make":      "Canon",
		"Artist":    "Jane Doe",
		"Copyright": "© 2024 Jane Doe",
	},
}

// warnRecorder collects warnings.
type warnRecorder struct {
	warnings []string
}

func (w *warnRecorder) warnf(format string, args ...any) {
	w.warnings = append(w.warnings, fmt.Sprintf(format, args...))
}

// testMetadata is the metadata of a typical camera image edited in a DAM.
var testMetadata = NewMetadata(testEXIFData, testXMPData)

// Expected payloads after applying testMetadata with the default keys.
var (
	appliedEXIF = EXIFData{
		exifIFD0: {"Copyright": "© 2024 Jane Doe", "Artist": "Jane Doe"},
	}
	appliedXMP = XMPData{
		nsDC:        {"rights": {"© 2024 Jane Doe"}, "creator": {"Jane Doe", "John Roe"}},
		nsPhotoshop: {"Source": {"Agency"}, "Credit": {"Credit Line"}},
	}
	appliedIPTC = IPTCData{
		iptcKeyCopyright: {"© 2024 Jane Doe"},
		iptcKeyByline:    {"Jane Doe", "John Roe"},
		iptcKeySource:    {"Agency"},
		iptcKeyCredit:    {"Credit Line"},
	}
	appliedPNG = PNGTextData{
		"Copyright": {"© 2024 Jane Doe"},
		"Author":    {"Jane Doe", "John Roe"},
	}
	appliedGIF = GIFCommentData{
		gifCommentKey: {"© 2024 Jane Doe"},
	}
)

func parseBytes(c *qt.C, img []byte) Metadata {
	c.Helper()
	m, err := Parse(bytes.NewReader(img))
	c.Assert(err, qt.IsNil)
	return m
}

func applyBytes(c *qt.C, img []byte, m Metadata, keys PreserveKeys) []byte {
	c.Helper()
	var buf bytes.Buffer
	c.Assert(ApplyCopyrightToStream(bytes.NewReader(img), &buf, m, keys), qt.IsNil)
	return buf.Bytes()
}
