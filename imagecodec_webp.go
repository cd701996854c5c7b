// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"bytes"
	"encoding/binary"
	"io"

	"golang.org/x/image/riff"
)

var (
	fccRIFF = fourCC{'R', 'I', 'F', 'F'}
	fccWEBP = fourCC{'W', 'E', 'B', 'P'}
	fccVP8  = fourCC{'V', 'P', '8', ' '}
	fccVP8L = fourCC{'V', 'P', '8', 'L'}
	fccVP8X = fourCC{'V', 'P', '8', 'X'}
	fccEXIF = fourCC{'E', 'X', 'I', 'F'}
	fccXMP  = fourCC{'X', 'M', 'P', ' '}
)

const (
	webpFlagXMP   = 0x04
	webpFlagEXIF  = 0x08
	webpFlagAlpha = 0x10

	webpVP8XLen = 10
)

type imageCodecWebP struct {
	*baseImageCodec
}

func (e *imageCodecWebP) decode() error {
	formType, r, err := riff.NewReader(e.r)
	if err != nil {
		return newInvalidFormatError(err)
	}
	if fourCC(formType) != fccWEBP {
		return newInvalidFormatErrorf("WebP: unexpected form type %q", formType[:])
	}

	for {
		chunkID, chunkLen, chunkData, err := r.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return newInvalidFormatError(err)
		}

		var f Format
		switch fourCC(chunkID) {
		case fccEXIF:
			f = EXIF
		case fccXMP:
			f = XMP
		default:
			// Unread chunk data is skipped by Next.
			continue
		}

		if chunkLen > e.opts.LimitPayloadSize {
			e.opts.Warnf("imagecopyright: WebP %s chunk of %d bytes exceeds limit %d, skipping", f, chunkLen, e.opts.LimitPayloadSize)
			continue
		}

		b, err := io.ReadAll(chunkData)
		if err != nil {
			return newInvalidFormatError(err)
		}
		e.addPayload(f, b)
	}
}

// webpChunk is the location of a chunk in the source file.
type webpChunk struct {
	id     fourCC
	offset int64 // Offset of the chunk header.
	size   uint32
}

// paddedSize returns the size of the chunk including header and padding.
func (c webpChunk) paddedSize() int64 {
	return 8 + int64(c.size) + int64(c.size&1)
}

// readChunks reads the chunk headers of the RIFF payload.
func (e *imageCodecWebP) readChunks(end int64) []webpChunk {
	var chunks []webpChunk
	for e.pos()+8 <= end {
		offset := e.pos()
		id := e.readFourCC()
		size := e.read4()
		if e.isEOF {
			break
		}
		c := webpChunk{id: id, offset: offset, size: size}
		if offset+c.paddedSize() > end {
			if offset+8+int64(size) > end {
				panic(newInvalidFormatErrorf("WebP: chunk %s exceeds the RIFF payload", id))
			}
			// Missing padding byte on the last chunk.
		}
		chunks = append(chunks, c)
		e.seek(offset + c.paddedSize())
	}
	return chunks
}

func (e *imageCodecWebP) encode(w io.Writer, m Metadata, keys PreserveKeys) error {
	exif, err := serializeEXIF(m, keys.EXIF, e.opts.Warnf)
	if err != nil {
		return err
	}
	xmp := serializeXMP(m, keys.XMP, e.opts.Warnf)

	if id := e.readFourCC(); id != fccRIFF {
		return newInvalidFormatErrorf("WebP: missing RIFF header")
	}
	riffSize := e.read4()
	if id := e.readFourCC(); id != fccWEBP {
		return newInvalidFormatErrorf("WebP: missing WEBP form type")
	}

	end := 8 + int64(riffSize)
	chunks := e.readChunks(end)
	if len(chunks) == 0 {
		return newInvalidFormatErrorf("WebP: no chunks")
	}

	var (
		kept     []webpChunk
		hasEXIF  bool
		hasXMP   bool
		vp8x     []byte
		payloads int64
	)
	for _, c := range chunks {
		switch c.id {
		case fccEXIF:
			if len(exif) > 0 {
				continue
			}
			hasEXIF = true
		case fccXMP:
			if len(xmp) > 0 {
				continue
			}
			hasXMP = true
		case fccVP8X:
			if c.size < webpVP8XLen {
				return newInvalidFormatErrorf("WebP: VP8X chunk too short")
			}
			e.seek(c.offset + 8)
			vp8x = e.readBytes(int64(c.size))
		}
		kept = append(kept, c)
		payloads += c.paddedSize()
	}

	if vp8x == nil && (len(exif) > 0 || len(xmp) > 0) {
		// A simple file format (lossy or lossless) needs the extended header to carry metadata.
		vp8x = e.synthesizeVP8X(chunks[0])
		payloads += 8 + webpVP8XLen
	}

	if vp8x != nil {
		vp8x[0] &^= webpFlagEXIF | webpFlagXMP
		if hasEXIF || len(exif) > 0 {
			vp8x[0] |= webpFlagEXIF
		}
		if hasXMP || len(xmp) > 0 {
			vp8x[0] |= webpFlagXMP
		}
	}

	appendChunk := func(buf *bytes.Buffer, id fourCC, data []byte) {
		buf.Write(id[:])
		buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(data))))
		buf.Write(data)
		if len(data)%2 != 0 {
			buf.WriteByte(0)
		}
	}

	var trailing bytes.Buffer
	if len(exif) > 0 {
		appendChunk(&trailing, fccEXIF, exif)
	}
	if len(xmp) > 0 {
		appendChunk(&trailing, fccXMP, xmp)
	}

	newSize := 4 + payloads + int64(trailing.Len())
	if newSize > 0xffffffff {
		return newInvalidFormatErrorf("WebP: file too large")
	}

	var header bytes.Buffer
	header.Write(fccRIFF[:])
	header.Write(binary.LittleEndian.AppendUint32(nil, uint32(newSize)))
	header.Write(fccWEBP[:])
	e.write(w, header.Bytes())

	if vp8x != nil && (len(kept) == 0 || kept[0].id != fccVP8X) {
		var b bytes.Buffer
		appendChunk(&b, fccVP8X, vp8x)
		e.write(w, b.Bytes())
	}

	for _, c := range kept {
		if c.id == fccVP8X {
			var b bytes.Buffer
			appendChunk(&b, fccVP8X, vp8x)
			e.write(w, b.Bytes())
			continue
		}
		e.seek(c.offset)
		n := c.paddedSize()
		if c.offset+n > end {
			// Add the missing padding byte.
			e.copyN(w, n-1)
			e.write(w, []byte{0})
			continue
		}
		e.copyN(w, n)
	}

	e.write(w, trailing.Bytes())

	// Keep anything after the RIFF payload.
	e.seek(end)
	e.copyRest(w)

	return nil
}

// synthesizeVP8X creates the VP8X payload for a simple format file,
// reading the canvas size from the VP8 or VP8L bitstream header.
func (e *imageCodecWebP) synthesizeVP8X(c webpChunk) []byte {
	var (
		width, height uint32
		flags         byte
	)

	e.seek(c.offset + 8)

	switch c.id {
	case fccVP8:
		// 3 bytes frame tag, 3 bytes start code, then 14 bit width and height.
		if c.size < 10 {
			panic(newInvalidFormatErrorf("WebP: VP8 chunk too short"))
		}
		b := e.readBytes(10)
		if !bytes.Equal(b[3:6], []byte{0x9d, 0x01, 0x2a}) {
			panic(newInvalidFormatErrorf("WebP: invalid VP8 start code"))
		}
		width = uint32(binary.LittleEndian.Uint16(b[6:])) & 0x3fff
		height = uint32(binary.LittleEndian.Uint16(b[8:])) & 0x3fff
	case fccVP8L:
		// Signature byte, then 14 bits width-1, 14 bits height-1 and the alpha bit.
		if c.size < 5 {
			panic(newInvalidFormatErrorf("WebP: VP8L chunk too short"))
		}
		b := e.readBytes(5)
		if b[0] != 0x2f {
			panic(newInvalidFormatErrorf("WebP: invalid VP8L signature"))
		}
		bits := binary.LittleEndian.Uint32(b[1:])
		width = bits&0x3fff + 1
		height = (bits>>14)&0x3fff + 1
		if bits&(1<<28) != 0 {
			flags |= webpFlagAlpha
		}
	default:
		panic(newInvalidFormatErrorf("WebP: unknown image chunk %s", c.id))
	}

	if width == 0 || height == 0 {
		panic(newInvalidFormatErrorf("WebP: invalid canvas size %dx%d", width, height))
	}

	b := make([]byte, webpVP8XLen)
	b[0] = flags
	putUint24(b[4:], width-1)
	putUint24(b[7:], height-1)
	return b
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}
