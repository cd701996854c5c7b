// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"bytes"
	"io"
)

const (
	gifImageDescriptor = 0x2c
	gifTrailer         = 0x3b

	gifHeaderLen = 6
	// Logical screen descriptor: width, height, packed fields, background color index, aspect ratio.
	gifLSDLen = 7
)

var (
	gifVersion87a = []byte("GIF87a")
	gifVersion89a = []byte("GIF89a")

	gifAppIDXMP = []byte("XMP DataXMP")

	// gifXMPTrailer is the "magic trailer" following XMP data in a GIF application extension.
	// It makes a sub-block reader that starts anywhere in the XMP data end up
	// at the final block terminator.
	gifXMPTrailer = func() []byte {
		b := make([]byte, 0, 258)
		b = append(b, 0x01)
		for i := 0xff; i >= 0; i-- {
			b = append(b, byte(i))
		}
		return append(b, 0x00)
	}()
)

type imageCodecGIF struct {
	*baseImageCodec
}

// colorTableSize returns the size in bytes of the color table described by packed.
func gifColorTableSize(packed uint8) int64 {
	if packed&0x80 == 0 {
		return 0
	}
	return 3 * int64(1<<((packed&0x07)+1))
}

// readSubBlocks reads data sub-blocks including the size bytes and the block terminator.
// Returns nil if the data exceeds the payload limit.
func (e *imageCodecGIF) readSubBlocks() []byte {
	var b []byte
	for {
		n := e.read1()
		if e.isEOF {
			panic(newInvalidFormatErrorf("GIF: truncated data sub-blocks"))
		}
		b = append(b, n)
		if n == 0 {
			break
		}
		b = append(b, e.readBytes(int64(n))...)
		if len(b) > int(e.opts.LimitPayloadSize) {
			e.opts.Warnf("imagecopyright: GIF extension exceeds limit %d, skipping", e.opts.LimitPayloadSize)
			e.skipSubBlocks()
			return nil
		}
	}
	return b
}

func (e *imageCodecGIF) skipSubBlocks() {
	for {
		n := e.read1()
		if e.isEOF {
			panic(newInvalidFormatErrorf("GIF: truncated data sub-blocks"))
		}
		if n == 0 {
			return
		}
		e.skip(int64(n))
	}
}

func (e *imageCodecGIF) copySubBlocks(w io.Writer) {
	for {
		n := e.read1()
		if e.isEOF {
			panic(newInvalidFormatErrorf("GIF: truncated data sub-blocks"))
		}
		e.write(w, []byte{n})
		if n == 0 {
			return
		}
		e.copyN(w, int64(n))
	}
}

// readHeader reads the header and the logical screen descriptor and returns them
// together with the global color table size.
func (e *imageCodecGIF) readHeader() (header, lsd []byte, gctSize int64) {
	header = e.readBytes(gifHeaderLen)
	lsd = e.readBytes(gifLSDLen)
	return header, lsd, gifColorTableSize(lsd[4])
}

// skipImage skips an image descriptor, its local color table and the image data.
func (e *imageCodecGIF) skipImage() {
	// Left, top, width and height.
	e.skip(8)
	packed := e.read1()
	e.skip(gifColorTableSize(packed))
	// LZW minimum code size.
	e.skip(1)
	e.skipSubBlocks()
}

func (e *imageCodecGIF) decode() error {
	_, _, gctSize := e.readHeader()
	e.skip(gctSize)

	for {
		b := e.read1()
		if e.isEOF {
			return nil
		}

		switch b {
		case gifTrailer:
			return nil
		case gifImageDescriptor:
			e.skipImage()
		case gifExtensionIntroducer:
			switch label := e.read1(); label {
			case gifCommentLabel:
				e.addPayload(GIF, e.readSubBlocks())
			case gifApplicationLabel:
				id := e.readBytes(int64(e.read1()))
				if !bytes.Equal(id, gifAppIDXMP) {
					e.skipSubBlocks()
					continue
				}
				e.handleXMP(e.readSubBlocks())
			default:
				e.skipSubBlocks()
			}
		default:
			return newInvalidFormatErrorf("GIF: unknown block introducer 0x%02x", b)
		}
	}
}

// handleXMP extracts the XMP from the raw application data.
// The XMP is stored as is, so reading it as sub-blocks yields the XMP
// followed by the magic trailer.
func (e *imageCodecGIF) handleXMP(b []byte) {
	if b == nil {
		return
	}
	if !bytes.HasSuffix(b, gifXMPTrailer) {
		e.opts.Warnf("imagecopyright: skipping GIF XMP without magic trailer")
		return
	}
	e.addPayload(XMP, b[:len(b)-len(gifXMPTrailer)])
}

func (e *imageCodecGIF) encode(w io.Writer, m Metadata, keys PreserveKeys) error {
	comments := serializeGIFComment(m, keys.GIF)
	xmp := serializeXMP(m, keys.XMP, e.opts.Warnf)

	var extensions bytes.Buffer
	extensions.Write(comments)
	if len(xmp) > 0 {
		extensions.Write([]byte{gifExtensionIntroducer, gifApplicationLabel, byte(len(gifAppIDXMP))})
		extensions.Write(gifAppIDXMP)
		extensions.Write(xmp)
		extensions.Write(gifXMPTrailer)
	}

	header, lsd, gctSize := e.readHeader()
	if extensions.Len() > 0 && bytes.Equal(header, gifVersion87a) {
		// Extensions require GIF89a.
		header = gifVersion89a
	}
	e.write(w, header)
	e.write(w, lsd)
	e.copyN(w, gctSize)

	for {
		b := e.read1()
		if e.isEOF {
			return newInvalidFormatErrorf("GIF: missing trailer")
		}

		switch b {
		case gifImageDescriptor, gifTrailer:
			e.write(w, extensions.Bytes())
			e.write(w, []byte{b})
			e.copyRest(w)
			return nil
		case gifExtensionIntroducer:
			label := e.read1()
			switch label {
			case gifCommentLabel:
				if len(comments) > 0 {
					e.skipSubBlocks()
					continue
				}
				e.write(w, []byte{b, label})
			case gifApplicationLabel:
				size := e.read1()
				id := e.readBytes(int64(size))
				if len(xmp) > 0 && bytes.Equal(id, gifAppIDXMP) {
					e.skipSubBlocks()
					continue
				}
				e.write(w, []byte{b, label, size})
				e.write(w, id)
			default:
				e.write(w, []byte{b, label})
			}
			e.copySubBlocks(w)
		default:
			return newInvalidFormatErrorf("GIF: unknown block introducer 0x%02x", b)
		}
	}
}
