// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package imagecopyright reads and writes attribution metadata (copyright, creator,
// source, credit and title) in JPEG, PNG, GIF, WebP and ISOBMFF (AVIF, HEIC, JXL) images.
//
// The metadata can be stored as EXIF, IPTC, XMP, PNG text chunks or GIF comments.
// When writing, each format resolves its values through a fixed fallback chain over the
// other formats, so e.g. a copyright notice only stored in IPTC is also written to EXIF.
package imagecopyright

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// containerKind identifies an image container.
type containerKind int

const (
	containerJPEG containerKind = iota + 1
	containerPNG
	containerGIF
	containerWebP
	containerISOBMFF
)

func (k containerKind) String() string {
	switch k {
	case containerJPEG:
		return "JPEG"
	case containerPNG:
		return "PNG"
	case containerGIF:
		return "GIF"
	case containerWebP:
		return "WebP"
	case containerISOBMFF:
		return "ISOBMFF"
	default:
		return "unknown"
	}
}

// containerSignature is the magic bytes of a container and their offset in the file.
type containerSignature struct {
	kind   containerKind
	magic  []byte
	offset int
}

// containerSignatures is probed in order; the first match wins.
var containerSignatures = []containerSignature{
	{containerJPEG, []byte{0xff, 0xd8, 0xff}, 0},
	{containerPNG, pngSignature, 0},
	{containerGIF, []byte("GIF87a"), 0},
	{containerGIF, []byte("GIF89a"), 0},
	{containerWebP, []byte("WEBP"), 8},
	{containerISOBMFF, jxlContainerSignature, 0},
	{containerISOBMFF, []byte("ftypavif"), 4},
	{containerISOBMFF, []byte("ftypavis"), 4},
	{containerISOBMFF, []byte("ftypheic"), 4},
	{containerISOBMFF, []byte("ftypheix"), 4},
	{containerISOBMFF, []byte("ftyphevc"), 4},
	{containerISOBMFF, []byte("ftypheim"), 4},
	{containerISOBMFF, []byte("ftypheis"), 4},
	{containerISOBMFF, []byte("ftyphevm"), 4},
	{containerISOBMFF, []byte("ftyphevs"), 4},
	{containerISOBMFF, []byte("ftypmif1"), 4},
	{containerISOBMFF, []byte("ftypmsf1"), 4},
}

// 10 MB should be plenty for image metadata.
const defaultLimitPayloadSize = 10 * 1024 * 1024

// Options contains the options for a Codec.
type Options struct {
	// Warnf will be called for each warning, e.g. when an embedded
	// metadata payload could not be decoded and was skipped.
	Warnf func(string, ...any)

	// LimitPayloadSize is the maximum size in bytes of a single metadata payload.
	// Larger payloads are skipped with a warning.
	// Default value is 10 MB.
	LimitPayloadSize uint32
}

// Codec reads and writes image metadata.
// A Codec holds no per-call state and can be reused, but not concurrently
// on the same stream.
type Codec struct {
	opts Options
}

// New creates a new Codec with the given options.
func New(opts Options) *Codec {
	if opts.Warnf == nil {
		opts.Warnf = func(string, ...any) {}
	}
	if opts.LimitPayloadSize == 0 {
		opts.LimitPayloadSize = defaultLimitPayloadSize
	}
	return &Codec{opts: opts}
}

var defaultCodec = New(Options{})

// Parse reads the metadata of the image in r using the default options.
// See Codec.Parse.
func Parse(r io.ReadSeeker) (Metadata, error) {
	return defaultCodec.Parse(r)
}

// ParseFile reads the metadata of the image in filename using the default options.
// See Codec.ParseFile.
func ParseFile(filename string) (Metadata, error) {
	return defaultCodec.ParseFile(filename)
}

// ApplyCopyrightToStream writes the image in r with m applied to w using the default options.
// See Codec.ApplyCopyrightToStream.
func ApplyCopyrightToStream(r io.ReadSeeker, w io.Writer, m Metadata, keys PreserveKeys) error {
	return defaultCodec.ApplyCopyrightToStream(r, w, m, keys)
}

// Parse reads the metadata of the image in r, which must be positioned at the start of the image.
// An unrecognized image format is not an error and returns empty Metadata.
// Metadata payloads that cannot be decoded are skipped.
// A malformed container returns an error satisfying IsInvalidFormat.
func (c *Codec) Parse(r io.ReadSeeker) (Metadata, error) {
	if r == nil {
		return Metadata{}, errors.New("no reader provided")
	}

	kind, found, err := c.sniff(r)
	if err != nil || !found {
		return Metadata{}, err
	}

	base, err := c.newBaseImageCodec(r, kind)
	if err != nil {
		return Metadata{}, err
	}

	if err := base.run(base.dec.decode); err != nil {
		return Metadata{}, err
	}

	return base.metadata(), nil
}

// ParseFile reads the metadata of the image in filename.
// A file that cannot be opened returns empty Metadata.
func (c *Codec) ParseFile(filename string) (Metadata, error) {
	f, err := os.Open(filename)
	if err != nil {
		c.opts.Warnf("imagecopyright: open %q: %v", filename, err)
		return Metadata{}, nil
	}
	defer f.Close()

	return c.Parse(f)
}

// ApplyCopyrightToStream copies the image in r to w, replacing its metadata
// with the values resolved from m and filtered by keys.
// If m is empty or the image format is not recognized, r is copied verbatim.
// Bytes outside the rewritten metadata regions are copied unchanged.
func (c *Codec) ApplyCopyrightToStream(r io.ReadSeeker, w io.Writer, m Metadata, keys PreserveKeys) error {
	if r == nil {
		return errors.New("no reader provided")
	}
	if w == nil {
		return errors.New("no writer provided")
	}

	if m.IsEmpty() {
		_, err := io.Copy(w, r)
		return err
	}

	kind, found, err := c.sniff(r)
	if err != nil {
		return err
	}
	if !found {
		_, err := io.Copy(w, r)
		return err
	}

	base, err := c.newBaseImageCodec(r, kind)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if err := base.run(func() error {
		return base.dec.encode(bw, m, keys)
	}); err != nil {
		return err
	}

	return bw.Flush()
}

// sniff probes the container signatures.
// The stream is rewound by exactly the number of bytes read after each probe.
func (c *Codec) sniff(r io.ReadSeeker) (containerKind, bool, error) {
	var buf []byte
	for _, sig := range containerSignatures {
		n := sig.offset + len(sig.magic)
		if cap(buf) < n {
			buf = make([]byte, n)
		}
		buf = buf[:n]

		read, err := io.ReadFull(r, buf)
		if read > 0 {
			if _, serr := r.Seek(-int64(read), io.SeekCurrent); serr != nil {
				return 0, false, fmt.Errorf("%w: %w", ErrNotSeekable, serr)
			}
		}
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, false, err
		}
		if read == n && bytes.Equal(buf[sig.offset:], sig.magic) {
			return sig.kind, true, nil
		}
	}
	return 0, false, nil
}

// imageCodec is implemented by each container.
type imageCodec interface {
	// decode collects the metadata payloads in the image.
	decode() error

	// encode writes the image to w with the metadata from m applied.
	encode(w io.Writer, m Metadata, keys PreserveKeys) error
}

// baseImageCodec holds the state of a single Parse or ApplyCopyrightToStream call.
type baseImageCodec struct {
	*streamReader
	opts Options
	dec  imageCodec

	payloads map[Format]Payload
}

func (c *Codec) newBaseImageCodec(r io.ReadSeeker, kind containerKind) (*baseImageCodec, error) {
	rs, err := newBufferedReadSeeker(r)
	if err != nil {
		return nil, err
	}
	sr, err := newStreamReader(rs, binary.BigEndian)
	if err != nil {
		return nil, err
	}

	base := &baseImageCodec{
		streamReader: sr,
		opts:         c.opts,
		payloads:     make(map[Format]Payload),
	}

	switch kind {
	case containerJPEG:
		base.dec = &imageCodecJPEG{baseImageCodec: base}
	case containerPNG:
		base.dec = &imageCodecPNG{baseImageCodec: base}
	case containerGIF:
		base.byteOrder = binary.LittleEndian
		base.dec = &imageCodecGIF{baseImageCodec: base}
	case containerWebP:
		base.byteOrder = binary.LittleEndian
		base.dec = &imageCodecWebP{baseImageCodec: base}
	case containerISOBMFF:
		base.dec = &imageCodecISOBMFF{baseImageCodec: base}
	default:
		return nil, fmt.Errorf("unsupported container %s", kind)
	}

	return base, nil
}

// run calls f, converting panics raised by the streamReader to errors.
func (b *baseImageCodec) run(f func() error) (err error) {
	errFinal := func(err2 error) error {
		if err2 == nil {
			return nil
		}
		if isInvalidFormatErrorCandidate(err2) {
			err2 = newInvalidFormatError(err2)
		}
		return err2
	}

	defer func() {
		if r := recover(); r != nil {
			if r == errStop {
				err = b.readErr
				if err == nil {
					err = io.ErrUnexpectedEOF
				}
			} else if errp, ok := r.(error); ok {
				err = errp
			} else {
				err = fmt.Errorf("unknown panic: %v", r)
			}
		}
		err = errFinal(err)
	}()

	return f()
}

// readPayload reads a metadata payload of length bytes.
// If the payload exceeds the configured limit, it is skipped and nil is returned.
func (b *baseImageCodec) readPayload(what string, length int64) []byte {
	if length < 0 {
		panic(newInvalidFormatErrorf("negative %s length", what))
	}
	if length > int64(b.opts.LimitPayloadSize) {
		b.opts.Warnf("imagecopyright: %s payload of %d bytes exceeds limit %d, skipping", what, length, b.opts.LimitPayloadSize)
		b.skip(length)
		return nil
	}
	return b.readBytes(length)
}

// addPayload decodes data as the given format and stores the result.
// Undecodable payloads are reported through Warnf and otherwise ignored.
func (b *baseImageCodec) addPayload(f Format, data []byte) {
	if len(data) == 0 {
		return
	}

	p, err := decodePayload(f, data)
	if err != nil {
		b.opts.Warnf("imagecopyright: skipping invalid %s payload: %v", f, err)
		return
	}
	if p == nil || p.isEmpty() {
		return
	}

	existing, found := b.payloads[f]
	if !found {
		b.payloads[f] = p
		return
	}

	// Text chunks and comments may occur more than once; merge them.
	// For the other formats the first payload wins.
	switch existing := existing.(type) {
	case PNGTextData:
		for k, v := range p.(PNGTextData) {
			existing[k] = append(existing[k], v...)
		}
	case GIFCommentData:
		for k, v := range p.(GIFCommentData) {
			existing[k] = append(existing[k], v...)
		}
	}
}

func (b *baseImageCodec) metadata() Metadata {
	payloads := make([]Payload, 0, len(b.payloads))
	for _, p := range b.payloads {
		payloads = append(payloads, p)
	}
	return NewMetadata(payloads...)
}

// decodePayload decodes data as the given format.
func decodePayload(f Format, data []byte) (p Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			if errp, ok := r.(error); ok && errp != errStop {
				err = errp
			} else {
				err = fmt.Errorf("%s: unexpected end of data", f)
			}
		}
	}()

	switch f {
	case EXIF:
		return decodeEXIF(data)
	case IPTC:
		return decodeIPTC(data)
	case XMP:
		return decodeXMP(data)
	case PNG:
		return decodePNGText(data)
	case GIF:
		return decodeGIFComment(data)
	default:
		return nil, fmt.Errorf("unsupported format %s", f)
	}
}
