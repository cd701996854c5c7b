// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

type fourCC [4]byte

func (f fourCC) String() string {
	return string(f[:])
}

// streamReader is a wrapper around a ReadSeeker that provides methods to read binary data.
// All positions are relative to the stream position the reader was created at,
// which is the start of the image.
// Note that this is not thread safe.
type streamReader struct {
	r         io.ReadSeeker
	byteOrder binary.ByteOrder

	buf []byte

	// The absolute stream offset of the image start.
	base int64

	isEOF   bool
	readErr error
}

func newStreamReader(r io.ReadSeeker, byteOrder binary.ByteOrder) (*streamReader, error) {
	base, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	return &streamReader{
		r:         r,
		byteOrder: byteOrder,
		base:      base,
	}, nil
}

func (e *streamReader) allocateBuf(length int) {
	if length > cap(e.buf) {
		e.buf = make([]byte, length)
	}
}

func (e *streamReader) pos() int64 {
	n, err := e.r.Seek(0, io.SeekCurrent)
	if err != nil {
		e.stop(err)
	}
	return n - e.base
}

func (e *streamReader) read1() uint8 {
	const n = 1
	e.readNIntoBuf(n)
	return e.buf[0]
}

func (e *streamReader) read2() uint16 {
	const n = 2
	e.readNIntoBuf(n)
	return e.byteOrder.Uint16(e.buf[:n])
}

func (e *streamReader) read4() uint32 {
	const n = 4
	e.readNIntoBuf(n)
	return e.byteOrder.Uint32(e.buf[:n])
}

func (e *streamReader) read8() uint64 {
	const n = 8
	e.readNIntoBuf(n)
	return e.byteOrder.Uint64(e.buf[:n])
}

// readVarUint reads n bytes as an unsigned integer.
// n must be 0, 1, 2, 4 or 8. Returns 0 for n == 0.
func (e *streamReader) readVarUint(n int) uint64 {
	switch n {
	case 0:
		return 0
	case 1:
		return uint64(e.read1())
	case 2:
		return uint64(e.read2())
	case 4:
		return uint64(e.read4())
	case 8:
		return e.read8()
	default:
		panic(newInvalidFormatErrorf("unsupported field size: %d", n))
	}
}

func (e *streamReader) readFourCC() fourCC {
	var f fourCC
	e.readNIntoBuf(4)
	copy(f[:], e.buf[:4])
	return f
}

// readBytes reads n bytes into a newly allocated slice.
func (e *streamReader) readBytes(n int64) []byte {
	if n < 0 {
		panic(newInvalidFormatErrorf("negative length"))
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(e.r, b); err != nil {
		e.stop(noSilentEOF(err))
	}
	return b
}

// readBytesVolatile reads a slice of bytes from the stream
// which is not guaranteed to be valid after the next read.
func (e *streamReader) readBytesVolatile(n int) []byte {
	e.readNIntoBuf(n)
	return e.buf[:n]
}

// readNullTerminatedBytes reads a slice of bytes from the stream
// until a null byte is encountered or end is reached.
// The null byte is consumed but not returned.
func (e *streamReader) readNullTerminatedBytes(end int64) []byte {
	var b []byte
	for e.pos() < end {
		c := e.read1()
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return b
}

func (e *streamReader) readNIntoBuf(n int) {
	if err := e.readNIntoBufE(n); err != nil {
		e.stop(err)
	}
}

func (e *streamReader) readNIntoBufE(n int) error {
	e.allocateBuf(n)
	n2, err := io.ReadFull(e.r, e.buf[:n])
	if err != nil {
		return err
	}
	if n != n2 {
		return errShortRead
	}
	return nil
}

func (e *streamReader) seek(pos int64) {
	if _, err := e.r.Seek(e.base+pos, io.SeekStart); err != nil {
		e.stop(err)
	}
}

func (e *streamReader) skip(n int64) {
	if _, err := e.r.Seek(n, io.SeekCurrent); err != nil {
		e.stop(err)
	}
}

// copyN copies n bytes from the stream to w.
func (e *streamReader) copyN(w io.Writer, n int64) {
	if n <= 0 {
		return
	}
	if _, err := io.CopyN(w, e.r, n); err != nil {
		e.stop(noSilentEOF(err))
	}
}

// copyRest copies the remainder of the stream to w.
func (e *streamReader) copyRest(w io.Writer) {
	if _, err := io.Copy(w, e.r); err != nil {
		e.stop(err)
	}
}

func (e *streamReader) write(w io.Writer, b []byte) {
	if _, err := w.Write(b); err != nil {
		e.stop(err)
	}
}

// noSilentEOF is used where a short read can not be detected by the caller.
func noSilentEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (e *streamReader) stop(err error) {
	// Allow one silent EOF.
	// This allows the client to not having to check for EOF on every read.
	if err == io.EOF && !e.isEOF {
		e.isEOF = true
		return
	}
	if err != nil {
		e.readErr = err
	}
	panic(errStop)
}

// bufferedReadSeeker adds read buffering to an io.ReadSeeker.
// Forward seeks within the buffered data do not touch the underlying reader.
type bufferedReadSeeker struct {
	r   io.ReadSeeker
	br  *bufio.Reader
	pos int64
}

func newBufferedReadSeeker(r io.ReadSeeker) (*bufferedReadSeeker, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	return &bufferedReadSeeker{r: r, br: bufio.NewReaderSize(r, 32*1024), pos: pos}, nil
}

func (s *bufferedReadSeeker) Read(p []byte) (int, error) {
	n, err := s.br.Read(p)
	s.pos += int64(n)
	return n, err
}

func (s *bufferedReadSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.pos + offset
	case io.SeekEnd:
		return s.reset(offset, io.SeekEnd)
	default:
		return 0, errors.New("invalid whence")
	}

	if abs >= s.pos && abs-s.pos <= int64(s.br.Buffered()) {
		n, err := s.br.Discard(int(abs - s.pos))
		s.pos += int64(n)
		return s.pos, err
	}

	return s.reset(abs, io.SeekStart)
}

func (s *bufferedReadSeeker) reset(offset int64, whence int) (int64, error) {
	pos, err := s.r.Seek(offset, whence)
	if err != nil {
		return s.pos, err
	}
	s.br.Reset(s.r)
	s.pos = pos
	return pos, nil
}
