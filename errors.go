// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidFormat is returned (wrapped) when an image container is malformed.
	ErrInvalidFormat = errors.New("imagecopyright: invalid format")

	// ErrNotSeekable is returned when the stream cannot be rewound after
	// peeking at the magic bytes.
	ErrNotSeekable = errors.New("imagecopyright: stream does not support rewinding")

	// ErrEXIFOffsetOverflow is returned when a serialized EXIF block
	// would need offsets that do not fit in 32 bits.
	ErrEXIFOffsetOverflow = errors.New("imagecopyright: EXIF offset exceeds 32 bits")

	// Internal error to signal that we should stop any further processing.
	errStop = errors.New("stop")

	errShortRead = errors.New("short read")
)

// InvalidFormatError is used when the container structure of an image is invalid.
type InvalidFormatError struct {
	Err error
}

// Error implements error.
func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidFormat, e.Err)
}

// Is reports whether target is ErrInvalidFormat.
func (e *InvalidFormatError) Is(target error) bool {
	return target == ErrInvalidFormat
}

// Unwrap returns the underlying error.
func (e *InvalidFormatError) Unwrap() error {
	return e.Err
}

// IsInvalidFormat reports whether err is or wraps an InvalidFormatError.
func IsInvalidFormat(err error) bool {
	return errors.Is(err, ErrInvalidFormat)
}

func newInvalidFormatError(err error) error {
	if err == nil {
		return nil
	}
	var ife *InvalidFormatError
	if errors.As(err, &ife) {
		return err
	}
	return &InvalidFormatError{Err: err}
}

func newInvalidFormatErrorf(format string, args ...any) error {
	return newInvalidFormatError(fmt.Errorf(format, args...))
}

// isInvalidFormatErrorCandidate reports whether err is caused by
// a truncated or otherwise unreadable container.
func isInvalidFormatErrorCandidate(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, errShortRead)
}
