// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

// rat is a rational number as stored in TIFF RATIONAL and SRATIONAL values.
type rat[T int32 | uint32] struct {
	num T
	den T
}

// String returns the string representation of the rational number.
// If the denominator is 1, the string will be the numerator only.
func (r rat[T]) String() string {
	if r.den == 1 {
		return fmt.Sprintf("%d", r.num)
	}
	return fmt.Sprintf("%d/%d", r.num, r.den)
}

func printableString(s string) string {
	ss := strings.Map(func(r rune) rune {
		if unicode.IsGraphic(r) {
			return r
		}
		return -1
	}, s)

	return strings.TrimSpace(ss)
}

func trimBytesNulls(b []byte) []byte {
	var lo, hi int
	for lo = 0; lo < len(b) && b[lo] == 0; lo++ {
	}
	for hi = len(b) - 1; hi >= 0 && b[hi] == 0; hi-- {
	}
	if lo > hi {
		return nil
	}
	return b[lo : hi+1]
}

// toValidUTF8 applies the UTF-8 substitution policy used for all text written
// into image files: NUL becomes U+FFFD and invalid byte sequences are
// replaced with U+FFFD. It never fails.
func toValidUTF8(s string) string {
	if utf8.ValidString(s) && strings.IndexByte(s, 0) == -1 {
		return s
	}
	decoded, err := xunicode.UTF8.NewDecoder().String(s)
	if err != nil {
		decoded = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	return strings.ReplaceAll(decoded, "\x00", string(utf8.RuneError))
}

// decodeText decodes b as UTF-8 if valid, else as ISO-8859-1.
func decodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return toValidUTF8(string(b))
	}
	return string(s)
}

// truncateUTF8 truncates s to at most n bytes without splitting a UTF-8 sequence.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// nonEmpty returns the trimmed, non-empty values of vals.
func nonEmpty(vals ...string) []string {
	var result []string
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v != "" {
			result = append(result, v)
		}
	}
	return result
}
