// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// The max length of a PNG text keyword in bytes.
const pngMaxKeywordLen = 79

// decodePNGText decodes a "keyword\0text" pair.
// The text is expected to be decoded to UTF-8 by the container already.
func decodePNGText(b []byte) (PNGTextData, error) {
	keyword, text, found := bytes.Cut(b, []byte{0})
	if !found {
		return nil, fmt.Errorf("PNG text: missing keyword separator")
	}
	k := strings.TrimSpace(string(keyword))
	if k == "" {
		return nil, fmt.Errorf("PNG text: empty keyword")
	}
	v := strings.TrimSpace(toValidUTF8(string(text)))
	if v == "" {
		return PNGTextData{}, nil
	}
	return PNGTextData{k: {v}}, nil
}

// pngTextEntry is a single text chunk to write.
type pngTextEntry struct {
	keyword string
	text    string
}

// buildPNGText resolves the PNG text values to write from m, filtered by keys.
func buildPNGText(m Metadata, keys []string) PNGTextData {
	d := PNGTextData{}
	for k, v := range m.pngData() {
		d[k] = slices.Clone(v)
	}
	for _, rv := range resolveAll(m, PNG) {
		d[rv.target.Key] = slices.Clone(rv.values)
	}
	for k := range d {
		if !slices.Contains(keys, k) {
			delete(d, k)
		}
	}
	return d
}

// serializePNGText returns the text chunks to write for m, sorted by keyword.
func serializePNGText(m Metadata, keys []string) []pngTextEntry {
	return encodePNGText(buildPNGText(m, keys))
}

func encodePNGText(d PNGTextData) []pngTextEntry {
	var entries []pngTextEntry
	for _, k := range slices.Sorted(maps.Keys(d)) {
		keyword := pngKeyword(k)
		if keyword == "" {
			continue
		}
		for _, v := range d[k] {
			v = strings.TrimSpace(toValidUTF8(v))
			if v == "" {
				continue
			}
			entries = append(entries, pngTextEntry{keyword: keyword, text: v})
		}
	}
	return entries
}

// pngKeyword returns k as a valid PNG keyword: no NUL and at most 79 bytes.
func pngKeyword(k string) string {
	k = strings.ReplaceAll(k, "\x00", "")
	k = truncateUTF8(k, pngMaxKeywordLen)
	return strings.TrimSpace(k)
}
