// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
)

const (
	gifCommentKey = "Comment"

	gifExtensionIntroducer = 0x21
	gifCommentLabel        = 0xfe
	gifApplicationLabel    = 0xff
	gifMaxSubBlockLen      = 255
)

// decodeGIFComment decodes the data sub-blocks of a comment extension,
// starting with the first block size byte and ending with the block terminator.
func decodeGIFComment(b []byte) (GIFCommentData, error) {
	var text []byte
	for {
		if len(b) == 0 {
			return nil, fmt.Errorf("GIF comment: missing block terminator")
		}
		n := int(b[0])
		b = b[1:]
		if n == 0 {
			break
		}
		if n > len(b) {
			return nil, fmt.Errorf("GIF comment: sub-block of %d bytes exceeds payload", n)
		}
		text = append(text, b[:n]...)
		b = b[n:]
	}

	v := strings.TrimSpace(decodeText(trimBytesNulls(text)))
	if v == "" {
		return GIFCommentData{}, nil
	}
	return GIFCommentData{gifCommentKey: {v}}, nil
}

// buildGIFComment resolves the GIF comments to write from m, filtered by keys.
func buildGIFComment(m Metadata, keys []string) GIFCommentData {
	d := GIFCommentData{}
	for k, v := range m.gifData() {
		d[k] = slices.Clone(v)
	}
	for _, rv := range resolveAll(m, GIF) {
		d[rv.target.Key] = slices.Clone(rv.values)
	}
	for k := range d {
		if !slices.Contains(keys, k) {
			delete(d, k)
		}
	}
	return d
}

// serializeGIFComment returns the comment extensions to write for m, or nil if there is nothing to write.
func serializeGIFComment(m Metadata, keys []string) []byte {
	return encodeGIFComment(buildGIFComment(m, keys))
}

// encodeGIFComment writes one comment extension per value.
func encodeGIFComment(d GIFCommentData) []byte {
	var buf bytes.Buffer
	for _, v := range d[gifCommentKey] {
		v = strings.TrimSpace(toValidUTF8(v))
		if v == "" {
			continue
		}
		buf.Write([]byte{gifExtensionIntroducer, gifCommentLabel})
		writeGIFSubBlocks(&buf, []byte(v))
	}
	if buf.Len() == 0 {
		return nil
	}
	return buf.Bytes()
}

// writeGIFSubBlocks writes b as data sub-blocks of at most 255 bytes followed by the block terminator.
func writeGIFSubBlocks(buf *bytes.Buffer, b []byte) {
	for len(b) > 0 {
		n := min(len(b), gifMaxSubBlockLen)
		buf.WriteByte(byte(n))
		buf.Write(b[:n])
		b = b[n:]
	}
	buf.WriteByte(0)
}
