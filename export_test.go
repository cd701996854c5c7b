// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imagecopyright

var (
	BuildJPEG       = buildJPEG
	BuildPNG        = buildPNG
	BuildGIF        = buildGIF
	BuildWebP       = buildWebP
	BuildHEIF       = buildHEIF
	JPEGXMPSegment  = jpegXMPSegment
	JPEGEXIFSegment = jpegEXIFSegment
	WebPChunk       = webpChunkBytes
	WebPVP8L        = webpVP8L
	SampleXMP       = testXMP
	SampleTIFF      = testTIFF
	SampleMetadata  = testMetadata
)
