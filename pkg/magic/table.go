package magic

import (
	mt "github.com/grokify/omnisniff/pkg/mediatype"
	"github.com/grokify/omnisniff/pkg/sparse"
)

// signatures is the plain signature table. Order matters only for speed:
// once a key matches, its remaining entries are skipped. Every offset is
// counted from the start, so a prefix of the source is always enough.
var signatures = sparse.Collection{
	{Key: mt.Gzip, Pattern: sparse.Pattern{0, 2, 0x1f, 0x8b}},
	{Key: mt.JavaArchive, Pattern: sparse.Pattern{0, 4, 0x50, 0x4b, 0x03, 0x04}},
	{Key: mt.PDF, Pattern: sparse.Pattern{0, 5, 0x25, 0x50, 0x44, 0x46, 0x2d}},
	{Key: mt.PPTX, Pattern: sparse.Pattern{0, 4, 0x50, 0x4b, 0x03, 0x04}},
	{Key: mt.XLSX, Pattern: sparse.Pattern{0, 4, 0x50, 0x4b, 0x03, 0x04}},
	{Key: mt.DOCX, Pattern: sparse.Pattern{0, 4, 0x50, 0x4b, 0x03, 0x04}},
	{Key: mt.XMLDTD, Pattern: sparse.Pattern{0, 2, 0x3c, 0x21}},
	{Key: mt.XML, Pattern: sparse.Pattern{0, 5, 0x3c, 0x3f, 0x78, 0x6d, 0x6c}},
	{Key: mt.Zip, Pattern: sparse.Pattern{0, 4, 0x50, 0x4b, 0x03, 0x04}},
	{Key: mt.Zip, Pattern: sparse.Pattern{0, 8, 0x50, 0x4b, 0x07, 0x08, 0x50, 0x4b, 0x03, 0x04}},
	{Key: mt.Zip, Pattern: sparse.Pattern{0, 4, 0x50, 0x4b, 0x05, 0x06}},
	{Key: mt.MPEGAudio, Pattern: sparse.Pattern{0, 3, 0x49, 0x44, 0x33}},
	{Key: mt.MPEGAudio, Pattern: sparse.Pattern{0, 2, 0xff, 0xfb}},
	{Key: mt.MPEGAudio, Pattern: sparse.Pattern{0, 2, 0xff, 0xfd}},
	{Key: mt.MPEGAudio, Pattern: sparse.Pattern{0, 2, 0xff, 0xfe}},
	{Key: mt.OTF, Pattern: sparse.Pattern{0, 4, 0x4f, 0x54, 0x54, 0x4f}},
	{Key: mt.OTF, Pattern: sparse.Pattern{0, 4, 0x00, 0x01, 0x00, 0x00}},
	{Key: mt.TTF, Pattern: sparse.Pattern{0, 4, 0x00, 0x01, 0x00, 0x00}},
	{Key: mt.WOFF, Pattern: sparse.Pattern{0, 4, 0x77, 0x4f, 0x46, 0x46}},
	{Key: mt.WOFF2, Pattern: sparse.Pattern{0, 4, 0x77, 0x4f, 0x46, 0x32}},
	{Key: mt.APNG, Pattern: sparse.Pattern{0, 8, 0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}},
	{Key: mt.AVIF, Pattern: sparse.Pattern{4, 7, 0x66, 0x74, 0x79, 0x70, 0x61, 0x76, 0x69}},
	{Key: mt.BMP, Pattern: sparse.Pattern{0, 2, 0x42, 0x4d}},
	{Key: mt.GIF, Pattern: sparse.Pattern{0, 3, 0x47, 0x49, 0x46}},
	{Key: mt.HEIC, Pattern: sparse.Pattern{4, 7, 0x66, 0x74, 0x79, 0x70, 0x68, 0x65, 0x69}},
	{Key: mt.HEICSequence, Pattern: sparse.Pattern{4, 7, 0x66, 0x74, 0x79, 0x70, 0x68, 0x65, 0x76}},
	{Key: mt.HEIF, Pattern: sparse.Pattern{4, 7, 0x66, 0x74, 0x79, 0x70, 0x6d, 0x69, 0x66}},
	{Key: mt.HEIFSequence, Pattern: sparse.Pattern{4, 7, 0x66, 0x74, 0x79, 0x70, 0x6d, 0x73, 0x66}},
	{Key: mt.J2C, Pattern: sparse.Pattern{0, 4, 0xff, 0x4f, 0xff, 0x51}},
	{Key: mt.JP2, Pattern: sparse.Pattern{0, 5, 0x00, 0x00, 0x00, 0x0c, 0x6a, 20, 3, 0x6a, 0x70, 0x32}},
	{Key: mt.JPM, Pattern: sparse.Pattern{0, 5, 0x00, 0x00, 0x00, 0x0c, 0x6a, 20, 3, 0x6a, 0x70, 0x6d}},
	{Key: mt.JPX, Pattern: sparse.Pattern{0, 5, 0x00, 0x00, 0x00, 0x0c, 0x6a, 20, 3, 0x6a, 0x70, 0x78}},
	{Key: mt.JPEG, Pattern: sparse.Pattern{0, 3, 0xff, 0xd8, 0xff}},
	{Key: mt.PNG, Pattern: sparse.Pattern{0, 8, 0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}},
	{Key: mt.SVG, Pattern: sparse.Pattern{0, 4, 0x3c, 0x73, 0x76, 0x67}},
	{Key: mt.SVG, Pattern: sparse.Pattern{0, 5, 0x3c, 0x3f, 0x78, 0x6d, 0x6c}},
	{Key: mt.TIFF, Pattern: sparse.Pattern{0, 4, 0x49, 0x49, 0x2a, 0x00}},
	{Key: mt.TIFF, Pattern: sparse.Pattern{0, 4, 0x4d, 0x4d, 0x00, 0x2a}},
	{Key: mt.DjVu, Pattern: sparse.Pattern{0, 8, 0x41, 0x54, 0x26, 0x54, 0x46, 0x4f, 0x52, 0x4d}},
	{Key: mt.Icon, Pattern: sparse.Pattern{0, 4, 0x00, 0x00, 0x01, 0x00}},
	{Key: mt.WBMP, Pattern: sparse.Pattern{0, 2, 0x00, 0x00}},
	{Key: mt.WebP, Pattern: sparse.Pattern{0, 4, 0x52, 0x49, 0x46, 0x46, 8, 4, 0x57, 0x45, 0x42, 0x50}},
	{Key: mt.HTML, Pattern: sparse.Pattern{0, 8, 0x3c, 0x21, 0x44, 0x4f, 0x43, 0x54, 0x59, 0x50}},
	{Key: mt.HTML, Pattern: sparse.Pattern{0, 8, 0x3c, 0x21, 0x64, 0x6f, 0x63, 0x74, 0x79, 0x70}},
	{Key: mt.MJ2, Pattern: sparse.Pattern{0, 5, 0x00, 0x00, 0x00, 0x0c, 0x6a, 20, 2, 0x6d, 0x6a}},
	{Key: mt.MP4, Pattern: sparse.Pattern{4, 7, 0x66, 0x74, 0x79, 0x70, 0x69, 0x73, 0x6f}},
	{Key: mt.MP4, Pattern: sparse.Pattern{4, 8, 0x66, 0x74, 0x79, 0x70, 0x6d, 0x70, 0x34, 0x32}},
	{Key: mt.MP4, Pattern: sparse.Pattern{4, 8, 0x66, 0x74, 0x79, 0x70, 0x6d, 0x70, 0x34, 0x31}},
	{Key: mt.MP4, Pattern: sparse.Pattern{4, 8, 0x66, 0x74, 0x79, 0x70, 0x61, 0x76, 0x63, 0x31}},
	{Key: mt.MPEGVideo, Pattern: sparse.Pattern{0, 4, 0x00, 0x00, 0x01, 0xba}},
	{Key: mt.MPEGVideo, Pattern: sparse.Pattern{0, 4, 0x00, 0x00, 0x01, 0xb3}},
}

// masks selects the bits compared by maskedSignatures. MPEG audio frame
// headers start with an 11-bit sync word.
var masks = sparse.Pattern{0, 2, 0xff, 0xe0}

var maskedSignatures = sparse.Collection{
	{Key: mt.MPEGAudio, Pattern: sparse.Pattern{0, 2, 0xff, 0xe0}},
}

// coverage and maskedCoverage are maintained by hand so callers can size
// their reads without decoding the tables. Tests keep them in sync.
var (
	coverage = []sparse.Range{
		{Begin: 0, End: 12},
		{Begin: 20, End: 23},
	}
	maskedCoverage = []sparse.Range{
		{Begin: 0, End: 2},
	}
)
