package magic

import (
	"testing"

	mt "github.com/grokify/omnisniff/pkg/mediatype"
	"github.com/grokify/omnisniff/pkg/sparse"
)

// Leading bytes of real files, one per format.
var samples = []struct {
	name     string
	header   []byte
	wantType string
}{
	{"gzip", []byte{0x1f, 0x8b, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00}, mt.Gzip},
	{"pdf", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3"), mt.PDF},
	{"zip", []byte{0x50, 0x4b, 0x03, 0x04, 0x14, 0x00, 0x08, 0x00}, mt.Zip},
	{"empty zip", []byte{0x50, 0x4b, 0x05, 0x06, 0x00, 0x00, 0x00, 0x00}, mt.Zip},
	{"spanned zip", []byte{0x50, 0x4b, 0x07, 0x08, 0x50, 0x4b, 0x03, 0x04}, mt.Zip},
	{"docx", []byte{0x50, 0x4b, 0x03, 0x04, 0x14, 0x00, 0x06, 0x00}, mt.DOCX},
	{"dtd", []byte("<!ELEMENT note (to)>"), mt.XMLDTD},
	{"xml", []byte("<?xml version=\"1.0\" encoding=\"UTF-8\"?>"), mt.XML},
	{"mp3 id3v2", []byte("ID3\x04\x00\x00\x00\x00\x00\x00"), mt.MPEGAudio},
	{"mp3 frame", []byte{0xff, 0xfb, 0x90, 0x44, 0x00, 0x00}, mt.MPEGAudio},
	{"otf", []byte("OTTO\x00\x0b\x00\x80"), mt.OTF},
	{"ttf", []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x10}, mt.TTF},
	{"woff", []byte("wOFF\x00\x01\x00\x00"), mt.WOFF},
	{"woff2", []byte("wOF2\x00\x01\x00\x00"), mt.WOFF2},
	{"png", []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52}, mt.PNG},
	{"apng", []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d}, mt.APNG},
	{"avif", []byte("\x00\x00\x00\x1cftypavif\x00\x00\x00\x00"), mt.AVIF},
	{"bmp", []byte("BM\x36\x00\x0c\x00"), mt.BMP},
	{"gif87a", []byte("GIF87a\x01\x00"), mt.GIF},
	{"gif89a", []byte("GIF89a\x01\x00"), mt.GIF},
	{"heic", []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00"), mt.HEIC},
	{"heic sequence", []byte("\x00\x00\x00\x18ftyphevc\x00\x00\x00\x00"), mt.HEICSequence},
	{"heif", []byte("\x00\x00\x00\x18ftypmif1\x00\x00\x00\x00"), mt.HEIF},
	{"heif sequence", []byte("\x00\x00\x00\x18ftypmsf1\x00\x00\x00\x00"), mt.HEIFSequence},
	{"j2c", []byte{0xff, 0x4f, 0xff, 0x51, 0x00, 0x2f}, mt.J2C},
	{"jp2", jpeg2000("jp2 "), mt.JP2},
	{"jpm", jpeg2000("jpm "), mt.JPM},
	{"jpx", jpeg2000("jpx "), mt.JPX},
	{"mj2", jpeg2000("mjp2"), mt.MJ2},
	{"jpeg jfif", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 0x4a, 0x46, 0x49, 0x46}, mt.JPEG},
	{"jpeg exif", []byte{0xff, 0xd8, 0xff, 0xe1, 0x00, 0x18, 0x45, 0x78, 0x69, 0x66}, mt.JPEG},
	{"svg", []byte("<svg xmlns=\"http://www.w3.org/2000/svg\">"), mt.SVG},
	{"tiff little endian", []byte{0x49, 0x49, 0x2a, 0x00, 0x08, 0x00}, mt.TIFF},
	{"tiff big endian", []byte{0x4d, 0x4d, 0x00, 0x2a, 0x00, 0x00}, mt.TIFF},
	{"djvu", []byte("AT&TFORM\x00\x00\x00\x00DJVU"), mt.DjVu},
	{"ico", []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x10, 0x10}, mt.Icon},
	{"wbmp", []byte{0x00, 0x00, 0x10, 0x10}, mt.WBMP},
	{"webp", []byte("RIFF\x24\x00\x00\x00WEBPVP8 "), mt.WebP},
	{"html upper", []byte("<!DOCTYPE html>"), mt.HTML},
	{"html lower", []byte("<!doctype html>"), mt.HTML},
	{"mp4 isom", []byte("\x00\x00\x00\x20ftypisom\x00\x00\x02\x00"), mt.MP4},
	{"mp4 mp42", []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00"), mt.MP4},
	{"mp4 mp41", []byte("\x00\x00\x00\x18ftypmp41\x00\x00\x00\x00"), mt.MP4},
	{"mp4 avc1", []byte("\x00\x00\x00\x18ftypavc1\x00\x00\x00\x00"), mt.MP4},
	{"mpeg program stream", []byte{0x00, 0x00, 0x01, 0xba, 0x44, 0x00}, mt.MPEGVideo},
	{"mpeg sequence header", []byte{0x00, 0x00, 0x01, 0xb3, 0x16, 0x00}, mt.MPEGVideo},
}

// jpeg2000 builds a JPEG 2000 signature box followed by an ftyp box
// with the given brand.
func jpeg2000(brand string) []byte {
	b := []byte{
		0x00, 0x00, 0x00, 0x0c, 0x6a, 0x50, 0x20, 0x20, 0x0d, 0x0a, 0x87, 0x0a,
		0x00, 0x00, 0x00, 0x14,
	}
	b = append(b, "ftyp"...)
	b = append(b, brand...)
	return append(b, 0x00, 0x00, 0x00, 0x00)
}

// sampleFile places header at the start of a zero-filled 1 KiB file.
func sampleFile(header []byte) []byte {
	f := make([]byte, 1024)
	copy(f, header)
	return f
}

func TestSamplesRecall(t *testing.T) {
	for _, s := range samples {
		t.Run(s.name, func(t *testing.T) {
			file := sampleFile(s.header)
			if got := Match(sparse.Bytes(file)); !got.Has(s.wantType) {
				t.Errorf("Match(%s) = %v, want it to contain %s", s.name, got.Sorted(), s.wantType)
			}
		})
	}
}

func TestSamplesCoverageWindow(t *testing.T) {
	head, tail := RequiredSpan()
	for _, s := range samples {
		t.Run(s.name, func(t *testing.T) {
			file := sampleFile(s.header)
			// Only the required head and tail are kept, the rest is dropped.
			window := append(append([]byte{}, file[:head]...), file[len(file)-tail:]...)
			got := MatchBytes(window).Union(MatchMaskedBytes(window))
			if !got.Has(s.wantType) {
				t.Errorf("MatchBytes(coverage window of %s) = %v, want it to contain %s", s.name, got.Sorted(), s.wantType)
			}
		})
	}
}
