// Package mediatype provides the media type names recognized by OmniSniff
// and a small set type used to return multiple candidates.
package mediatype

import (
	"encoding/json"
	"slices"
	"sort"
)

// Media types recognized by the signature and extension tables.
const (
	Gzip         = "application/gzip"
	JavaArchive  = "application/java-archive"
	PDF          = "application/pdf"
	PPTX         = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	XLSX         = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	DOCX         = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	XMLDTD       = "application/xml-dtd"
	XML          = "application/xml"
	Zip          = "application/zip"
	MPEGAudio    = "audio/mpeg"
	OTF          = "font/otf"
	TTF          = "font/ttf"
	WOFF         = "font/woff"
	WOFF2        = "font/woff2"
	APNG         = "image/apng"
	AVIF         = "image/avif"
	BMP          = "image/bmp"
	GIF          = "image/gif"
	HEIC         = "image/heic"
	HEICSequence = "image/heic-sequence"
	HEIF         = "image/heif"
	HEIFSequence = "image/heif-sequence"
	J2C          = "image/j2c"
	JP2          = "image/jp2"
	JPM          = "image/jpm"
	JPX          = "image/jpx"
	JPEG         = "image/jpeg"
	PNG          = "image/png"
	SVG          = "image/svg+xml"
	TIFF         = "image/tiff"
	DjVu         = "image/vnd.djvu"
	Icon         = "image/vnd.microsoft.icon"
	WBMP         = "image/vnd.wap.wbmp"
	WebP         = "image/webp"
	HTML         = "text/html"
	MJ2          = "video/mj2"
	MP4          = "video/mp4"
	MPEGVideo    = "video/mpeg"
)

var supported = []string{
	Gzip, JavaArchive, PDF, PPTX, XLSX, DOCX, XMLDTD, XML, Zip,
	MPEGAudio,
	OTF, TTF, WOFF, WOFF2,
	APNG, AVIF, BMP, GIF, HEIC, HEICSequence, HEIF, HEIFSequence,
	J2C, JP2, JPM, JPX, JPEG, PNG, SVG, TIFF, DjVu, Icon, WBMP, WebP,
	HTML,
	MJ2, MP4, MPEGVideo,
}

// Supported returns every media type known to OmniSniff, sorted.
func Supported() []string {
	out := slices.Clone(supported)
	sort.Strings(out)
	return out
}

// IsSupported reports whether mediaType is one of the Supported types.
func IsSupported(mediaType string) bool {
	return slices.Contains(supported, mediaType)
}

// Set is an unordered collection of unique media types.
// The zero value is not usable for Add; use New or make.
type Set map[string]struct{}

// New returns a Set holding the given media types.
func New(mediaTypes ...string) Set {
	s := make(Set, len(mediaTypes))
	for _, mt := range mediaTypes {
		s[mt] = struct{}{}
	}
	return s
}

// Add inserts mediaType into the set.
func (s Set) Add(mediaType string) {
	s[mediaType] = struct{}{}
}

// Has reports whether mediaType is in the set.
func (s Set) Has(mediaType string) bool {
	_, ok := s[mediaType]
	return ok
}

// Len returns the number of media types in the set.
func (s Set) Len() int {
	return len(s)
}

// Union returns a new set holding the members of s and every other set.
func (s Set) Union(others ...Set) Set {
	out := make(Set, len(s))
	for mt := range s {
		out[mt] = struct{}{}
	}
	for _, o := range others {
		for mt := range o {
			out[mt] = struct{}{}
		}
	}
	return out
}

// Equal reports whether both sets hold exactly the same members.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for mt := range s {
		if _, ok := o[mt]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the members in lexical order. A nil or empty set
// yields an empty, non-nil slice so that it encodes as [] in JSON.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for mt := range s {
		out = append(out, mt)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted JSON array.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes a JSON array of media types.
func (s *Set) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = New(list...)
	return nil
}
