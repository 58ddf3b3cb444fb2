package contentdetect

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"unicode/utf8"

	"github.com/grokify/omnisniff/pkg/extension"
	"github.com/grokify/omnisniff/pkg/mediatype"
)

const (
	textPlain = "text/plain"
	textJSON  = "application/json"
)

// Share limits for a sample to still count as text.
const (
	maxNulShare       = 0.01
	maxControlShare   = 0.05
	minPrintableShare = 0.85
)

// Heuristic guesses are never as confident as a signature match.
const (
	confidenceStructured = 0.75
	confidencePlain      = 0.70
	confidenceUnsure     = 0.50
)

// markupOrder ranks markup candidates from most to least specific.
var markupOrder = []string{mediatype.HTML, mediatype.SVG, mediatype.XML}

var htmlTags = [][]byte{
	[]byte("<html"), []byte("<head"), []byte("<body"), []byte("<!doctype html"),
	[]byte("<div"), []byte("<script"), []byte("<meta"), []byte("<title"),
}

// byteProfile counts the byte classes in a sample.
type byteProfile struct {
	total     int
	nul       int
	control   int
	highBit   int
	printable int
}

func profileOf(sample []byte) byteProfile {
	p := byteProfile{total: len(sample)}
	for _, b := range sample {
		switch {
		case b == 0:
			p.nul++
		case b == '\t' || b == '\n' || b == '\r':
			p.printable++
		case b < 0x20 || b == 0x7f:
			p.control++
		case b < 0x80:
			p.printable++
		default:
			p.highBit++
		}
	}
	return p
}

func (p byteProfile) share(n int) float64 {
	return float64(n) / float64(p.total)
}

// detectByHeuristic classifies data that no signature matched. Text is
// narrowed to JSON, markup or plain text and the guesses land in
// Candidates the same way signature matches do.
func detectByHeuristic(data []byte, opts *Options) ContentInfo {
	if len(data) == 0 {
		return ContentInfo{IsText: true, Method: "heuristic", Confidence: confidenceUnsure}
	}

	sample := sampleOf(data, opts.CheckBytes)
	p := profileOf(sample)
	validUTF8 := utf8.Valid(sample)

	switch {
	case p.share(p.nul) > maxNulShare:
		return binaryInfo(0.85)
	case p.share(p.control) > maxControlShare:
		return binaryInfo(0.80)
	case p.share(p.highBit) > opts.HighBitThreshold && !validUTF8:
		return binaryInfo(0.75)
	}

	if looksLikeJSON(sample) {
		return textInfo(textJSON, []string{textJSON}, confidenceStructured)
	}
	if found := markupTypes(sample); found.Len() > 0 {
		return textInfo(mostSpecific(found, markupOrder), found.Sorted(), confidenceStructured)
	}

	printable := p.printable
	if validUTF8 {
		printable += p.highBit
	}
	if p.share(printable) > minPrintableShare {
		return textInfo(textPlain, []string{textPlain}, confidencePlain)
	}
	return binaryInfo(confidenceUnsure)
}

// sampleOf returns at most limit leading bytes of data, dropping a
// multi-byte rune the limit cuts in half.
func sampleOf(data []byte, limit int) []byte {
	if limit <= 0 || limit >= len(data) {
		return data
	}
	if s := trimPartialRune(data[:limit]); len(s) > 0 {
		return s
	}
	return data[:limit]
}

func binaryInfo(confidence float64) ContentInfo {
	return ContentInfo{IsBinary: true, Method: "heuristic", Confidence: confidence}
}

// textInfo reports text content whose best guess is primary. Extra
// candidates lower the confidence as they do for signature matches.
func textInfo(primary string, candidates []string, confidence float64) ContentInfo {
	if len(candidates) > 1 {
		confidence -= 0.10
	}
	return ContentInfo{
		IsText:     true,
		MIMEType:   primary,
		Extension:  textExtension(primary),
		Candidates: candidates,
		Method:     "heuristic",
		Confidence: confidence,
	}
}

func textExtension(mediaType string) string {
	if ext, ok := textTypesByHeader[mediaType]; ok {
		return ext
	}
	return extension.Preferred(mediaType)
}

func mostSpecific(found mediatype.Set, order []string) string {
	for _, mt := range order {
		if found.Has(mt) {
			return mt
		}
	}
	return found.Sorted()[0]
}

// markupTypes returns the markup media types sample could be. Anything
// starting with a tag is at least XML.
func markupTypes(sample []byte) mediatype.Set {
	s := bytes.TrimLeft(sample, " \t\r\n")
	s = bytes.TrimPrefix(s, []byte("\xef\xbb\xbf"))
	if len(s) < 2 || s[0] != '<' || !isTagStart(s[1]) {
		return nil
	}

	lower := bytes.ToLower(s)
	found := mediatype.New()
	for _, tag := range htmlTags {
		if bytes.Contains(lower, tag) {
			found.Add(mediatype.HTML)
			break
		}
	}
	if bytes.Contains(lower, []byte("<svg")) {
		found.Add(mediatype.SVG)
	}
	if found.Len() == 0 {
		found.Add(mediatype.XML)
	}
	return found
}

func isTagStart(b byte) bool {
	return b == '!' || b == '?' || b == '_' || (b|0x20 >= 'a' && b|0x20 <= 'z')
}

// trimPartialRune drops an incomplete multi-byte sequence cut off at the
// end of a sample.
func trimPartialRune(sample []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(sample); i++ {
		b := sample[len(sample)-i]
		if b < 0x80 {
			return sample
		}
		if utf8.RuneStart(b) {
			if !utf8.FullRune(sample[len(sample)-i:]) {
				return sample[:len(sample)-i]
			}
			return sample
		}
	}
	return sample
}

// looksLikeJSON reports whether data opens with an object or array that
// tokenizes cleanly. Truncated documents still count.
func looksLikeJSON(data []byte) bool {
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 || (data[0] != '{' && data[0] != '[') {
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		if _, err := dec.Token(); err != nil {
			return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		}
	}
}
