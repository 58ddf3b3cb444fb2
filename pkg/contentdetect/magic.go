package contentdetect

import (
	"slices"

	"github.com/grokify/omnisniff/pkg/extension"
	"github.com/grokify/omnisniff/pkg/magic"
	"github.com/grokify/omnisniff/pkg/mediatype"
	"github.com/grokify/omnisniff/pkg/sparse"
)

// typeHint describes a media type the sniffing tables do not carry.
type typeHint struct {
	extension string
	isBinary  bool
}

// binarySignatures extend the sniffing tables with formats that only
// matter for the binary/text decision.
var binarySignatures = sparse.Collection{
	// Audio and video
	{Key: "audio/ogg", Pattern: sparse.Pattern{0, 4, 'O', 'g', 'g', 'S'}},
	{Key: "audio/flac", Pattern: sparse.Pattern{0, 4, 'f', 'L', 'a', 'C'}},
	{Key: "audio/wav", Pattern: sparse.Pattern{0, 4, 'R', 'I', 'F', 'F', 8, 4, 'W', 'A', 'V', 'E'}},
	{Key: "video/x-msvideo", Pattern: sparse.Pattern{0, 4, 'R', 'I', 'F', 'F', 8, 4, 'A', 'V', 'I', ' '}},
	{Key: "video/webm", Pattern: sparse.Pattern{0, 4, 0x1A, 0x45, 0xDF, 0xA3}},
	{Key: "video/quicktime", Pattern: sparse.Pattern{4, 6, 'f', 't', 'y', 'p', 'q', 't'}},
	{Key: "video/x-flv", Pattern: sparse.Pattern{0, 4, 'F', 'L', 'V', 0x01}},

	// Archives
	{Key: "application/x-bzip2", Pattern: sparse.Pattern{0, 3, 'B', 'Z', 'h'}},
	{Key: "application/x-xz", Pattern: sparse.Pattern{0, 6, 0xFD, '7', 'z', 'X', 'Z', 0x00}},
	{Key: "application/x-7z-compressed", Pattern: sparse.Pattern{0, 6, '7', 'z', 0xBC, 0xAF, 0x27, 0x1C}},
	{Key: "application/x-rar-compressed", Pattern: sparse.Pattern{0, 7, 'R', 'a', 'r', '!', 0x1A, 0x07, 0x00}},
	{Key: "application/x-rar-compressed", Pattern: sparse.Pattern{0, 8, 'R', 'a', 'r', '!', 0x1A, 0x07, 0x01, 0x00}},
	{Key: "application/x-tar", Pattern: sparse.Pattern{257, 5, 'u', 's', 't', 'a', 'r'}},

	// Documents
	{Key: "application/x-ole-storage", Pattern: sparse.Pattern{0, 8, 0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}},
	{Key: "application/x-sqlite3", Pattern: sparse.Pattern{0, 16, 'S', 'Q', 'L', 'i', 't', 'e', ' ', 'f', 'o', 'r', 'm', 'a', 't', ' ', '3', 0x00}},

	// Executables
	{Key: "application/x-dosexec", Pattern: sparse.Pattern{0, 2, 'M', 'Z'}},
	{Key: "application/x-elf", Pattern: sparse.Pattern{0, 4, 0x7F, 'E', 'L', 'F'}},
	{Key: "application/x-mach-binary", Pattern: sparse.Pattern{0, 4, 0xCF, 0xFA, 0xED, 0xFE}},
	{Key: "application/x-mach-binary", Pattern: sparse.Pattern{0, 4, 0xCE, 0xFA, 0xED, 0xFE}},
	{Key: "application/x-mach-binary", Pattern: sparse.Pattern{0, 4, 0xCA, 0xFE, 0xBA, 0xBE}},
	{Key: "application/x-mach-binary", Pattern: sparse.Pattern{0, 4, 0xFE, 0xED, 0xFA, 0xCF}},
	{Key: "application/x-mach-binary", Pattern: sparse.Pattern{0, 4, 0xFE, 0xED, 0xFA, 0xCE}},
	{Key: "application/wasm", Pattern: sparse.Pattern{0, 4, 0x00, 'a', 's', 'm'}},
	{Key: "application/x-shockwave-flash", Pattern: sparse.Pattern{0, 3, 'F', 'W', 'S'}},
	{Key: "application/x-shockwave-flash", Pattern: sparse.Pattern{0, 3, 'C', 'W', 'S'}},
}

// textSignatures are text formats with a recognizable prefix.
var textSignatures = sparse.Collection{
	{Key: mediatype.HTML, Pattern: sparse.Pattern{0, 5, '<', 'h', 't', 'm', 'l'}},
	{Key: mediatype.HTML, Pattern: sparse.Pattern{0, 5, '<', 'H', 'T', 'M', 'L'}},
	{Key: "application/x-sh", Pattern: sparse.Pattern{0, 2, '#', '!'}},
	{Key: "application/postscript", Pattern: sparse.Pattern{0, 4, '%', '!', 'P', 'S'}},
	{Key: "application/rtf", Pattern: sparse.Pattern{0, 5, '{', '\\', 'r', 't', 'f'}},
}

var hints = map[string]typeHint{
	"audio/ogg":                     {"ogg", true},
	"audio/flac":                    {"flac", true},
	"audio/wav":                     {"wav", true},
	"video/x-msvideo":               {"avi", true},
	"video/webm":                    {"webm", true},
	"video/quicktime":               {"mov", true},
	"video/x-flv":                   {"flv", true},
	"application/x-bzip2":           {"bz2", true},
	"application/x-xz":              {"xz", true},
	"application/x-7z-compressed":   {"7z", true},
	"application/x-rar-compressed":  {"rar", true},
	"application/x-tar":             {"tar", true},
	"application/x-ole-storage":     {"doc", true},
	"application/x-sqlite3":         {"sqlite", true},
	"application/x-dosexec":         {"exe", true},
	"application/x-elf":             {"", true},
	"application/x-mach-binary":     {"", true},
	"application/wasm":              {"wasm", true},
	"application/x-shockwave-flash": {"swf", true},
	"application/x-sh":              {"sh", false},
	"application/postscript":        {"ps", false},
	"application/rtf":               {"rtf", false},
}

// textTypes are the sniffable media types whose content is text.
var textTypes = mediatype.New(mediatype.HTML, mediatype.SVG, mediatype.XML, mediatype.XMLDTD)

// tieBreak orders candidates whose signatures are equally specific.
// Generic container types come first.
var tieBreak = []string{mediatype.Zip, mediatype.PNG, mediatype.XML, mediatype.TTF}

// detectByMagicBytes checks data against the sniffing tables, then the
// extra binary and text signatures.
func detectByMagicBytes(data []byte) (ContentInfo, bool) {
	if len(data) == 0 {
		return ContentInfo{}, false
	}
	w := sparse.Bytes(data)

	if found := magic.Match(w); found.Len() > 0 {
		return fromCandidates(w, found, magic.Signatures()), true
	}
	if found := sparse.Match(w, binarySignatures); found.Len() > 0 {
		return fromCandidates(w, found, binarySignatures), true
	}
	if found := sparse.Match(w, textSignatures); found.Len() > 0 {
		return fromCandidates(w, found, textSignatures), true
	}
	return ContentInfo{}, false
}

// fromCandidates builds a ContentInfo whose MIMEType is the candidate
// with the most specific matching signature.
func fromCandidates(w sparse.Window, found mediatype.Set, sigs sparse.Collection) ContentInfo {
	candidates := found.Sorted()
	primary := candidates[0]
	best := -1
	for _, mt := range candidates {
		n := specificity(w, mt, sigs)
		if n > best || (n == best && ranksBefore(mt, primary)) {
			primary, best = mt, n
		}
	}

	info := ContentInfo{
		MIMEType:   primary,
		Candidates: candidates,
		Method:     "magic",
		Confidence: 0.95,
	}

	if hint, ok := hints[primary]; ok {
		info.Extension = hint.extension
		info.IsBinary = hint.isBinary
	} else {
		info.Extension = extension.Preferred(primary)
		info.IsBinary = !textTypes.Has(primary)
	}
	info.IsText = !info.IsBinary

	if !info.IsBinary {
		info.Confidence = 0.90
	}
	if len(candidates) > 1 {
		info.Confidence -= 0.10
	}
	return info
}

// specificity returns the size of the largest signature for mediaType
// that matches w. Types matched only through masking score zero.
func specificity(w sparse.Window, mediaType string, sigs sparse.Collection) int {
	n := 0
	for _, e := range sigs {
		if e.Key != mediaType || !sparse.Matches(w, e.Pattern) {
			continue
		}
		n = max(n, len(e.Pattern.Pairs()))
	}
	return n
}

func ranksBefore(a, b string) bool {
	ia, ib := slices.Index(tieBreak, a), slices.Index(tieBreak, b)
	switch {
	case ia >= 0 && ib >= 0:
		return ia < ib
	case ia >= 0:
		return true
	case ib >= 0:
		return false
	}
	return a < b
}
