// Package extension guesses media types from file names.
package extension

import (
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/grokify/omnisniff/pkg/mediatype"
)

// Of returns the lower-cased extension of filename without the leading
// dot, or "" when the name has none. Only the final path element is
// considered, so "dir.d/file" has no extension.
func Of(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	i := strings.LastIndexByte(base, '.')
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// MediaTypes returns the media types associated with the extension of
// filename. The lookup is case-insensitive. Unknown or missing
// extensions yield an empty set.
func MediaTypes(filename string) mediatype.Set {
	return mediatype.New(table[Of(filename)]...)
}

// Lookup returns the media types for a bare extension such as "png" or
// ".PNG", most specific first.
func Lookup(ext string) []string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return slices.Clone(table[ext])
}

// Extensions returns the extensions that map to mediaType, sorted.
func Extensions(mediaType string) []string {
	var out []string
	for ext, types := range table {
		if slices.Contains(types, mediaType) {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

// Preferred returns the conventional extension for mediaType, or "" if
// the table has none.
func Preferred(mediaType string) string {
	if ext, ok := preferred[mediaType]; ok {
		return ext
	}
	if exts := Extensions(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// preferred overrides the alphabetical choice where it would be unusual.
var preferred = map[string]string{
	mediatype.JPEG:      "jpg",
	mediatype.MPEGAudio: "mp3",
	mediatype.MPEGVideo: "mpg",
	mediatype.TIFF:      "tiff",
	mediatype.HTML:      "html",
	mediatype.Zip:       "zip",
	mediatype.Gzip:      "gz",
	mediatype.Icon:      "ico",
	mediatype.BMP:       "bmp",
}
