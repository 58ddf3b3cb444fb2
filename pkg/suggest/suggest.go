// Package suggest combines file-extension and magic-number guesses into a
// set of candidate media types for a variety of input shapes.
//
// Example usage:
//
//	s, err := suggest.File(ctx, "photo.jpg")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(s.All.Sorted())
package suggest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/grokify/omnisniff/pkg/extension"
	"github.com/grokify/omnisniff/pkg/magic"
	"github.com/grokify/omnisniff/pkg/mediatype"
	"github.com/grokify/omnisniff/pkg/source"
)

// ErrUnsupportedInput is returned by Any for values it cannot read.
var ErrUnsupportedInput = errors.New("suggest: unsupported input type")

// Suggestion holds the candidates found by each method and their union.
type Suggestion struct {
	// Name is the file name or URL path the extension guess used, if any.
	Name        string        `json:"name,omitempty"`
	ByExtension mediatype.Set `json:"byExtension"`
	ByMagic     mediatype.Set `json:"byMagic"`
	All         mediatype.Set `json:"mediaTypes"`

	// Window is the data the magic guess was made from.
	Window *source.Window `json:"-"`
}

func newSuggestion(name string, w *source.Window) *Suggestion {
	s := &Suggestion{
		Name:        name,
		ByExtension: mediatype.New(),
		ByMagic:     mediatype.New(),
		Window:      w,
	}
	if name != "" {
		s.ByExtension = extension.MediaTypes(name)
	}
	if w != nil {
		s.ByMagic = magic.Match(w)
	}
	s.All = s.ByExtension.Union(s.ByMagic)
	return s
}

// Name returns the extension-only suggestion for a file name.
func Name(filename string) *Suggestion {
	return newSuggestion(filename, nil)
}

// Bytes suggests media types for an in-memory payload.
func Bytes(name string, b []byte) *Suggestion {
	return newSuggestion(name, source.FromBytes(b))
}

// ReaderAt suggests media types for a random-access source of known size.
func ReaderAt(ctx context.Context, name string, ra io.ReaderAt, size int64) (*Suggestion, error) {
	w, err := source.FromReaderAt(ctx, ra, size)
	if err != nil {
		return nil, err
	}
	return newSuggestion(name, w), nil
}

// File suggests media types for the file at path using both its name
// and its content.
func File(ctx context.Context, path string) (*Suggestion, error) {
	w, err := source.FromFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return newSuggestion(path, w), nil
}

// Reader suggests media types for a stream. It returns a reader that
// yields the complete stream, including the bytes consumed here.
func Reader(ctx context.Context, name string, r io.Reader) (*Suggestion, io.Reader, error) {
	w, rest, err := source.FromReader(ctx, r)
	if err != nil {
		return nil, rest, err
	}
	return newSuggestion(name, w), rest, nil
}

// Request suggests media types for an HTTP request body. The URL path
// supplies the extension guess. The body is restored afterwards.
func Request(req *http.Request) (*Suggestion, error) {
	w, err := source.PeekRequest(req)
	if err != nil {
		return nil, err
	}
	return newSuggestion(urlPath(req), w), nil
}

// Response suggests media types for an HTTP response body. The path of
// the originating request supplies the extension guess. The body is
// restored afterwards.
func Response(resp *http.Response) (*Suggestion, error) {
	w, err := source.PeekResponse(resp)
	if err != nil {
		return nil, err
	}
	return newSuggestion(urlPath(resp.Request), w), nil
}

func urlPath(req *http.Request) string {
	if req == nil || req.URL == nil {
		return ""
	}
	return req.URL.Path
}

// Any dispatches on the dynamic type of v. Supported are []byte, *os.File,
// *http.Request, *http.Response, io.ReaderAt with a Size method (such as
// *bytes.Reader and *io.SectionReader), and io.Reader. Streams consumed
// by Any are not handed back; use Reader to keep them.
func Any(ctx context.Context, name string, v any) (*Suggestion, error) {
	switch x := v.(type) {
	case nil:
		return nil, source.ErrNilSource
	case []byte:
		return Bytes(name, x), nil
	case *os.File:
		info, err := x.Stat()
		if err != nil {
			return nil, err
		}
		if name == "" {
			name = x.Name()
		}
		return ReaderAt(ctx, name, x, info.Size())
	case *http.Request:
		return Request(x)
	case *http.Response:
		return Response(x)
	case sizedReaderAt:
		return ReaderAt(ctx, name, x, x.Size())
	case io.Reader:
		s, _, err := Reader(ctx, name, x)
		return s, err
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedInput, v)
	}
}

type sizedReaderAt interface {
	io.ReaderAt
	Size() int64
}
