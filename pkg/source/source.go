// Package source reads the bytes a magic number match needs from larger
// inputs: byte slices, readers, random-access readers, files, and HTTP
// message bodies.
//
// Only the leading and trailing regions named by the signature tables'
// coverage are read. Readers that are consumed are handed back as an
// equivalent reader so the caller can still use the full content.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/grokify/omnisniff/pkg/magic"
)

// ErrNilSource is returned when a nil reader or message is passed in.
var ErrNilSource = errors.New("source: nil input")

// Window holds the leading and trailing bytes of a source. It implements
// sparse.Window: non-negative indices address the source from its start
// and negative indices from its end when the size is known.
type Window struct {
	head []byte
	tail []byte
	// size is the total source size, or -1 when it is unknown.
	size int64
}

// At implements sparse.Window.
func (w *Window) At(index int) (byte, bool) {
	pos := int64(index)
	if pos < 0 {
		if w.size < 0 {
			return 0, false
		}
		pos += w.size
		if pos < 0 {
			return 0, false
		}
	}
	if pos < int64(len(w.head)) {
		return w.head[pos], true
	}
	if w.size < 0 || pos >= w.size {
		return 0, false
	}
	tailStart := w.size - int64(len(w.tail))
	if pos >= tailStart {
		return w.tail[pos-tailStart], true
	}
	return 0, false
}

// Head returns the leading bytes that were read.
func (w *Window) Head() []byte {
	return w.head
}

// Tail returns the trailing bytes that were read, if any.
func (w *Window) Tail() []byte {
	return w.tail
}

// Size returns the total size of the source, or -1 if unknown.
func (w *Window) Size() int64 {
	return w.size
}

// Bytes returns the head followed by the tail. For sources smaller than
// the required span this is the whole content.
func (w *Window) Bytes() []byte {
	out := make([]byte, 0, len(w.head)+len(w.tail))
	out = append(out, w.head...)
	return append(out, w.tail...)
}

// Span returns the number of leading and trailing bytes read from each
// source.
func Span() (head, tail int) {
	return magic.RequiredSpan()
}

// FromBytes returns a Window over b. b is not copied.
func FromBytes(b []byte) *Window {
	return &Window{head: b, size: int64(len(b))}
}

// FromReaderAt reads the required head and tail of a source of the given
// size. Reads that fall short of size are reported as errors.
func FromReaderAt(ctx context.Context, ra io.ReaderAt, size int64) (*Window, error) {
	headLen, tailLen := Span()
	return readWindow(ctx, ra, size, headLen, tailLen)
}

// readWindow reads up to headLen leading and tailLen trailing bytes. The
// tail never overlaps the head.
func readWindow(ctx context.Context, ra io.ReaderAt, size int64, headLen, tailLen int) (*Window, error) {
	if ra == nil {
		return nil, ErrNilSource
	}
	if size < 0 {
		return nil, fmt.Errorf("source: negative size %d", size)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := &Window{size: size}

	w.head = make([]byte, min(int64(headLen), size))
	if err := readFullAt(ra, w.head, 0); err != nil {
		return nil, fmt.Errorf("failed to read head: %w", err)
	}

	tailStart := max(size-int64(tailLen), int64(len(w.head)))
	if tailStart < size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w.tail = make([]byte, size-tailStart)
		if err := readFullAt(ra, w.tail, tailStart); err != nil {
			return nil, fmt.Errorf("failed to read tail: %w", err)
		}
	}

	return w, nil
}

func readFullAt(ra io.ReaderAt, buf []byte, off int64) error {
	if len(buf) == 0 {
		return nil
	}
	n, err := ra.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// FromFile opens path and reads its required head and tail.
func FromFile(ctx context.Context, path string) (*Window, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("source: %s is not a regular file", path)
	}

	return FromReaderAt(ctx, f, info.Size())
}

// FromReader reads the required head of r and returns it together with
// a reader that yields the complete original content. When r ends
// within the head the whole source is known and negative indices
// resolve; otherwise only the head is available.
func FromReader(ctx context.Context, r io.Reader) (*Window, io.Reader, error) {
	if r == nil {
		return nil, nil, ErrNilSource
	}
	if err := ctx.Err(); err != nil {
		return nil, r, err
	}

	headLen, _ := Span()
	buf := make([]byte, headLen)
	n, err := io.ReadFull(r, buf)
	buf = buf[:n]

	switch {
	case err == nil:
		return &Window{head: buf, size: -1}, io.MultiReader(bytes.NewReader(buf), r), nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return FromBytes(buf), bytes.NewReader(buf), nil
	default:
		return &Window{head: buf, size: -1}, io.MultiReader(bytes.NewReader(buf), errReader{err}), fmt.Errorf("failed to read head: %w", err)
	}
}

// errReader is an io.Reader which just returns err.
type errReader struct{ err error }

func (er errReader) Read([]byte) (int, error) { return 0, er.err }
