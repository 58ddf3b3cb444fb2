package source

import (
	"context"
	"io"
	"net/http"
)

// readCloser rejoins a replay reader with the original body's Close.
type readCloser struct {
	io.Reader
	io.Closer
}

// PeekRequest reads the required head of req.Body and restores the body
// so the request can still be forwarded or handled.
func PeekRequest(req *http.Request) (*Window, error) {
	if req == nil {
		return nil, ErrNilSource
	}
	w, body, err := peekBody(req.Context(), req.Body, req.ContentLength)
	if body != nil {
		req.Body = body
	}
	return w, err
}

// PeekResponse reads the required head of resp.Body and restores the
// body for the next consumer.
func PeekResponse(resp *http.Response) (*Window, error) {
	if resp == nil {
		return nil, ErrNilSource
	}
	ctx := context.Background()
	if resp.Request != nil {
		ctx = resp.Request.Context()
	}
	w, body, err := peekBody(ctx, resp.Body, resp.ContentLength)
	if body != nil {
		resp.Body = body
	}
	return w, err
}

func peekBody(ctx context.Context, body io.ReadCloser, contentLength int64) (*Window, io.ReadCloser, error) {
	if body == nil || body == http.NoBody {
		return FromBytes(nil), nil, nil
	}
	w, replay, err := FromReader(ctx, body)
	if replay == nil {
		return w, nil, err
	}
	if w != nil && w.size < 0 && contentLength >= 0 && int64(len(w.head)) == contentLength {
		w.size = contentLength
	}
	return w, readCloser{Reader: replay, Closer: body}, err
}
