package backend

import (
	"encoding/hex"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/grokify/omnisniff/pkg/suggest"
)

// Origins for records produced by the OmniSniff surfaces.
const (
	OriginAPI   = "api"
	OriginProxy = "proxy"
	OriginCLI   = "cli"
)

// Record is a stored sniff result.
type Record struct {
	ID     string `json:"id"`
	Origin string `json:"origin"`

	// Source is the file name, URL or path the payload came from.
	Source string `json:"source,omitempty"`
	// Host is the request host for proxied and API traffic.
	Host string `json:"host,omitempty"`

	// Size is the payload size, or -1 if unknown.
	Size int64 `json:"size"`
	// WindowSize is the number of bytes the match was made from.
	WindowSize int `json:"windowSize"`
	// Digest is the hex BLAKE2b-256 of the sniffed bytes.
	Digest string `json:"digest,omitempty"`

	ByExtension []string  `json:"byExtension"`
	ByMagic     []string  `json:"byMagic"`
	MediaTypes  []string  `json:"mediaTypes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewRecord builds a Record from a suggestion. The record's Source is the
// suggestion's name; callers may override it and set Host.
func NewRecord(origin string, s *suggest.Suggestion) *Record {
	rec := &Record{
		ID:          uuid.NewString(),
		Origin:      origin,
		Size:        -1,
		ByExtension: []string{},
		ByMagic:     []string{},
		MediaTypes:  []string{},
		CreatedAt:   time.Now().UTC(),
	}
	if s == nil {
		return rec
	}
	rec.Source = s.Name
	rec.ByExtension = s.ByExtension.Sorted()
	rec.ByMagic = s.ByMagic.Sorted()
	rec.MediaTypes = s.All.Sorted()
	if s.Window != nil {
		b := s.Window.Bytes()
		rec.Size = s.Window.Size()
		rec.WindowSize = len(b)
		rec.Digest = Digest(b)
	}
	return rec
}

// Digest returns the hex-encoded BLAKE2b-256 hash of b.
func Digest(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Unmatched reports whether no magic number matched.
func (r *Record) Unmatched() bool {
	return len(r.ByMagic) == 0
}

// match reports whether the record satisfies the filter's criteria,
// ignoring pagination.
func (f *ResultFilter) match(r *Record) bool {
	if f == nil {
		return true
	}
	if !f.StartTime.IsZero() && r.CreatedAt.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && r.CreatedAt.After(f.EndTime) {
		return false
	}
	if len(f.Origins) > 0 && !slices.Contains(f.Origins, r.Origin) {
		return false
	}
	if f.MediaType != "" && !slices.Contains(r.MediaTypes, f.MediaType) {
		return false
	}
	if f.Unmatched && !r.Unmatched() {
		return false
	}
	return true
}

// page applies the filter's offset and limit to recs.
func (f *ResultFilter) page(recs []*Record) []*Record {
	if f == nil {
		return recs
	}
	if f.Offset > 0 {
		if f.Offset >= len(recs) {
			return nil
		}
		recs = recs[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(recs) {
		recs = recs[:f.Limit]
	}
	return recs
}

// statsOf aggregates statistics over recs.
func statsOf(recs []*Record) *ResultStats {
	stats := &ResultStats{
		ByOrigin: make(map[string]int64),
		ByMagic:  make(map[string]int64),
	}
	digests := make(map[string]struct{})
	for _, r := range recs {
		stats.Total++
		stats.ByOrigin[r.Origin]++
		if r.Size > 0 {
			stats.TotalBytes += r.Size
		}
		if r.Unmatched() {
			stats.Unmatched++
		}
		for _, mt := range r.ByMagic {
			stats.ByMagic[mt]++
		}
		switch {
		case len(r.ByExtension) > 0 && len(r.ByMagic) == 0:
			stats.ExtensionOnly++
		case len(r.ByMagic) > 0 && len(r.ByExtension) == 0:
			stats.MagicOnly++
		}
		if r.Digest != "" {
			digests[r.Digest] = struct{}{}
		}
	}
	stats.UniqueDigests = int64(len(digests))
	return stats
}
