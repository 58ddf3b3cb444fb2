// Package proxy provides a sniffing HTTP forward proxy using goproxy.
//
// Every plain HTTP response that passes through the proxy has its body
// prefix matched against the magic number tables. The suggested media
// types are added as a response header and stored as a sniff result.
// HTTPS CONNECT tunnels pass through untouched.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/grokify/mogo/log/slogutil"

	"github.com/grokify/omnisniff/pkg/backend"
	"github.com/grokify/omnisniff/pkg/mediatype"
	"github.com/grokify/omnisniff/pkg/observability"
	"github.com/grokify/omnisniff/pkg/suggest"
)

// Response headers set by the proxy.
const (
	HeaderMediaTypes = "X-Sniffed-Media-Types"
	HeaderMismatch   = "X-Sniffed-Mismatch"
)

// Proxy represents a sniffing HTTP proxy server.
type Proxy struct {
	server  *goproxy.ProxyHttpServer
	store   backend.ResultStore
	metrics *observability.Metrics
	logger  *slog.Logger
	config  *Config
}

// Config holds proxy configuration options.
type Config struct {
	// Port to listen on
	Port int
	// Verbose enables goproxy's own request logging
	Verbose bool
	// SetHeader adds the sniff headers to proxied responses
	SetHeader bool
	// SkipHosts is a list of hosts whose responses are not sniffed
	SkipHosts []string
	// Upstream is the upstream proxy URL (e.g., http://proxy:8080)
	Upstream string
	// Store receives one record per sniffed response (optional)
	Store backend.ResultStore
	// Metrics records sniff metrics (optional)
	Metrics *observability.Metrics
	// Logger for proxy events (optional)
	Logger *slog.Logger
}

// DefaultConfig returns default proxy configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:      8080,
		Verbose:   false,
		SetHeader: true,
		SkipHosts: []string{},
	}
}

// New creates a new proxy with the given configuration.
func New(cfg *Config) (*Proxy, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slogutil.Null()
	}

	store := cfg.Store
	if store == nil {
		store = backend.DiscardResultStore{}
	}

	server := goproxy.NewProxyHttpServer()
	server.Verbose = cfg.Verbose
	server.Logger = printfLogger{logger: logger}

	p := &Proxy{
		server:  server,
		store:   store,
		metrics: cfg.Metrics,
		logger:  logger,
		config:  cfg,
	}

	if cfg.Upstream != "" {
		if err := p.setupUpstream(cfg.Upstream); err != nil {
			return nil, err
		}
	}

	p.server.OnResponse().DoFunc(p.sniffResponse)

	return p, nil
}

// setupUpstream configures upstream proxy chaining.
func (p *Proxy) setupUpstream(upstreamURL string) error {
	upstream, err := url.Parse(upstreamURL)
	if err != nil {
		return fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return fmt.Errorf("invalid upstream URL: %q", upstreamURL)
	}

	p.server.Tr = &http.Transport{
		Proxy: http.ProxyURL(upstream),
	}

	// For CONNECT requests, use the upstream proxy
	p.server.ConnectDial = p.server.NewConnectDialToProxy(upstreamURL)

	return nil
}

// sniffResponse matches the response body prefix and annotates the
// response. The body is restored before the response is returned.
func (p *Proxy) sniffResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	if resp == nil || ctx.Req == nil {
		return resp
	}
	host := ctx.Req.URL.Hostname()
	for _, skip := range p.config.SkipHosts {
		if matchWildcard(skip, host) {
			return resp
		}
	}

	reqCtx := ctx.Req.Context()
	start := time.Now()

	s, err := suggest.Response(resp)
	if err != nil {
		p.logger.WarnContext(reqCtx, "failed to sniff response",
			"url", ctx.Req.URL.String(), "error", err)
		if p.metrics != nil {
			p.metrics.RecordSniffError(reqCtx, backend.OriginProxy)
		}
		return resp
	}

	byMagic := s.ByMagic.Sorted()
	if p.metrics != nil {
		p.metrics.RecordSniff(reqCtx, backend.OriginProxy, len(s.Window.Bytes()), time.Since(start), byMagic)
	}

	declared := declaredType(resp.Header.Get("Content-Type"))
	mismatch := isMismatch(declared, s.ByMagic)

	if p.config.SetHeader {
		resp.Header.Set(HeaderMediaTypes, strings.Join(s.All.Sorted(), ", "))
		if mismatch {
			resp.Header.Set(HeaderMismatch, "true")
		}
	}

	logger := p.logger.With("url", ctx.Req.URL.String(), "mediaTypes", byMagic)
	if mismatch {
		logger.InfoContext(reqCtx, "content type mismatch", "declared", declared)
	} else {
		logger.DebugContext(reqCtx, "sniffed response")
	}

	rec := backend.NewRecord(backend.OriginProxy, s)
	rec.Source = ctx.Req.URL.String()
	rec.Host = host
	p.storeRecord(reqCtx, rec)

	return resp
}

func (p *Proxy) storeRecord(ctx context.Context, rec *backend.Record) {
	if err := p.store.Store(ctx, rec); err != nil {
		p.logger.WarnContext(ctx, "failed to store sniff result", "id", rec.ID, "error", err)
	}
}

// declaredType returns the lowercased media type of a Content-Type
// header, or "" if it cannot be parsed.
func declaredType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}

// isMismatch reports whether a declared type the tables know disagrees
// with a non-empty magic match.
func isMismatch(declared string, byMagic mediatype.Set) bool {
	return mediatype.IsSupported(declared) && byMagic.Len() > 0 && !byMagic.Has(declared)
}

// Server returns the underlying goproxy server.
func (p *Proxy) Server() *goproxy.ProxyHttpServer {
	return p.server
}

// Handler returns the proxy as an http.Handler.
func (p *Proxy) Handler() http.Handler {
	return p.server
}

// ListenAndServe starts the proxy server.
func (p *Proxy) ListenAndServe(addr string) error {
	p.logger.Info("OmniSniff proxy listening", "addr", addr)
	if p.config.Upstream != "" {
		p.logger.Info("forwarding through upstream proxy", "upstream", p.config.Upstream)
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           p.server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}

// matchWildcard performs simple wildcard matching (e.g., *.example.com).
func matchWildcard(pattern, host string) bool {
	if len(pattern) == 0 {
		return false
	}
	if pattern[0] == '*' {
		suffix := pattern[1:]
		return len(host) >= len(suffix) && host[len(host)-len(suffix):] == suffix
	}
	return pattern == host
}

// printfLogger routes goproxy's verbose output to slog.
type printfLogger struct {
	logger *slog.Logger
}

func (l printfLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goproxy")
}
