package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/config"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

// Client fetches wiki pages over HTTP. It follows redirects, decompresses
// bodies, decodes text to UTF-8, and implements the HTTPS-to-HTTP fallback
// policy for wikis with broken TLS.
type Client struct {
	client *http.Client
	cfg    *config.HTTPConfig
	logger *slog.Logger
}

// New creates a new wiki fetcher.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.HTTP.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTP.MaxIdleConns,
		IdleConnTimeout:     cfg.HTTP.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // We handle decompression ourselves (including brotli)
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if len(via) >= cfg.HTTP.MaxRedirects {
			return fmt.Errorf("max redirects (%d) reached", cfg.HTTP.MaxRedirects)
		}
		return nil
	}

	client := &http.Client{
		Transport:     transport,
		Jar:           jar,
		Timeout:       cfg.HTTP.RequestTimeout,
		CheckRedirect: redirectPolicy,
	}

	return &Client{
		client: client,
		cfg:    &cfg.HTTP,
		logger: logger.With("component", "fetcher"),
	}, nil
}

// Resolve normalizes a possibly scheme-less URL and fetches it, falling back
// to plain HTTP exactly once when HTTPS fails at the transport level. A
// transport failure that is not TLS-related is retried once on a fresh
// connection instead. The second failure propagates.
func (c *Client) Resolve(ctx context.Context, rawURL string) (*types.Response, error) {
	target := NormalizeURLProtocol(rawURL)

	resp, err := c.Get(ctx, target)
	if err == nil {
		return resp, nil
	}

	var fe *types.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != 0 {
		// HTTP-level failures never trigger the fallback.
		return nil, err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	// Session reset: drop pooled connections before any second attempt.
	c.client.CloseIdleConnections()

	if strings.HasPrefix(target, "https://") && isConnectionError(fe.Err) {
		fallback := "http://" + strings.TrimPrefix(target, "https://")
		c.logger.Warn("https fetch failed, retrying over plain http",
			"url", target, "error", fe.Err)
		return c.Get(ctx, fallback)
	}

	if fe.IsRetryable() {
		c.logger.Debug("transport failure, retrying once on a fresh connection",
			"url", target, "error", fe.Err)
		return c.Get(ctx, target)
	}

	return nil, err
}

// Get executes a single GET request. HTTP 4xx responses are returned to the
// caller (who decides what a 404 means); 429 and 5xx become FetchErrors.
func (c *Client) Get(ctx context.Context, rawURL string) (*types.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: false}
	}

	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	httpResp, err := c.client.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		return nil, &types.FetchError{
			URL:       rawURL,
			Err:       err,
			Retryable: isRetryableError(err),
		}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(httpResp.Header.Get("Retry-After"), c.cfg.RateLimitWait)
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("HTTP 429: rate limited (retry after %s): %s", retryAfter, strings.TrimSpace(string(body))),
			Retryable:  true,
			RetryAfter: retryAfter,
		}
	}

	if httpResp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1024))
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, string(body)),
			Retryable:  true,
		}
	}

	var reader io.Reader = httpResp.Body
	if c.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, c.cfg.MaxBodySize)
	}

	reader, err = decompressReader(httpResp, reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: false}
	}

	contentType := httpResp.Header.Get("Content-Type")
	if isTextContent(contentType) {
		// Convert legacy encodings to UTF-8 before parsing.
		reader, err = charset.NewReader(reader, contentType)
		if err != nil {
			return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: false}
		}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: err, Retryable: true}
	}

	resp := types.NewResponse(httpResp, body)

	c.logger.Debug("fetch complete",
		"url", rawURL,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", duration,
	)

	return resp, nil
}

// Close releases pooled connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// isTextContent reports whether charset conversion is safe for the payload.
// Binary payloads (icons, gzipped sitemaps) must pass through untouched.
func isTextContent(contentType string) bool {
	ct := strings.ToLower(contentType)
	if ct == "" {
		return false
	}
	return strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "html") ||
		strings.Contains(ct, "xml") ||
		strings.Contains(ct, "json")
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// isConnectionError reports whether the error is a TLS or connection-level
// failure, the cases where falling back to plain HTTP can help.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	// The transport swallows the TLS record-header error when the server
	// answers an HTTPS request in plain HTTP, reporting a scheme mismatch
	// instead.
	if errors.Is(err, http.ErrSchemeMismatch) {
		return true
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return true
	}
	var authErr x509.UnknownAuthorityError
	if errors.As(err, &authErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	// Server-side TLS alerts surface as opaque remote errors.
	return strings.Contains(err.Error(), "tls:") ||
		strings.Contains(err.Error(), "remote error")
}

// isRetryableError checks if a network error warrants a retry.
// Covers timeouts, connection resets, unexpected EOF, and connection refused.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Context cancellation is NOT retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if netErr, ok := err.(net.Error); ok {
		if netErr.Timeout() {
			return true
		}
	}
	return isConnectionError(err)
}

// parseRetryAfter parses the Retry-After header value.
// Supports both integer seconds and HTTP-date formats.
func parseRetryAfter(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}
	// Try seconds integer
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120 // cap at 2 minutes
		}
		return time.Duration(secs) * time.Second
	}
	// Try HTTP-date
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return fallback
}
