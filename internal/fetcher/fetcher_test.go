package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/config"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.RequestTimeout = 5 * time.Second
	c, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// --- URL helpers ---

func TestNormalizeURLProtocol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.org", "https://example.org"},
		{"//example.org/wiki", "https://example.org/wiki"},
		{"http://example.org", "http://example.org"},
		{"https://example.org", "https://example.org"},
	}
	for _, tt := range tests {
		if got := NormalizeURLProtocol(tt.in); got != tt.want {
			t.Errorf("NormalizeURLProtocol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnsureAbsoluteURL(t *testing.T) {
	tests := []struct {
		subject string
		donor   string
		want    string
	}{
		{"/favicon.ico", "https://wiki.example.org/page", "https://wiki.example.org/favicon.ico"},
		{"//cdn.example.org/icon.png", "https://wiki.example.org", "https://cdn.example.org/icon.png"},
		{"https://other.org/x.png", "https://wiki.example.org", "https://other.org/x.png"},
	}
	for _, tt := range tests {
		if got := EnsureAbsoluteURL(tt.subject, tt.donor); got != tt.want {
			t.Errorf("EnsureAbsoluteURL(%q, %q) = %q, want %q", tt.subject, tt.donor, got, tt.want)
		}
	}
}

func TestExtractBaseURL(t *testing.T) {
	got := ExtractBaseURL("https://wiki.example.org/wiki/Main_Page?action=view")
	if got != "https://wiki.example.org" {
		t.Errorf("ExtractBaseURL = %q", got)
	}
}

func TestStripQuery(t *testing.T) {
	got := StripQuery("https://wiki.example.org/w/api.php?action=rsd#frag")
	if got != "https://wiki.example.org/w/api.php" {
		t.Errorf("StripQuery = %q", got)
	}
}

func TestNormalizeWikiaURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://es.zelda.wikia.com/wiki/Link", "https://zelda.fandom.com/es/wiki/Link"},
		{"pt-br.halo.wikia.com", "https://halo.fandom.com/pt-br"},
		{"https://zelda.fandom.com/wiki/Link", "https://zelda.fandom.com/wiki/Link"},
	}
	for _, tt := range tests {
		if got := NormalizeWikiaURL(tt.in); got != tt.want {
			t.Errorf("NormalizeWikiaURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- Fetching ---

func TestGetDecompressesGzip(t *testing.T) {
	const page = "<html><body class=\"mediawiki\">hi</body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte(page))
		gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(resp.Body) != page {
		t.Errorf("body = %q, want %q", resp.Body, page)
	}
}

func TestGetRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.Get(context.Background(), srv.URL)
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", fe.StatusCode)
	}
	if fe.RetryAfter != 7*time.Second {
		t.Errorf("retry after = %s, want 7s", fe.RetryAfter)
	}
	if !fe.IsRetryable() {
		t.Error("429 should be retryable")
	}
}

func TestGetReturnsNotFoundResponse(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Get(context.Background(), srv.URL+"/doku.php")
	if err != nil {
		t.Fatalf("Get on 404 should not error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.IsSuccess() {
		t.Error("404 must not be success")
	}
}

func TestGetServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.Get(context.Background(), srv.URL)
	var fe *types.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 FetchError, got %v", err)
	}
}

func TestResolveFallsBackToHTTP(t *testing.T) {
	// A plain HTTP server: speaking TLS to it fails the handshake, which is
	// exactly the situation the fallback exists for.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html>ok</html>")
	}))
	defer srv.Close()

	hostPort := strings.TrimPrefix(srv.URL, "http://")

	c := newTestClient(t)
	resp, err := c.Resolve(context.Background(), "https://"+hostPort)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resp.Protocol != "http" {
		t.Errorf("protocol = %q, want http", resp.Protocol)
	}
	if !strings.Contains(string(resp.Body), "ok") {
		t.Errorf("unexpected body %q", resp.Body)
	}
}

func TestResolveNormalizesBareHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hello")
	}))
	defer srv.Close()

	hostPort := strings.TrimPrefix(srv.URL, "http://")

	c := newTestClient(t)
	resp, err := c.Resolve(context.Background(), hostPort)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

// --- Helpers ---

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		// The transport reports plain-HTTP answers to HTTPS requests as a
		// scheme mismatch, wrapped in a url.Error.
		{"scheme mismatch", http.ErrSchemeMismatch, true},
		{"wrapped scheme mismatch", &url.Error{Op: "Get", URL: "https://wiki.example.org", Err: http.ErrSchemeMismatch}, true},
		{"tls alert", errors.New("remote error: tls: handshake failure"), true},
		{"dns failure", errors.New("lookup wiki.example.org: no such host"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.want {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 30 * time.Second},
		{"10", 10 * time.Second},
		{"600", 120 * time.Second},
		{"garbage", 30 * time.Second},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.header, 30*time.Second); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %s, want %s", tt.header, got, tt.want)
		}
	}
}

func TestIsTextContent(t *testing.T) {
	tests := []struct {
		ct   string
		want bool
	}{
		{"text/html; charset=iso-8859-1", true},
		{"application/json", true},
		{"application/xml", true},
		{"image/png", false},
		{"application/x-gzip", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isTextContent(tt.ct); got != tt.want {
			t.Errorf("isTextContent(%q) = %v, want %v", tt.ct, got, tt.want)
		}
	}
}
