package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/config"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/fetcher"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

const flatSitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://wiki.example.org/Page_One</loc><lastmod>2024-05-01T12:00:00Z</lastmod></url>
  <url><loc>https://wiki.example.org/Page_Two</loc></url>
</urlset>`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T) *fetcher.Client {
	t.Helper()
	c, err := fetcher.New(config.DefaultConfig(), discardLogger())
	if err != nil {
		t.Fatalf("fetcher.New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// --- Flat sitemaps ---

func TestFetchFlat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, flatSitemap)
	}))
	defer srv.Close()

	entries, err := Fetch(context.Background(), newClient(t), discardLogger(), srv.URL+"/sitemap.xml")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Loc != "https://wiki.example.org/Page_One" {
		t.Errorf("loc = %q", entries[0].Loc)
	}
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if entries[0].LastMod == nil || !entries[0].LastMod.Equal(want) {
		t.Errorf("lastmod = %v, want %v", entries[0].LastMod, want)
	}
	if entries[1].LastMod != nil {
		t.Errorf("missing lastmod should be nil, got %v", entries[1].LastMod)
	}
}

// --- Sitemap indexes ---

func TestFetchIndexRecurses(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>`+srv.URL+`/sitemap-1.xml</loc></sitemap>
  <sitemap><loc>`+srv.URL+`/sitemap-2.xml</loc></sitemap>
</sitemapindex>`)
	})
	sub := func(loc string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/xml")
			io.WriteString(w, `<urlset><url><loc>`+loc+`</loc></url></urlset>`)
		}
	}
	mux.HandleFunc("/sitemap-1.xml", sub("https://wiki.example.org/A"))
	mux.HandleFunc("/sitemap-2.xml", sub("https://wiki.example.org/B"))

	entries, err := Fetch(context.Background(), newClient(t), discardLogger(), srv.URL+"/sitemap.xml")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}

// --- Gzip handling ---

func TestFetchGzipOnly(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte(flatSitemap))
	gz.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-gzip")
		w.Write(buf.Bytes())
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html>sitemap feature disabled</html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	entries, err := FetchGzipOnly(context.Background(), newClient(t), discardLogger(), srv.URL+"/gzip")
	if err != nil {
		t.Fatalf("FetchGzipOnly on gzip payload: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}

	_, err = FetchGzipOnly(context.Background(), newClient(t), discardLogger(), srv.URL+"/plain")
	if !errors.Is(err, types.ErrNoSitemap) {
		t.Errorf("plain payload should be ErrNoSitemap, got %v", err)
	}
}

func TestFetchMissing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Fetch(context.Background(), newClient(t), discardLogger(), srv.URL+"/sitemap.xml")
	if !errors.Is(err, types.ErrNoSitemap) {
		t.Errorf("404 should be ErrNoSitemap, got %v", err)
	}
}
