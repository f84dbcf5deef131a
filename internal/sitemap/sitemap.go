// Package sitemap retrieves and parses sitemap XML, including gzipped
// payloads and nested sitemap indexes.
package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

// Entry is one URL row of a sitemap.
type Entry struct {
	Loc     string
	LastMod *time.Time
}

// Getter is the fetching capability the package needs.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*types.Response, error)
}

type sitemapXML struct {
	XMLName  xml.Name   `xml:""`
	URLs     []entryXML `xml:"url"`
	Sitemaps []entryXML `xml:"sitemap"`
}

type entryXML struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// Fetch retrieves the sitemap at the given URL. Sub-sitemaps of a sitemap
// index are fetched and flattened into one list. A 404 or an empty body
// yields ErrNoSitemap.
func Fetch(ctx context.Context, g Getter, logger *slog.Logger, sitemapURL string) ([]Entry, error) {
	return fetch(ctx, g, logger, sitemapURL, false)
}

// FetchGzipOnly behaves like Fetch but treats a non-gzipped response as
// "no sitemap". DokuWiki answers doku.php?do=sitemap with a plain HTML page
// when the sitemap feature is off, so only a gzip payload counts.
func FetchGzipOnly(ctx context.Context, g Getter, logger *slog.Logger, sitemapURL string) ([]Entry, error) {
	return fetch(ctx, g, logger, sitemapURL, true)
}

func fetch(ctx context.Context, g Getter, logger *slog.Logger, sitemapURL string, gzipOnly bool) ([]Entry, error) {
	resp, err := g.Get(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: %s returned status %d", types.ErrNoSitemap, sitemapURL, resp.StatusCode)
	}

	body := resp.Body
	gzipped := isGzip(resp.ContentType, body)
	if gzipOnly && !gzipped {
		return nil, fmt.Errorf("%w: %s did not answer with a gzipped sitemap", types.ErrNoSitemap, sitemapURL)
	}
	if gzipped {
		body, err = gunzip(body)
		if err != nil {
			return nil, fmt.Errorf("decompress sitemap %s: %w", sitemapURL, err)
		}
	}

	var parsed sitemapXML
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", sitemapURL, err)
	}

	// A sitemap index lists further sitemaps rather than pages.
	if parsed.XMLName.Local == "sitemapindex" || len(parsed.Sitemaps) > 0 {
		var all []Entry
		for _, sub := range parsed.Sitemaps {
			subEntries, err := fetch(ctx, g, logger, strings.TrimSpace(sub.Loc), false)
			if err != nil {
				logger.Warn("sub-sitemap failed", "url", sub.Loc, "error", err)
				continue
			}
			all = append(all, subEntries...)
		}
		return all, nil
	}

	entries := make([]Entry, 0, len(parsed.URLs))
	for _, u := range parsed.URLs {
		entries = append(entries, Entry{
			Loc:     strings.TrimSpace(u.Loc),
			LastMod: parseLastMod(u.LastMod),
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s contained no URLs", types.ErrNoSitemap, sitemapURL)
	}
	return entries, nil
}

func isGzip(contentType string, body []byte) bool {
	if strings.Contains(contentType, "gzip") {
		return true
	}
	return len(body) > 2 && body[0] == 0x1f && body[1] == 0x8b
}

func gunzip(body []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

var lastModLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02",
}

// parseLastMod parses a sitemap lastmod value to UTC, nil when absent or
// unparseable.
func parseLastMod(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range lastModLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
