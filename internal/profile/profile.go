// Package profile extracts wiki metadata and activity statistics from live
// wikis, with one profiler per supported platform.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/config"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/detect"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/fetcher"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

// Profiler resolves wiki URLs, detects the platform and extracts metadata.
type Profiler struct {
	client   *fetcher.Client
	detector *detect.Detector
	cfg      *config.Config
	logger   *slog.Logger
}

// New creates a Profiler.
func New(client *fetcher.Client, detector *detect.Detector, cfg *config.Config, logger *slog.Logger) *Profiler {
	return &Profiler{
		client:   client,
		detector: detector,
		cfg:      cfg,
		logger:   logger.With("component", "profile"),
	}
}

// ProfileWiki resolves rawURL, detects which wiki software serves it and
// extracts its metadata. With fullProfile set, activity statistics are
// collected as well, which costs extra requests. Legacy Wikia URLs are
// rewritten to their Fandom form before the first request, since the old
// hosts no longer resolve.
func (p *Profiler) ProfileWiki(ctx context.Context, rawURL string, fullProfile bool) (*types.WikiMetadata, error) {
	target := fetcher.NormalizeWikiaURL(rawURL)
	if target != rawURL {
		p.logger.Info("rewrote legacy wikia url", "from", rawURL, "to", target)
	}

	resp, err := p.client.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &types.FetchError{URL: resp.FinalURL, StatusCode: resp.StatusCode}
	}

	doc, err := resp.Document()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", resp.FinalURL, err)
	}
	platform, ok := p.detector.Detect(doc, resp.FinalURL)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownPlatform, resp.FinalURL)
	}
	p.logger.Info("detected platform", "url", resp.FinalURL, "platform", platform)

	return p.Profile(ctx, resp, platform, fullProfile)
}

// Profile extracts metadata from an already-fetched page of a known
// platform. The switch is total over the supported platforms.
func (p *Profiler) Profile(ctx context.Context, resp *types.Response, platform types.Platform, fullProfile bool) (*types.WikiMetadata, error) {
	switch platform {
	case types.PlatformMediaWiki:
		return p.profileMediaWiki(ctx, resp, fullProfile)
	case types.PlatformFextralife:
		return p.profileFextralife(ctx, resp, fullProfile)
	case types.PlatformDokuWiki:
		return p.profileDokuWiki(ctx, resp, fullProfile)
	case types.PlatformWikidot:
		return p.profileWikidot(ctx, resp, fullProfile)
	case types.PlatformMinMax:
		return p.profileMinMax(ctx, resp, fullProfile)
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownPlatform, platform)
	}
}

// windowStart returns the cutoff before now for "recent" activity.
func (p *Profiler) windowStart(now time.Time) time.Time {
	return now.Add(-p.cfg.LookbackWindow())
}

// findInlineScript returns the text of the first inline script containing
// marker.
func findInlineScript(doc *goquery.Document, marker string) string {
	var found string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := s.Text(); strings.Contains(text, marker) {
			found = text
			return false
		}
		return true
	})
	return found
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(n int) *int {
	return &n
}

func timePtr(t time.Time) *time.Time {
	return &t
}
