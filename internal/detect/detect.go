// Package detect classifies which wiki software produced a fetched page.
package detect

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

// Detector classifies fetched wiki pages by software platform.
type Detector struct {
	logger *slog.Logger
}

// New creates a Detector.
func New(logger *slog.Logger) *Detector {
	return &Detector{logger: logger.With("component", "detect")}
}

var wikidotDomainPattern = regexp.MustCompile(`WIKIREQUEST\.info\.domain\s*=\s*"([^"]+)"`)

// hostPlatforms maps hostname suffixes of canonical URLs to platforms.
// Checked only against vendor-controlled URL signals (canonical, og:url,
// the resolved URL itself), never against page content.
var hostPlatforms = []struct {
	suffix   string
	platform types.Platform
}{
	{"fextralife.com", types.PlatformFextralife},
	{"wikidot.com", types.PlatformWikidot},
	{"minmax.wiki", types.PlatformMinMax},
}

// Detect classifies the page. The checks run as an ordered decision list,
// first match wins: strong vendor-specific signals rank above guessable
// heuristics like title suffixes, so an odd title can never shadow a
// generator tag.
func (d *Detector) Detect(doc *goquery.Document, pageURL string) (types.Platform, bool) {
	// 1. Generator meta tag.
	if generator, ok := doc.Find(`meta[name="generator"]`).Attr("content"); ok {
		switch {
		case strings.HasPrefix(generator, "MediaWiki"):
			return types.PlatformMediaWiki, true
		case generator == "DokuWiki":
			return types.PlatformDokuWiki, true
		}
	}

	// 2. Canonical URL hostname.
	for _, candidate := range canonicalURLs(doc, pageURL) {
		if platform, ok := platformForHost(candidate); ok {
			return platform, true
		}
	}

	// 3. Wikidot's inline WIKIREQUEST script.
	if script := findScript(doc, "WIKIREQUEST.info"); script != "" {
		if m := wikidotDomainPattern.FindStringSubmatch(script); m != nil {
			if !strings.HasSuffix(m[1], "wikidot.com") {
				d.logger.Warn("wikidot script found on a custom domain, treating as wikidot anyway",
					"domain", m[1])
			}
		}
		return types.PlatformWikidot, true
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	// 4. MinMax title suffix.
	if strings.HasSuffix(title, "| MinMax") {
		return types.PlatformMinMax, true
	}

	// 5. MediaWiki body class, kept by most mirror front-ends that strip
	// the generator tag.
	if class, ok := doc.Find("body").Attr("class"); ok {
		for _, c := range strings.Fields(class) {
			if c == "mediawiki" {
				return types.PlatformMediaWiki, true
			}
		}
	}

	// 6. MediaWiki content container, for skins without the body class.
	if doc.Find(`#mw-content-text .mw-parser-output`).Length() > 0 {
		return types.PlatformMediaWiki, true
	}

	// 7. Very old MediaWiki installs answer api.php with this title.
	if title == "MediaWiki API" {
		return types.PlatformMediaWiki, true
	}

	return "", false
}

// canonicalURLs collects the URL signals usable for hostname matching.
func canonicalURLs(doc *goquery.Document, pageURL string) []string {
	var urls []string
	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		urls = append(urls, href)
	}
	if content, ok := doc.Find(`meta[property="og:url"]`).Attr("content"); ok {
		urls = append(urls, content)
	}
	if pageURL != "" {
		urls = append(urls, pageURL)
	}
	return urls
}

func platformForHost(rawURL string) (types.Platform, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	host := u.Hostname()
	for _, hp := range hostPlatforms {
		if host == hp.suffix || strings.HasSuffix(host, "."+hp.suffix) {
			return hp.platform, true
		}
	}
	return "", false
}

// findScript returns the text of the first inline script containing marker.
func findScript(doc *goquery.Document, marker string) string {
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
