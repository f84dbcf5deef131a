package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/favicon"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/fetcher"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/sitemap"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

// dokuwikiNonContentNamespaces are top-level namespaces conventionally used
// for non-content pages. DokuWiki itself makes no technical distinction.
var dokuwikiNonContentNamespaces = map[string]bool{
	"user":       true,
	"editors":    true,
	"test":       true,
	"sandbox":    true,
	"playground": true,
	"wiki":       true,
}

var jsinfoIDPattern = regexp.MustCompile(`"id":\s*"(.*?)"`)

type dokuwikiManifest struct {
	Name     string `json:"name"`
	StartURL string `json:"start_url"`
}

type dokuwikiChange struct {
	PageType  string
	Namespace string // full namespace, empty for the root
	Action    string
	Author    string
	Published time.Time
}

func (p *Profiler) profileDokuWiki(ctx context.Context, resp *types.Response, fullProfile bool) (*types.WikiMetadata, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", resp.FinalURL, err)
	}
	baseURL := fetcher.ExtractBaseURL(resp.FinalURL)

	// The manifest names the wiki and points at its entry URL.
	manifestHref, ok := doc.Find(`link[rel="manifest"]`).Attr("href")
	if !ok {
		return nil, fmt.Errorf("no manifest link at %s", resp.FinalURL)
	}
	manifestResp, err := p.client.Get(ctx, fetcher.JoinURL(baseURL, manifestHref))
	if err != nil {
		return nil, err
	}
	if !manifestResp.IsSuccess() {
		return nil, &types.FetchError{URL: manifestResp.FinalURL, StatusCode: manifestResp.StatusCode}
	}
	var manifest dokuwikiManifest
	if err := json.Unmarshal(manifestResp.Body, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest from %s: %w", manifestResp.FinalURL, err)
	}

	entryURL := fetcher.JoinURL(baseURL, manifest.StartURL)
	mainResp, err := p.client.Get(ctx, entryURL)
	if err != nil {
		return nil, err
	}
	if !mainResp.IsSuccess() {
		return nil, &types.FetchError{URL: mainResp.FinalURL, StatusCode: mainResp.StatusCode}
	}
	mainPageID, ok := dokuwikiPageID(mainResp)
	if !ok {
		return nil, fmt.Errorf("no JSINFO page id at %s", mainResp.FinalURL)
	}

	// Prefer the main page for the content path; the input URL may carry
	// query noise.
	contentPath, ok := dokuwikiContentPath(mainResp)
	if !ok {
		contentPath, _ = dokuwikiContentPath(resp)
	}

	var iconPath *string
	if u, ok := favicon.DiscoverIconURL(doc, baseURL); ok {
		iconPath = &u
	}

	var licenceName, licencePage *string
	if sel := doc.Find(`div.license > * > a[rel="license"]`).First(); sel.Length() > 0 {
		licenceName = optional(strings.TrimSpace(sel.Text()))
		if href, ok := sel.Attr("href"); ok {
			licencePage = optional(href)
		}
	}

	pageURL, err := resp.URL()
	if err != nil {
		return nil, fmt.Errorf("parse url %s: %w", resp.FinalURL, err)
	}

	meta := &types.WikiMetadata{
		Name:        manifest.Name,
		BaseURL:     pageURL.Hostname(),
		Platform:    types.PlatformDokuWiki,
		Protocol:    resp.Protocol,
		MainPage:    mainPageID,
		ContentPath: contentPath,
		SearchPath:  optional(strings.TrimPrefix(fetcher.JoinURL(entryURL, "doku.php"), baseURL)),
		IconPath:    iconPath,
		LicenceName: licenceName,
		LicencePage: licencePage,
	}
	lang, _ := doc.Find("html").Attr("lang")
	meta.SetLanguage(lang)

	if !fullProfile {
		return meta, nil
	}

	if !strings.HasSuffix(entryURL, "/") {
		entryURL += "/"
	}

	roots, err := p.retrieveDokuWikiPageList(ctx, entryURL)
	if err != nil {
		return nil, err
	}
	contentPages := 0
	for _, root := range roots {
		if !dokuwikiNonContentNamespaces[root] {
			contentPages++
		}
	}
	meta.Activity = &types.Activity{ContentPages: intPtr(contentPages)}

	changes, err := p.retrieveDokuWikiChanges(ctx, entryURL)
	if err != nil {
		return nil, err
	}
	if changes == nil {
		// Feed was empty or unavailable; the activity metrics stay null.
		p.logger.Warn("recent changes feed unavailable", "url", entryURL)
		return meta, nil
	}

	windowEnd := p.windowStart(time.Now().UTC())
	users := make(map[string]struct{})
	editCount := 0
	var latest *time.Time
	for _, c := range changes {
		inWindow := c.Published.After(windowEnd)
		if inWindow && c.Author != "" && c.Author != "Anonymous" {
			users[c.Author] = struct{}{}
		}
		// Content edits exclude deletions, media actions and non-content
		// namespaces.
		rootNS, _, _ := strings.Cut(c.Namespace, ":")
		if c.Action != "delete" && c.PageType == "page" && !dokuwikiNonContentNamespaces[rootNS] {
			if inWindow {
				editCount++
			}
			if latest == nil || c.Published.After(*latest) {
				latest = timePtr(c.Published)
			}
		}
	}
	meta.ActiveUsers = intPtr(len(users))
	meta.RecentEditCount = intPtr(editCount)
	meta.LatestEditTimestamp = latest
	return meta, nil
}

// parseDokuWikiPageID splits a page ID into its top-level namespace, full
// namespace and base name. Pages in the root have empty namespaces.
func parseDokuWikiPageID(pageID string) (rootNS, fullNS, base string) {
	parts := strings.Split(pageID, ":")
	if len(parts) == 1 {
		return "", "", pageID
	}
	return parts[0], strings.Join(parts[:len(parts)-1], ":"), parts[len(parts)-1]
}

// dokuwikiPageID extracts the page ID from the JSINFO blob DokuWiki embeds
// in every page.
func dokuwikiPageID(resp *types.Response) (string, bool) {
	doc, err := resp.Document()
	if err != nil {
		return "", false
	}
	script := findInlineScript(doc, "JSINFO")
	if script == "" {
		return "", false
	}
	m := jsinfoIDPattern.FindStringSubmatch(script)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// dokuwikiContentPath derives the content path by stripping the page ID off
// the end of a known URL for the page.
func dokuwikiContentPath(resp *types.Response) (string, bool) {
	pageID, ok := dokuwikiPageID(resp)
	if !ok {
		return "", false
	}
	doc, err := resp.Document()
	if err != nil {
		return "", false
	}

	candidates := []string{resp.FinalURL}
	doc.Find(`meta[name="og:url"], meta[property="og:url"]`).Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok {
			candidates = append(candidates, content)
		}
	})
	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		candidates = append(candidates, href)
	}

	for _, candidate := range candidates {
		if path, ok := dokuwikiContentPathFromURL(candidate, pageID); ok {
			return path, true
		}
	}
	return "", false
}

func dokuwikiContentPathFromURL(pageURL, pageID string) (string, bool) {
	pageURL = strings.ToLower(pageURL)
	pageID = strings.ToLower(pageID)
	// Some DokuWikis use / instead of : as the namespace delimiter in URLs.
	slashed := strings.ReplaceAll(pageID, ":", "/")

	var fullPath string
	switch {
	case strings.HasSuffix(pageURL, pageID):
		fullPath = strings.TrimSuffix(pageURL, pageID)
	case strings.HasSuffix(pageURL, slashed):
		fullPath = strings.TrimSuffix(pageURL, slashed)
	default:
		return "", false
	}
	return strings.TrimPrefix(fullPath, fetcher.ExtractBaseURL(pageURL)), true
}

// retrieveDokuWikiPageList lists every page's top-level namespace. The
// sitemap needs a single request, so it is preferred; many DokuWikis do not
// configure one, and those get the much slower index walk.
func (p *Profiler) retrieveDokuWikiPageList(ctx context.Context, entryURL string) ([]string, error) {
	entries, err := sitemap.FetchGzipOnly(ctx, p.client, p.logger, fetcher.JoinURL(entryURL, "doku.php")+"?do=sitemap")
	if err == nil {
		roots := make([]string, 0, len(entries))
		for _, e := range entries {
			pageID := strings.ReplaceAll(strings.TrimPrefix(e.Loc, entryURL), "/", ":")
			root, _, _ := parseDokuWikiPageID(pageID)
			roots = append(roots, root)
		}
		return roots, nil
	}
	if !errors.Is(err, types.ErrNoSitemap) {
		p.logger.Warn("sitemap retrieval failed, walking the index instead", "url", entryURL, "error", err)
	}
	return p.retrieveDokuWikiIndex(ctx, entryURL)
}

// retrieveDokuWikiIndex walks the ?do=index page tree, expanding each
// unloaded subdirectory with its own request.
func (p *Profiler) retrieveDokuWikiIndex(ctx context.Context, entryURL string) ([]string, error) {
	resp, err := p.client.Get(ctx, fetcher.JoinURL(entryURL, "doku.php")+"?do=index")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &types.FetchError{URL: resp.FinalURL, StatusCode: resp.StatusCode}
	}
	node, err := resp.HTMLNode()
	if err != nil {
		return nil, err
	}
	root := htmlquery.FindOne(node, `//div[@id="index__tree"]`)
	if root == nil {
		return nil, fmt.Errorf("no index tree at %s", resp.FinalURL)
	}
	return p.walkDokuWikiIndexDir(ctx, entryURL, root)
}

func (p *Profiler) walkDokuWikiIndexDir(ctx context.Context, entryURL string, dir *html.Node) ([]string, error) {
	var roots []string
	for _, a := range htmlquery.Find(dir, `.//a[@class="wikilink1"]`) {
		root, _, _ := parseDokuWikiPageID(htmlquery.SelectAttr(a, "data-wiki-id"))
		roots = append(roots, root)
	}

	for _, sub := range htmlquery.Find(dir, `./ul/li[./div/a[@class="idx_dir"]]`) {
		if htmlquery.FindOne(sub, "./ul") != nil {
			continue // already expanded inline
		}
		link := htmlquery.FindOne(sub, `./div/a[@class="idx_dir"]`)
		if link == nil {
			continue
		}
		title := htmlquery.SelectAttr(link, "title")
		href := htmlquery.SelectAttr(link, "href")
		if strings.Contains(title, `"`) {
			p.logger.Warn("skipping index directory with unquotable title", "title", title)
			continue
		}

		subResp, err := p.client.Get(ctx, fetcher.JoinURL(entryURL, href))
		if err != nil {
			return nil, err
		}
		subNode, err := subResp.HTMLNode()
		if err != nil {
			return nil, err
		}
		expanded := htmlquery.FindOne(subNode, fmt.Sprintf(`//li[./div/a[@title="%s"]]`, title))
		if expanded == nil {
			continue
		}
		subRoots, err := p.walkDokuWikiIndexDir(ctx, entryURL, expanded)
		if err != nil {
			return nil, err
		}
		roots = append(roots, subRoots...)
	}
	return roots, nil
}

// retrieveDokuWikiChanges reads the recent-changes feed. A nil slice with a
// nil error means the feed had no entries.
func (p *Profiler) retrieveDokuWikiChanges(ctx context.Context, entryURL string) ([]dokuwikiChange, error) {
	feedURL := fetcher.JoinURL(entryURL, "feed.php") + "?num=1000&minor=1&mode=recent"
	resp, err := p.client.Get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &types.FetchError{URL: resp.FinalURL, StatusCode: resp.StatusCode}
	}

	feed, err := gofeed.NewParser().ParseString(string(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	if len(feed.Items) == 0 {
		return nil, nil
	}

	changes := make([]dokuwikiChange, 0, len(feed.Items))
	for _, item := range feed.Items {
		pageType, fullNS := parseDokuWikiDiffURL(item.Link)
		c := dokuwikiChange{
			PageType:  pageType,
			Namespace: fullNS,
			Action:    dokuwikiAction(strings.TrimSpace(item.Description)),
		}
		if item.Author != nil {
			c.Author = item.Author.Name
		}
		switch {
		case item.UpdatedParsed != nil:
			c.Published = item.UpdatedParsed.UTC()
		case item.PublishedParsed != nil:
			c.Published = item.PublishedParsed.UTC()
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// parseDokuWikiDiffURL classifies a feed item by its diff link. Media
// actions carry an image parameter; everything else is a page.
func parseDokuWikiDiffURL(diffURL string) (pageType, fullNamespace string) {
	u, err := url.Parse(diffURL)
	if err != nil {
		return "page", ""
	}
	q := u.Query()
	if q.Get("image") != "" {
		return q.Get("do"), q.Get("ns")
	}
	pageID := q.Get("id")
	if pageID == "" {
		pageID = strings.TrimPrefix(u.Path, "/")
	}
	_, fullNS, _ := parseDokuWikiPageID(pageID)
	return "page", fullNS
}

// dokuwikiAction maps the feed item description onto an edit action.
func dokuwikiAction(description string) string {
	switch description {
	case "removed":
		return "delete"
	case "created":
		return "create"
	default:
		return "edit"
	}
}
