package profile

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/favicon"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/fetcher"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/sitemap"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

var (
	wikidotSiteIDPattern   = regexp.MustCompile(`WIKIREQUEST\.info\.siteId = (\d+);`)
	wikidotPageNamePattern = regexp.MustCompile(`WIKIREQUEST\.info\.requestPageName = "(.+)";`)
	wikidotRevisionPattern = regexp.MustCompile(`https?://[\w\-]+\.wikidot\.com/(.*)#revision-(\d+)`)
	wikidotTitlePattern    = regexp.MustCompile(`"(.+)"\s+-\s*(.*)`)
)

// wikidotNonContentNamespaces are the page-ID prefixes Wikidot uses for
// system, forum and theming pages.
var wikidotNonContentNamespaces = map[string]bool{
	"system": true, "poll": true, "forum": true, "nav": true,
	"search": true, "admin": true, "info": true, "deleted": true,
	"random": true, "more-by": true, "workbench": true, "component": true,
	"fragment": true, "theme": true, "attribution": true,
}

// wikidotNonContentActions are recent-changes actions that do not count as
// content edits.
var wikidotNonContentActions = map[string]bool{
	"page move/rename": true,
	"file action":      true,
}

// wikidotExcludedAuthors never count as active users.
var wikidotExcludedAuthors = map[string]bool{
	"Anonymous":         true,
	"(account deleted)": true,
}

type wikidotChange struct {
	Namespace string
	Action    string
	Author    string
	Published time.Time
}

func (p *Profiler) profileWikidot(ctx context.Context, resp *types.Response, fullProfile bool) (*types.WikiMetadata, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", resp.FinalURL, err)
	}
	baseURL := fetcher.ExtractBaseURL(resp.FinalURL)

	script := findInlineScript(doc, "WIKIREQUEST.info")
	if script == "" {
		return nil, fmt.Errorf("no WIKIREQUEST script at %s", resp.FinalURL)
	}
	var wikiID *string
	if m := wikidotSiteIDPattern.FindStringSubmatch(script); m != nil {
		wikiID = optional(m[1])
	}

	// The root URL is always the main page; its WIKIREQUEST script names it.
	mainResp, err := p.client.Get(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	mainDoc, err := mainResp.Document()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", mainResp.FinalURL, err)
	}
	mainPage := ""
	if s := findInlineScript(mainDoc, "WIKIREQUEST.info"); s != "" {
		if m := wikidotPageNamePattern.FindStringSubmatch(s); m != nil {
			mainPage = m[1]
		}
	}

	searchPath, err := p.determineWikidotSearchPath(ctx, baseURL)
	if err != nil {
		return nil, err
	}

	var iconPath *string
	if u, ok := favicon.DiscoverIconURL(doc, baseURL); ok {
		iconPath = &u
	}

	var licenceName, licencePage *string
	if sel := doc.Find(`div#license-area > a[rel="license"]`).First(); sel.Length() > 0 {
		licenceName = optional(strings.TrimSpace(sel.Text()))
		if href, ok := sel.Attr("href"); ok {
			licencePage = optional(href)
		}
	}

	pageURL, err := resp.URL()
	if err != nil {
		return nil, fmt.Errorf("parse url %s: %w", resp.FinalURL, err)
	}

	farm := "wikidot"
	meta := &types.WikiMetadata{
		Name:        strings.TrimSpace(doc.Find("div#header h1 a span").First().Text()),
		BaseURL:     pageURL.Hostname(),
		WikiID:      wikiID,
		Wikifarm:    &farm,
		Platform:    types.PlatformWikidot,
		Protocol:    resp.Protocol,
		MainPage:    mainPage,
		ContentPath: "/",
		SearchPath:  optional(searchPath),
		IconPath:    iconPath,
		LicenceName: licenceName,
		LicencePage: licencePage,
	}
	lang, _ := doc.Find("html").Attr("lang")
	meta.SetLanguage(lang)

	if !fullProfile {
		return meta, nil
	}

	contentPages, err := p.countWikidotPages(ctx, baseURL)
	if err != nil {
		return nil, err
	}

	changes, err := p.retrieveWikidotChanges(ctx, baseURL)
	if err != nil {
		return nil, err
	}

	windowEnd := p.windowStart(time.Now().UTC())
	activity := &types.Activity{ContentPages: intPtr(contentPages)}

	// Latest content edit considers the whole feed.
	for _, c := range changes {
		if !wikidotNonContentActions[c.Action] {
			if activity.LatestEditTimestamp == nil || c.Published.After(*activity.LatestEditTimestamp) {
				activity.LatestEditTimestamp = timePtr(c.Published)
			}
		}
	}

	// The RSS feed caps out at 30 entries with no way to page further back.
	// If even the oldest entry is inside the window, counting would
	// undercount, so those metrics stay null.
	overflow := false
	if len(changes) > 0 {
		oldest := changes[0].Published
		for _, c := range changes[1:] {
			if c.Published.Before(oldest) {
				oldest = c.Published
			}
		}
		overflow = oldest.After(windowEnd)
	}
	if overflow {
		p.logger.Warn("recent changes feed window overflow, activity counts unavailable",
			"wiki", meta.Name, "url", baseURL)
		meta.Activity = activity
		return meta, nil
	}

	users := make(map[string]struct{})
	editCount := 0
	for _, c := range changes {
		if !c.Published.After(windowEnd) {
			continue
		}
		if !wikidotExcludedAuthors[c.Author] && c.Author != "" {
			users[c.Author] = struct{}{}
		}
		if !wikidotNonContentActions[c.Action] {
			editCount++
		}
	}
	activity.ActiveUsers = intPtr(len(users))
	activity.RecentEditCount = intPtr(editCount)
	meta.Activity = activity
	return meta, nil
}

// determineWikidotSearchPath probes search:main, the only Wikidot search
// endpoint that is both functional and URL-addressable. Wikidot's default
// search (search:site) has been broken since May 2022.
func (p *Profiler) determineWikidotSearchPath(ctx context.Context, baseURL string) (string, error) {
	probeURL := strings.TrimSuffix(baseURL, "/") + "/search:main/fullname"
	resp, err := p.client.Get(ctx, probeURL)
	if err == nil && resp.IsSuccess() {
		return "/search:main/fullname/", nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	p.logger.Warn("no URL-based search endpoint available, falling back to direct page links",
		"url", baseURL)
	return "/", nil
}

// parseWikidotPageID splits a page ID into namespace and base name. Pages
// without a colon are mainspace.
func parseWikidotPageID(pageID string) (namespace, base string) {
	if ns, rest, ok := strings.Cut(pageID, ":"); ok {
		return ns, rest
	}
	return "", pageID
}

// countWikidotPages counts content pages from the sitemap, excluding forum
// URLs and non-content namespaces.
func (p *Profiler) countWikidotPages(ctx context.Context, baseURL string) (int, error) {
	entries, err := sitemap.Fetch(ctx, p.client, p.logger, strings.TrimSuffix(baseURL, "/")+"/sitemap.xml")
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{})
	count := 0
	for _, e := range entries {
		// Paginated sitemaps repeat URLs across segments.
		if _, dup := seen[e.Loc]; dup {
			continue
		}
		seen[e.Loc] = struct{}{}

		u, err := url.Parse(e.Loc)
		if err != nil {
			continue
		}
		path := strings.TrimPrefix(u.Path, "/")
		if strings.HasPrefix(path, "forum/") {
			continue
		}
		ns, _ := parseWikidotPageID(path)
		if !wikidotNonContentNamespaces[ns] {
			count++
		}
	}
	return count, nil
}

// retrieveWikidotChanges reads the site-changes RSS feed.
func (p *Profiler) retrieveWikidotChanges(ctx context.Context, baseURL string) ([]wikidotChange, error) {
	feedURL := strings.TrimSuffix(baseURL, "/") + "/feed/site-changes.xml"
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

	changes := make([]wikidotChange, 0, len(feed.Items))
	for _, item := range feed.Items {
		c := wikidotChange{}
		if m := wikidotRevisionPattern.FindStringSubmatch(item.GUID); m != nil {
			c.Namespace, _ = parseWikidotPageID(m[1])
		}
		if m := wikidotTitlePattern.FindStringSubmatch(item.Title); m != nil {
			c.Action = m[2]
		}
		c.Author = wikidotChangeAuthor(item.Description)
		if item.PublishedParsed != nil {
			c.Published = item.PublishedParsed.UTC()
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// wikidotChangeAuthor pulls the username out of the change summary HTML,
// ignoring the IP span shown next to anonymous editors.
func wikidotChangeAuthor(summaryHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(summaryHTML))
	if err != nil {
		return ""
	}
	doc.Find("span.ip").Remove()
	return strings.TrimSpace(doc.Find("span.printuser").First().Text())
}
