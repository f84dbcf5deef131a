package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/favicon"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/fetcher"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

const siteinfoProps = "general|namespaces|statistics|rightsinfo"

// mwTimeLayout is the only timestamp format the MediaWiki API accepts for
// range parameters.
const mwTimeLayout = "2006-01-02T15:04:05Z"

var mediaWikiVersionPattern = regexp.MustCompile(`^MediaWiki (\d+\.\d+\.\d+)`)

type mwResponse struct {
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
	Warnings json.RawMessage   `json:"warnings"`
	Continue map[string]string `json:"continue"`
	Query    json.RawMessage   `json:"query"`
}

type siteinfo struct {
	General struct {
		MainPage    string `json:"mainpage"`
		Base        string `json:"base"`
		Sitename    string `json:"sitename"`
		Generator   string `json:"generator"`
		ArticlePath string `json:"articlepath"`
		ScriptPath  string `json:"scriptpath"`
		Script      string `json:"script"`
		Server      string `json:"server"`
		Lang        string `json:"lang"`
		WikiID      string `json:"wikiid"`
		Time        string `json:"time"`
		Favicon     string `json:"favicon"`
		Logo        string `json:"logo"`
	} `json:"general"`
	Namespaces map[string]siteinfoNamespace `json:"namespaces"`
	Statistics struct {
		Articles int `json:"articles"`
		Pages    int `json:"pages"`
	} `json:"statistics"`
	RightsInfo *struct {
		URL  string `json:"url"`
		Text string `json:"text"`
	} `json:"rightsinfo"`
}

// siteinfoNamespace carries the formatversion=1 namespace row, where the
// "content" key is present (as an empty string) only on content namespaces.
type siteinfoNamespace struct {
	ID      int     `json:"id"`
	Content *string `json:"content"`
}

type recentChangesQuery struct {
	RecentChanges []struct {
		User      string `json:"user"`
		Timestamp string `json:"timestamp"`
	} `json:"recentchanges"`
}

func (p *Profiler) profileMediaWiki(ctx context.Context, resp *types.Response, fullProfile bool) (*types.WikiMetadata, error) {
	apiURL, err := p.FindMediaWikiAPIURL(ctx, resp)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("meta", "siteinfo")
	params.Set("siprop", siteinfoProps)
	apiResp, err := p.queryMediaWikiAPI(ctx, apiURL, params)
	if err != nil {
		return nil, err
	}
	var si siteinfo
	if err := json.Unmarshal(apiResp.Query, &si); err != nil {
		return nil, fmt.Errorf("parse siteinfo from %s: %w", apiURL, err)
	}

	meta := p.extractSiteinfoMetadata(&si, resp)
	if !fullProfile {
		return meta, nil
	}

	activity, err := p.profileMediaWikiActivity(ctx, apiURL, &si)
	if err != nil {
		return nil, err
	}
	meta.Activity = activity
	return meta, nil
}

// FindMediaWikiAPIURL determines the api.php URL of the wiki serving resp.
// It walks a chain of decreasingly reliable signals: the EditURI link, the
// search form action, the permalink href, and finally the Fandom backlink on
// BreezeWiki mirrors.
func (p *Profiler) FindMediaWikiAPIURL(ctx context.Context, resp *types.Response) (string, error) {
	if u, err := resp.URL(); err == nil && strings.HasSuffix(u.Path, "/api.php") {
		return fetcher.StripQuery(resp.FinalURL), nil
	}

	doc, err := resp.Document()
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", resp.FinalURL, err)
	}

	// EditURI normally points at api.php?action=rsd.
	if href, ok := doc.Find(`link[rel="EditURI"]`).Attr("href"); ok && href != "" {
		return fetcher.EnsureAbsoluteURL(fetcher.StripQuery(href), resp.FinalURL), nil
	}

	if action, ok := doc.Find("form#searchform").Attr("action"); ok && strings.HasSuffix(action, "index.php") {
		p.logger.Info("api url found via searchform", "url", resp.FinalURL)
		apiURL := strings.TrimSuffix(action, "index.php") + "api.php"
		return fetcher.EnsureAbsoluteURL(apiURL, resp.FinalURL), nil
	}

	if href, ok := doc.Find("li#t-permalink a").Attr("href"); ok {
		stripped := fetcher.StripQuery(href)
		if strings.HasSuffix(stripped, "index.php") {
			p.logger.Info("api url found via permalink", "url", resp.FinalURL)
			apiURL := strings.TrimSuffix(stripped, "index.php") + "api.php"
			return fetcher.EnsureAbsoluteURL(apiURL, resp.FinalURL), nil
		}
	}

	// BreezeWiki mirrors strip all of the above, but link back to Fandom in
	// their footer. Profile the original instead.
	if !strings.Contains(resp.FinalURL, ".fandom.com") {
		if fandomURL, ok := fandomURLFromBreezeWiki(resp); ok {
			p.logger.Info("breezewiki mirror detected, following the fandom original",
				"mirror", resp.FinalURL, "fandom", fandomURL)
			fandomResp, err := p.client.Resolve(ctx, fandomURL)
			if err != nil {
				return "", err
			}
			return p.FindMediaWikiAPIURL(ctx, fandomResp)
		}
	}

	return "", fmt.Errorf("%w: %s", types.ErrNoAPIURL, resp.FinalURL)
}

// fandomURLFromBreezeWiki extracts the Fandom URL a BreezeWiki mirror links
// back to. The footer layout is version-specific, so this is positional and
// fragile by nature.
func fandomURLFromBreezeWiki(resp *types.Response) (string, bool) {
	node, err := resp.HTMLNode()
	if err != nil {
		return "", false
	}
	signature := htmlquery.FindOne(node,
		`//footer[@class="custom-footer"]//a[@href="https://gitdab.com/cadence/breezewiki"]`)
	if signature == nil {
		return "", false
	}
	link := htmlquery.FindOne(node, `//footer[@class="custom-footer"]/div/div[2]/p/a[1]`)
	if link == nil {
		return "", false
	}
	href := htmlquery.SelectAttr(link, "href")
	if strings.Contains(href, ".fandom.com") && href != "https://www.fandom.com/licensing" {
		return href, true
	}
	return "", false
}

// queryMediaWikiAPI runs one API request. A 429 answer is retried once
// after waiting out the advertised Retry-After.
func (p *Profiler) queryMediaWikiAPI(ctx context.Context, apiURL string, params url.Values) (*mwResponse, error) {
	queryURL := apiURL + "?" + params.Encode()

	resp, err := p.client.Get(ctx, queryURL)
	var fe *types.FetchError
	if errors.As(err, &fe) && fe.StatusCode == http.StatusTooManyRequests {
		wait := fe.RetryAfter
		if wait <= 0 {
			wait = p.cfg.HTTP.RateLimitWait
		}
		p.logger.Warn("rate limited by api, waiting", "url", apiURL, "wait", wait)
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
		resp, err = p.client.Get(ctx, queryURL)
	}
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &types.FetchError{URL: queryURL, StatusCode: resp.StatusCode}
	}

	var parsed mwResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("parse api response from %s: %w", apiURL, err)
	}
	if parsed.Error != nil {
		return nil, &types.APIError{URL: apiURL, Code: parsed.Error.Code, Info: parsed.Error.Info}
	}
	if len(parsed.Warnings) > 0 {
		p.logger.Warn("api returned warnings", "url", apiURL, "warnings", string(parsed.Warnings))
	}
	return &parsed, nil
}

// extractSiteinfoMetadata maps a siteinfo result onto the standardized
// metadata shape.
func (p *Profiler) extractSiteinfoMetadata(si *siteinfo, pageResp *types.Response) *types.WikiMetadata {
	baseParsed, err := url.Parse(si.General.Base)
	if err != nil {
		baseParsed = &url.URL{}
	}
	host := baseParsed.Hostname()
	protocol := baseParsed.Scheme
	if protocol == "" {
		protocol = "https"
	}

	contentPath := strings.ReplaceAll(si.General.ArticlePath, "$1", "")
	if si.General.ArticlePath == "" {
		// Very old MediaWiki installs omit articlepath. The base field points
		// at the main page, so its path minus the page name is the article
		// path.
		contentPath = contentPathFromBase(baseParsed.Path, si.General.MainPage)
	}
	searchPath := si.General.Script

	// Farm-hosted language wikis route through a site path ("/es"). Fold the
	// script path into the base URL so the language segment lives there
	// instead of leaking into every path field.
	base := host
	if sp := si.General.ScriptPath; sp != "" && sp != "/" && isFarmHost(host) {
		base = host + sp
		contentPath = strings.TrimPrefix(contentPath, sp)
		searchPath = strings.TrimPrefix(searchPath, sp)
	}

	name := si.General.Sitename
	if strings.HasSuffix(host, ".fandom.com") {
		name = strings.ReplaceAll(name, " Wiki", " Fandom Wiki")
	}

	var farm *string
	if f, ok := types.DetectWikifarm(base, si.General.Logo); ok {
		farm = &f
	}

	iconURL := si.General.Favicon
	// Fandom reports the favicon as an unexpanded $wgUploadPath variable.
	if strings.HasPrefix(iconURL, "$") {
		iconURL = ""
	}
	if iconURL == "" && pageResp != nil {
		if doc, err := pageResp.Document(); err == nil {
			if u, ok := favicon.DiscoverIconURL(doc, pageResp.FinalURL); ok {
				iconURL = u
			}
		}
	}
	if iconURL != "" {
		iconURL = fetcher.EnsureAbsoluteURL(iconURL, si.General.Base)
	}

	meta := &types.WikiMetadata{
		Name:            name,
		BaseURL:         base,
		WikiID:          optional(si.General.WikiID),
		Wikifarm:        farm,
		Platform:        types.PlatformMediaWiki,
		SoftwareVersion: extractMediaWikiVersion(si.General.Generator),
		Protocol:        protocol,
		MainPage:        strings.ReplaceAll(si.General.MainPage, " ", "_"),
		ContentPath:     contentPath,
		SearchPath:      optional(searchPath),
		IconPath:        optional(iconURL),
	}
	meta.SetLanguage(si.General.Lang)
	if si.RightsInfo != nil {
		meta.LicenceName = optional(si.RightsInfo.Text)
		meta.LicencePage = optional(si.RightsInfo.URL)
	}
	return meta
}

// contentPathFromBase strips the main-page name off the main-page URL path.
func contentPathFromBase(basePath, mainPage string) string {
	return strings.TrimSuffix(basePath, strings.ReplaceAll(mainPage, " ", "_"))
}

func isFarmHost(host string) bool {
	return strings.HasSuffix(host, ".fandom.com") || strings.HasSuffix(host, ".wiki.gg")
}

func extractMediaWikiVersion(generator string) *string {
	m := mediaWikiVersionPattern.FindStringSubmatch(generator)
	if m == nil {
		return nil
	}
	return &m[1]
}

// profileMediaWikiActivity collects content and edit-activity metrics via
// the recentchanges list, paging through continuations. Bot edits are
// excluded and only content namespaces count.
func (p *Profiler) profileMediaWikiActivity(ctx context.Context, apiURL string, si *siteinfo) (*types.Activity, error) {
	now, err := time.Parse(time.RFC3339, si.General.Time)
	if err != nil {
		now = time.Now().UTC()
	}
	windowEnd := p.windowStart(now).UTC()

	nsFilter := contentNamespaceFilter(si.Namespaces)

	base := url.Values{}
	base.Set("action", "query")
	base.Set("format", "json")
	base.Set("list", "recentchanges")
	base.Set("rcprop", "user|timestamp")
	base.Set("rcshow", "!bot")
	base.Set("rctype", "edit|new|categorize")
	base.Set("rclimit", "max")
	base.Set("rcnamespace", nsFilter)
	base.Set("rcend", windowEnd.Format(mwTimeLayout))

	users := make(map[string]struct{})
	editCount := 0
	var latest *time.Time

	cont := map[string]string{}
	for {
		params := url.Values{}
		for k, v := range base {
			params[k] = v
		}
		for k, v := range cont {
			params.Set(k, v)
		}

		apiResp, err := p.queryMediaWikiAPI(ctx, apiURL, params)
		if err != nil {
			return nil, err
		}
		if len(apiResp.Query) > 0 {
			var q recentChangesQuery
			if err := json.Unmarshal(apiResp.Query, &q); err != nil {
				return nil, fmt.Errorf("parse recentchanges from %s: %w", apiURL, err)
			}
			for _, rc := range q.RecentChanges {
				editCount++
				if rc.User != "" {
					users[rc.User] = struct{}{}
				}
				if ts, err := time.Parse(time.RFC3339, rc.Timestamp); err == nil {
					utc := ts.UTC()
					if latest == nil || utc.After(*latest) {
						latest = &utc
					}
				}
			}
		}
		if len(apiResp.Continue) == 0 {
			break
		}
		cont = apiResp.Continue
	}

	// No edits inside the window. Ask for the single most recent content
	// edit without a time bound so the latest-edit timestamp still reflects
	// reality.
	if editCount == 0 {
		fallback := url.Values{}
		fallback.Set("action", "query")
		fallback.Set("format", "json")
		fallback.Set("list", "recentchanges")
		fallback.Set("rcprop", "user|timestamp")
		fallback.Set("rcshow", "!bot")
		fallback.Set("rctype", "edit|new|categorize")
		fallback.Set("rcnamespace", nsFilter)
		fallback.Set("rclimit", "1")

		apiResp, err := p.queryMediaWikiAPI(ctx, apiURL, fallback)
		if err != nil {
			return nil, err
		}
		if len(apiResp.Query) > 0 {
			var q recentChangesQuery
			if err := json.Unmarshal(apiResp.Query, &q); err != nil {
				return nil, fmt.Errorf("parse recentchanges from %s: %w", apiURL, err)
			}
			if len(q.RecentChanges) > 0 {
				if ts, err := time.Parse(time.RFC3339, q.RecentChanges[0].Timestamp); err == nil {
					utc := ts.UTC()
					latest = &utc
				}
			}
		}
	}

	return &types.Activity{
		ContentPages:        intPtr(si.Statistics.Articles),
		ActiveUsers:         intPtr(len(users)),
		RecentEditCount:     intPtr(editCount),
		LatestEditTimestamp: latest,
	}, nil
}

// contentNamespaceFilter builds the rcnamespace parameter from the content
// namespaces the wiki declares. Sorted so queries are deterministic.
func contentNamespaceFilter(namespaces map[string]siteinfoNamespace) string {
	var ids []int
	for _, ns := range namespaces {
		if ns.Content != nil {
			ids = append(ids, ns.ID)
		}
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, "|")
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
