package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/tidwall/gjson"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/fetcher"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

func (p *Profiler) profileMinMax(ctx context.Context, resp *types.Response, fullProfile bool) (*types.WikiMetadata, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", resp.FinalURL, err)
	}

	pageURL, err := resp.URL()
	if err != nil {
		return nil, fmt.Errorf("parse url %s: %w", resp.FinalURL, err)
	}
	// Each wiki lives under the first path segment of the shared host.
	baseURL := pageURL.Host
	if seg := firstPathSegment(pageURL.Path); seg != "" {
		baseURL += "/" + seg
	}

	// MinMax is a Next.js app; the wiki object rides in __NEXT_DATA__.
	nextData := doc.Find("script#__NEXT_DATA__").First().Text()
	if nextData == "" {
		return nil, fmt.Errorf("no __NEXT_DATA__ script at %s", resp.FinalURL)
	}
	wiki := gjson.Get(nextData, "props.pageProps.wiki")
	if !wiki.Exists() {
		wiki = gjson.Get(nextData, "props.pageProps.page.wiki")
	}
	if !wiki.Exists() {
		return nil, fmt.Errorf("no wiki object in __NEXT_DATA__ at %s", resp.FinalURL)
	}

	var iconPath *string
	if href, ok := doc.Find(`link[rel="icon"]`).Attr("href"); ok && href != "" {
		iconPath = optional(fetcher.EnsureAbsoluteURL(href, fetcher.ExtractBaseURL(resp.FinalURL)))
	}

	var licenceName, licencePage *string
	if node, err := resp.HTMLNode(); err == nil {
		licence := htmlquery.FindOne(node,
			`//footer/div/div[not(@id='top')]/p[contains(@class, 'chakra-text')]/a`)
		if licence != nil {
			licenceName = optional(strings.TrimSpace(htmlquery.InnerText(licence)))
			licencePage = optional(htmlquery.SelectAttr(licence, "href"))
		}
	}

	farm := "minmax"
	meta := &types.WikiMetadata{
		Name:        wiki.Get("name").String(),
		BaseURL:     baseURL,
		WikiID:      optional(wiki.Get("id").String()),
		Wikifarm:    &farm,
		Platform:    types.PlatformMinMax,
		Protocol:    resp.Protocol,
		MainPage:    "/", // main pages live at the wiki's root URL
		ContentPath: "/",
		IconPath:    iconPath,
		LicenceName: licenceName,
		LicencePage: licencePage,
	}
	lang, _ := doc.Find("html").Attr("lang")
	meta.SetLanguage(lang)

	if !fullProfile {
		return meta, nil
	}

	// MinMax publishes neither editor names nor a recent-changes feed, so
	// only the page count can be measured.
	p.logger.Warn("minmax exposes no editor names or recent changes, activity metrics unavailable",
		"url", resp.FinalURL)

	contentPages, err := p.countMinMaxPages(ctx, resp.Protocol+"://"+baseURL)
	if err != nil {
		return nil, err
	}
	meta.Activity = &types.Activity{ContentPages: intPtr(contentPages)}
	return meta, nil
}

// countMinMaxPages counts the entries on the wiki's "Pages" listing.
func (p *Profiler) countMinMaxPages(ctx context.Context, baseURL string) (int, error) {
	resp, err := p.client.Get(ctx, baseURL+"/pages")
	if err != nil {
		return 0, err
	}
	if !resp.IsSuccess() {
		return 0, &types.FetchError{URL: resp.FinalURL, StatusCode: resp.StatusCode}
	}
	node, err := resp.HTMLNode()
	if err != nil {
		return 0, err
	}

	container := htmlquery.FindOne(node,
		`//div[@id='app-container']//div[contains(@class, 'chakra-container')]//div[div/li]`)
	if container == nil {
		return 0, fmt.Errorf("no page list at %s", resp.FinalURL)
	}
	return len(htmlquery.Find(container, "./div/li/a")), nil
}

func firstPathSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	seg, _, _ := strings.Cut(path, "/")
	return seg
}
