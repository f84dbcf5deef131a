package profile

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/fetcher"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/sitemap"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

var fextralifeWikiIDPattern = regexp.MustCompile(`pagex\['wikiId'\] = '(.*)';`)

// fextralifeContentActions are the change-feed codes that count as content
// edits. Everything else is forum posts, file uploads and moderation.
var fextralifeContentActions = map[string]bool{
	"Page_Edited":           true,
	"Page_Created":          true,
	"Page_Version_Restored": true,
}

type fextralifeChange struct {
	ID     string
	Date   time.Time
	Author string
	Code   string
}

func (p *Profiler) profileFextralife(ctx context.Context, resp *types.Response, fullProfile bool) (*types.WikiMetadata, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", resp.FinalURL, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	name := title
	if idx := strings.LastIndex(title, " | "); idx >= 0 {
		name = title[idx+len(" | "):]
	}

	pageURL, err := resp.URL()
	if err != nil {
		return nil, fmt.Errorf("parse url %s: %w", resp.FinalURL, err)
	}

	var wikiID *string
	if script := findInlineScript(doc, "pagex"); script != "" {
		if m := fextralifeWikiIDPattern.FindStringSubmatch(script); m != nil {
			wikiID = optional(m[1])
		}
	}

	var iconPath *string
	if href, ok := doc.Find(`link[type="logos/x-icon"]`).Attr("href"); ok && href != "" {
		iconPath = optional(fetcher.EnsureAbsoluteURL(href, resp.FinalURL))
	}

	mainPage := ""
	if href, ok := doc.Find("a.WikiLogo.WikiElement").Attr("href"); ok {
		mainPage = strings.TrimPrefix(href, "/")
	}

	farm := "Fextralife"
	licenceName := "Fextralife Wiki Custom License"
	licencePage := "https://fextralife.com/wiki-license/"
	meta := &types.WikiMetadata{
		Name:        name,
		BaseURL:     pageURL.Hostname(),
		WikiID:      wikiID,
		Wikifarm:    &farm,
		Platform:    types.PlatformFextralife,
		Protocol:    resp.Protocol,
		MainPage:    mainPage,
		ContentPath: "/",
		IconPath:    iconPath,
		LicenceName: &licenceName,
		LicencePage: &licencePage,
	}
	lang, _ := doc.Find("html").Attr("lang")
	meta.SetLanguage(lang)

	if !fullProfile {
		return meta, nil
	}

	baseURL := fetcher.ExtractBaseURL(resp.FinalURL)
	windowEnd := p.windowStart(time.Now().UTC())

	// Fextralife sitemaps list exactly the mainspace pages, so the row count
	// is the content page count.
	entries, err := sitemap.Fetch(ctx, p.client, p.logger, baseURL+"/sitemap.xml")
	if err != nil {
		return nil, err
	}

	changes, err := p.retrieveFextralifeChanges(ctx, baseURL, windowEnd)
	if err != nil {
		return nil, err
	}

	users := make(map[string]struct{})
	editCount := 0
	var latest *time.Time
	for _, c := range changes {
		inWindow := c.Date.After(windowEnd)
		if inWindow {
			users[c.Author] = struct{}{}
		}
		if fextralifeContentActions[c.Code] {
			if inWindow {
				editCount++
			}
			// Latest edit considers the whole feed, not just the window.
			if latest == nil || c.Date.After(*latest) {
				latest = timePtr(c.Date)
			}
		}
	}

	meta.Activity = &types.Activity{
		ContentPages:        intPtr(len(entries)),
		ActiveUsers:         intPtr(len(users)),
		RecentEditCount:     intPtr(editCount),
		LatestEditTimestamp: latest,
	}
	return meta, nil
}

// fextralifeChangesPath builds the change-feed path for one page of results.
// The pipe flags select, in order: IP-only off, page actions on, (reserved),
// template actions on, forum off, file actions on, (reserved), unregistered
// users off, registered users on.
func fextralifeChangesPath(offset int) string {
	return fmt.Sprintf("/ws/wikichangemanager/wiki/changes/%d/%%7Bnone%%7D/%%7Bnone%%7D/0|1|0|1|0|1|0|0|1", offset)
}

// retrieveFextralifeChanges pages through the change feed until it reaches
// entries older than windowEnd. Entries past the window are kept so the
// latest content edit can still be found when the window is empty.
// Duplicates appear when edits land between page requests; first one wins.
func (p *Profiler) retrieveFextralifeChanges(ctx context.Context, baseURL string, windowEnd time.Time) ([]fextralifeChange, error) {
	var changes []fextralifeChange
	seen := make(map[string]struct{})

	for offset := 0; ; offset++ {
		resp, err := p.client.Get(ctx, baseURL+fextralifeChangesPath(offset))
		if err != nil {
			return nil, err
		}
		if !resp.IsSuccess() {
			return nil, &types.FetchError{URL: resp.FinalURL, StatusCode: resp.StatusCode}
		}

		rows := gjson.ParseBytes(resp.Body).Array()
		if len(rows) == 0 {
			break
		}

		var earliest time.Time
		added := 0
		for i, row := range rows {
			date := time.UnixMilli(row.Get("date").Int()).UTC()
			if i == 0 || date.Before(earliest) {
				earliest = date
			}
			id := row.Get("id").String()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			added++
			changes = append(changes, fextralifeChange{
				ID:     id,
				Date:   date,
				Author: row.Get("author").String(),
				Code:   row.Get("code").String(),
			})
		}
		// A page of pure duplicates means the feed has been exhausted.
		if added == 0 || earliest.Before(windowEnd) {
			break
		}
	}
	return changes, nil
}
