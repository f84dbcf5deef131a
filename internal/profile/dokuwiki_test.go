package profile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const dokuwikiStartPage = `<html lang="en"><head>
	<link rel="manifest" href="/manifest.json">
	<link rel="shortcut icon" href="/lib/tpl/dokuwiki/images/favicon.ico">
</head><body>
	<div class="license"><p>Except where otherwise noted, content on this wiki is licensed under
		<a rel="license" href="https://creativecommons.org/licenses/by-sa/4.0/">CC Attribution-Share Alike 4.0 International</a>
	</p></div>
</body></html>`

func dokuwikiMux(t *testing.T) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, dokuwikiStartPage)
	})
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"name": "Example Wiki", "start_url": "./"}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html lang="en"><head>
			<link rel="canonical" href="http://%s/start">
			<script>var JSINFO = {"id": "start", "namespace": ""};</script>
		</head><body></body></html>`, r.Host)
	})
	return mux
}

func TestProfileDokuWikiShort(t *testing.T) {
	srv := httptest.NewServer(dokuwikiMux(t))
	defer srv.Close()

	p := newTestProfiler(t)
	resp := fetchPage(t, p, srv.URL+"/start")

	meta, err := p.profileDokuWiki(context.Background(), resp, false)
	if err != nil {
		t.Fatalf("profileDokuWiki: %v", err)
	}
	if meta.Name != "Example Wiki" {
		t.Errorf("name = %q", meta.Name)
	}
	if meta.MainPage != "start" {
		t.Errorf("main_page = %q", meta.MainPage)
	}
	if meta.ContentPath != "/" {
		t.Errorf("content_path = %q", meta.ContentPath)
	}
	if meta.SearchPath == nil || *meta.SearchPath != "/doku.php" {
		t.Errorf("search_path = %v, want /doku.php", meta.SearchPath)
	}
	if meta.IconPath == nil || *meta.IconPath != srv.URL+"/lib/tpl/dokuwiki/images/favicon.ico" {
		t.Errorf("icon_path = %v", meta.IconPath)
	}
	if meta.LicenceName == nil || *meta.LicenceName != "CC Attribution-Share Alike 4.0 International" {
		t.Errorf("licence_name = %v", meta.LicenceName)
	}
	if meta.Activity != nil {
		t.Error("short profile must not carry activity metrics")
	}
}

func TestProfileDokuWikiFull(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	aliceEdit := now.Add(-24 * time.Hour)
	bobCreate := now.Add(-48 * time.Hour)
	carolDelete := now.Add(-72 * time.Hour)
	daveOldEdit := now.Add(-40 * 24 * time.Hour)

	mux := dokuwikiMux(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/doku.php", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("do") {
		case "sitemap":
			// Sitemap feature off: DokuWiki answers with a plain HTML page.
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, `<html><body>sitemap disabled</body></html>`)
		case "index":
			w.Header().Set("Content-Type", "text/html")
			if r.URL.Query().Get("idx") == "guide" {
				io.WriteString(w, `<html><body><div id="index__tree"><ul class="idx">
					<li class="level1 open"><div class="li"><a href="/doku.php?id=start&amp;do=index&amp;idx=guide" title="guide" class="idx_dir">guide</a></div>
						<ul class="idx">
							<li class="level2"><div class="li"><a href="/guide/intro" class="wikilink1" data-wiki-id="guide:intro">intro</a></div></li>
						</ul>
					</li>
				</ul></div></body></html>`)
				return
			}
			io.WriteString(w, `<html><body><div id="index__tree"><ul class="idx">
				<li class="level1"><div class="li"><a href="/start" class="wikilink1" data-wiki-id="start">start</a></div></li>
				<li class="level1 open"><div class="li"><a href="/doku.php?id=start&amp;do=index&amp;idx=wiki" title="wiki" class="idx_dir">wiki</a></div>
					<ul class="idx">
						<li class="level2"><div class="li"><a href="/wiki/syntax" class="wikilink1" data-wiki-id="wiki:syntax">syntax</a></div></li>
					</ul>
				</li>
				<li class="level1 closed"><div class="li"><a href="/doku.php?id=start&amp;do=index&amp;idx=guide" title="guide" class="idx_dir">guide</a></div></li>
			</ul></div></body></html>`)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/feed.php", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		item := func(title, id, creator, desc string, ts time.Time) string {
			return fmt.Sprintf(`<item>
				<title>%s</title>
				<link>http://%s/doku.php?id=%s&amp;rev=1&amp;do=diff</link>
				<dc:creator>%s</dc:creator>
				<description>%s</description>
				<pubDate>%s</pubDate>
			</item>`, title, r.Host, id, creator, desc, ts.Format(time.RFC1123Z))
		}
		fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel><title>Example Wiki</title>
%s
%s
%s
%s
</channel></rss>`,
			item("start - [typo]", "start", "alice", "edited", aliceEdit),
			item("user:bob", "user:bob", "bob", "created", bobCreate),
			item("scratch", "scratch", "carol", "removed", carolDelete),
			item("archive", "archive", "dave", "edited", daveOldEdit))
	})

	p := newTestProfiler(t)
	resp := fetchPage(t, p, srv.URL+"/start")

	meta, err := p.profileDokuWiki(context.Background(), resp, true)
	if err != nil {
		t.Fatalf("profileDokuWiki: %v", err)
	}
	if meta.Activity == nil {
		t.Fatal("full profile must carry activity metrics")
	}
	// start and guide:intro count; wiki:syntax is a non-content namespace.
	if *meta.ContentPages != 2 {
		t.Errorf("content_pages = %d, want 2", *meta.ContentPages)
	}
	// Every in-window author counts, even for deletions and non-content pages.
	if *meta.ActiveUsers != 3 {
		t.Errorf("active_users = %d, want 3", *meta.ActiveUsers)
	}
	// Only alice's mainspace edit is a content edit inside the window.
	if *meta.RecentEditCount != 1 {
		t.Errorf("recent_edit_count = %d, want 1", *meta.RecentEditCount)
	}
	if meta.LatestEditTimestamp == nil || !meta.LatestEditTimestamp.Equal(aliceEdit) {
		t.Errorf("latest_edit_timestamp = %v, want %v", meta.LatestEditTimestamp, aliceEdit)
	}
}

func TestProfileDokuWikiEmptyFeed(t *testing.T) {
	mux := dokuwikiMux(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/doku.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("do") != "index" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><body><div id="index__tree"><ul class="idx">
			<li class="level1"><div class="li"><a href="/start" class="wikilink1" data-wiki-id="start">start</a></div></li>
		</ul></div></body></html>`)
	})
	mux.HandleFunc("/feed.php", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>Example Wiki</title></channel></rss>`)
	})

	p := newTestProfiler(t)
	resp := fetchPage(t, p, srv.URL+"/start")

	meta, err := p.profileDokuWiki(context.Background(), resp, true)
	if err != nil {
		t.Fatalf("profileDokuWiki: %v", err)
	}
	if meta.Activity == nil || *meta.ContentPages != 1 {
		t.Fatalf("content_pages = %v, want 1", meta.Activity)
	}
	if meta.ActiveUsers != nil || meta.RecentEditCount != nil || meta.LatestEditTimestamp != nil {
		t.Error("edit metrics must stay null when the feed has no entries")
	}
}

// --- URL parsing helpers ---

func TestDokuwikiContentPathFromURL(t *testing.T) {
	tests := []struct {
		url, pageID, want string
		ok                bool
	}{
		{"https://wiki.example.org/start", "start", "/", true},
		{"https://wiki.example.org/doku.php/start", "start", "/doku.php/", true},
		{"https://wiki.example.org/Guide/Intro", "guide:intro", "/", true},
		{"https://wiki.example.org/unrelated", "start", "", false},
	}
	for _, tt := range tests {
		got, ok := dokuwikiContentPathFromURL(tt.url, tt.pageID)
		if ok != tt.ok || got != tt.want {
			t.Errorf("dokuwikiContentPathFromURL(%q, %q) = %q, %v; want %q, %v",
				tt.url, tt.pageID, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseDokuWikiDiffURL(t *testing.T) {
	pageType, ns := parseDokuWikiDiffURL("https://wiki.example.org/doku.php?id=guide:intro&rev=1&do=diff")
	if pageType != "page" || ns != "guide" {
		t.Errorf("page diff = %q, %q", pageType, ns)
	}
	pageType, ns = parseDokuWikiDiffURL("https://wiki.example.org/doku.php?image=guide:logo.png&ns=guide&do=media")
	if pageType != "media" || ns != "guide" {
		t.Errorf("media diff = %q, %q", pageType, ns)
	}
}
