package dataset

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/config"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Dataset.RepoPath = t.TempDir()
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func entry(id, originBase, destBase string) types.RedirectEntry {
	return types.RedirectEntry{
		ID:           id,
		OriginsLabel: originBase,
		Origins: []types.OriginEntry{{
			Origin:            originBase,
			OriginBaseURL:     originBase,
			OriginContentPath: "/wiki/",
			OriginMainPage:    "Main_Page",
		}},
		Destination:         destBase,
		DestinationBaseURL:  destBase,
		DestinationPlatform: "mediawiki",
		DestinationMainPage: "Main_Page",
	}
}

// --- Load and save ---

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)
	entries, err := s.Load("en")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	entries := []types.RedirectEntry{
		entry("de-drachen", "drachen.fandom.com", "drachen-wiki.de"),
	}
	entries[0].Destination = "Drachen-Wiki für Fans"

	if err := s.Save("de", entries); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.cfg.Dataset.RepoPath, "data", "sitesDE.json")); err != nil {
		t.Fatalf("sites file not at the expected path: %v", err)
	}

	raw, err := os.ReadFile(s.SitesFilePath("de"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(raw), "Drachen-Wiki für Fans") {
		t.Error("non-ASCII characters must be saved unescaped")
	}
	if !strings.Contains(string(raw), "\n  {") {
		t.Error("output must be 2-space indented")
	}

	got, err := s.Load("de")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "de-drachen" {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestLoadToleratesBOM(t *testing.T) {
	s := newTestStore(t)
	path := s.SitesFilePath("en")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	body := "\ufeff[{\"id\": \"en-a\", \"origins_label\": \"a\", \"origins\": [], " +
		"\"destination\": \"a\", \"destination_base_url\": \"a.org\", \"destination_platform\": \"mediawiki\", " +
		"\"destination_icon\": null, \"destination_main_page\": \"Main\", \"destination_search_path\": null}]"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Load("en")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "en-a" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestAddLanguage(t *testing.T) {
	s := newTestStore(t)
	if err := s.AddLanguage("pt"); err != nil {
		t.Fatalf("AddLanguage: %v", err)
	}
	raw, err := os.ReadFile(s.SitesFilePath("pt"))
	if err != nil {
		t.Fatalf("sites file missing: %v", err)
	}
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Errorf("new sites file = %q, want []", raw)
	}
	if fi, err := os.Stat(s.FaviconDirPath("pt")); err != nil || !fi.IsDir() {
		t.Errorf("favicon folder missing: %v", err)
	}
}

func TestLanguages(t *testing.T) {
	s := newTestStore(t)
	for _, lang := range []string{"en", "de", "pt-br"} {
		if err := s.Save(lang, nil); err != nil {
			t.Fatalf("Save(%s): %v", lang, err)
		}
	}
	langs, err := s.Languages()
	if err != nil {
		t.Fatalf("Languages: %v", err)
	}
	want := []string{"de", "en", "pt-br"}
	if len(langs) != len(want) {
		t.Fatalf("languages = %v, want %v", langs, want)
	}
	for i := range want {
		if langs[i] != want[i] {
			t.Errorf("languages = %v, want %v", langs, want)
			break
		}
	}
}

// --- Insertion ---

func TestInsertNewDestinationSortsById(t *testing.T) {
	entries := []types.RedirectEntry{
		entry("en-alpha", "alpha.fandom.com", "alpha.wiki.gg"),
		entry("en-gamma", "gamma.fandom.com", "gamma.wiki.gg"),
	}
	newEntry := entry("en-beta", "beta.fandom.com", "beta.wiki.gg")

	updated, res, err := Insert(entries, &newEntry)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if res.Outcome != Inserted {
		t.Errorf("outcome = %v, want Inserted", res.Outcome)
	}
	if len(updated) != 3 {
		t.Fatalf("got %d entries, want 3", len(updated))
	}
	for i := 1; i < len(updated); i++ {
		if updated[i-1].ID > updated[i].ID {
			t.Errorf("entries out of order: %q before %q", updated[i-1].ID, updated[i].ID)
		}
	}
	if err := Validate(updated); err != nil {
		t.Errorf("Validate after insert: %v", err)
	}
}

func TestInsertMergesExistingDestination(t *testing.T) {
	entries := []types.RedirectEntry{
		entry("en-b", "c.fandom.com", "b.wiki.gg"),
		entry("en-z", "z.fandom.com", "z.wiki.gg"),
	}
	entries[0].Tags = []string{"wiki.gg"}
	newEntry := entry("en-bee", "a.fandom.com", "b.wiki.gg")

	updated, res, err := Insert(entries, &newEntry)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if res.Outcome != MergedOrigin {
		t.Errorf("outcome = %v, want MergedOrigin", res.Outcome)
	}
	if len(updated) != 2 {
		t.Fatalf("entry count changed on merge: %d", len(updated))
	}
	merged := updated[0]
	if len(merged.Origins) != 2 ||
		merged.Origins[0].OriginBaseURL != "c.fandom.com" ||
		merged.Origins[1].OriginBaseURL != "a.fandom.com" {
		t.Errorf("origins = %+v", merged.Origins)
	}
	if merged.ID != "en-b" {
		t.Errorf("merge must not change the entry id, got %q", merged.ID)
	}
	if len(merged.Tags) != 1 || merged.Tags[0] != "wiki.gg" {
		t.Errorf("merge must not touch tags, got %v", merged.Tags)
	}
	if len(updated[1].Origins) != 1 {
		t.Error("merge touched an unrelated entry")
	}
}

func TestInsertRejectsRedirectedOrigin(t *testing.T) {
	entries := []types.RedirectEntry{
		entry("en-a", "a.fandom.com", "a.wiki.gg"),
	}
	newEntry := entry("en-other", "a.fandom.com", "other.wiki.gg")

	updated, res, err := Insert(entries, &newEntry)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if res.Outcome != RejectedAlreadyRedirected {
		t.Errorf("outcome = %v, want RejectedAlreadyRedirected", res.Outcome)
	}
	if res.Entry == nil || res.Entry.DestinationBaseURL != "a.wiki.gg" {
		t.Errorf("rejection must name the existing destination, got %+v", res.Entry)
	}
	if len(updated) != 1 || len(updated[0].Origins) != 1 {
		t.Error("rejection must leave the dataset untouched")
	}
}

func TestInsertDuplicateIDIsAnError(t *testing.T) {
	entries := []types.RedirectEntry{
		entry("en-a", "a.fandom.com", "a.wiki.gg"),
	}
	newEntry := entry("en-a", "b.fandom.com", "b.wiki.gg")

	_, _, err := Insert(entries, &newEntry)
	if !errors.Is(err, types.ErrDuplicateID) {
		t.Errorf("err = %v, want ErrDuplicateID", err)
	}
}

// --- Validation ---

func TestValidateReportsViolations(t *testing.T) {
	entries := []types.RedirectEntry{
		entry("en-b", "b.fandom.com", "b.wiki.gg"),
		entry("en-a", "a.fandom.com", "a.wiki.gg"), // out of order
		entry("en-a", "b.fandom.com", "b.wiki.gg"), // dup id, origin, destination
	}
	err := Validate(entries)
	if err == nil {
		t.Fatal("Validate accepted an invalid dataset")
	}
	msg := err.Error()
	for _, want := range []string{"duplicate id", "origin", "destination", "out of order"} {
		if !strings.Contains(msg, want) {
			t.Errorf("validation errors missing %q: %v", want, msg)
		}
	}
}

func TestValidateAcceptsCleanDataset(t *testing.T) {
	entries := []types.RedirectEntry{
		entry("en-a", "a.fandom.com", "a.wiki.gg"),
		entry("en-b", "b.fandom.com", "b.wiki.gg"),
	}
	if err := Validate(entries); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
