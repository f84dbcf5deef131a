// Package dataset reads, validates and mutates the language-partitioned
// sites data files of the extension repository.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/config"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Store locates and persists the per-language sites files inside the
// extension repository checkout.
type Store struct {
	cfg    *config.Config
	logger *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) *Store {
	return &Store{cfg: cfg, logger: logger.With("component", "dataset")}
}

// SitesFilePath returns the sites file path for a language code, e.g.
// data/sitesEN.json for "en".
func (s *Store) SitesFilePath(lang string) string {
	return filepath.Join(s.cfg.Dataset.RepoPath, s.cfg.Dataset.DataDir,
		"sites"+strings.ToUpper(lang)+".json")
}

// FaviconDirPath returns the favicon folder for a language code.
func (s *Store) FaviconDirPath(lang string) string {
	return filepath.Join(s.cfg.Dataset.RepoPath, s.cfg.Dataset.FaviconDir, lang)
}

// Load reads the sites file for a language. A missing file is an empty
// dataset, not an error; the language may simply not have entries yet.
func (s *Store) Load(lang string) ([]types.RedirectEntry, error) {
	path := s.SitesFilePath(lang)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &types.DatasetError{Path: path, Err: err}
	}
	if bytes.HasPrefix(data, utf8BOM) {
		s.logger.Warn("sites file starts with a UTF-8 BOM", "path", path)
		data = bytes.TrimPrefix(data, utf8BOM)
	}
	var entries []types.RedirectEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &types.DatasetError{Path: path, Err: err}
	}
	return entries, nil
}

// Save writes the sites file atomically: the new content lands in a temp
// file in the same directory and replaces the old file in one rename, so a
// crash mid-write leaves the previous version intact. Output is 2-space
// indented with non-ASCII characters preserved, for human-reviewable diffs.
func (s *Store) Save(lang string, entries []types.RedirectEntry) error {
	path := s.SitesFilePath(lang)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &types.DatasetError{Path: path, Err: err}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if entries == nil {
		entries = []types.RedirectEntry{}
	}
	if err := enc.Encode(entries); err != nil {
		return &types.DatasetError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return &types.DatasetError{Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return &types.DatasetError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &types.DatasetError{Path: path, Err: err}
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return &types.DatasetError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &types.DatasetError{Path: path, Err: err}
	}
	return nil
}

// AddLanguage bootstraps a language: an empty sites file plus its favicon
// folder.
func (s *Store) AddLanguage(lang string) error {
	if err := s.Save(lang, nil); err != nil {
		return err
	}
	if err := os.MkdirAll(s.FaviconDirPath(lang), 0o755); err != nil {
		return &types.DatasetError{Path: s.FaviconDirPath(lang), Err: err}
	}
	return nil
}

// Languages lists the language codes that have a sites file, sorted.
func (s *Store) Languages() ([]string, error) {
	dir := filepath.Join(s.cfg.Dataset.RepoPath, s.cfg.Dataset.DataDir)
	files, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &types.DatasetError{Path: dir, Err: err}
	}
	var langs []string
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasPrefix(name, "sites") || !strings.HasSuffix(name, ".json") {
			continue
		}
		code := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(name, "sites"), ".json"))
		if code != "" {
			langs = append(langs, code)
		}
	}
	sort.Strings(langs)
	return langs, nil
}

// InsertOutcome names what Insert did with a new entry.
type InsertOutcome int

const (
	// Inserted means the destination was new and the entry was appended.
	Inserted InsertOutcome = iota
	// MergedOrigin means the destination already had an entry and the new
	// origin was appended to it.
	MergedOrigin
	// RejectedAlreadyRedirected means the origin is already redirected by an
	// existing entry and nothing changed.
	RejectedAlreadyRedirected
)

func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case MergedOrigin:
		return "merged origin"
	case RejectedAlreadyRedirected:
		return "rejected: origin already redirected"
	}
	return fmt.Sprintf("InsertOutcome(%d)", int(o))
}

// InsertResult reports the outcome of an insertion together with the
// affected dataset row.
type InsertResult struct {
	Outcome InsertOutcome
	// Entry is the dataset row holding the origin after the operation: the
	// newly appended entry, the merged-into entry, or the existing entry
	// that already redirects the origin.
	Entry *types.RedirectEntry
}

// Insert merges a new entry into the dataset per the uniqueness rules: an
// origin may only ever redirect to one destination, and each destination
// has at most one entry. Rejection is a normal outcome. A duplicate ID on a
// genuinely new destination is a caller bug and comes back as ErrDuplicateID.
func Insert(entries []types.RedirectEntry, newEntry *types.RedirectEntry) ([]types.RedirectEntry, InsertResult, error) {
	for i := range entries {
		for _, origin := range newEntry.Origins {
			if entries[i].HasOrigin(origin.OriginBaseURL) {
				return entries, InsertResult{
					Outcome: RejectedAlreadyRedirected,
					Entry:   &entries[i],
				}, nil
			}
		}
	}

	for i := range entries {
		if entries[i].DestinationBaseURL == newEntry.DestinationBaseURL {
			entries[i].Origins = append(entries[i].Origins, newEntry.Origins...)
			return entries, InsertResult{Outcome: MergedOrigin, Entry: &entries[i]}, nil
		}
	}

	for i := range entries {
		if entries[i].ID == newEntry.ID {
			return entries, InsertResult{}, fmt.Errorf("%w: %s", types.ErrDuplicateID, newEntry.ID)
		}
	}
	entries = append(entries, *newEntry)
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	for i := range entries {
		if entries[i].ID == newEntry.ID {
			return entries, InsertResult{Outcome: Inserted, Entry: &entries[i]}, nil
		}
	}
	// Unreachable: the entry was just appended.
	return entries, InsertResult{Outcome: Inserted}, nil
}

// Validate checks the dataset invariants of one sites file: unique IDs,
// globally unique origin base URLs, unique destination base URLs, and
// ascending ID order. All violations are reported, not just the first.
func Validate(entries []types.RedirectEntry) error {
	var problems []error
	ids := make(map[string]struct{})
	origins := make(map[string]string)
	destinations := make(map[string]string)

	for i := range entries {
		e := &entries[i]
		if _, dup := ids[e.ID]; dup {
			problems = append(problems, fmt.Errorf("duplicate id %q", e.ID))
		} else {
			ids[e.ID] = struct{}{}
		}
		if prev, dup := destinations[e.DestinationBaseURL]; dup {
			problems = append(problems, fmt.Errorf("destination %q appears on entries %s and %s",
				e.DestinationBaseURL, prev, e.ID))
		} else {
			destinations[e.DestinationBaseURL] = e.ID
		}
		for _, o := range e.Origins {
			if prev, dup := origins[o.OriginBaseURL]; dup {
				problems = append(problems, fmt.Errorf("origin %q appears on entries %s and %s",
					o.OriginBaseURL, prev, e.ID))
			} else {
				origins[o.OriginBaseURL] = e.ID
			}
		}
		if i > 0 && entries[i-1].ID > e.ID {
			problems = append(problems, fmt.Errorf("entries out of order: %q before %q", entries[i-1].ID, e.ID))
		}
	}
	return errors.Join(problems...)
}
