// Package redirect builds dataset entries from profiled wiki metadata.
package redirect

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

var nonAlnumPattern = regexp.MustCompile(`[^a-z0-9]+`)

// ExtractTopicFromURL derives a single-word topic slug from an origin base
// URL. The slug is the first hostname label with hyphens removed; Fextralife
// hosts instead drop the hyphenated language segment, since their language
// editions are named like "eldenring-fr".
func ExtractTopicFromURL(originBaseURL string) string {
	host, _, _ := strings.Cut(originBaseURL, "/")
	subdomain, _, _ := strings.Cut(host, ".")
	if strings.HasSuffix(host, ".fextralife.com") {
		topic, _, _ := strings.Cut(subdomain, "-")
		return topic
	}
	return strings.ReplaceAll(subdomain, "-", "")
}

// EntryID derives the dataset entry ID for a redirect from the given origin
// in the given language.
func EntryID(language, originBaseURL string) string {
	return language + "-" + ExtractTopicFromURL(originBaseURL)
}

// IconFilename derives the favicon filename for a wiki display name:
// diacritics decomposed away, lower-cased, "wiki.gg" folded to "wiki", and
// everything outside ASCII alphanumerics stripped. A name with nothing left
// after stripping is unusable as a filename.
func IconFilename(name string) (string, error) {
	stripMarks := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	decomposed, _, err := transform.String(stripMarks, name)
	if err != nil {
		return "", fmt.Errorf("normalize icon name %q: %w", name, err)
	}
	stem := strings.ToLower(decomposed)
	stem = strings.ReplaceAll(stem, "wiki.gg", "wiki")
	stem = nonAlnumPattern.ReplaceAllString(stem, "")
	if stem == "" {
		return "", fmt.Errorf("%w: derived from %q", types.ErrEmptyIconStem, name)
	}
	return stem + ".png", nil
}

// ValidateLanguages checks that an origin and destination speak the same
// language. A base-language mismatch is an error; a dialect difference
// (en vs en-gb) is legal cross-dialect redirection and only logged.
func ValidateLanguages(origin, dest *types.WikiMetadata, logger *slog.Logger) error {
	if origin.Language != dest.Language {
		return fmt.Errorf("%w: origin %q, destination %q",
			types.ErrLanguageMismatch, origin.Language, dest.Language)
	}
	if origin.FullLanguage != dest.FullLanguage {
		logger.Warn("origin and destination dialects differ",
			"origin", origin.FullLanguage, "destination", dest.FullLanguage)
	}
	return nil
}

// BuildOrigin flattens profiled metadata into an origin row.
func BuildOrigin(m *types.WikiMetadata) types.OriginEntry {
	return types.OriginEntry{
		Origin:            m.Name,
		OriginBaseURL:     m.BaseURL,
		OriginContentPath: m.ContentPath,
		OriginMainPage:    m.MainPage,
	}
}

// BuildEntry assembles a new redirect entry from profiled origin and
// destination metadata. When explicitID is empty the ID is derived from the
// destination language and the origin host. The destination icon stays null
// until an icon has actually been downloaded.
func BuildEntry(origin, dest *types.WikiMetadata, explicitID string) *types.RedirectEntry {
	id := explicitID
	if id == "" {
		id = EntryID(dest.Language, origin.BaseURL)
	}
	entry := &types.RedirectEntry{
		ID:                    id,
		OriginsLabel:          origin.Name,
		Origins:               []types.OriginEntry{BuildOrigin(origin)},
		Destination:           dest.Name,
		DestinationBaseURL:    dest.BaseURL,
		DestinationPlatform:   string(dest.Platform),
		DestinationMainPage:   dest.MainPage,
		DestinationSearchPath: dest.SearchPath,
	}
	if dest.Protocol != "" && dest.Protocol != "https" {
		protocol := dest.Protocol
		entry.DestinationHostProtocol = &protocol
	}
	if dest.Wikifarm != nil {
		entry.Tags = []string{*dest.Wikifarm}
	}
	return entry
}
