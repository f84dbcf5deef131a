package types

import (
	"strings"
	"time"
)

// WikiMetadata is the standardized profile every platform profiler produces.
// Optional fields are pointers so that "the platform exposes no such thing"
// serializes as null rather than a zero value.
type WikiMetadata struct {
	// Basic information
	Name         string `json:"name"`
	BaseURL      string `json:"base_url"` // hostname (plus site path for farm-routed wikis), no scheme
	FullLanguage string `json:"full_language"`
	Language     string `json:"language"`

	// Technical data
	WikiID          *string  `json:"wiki_id"`
	Wikifarm        *string  `json:"wikifarm"`
	Platform        Platform `json:"platform"`
	SoftwareVersion *string  `json:"software_version"`

	// Paths
	Protocol    string  `json:"protocol"`
	MainPage    string  `json:"main_page"`
	ContentPath string  `json:"content_path"`
	SearchPath  *string `json:"search_path"`
	IconPath    *string `json:"icon_path"`

	// Licensing
	LicenceName *string `json:"licence_name"`
	LicencePage *string `json:"licence_page"`

	// Activity metrics, present only on a full profile.
	*Activity
}

// Activity holds the content and edit-activity metrics of a full profile.
// The block is embedded as a pointer so the fields are either all present
// or all absent, never partially populated.
type Activity struct {
	ContentPages        *int       `json:"content_pages"`
	ActiveUsers         *int       `json:"active_users"`
	RecentEditCount     *int       `json:"recent_edit_count"`
	LatestEditTimestamp *time.Time `json:"latest_edit_timestamp"`
}

// BaseLanguage returns the base language code before the first hyphen, so
// "en-gb" yields "en" and "es" yields "es".
func BaseLanguage(fullLanguage string) string {
	base, _, _ := strings.Cut(fullLanguage, "-")
	return base
}

// SetLanguage fills both language fields from a full language code.
func (m *WikiMetadata) SetLanguage(fullLanguage string) {
	m.FullLanguage = fullLanguage
	m.Language = BaseLanguage(fullLanguage)
}
