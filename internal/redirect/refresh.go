package redirect

import (
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

// RefreshURL builds the URL to re-profile an entry's destination from. The
// search path lands on a real page on every platform that records one;
// otherwise the bare base URL has to do.
func RefreshURL(entry *types.RedirectEntry) string {
	protocol := "https"
	if entry.DestinationHostProtocol != nil {
		protocol = *entry.DestinationHostProtocol
	}
	if entry.DestinationSearchPath != nil && *entry.DestinationSearchPath != "" {
		return protocol + "://" + entry.DestinationBaseURL + *entry.DestinationSearchPath
	}
	return protocol + "://" + entry.DestinationBaseURL
}

// RefreshOptions controls which refresh-protected fields may change.
type RefreshOptions struct {
	// UpdateNames lets the refresh overwrite the destination display name.
	UpdateNames bool
}

// ApplyRefresh overwrites an entry's destination fields from freshly
// profiled metadata. The entry ID, origins and icon filename are never
// touched: the ID is the entry's identity, origins grow only through
// insertion, and the icon file on disk keeps its name. A missing wikifarm
// tag is appended after the existing tags so refreshed files diff cleanly.
func ApplyRefresh(entry *types.RedirectEntry, meta *types.WikiMetadata, opts RefreshOptions) {
	if opts.UpdateNames {
		entry.Destination = meta.Name
	}
	entry.DestinationBaseURL = meta.BaseURL
	entry.DestinationPlatform = string(meta.Platform)
	entry.DestinationMainPage = meta.MainPage
	entry.DestinationSearchPath = meta.SearchPath

	if meta.Protocol != "" && meta.Protocol != "https" {
		protocol := meta.Protocol
		entry.DestinationHostProtocol = &protocol
	} else {
		entry.DestinationHostProtocol = nil
	}

	if meta.Wikifarm != nil && !entry.HasTag(*meta.Wikifarm) {
		entry.Tags = append(entry.Tags, *meta.Wikifarm)
	}
}
