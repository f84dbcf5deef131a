package types

// OriginEntry records one origin wiki redirected away from.
type OriginEntry struct {
	Origin            string `json:"origin"`
	OriginBaseURL     string `json:"origin_base_url"`
	OriginContentPath string `json:"origin_content_path"`
	OriginMainPage    string `json:"origin_main_page"`
}

// RedirectEntry is one row of a language-partitioned sites data file:
// one destination wiki and the origins redirected to it. Field order here
// is the serialization order of the dataset files, so it stays diff-stable.
type RedirectEntry struct {
	ID           string        `json:"id"`
	OriginsLabel string        `json:"origins_label"`
	Origins      []OriginEntry `json:"origins"`

	Destination             string  `json:"destination"`
	DestinationBaseURL      string  `json:"destination_base_url"`
	DestinationPlatform     string  `json:"destination_platform"`
	DestinationIcon         *string `json:"destination_icon"`
	DestinationMainPage     string  `json:"destination_main_page"`
	DestinationSearchPath   *string `json:"destination_search_path"`
	DestinationHostProtocol *string `json:"destination_host_protocol,omitempty"`

	// Tags currently only record wikifarm membership. Kept last so a
	// refresh that appends a tag does not reshuffle the object.
	Tags []string `json:"tags,omitempty"`
}

// HasOrigin reports whether the entry already lists the given origin base URL.
func (e *RedirectEntry) HasOrigin(originBaseURL string) bool {
	for _, o := range e.Origins {
		if o.OriginBaseURL == originBaseURL {
			return true
		}
	}
	return false
}

// HasTag reports whether the entry carries the given tag.
func (e *RedirectEntry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
