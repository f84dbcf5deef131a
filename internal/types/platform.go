package types

import "strings"

// Platform identifies the wiki software a site runs on. The set is closed:
// the profiler dispatch switches over it exhaustively, so adding a platform
// means touching every switch the compiler flags.
type Platform string

const (
	PlatformMediaWiki  Platform = "mediawiki"
	PlatformFextralife Platform = "fextralife"
	PlatformDokuWiki   Platform = "dokuwiki"
	PlatformWikidot    Platform = "wikidot"
	PlatformMinMax     Platform = "minmax"
)

// AllPlatforms lists every supported platform tag.
var AllPlatforms = []Platform{
	PlatformMediaWiki,
	PlatformFextralife,
	PlatformDokuWiki,
	PlatformWikidot,
	PlatformMinMax,
}

// Valid reports whether p is one of the supported platform tags.
func (p Platform) Valid() bool {
	for _, known := range AllPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

func (p Platform) String() string { return string(p) }

// wikifarms is the fixed registry of hosting farms recognized by substring
// match against a wiki's URLs.
var wikifarms = []string{
	"shoutwiki",
	"wiki.gg",
	"miraheze",
	"wikitide",
	"fextralife",
	"wikidot",
	"minmax",
}

// DetectWikifarm returns the name of the wikifarm hosting the wiki, if any
// of the given URLs matches the registry.
func DetectWikifarm(urls ...string) (string, bool) {
	for _, farm := range wikifarms {
		for _, u := range urls {
			if strings.Contains(u, farm) {
				return farm, true
			}
		}
	}
	return "", false
}
