package fetcher

import (
	"net/url"
	"regexp"
	"strings"
)

// NormalizeURLProtocol turns a bare hostname or protocol-relative URL into
// an https URL. URLs that already carry a scheme pass through unchanged.
func NormalizeURLProtocol(rawURL string) string {
	switch {
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return rawURL
	case strings.HasPrefix(rawURL, "//"):
		return "https:" + rawURL
	default:
		return "https://" + rawURL
	}
}

// EnsureAbsoluteURL fills in a missing scheme and host on subject from the
// donor URL. Only those two parts are borrowed; path, query and fragment
// stay as given.
func EnsureAbsoluteURL(subject, donor string) string {
	subjectURL, err := url.Parse(subject)
	if err != nil {
		return subject
	}
	donorURL, err := url.Parse(donor)
	if err != nil {
		return subject
	}
	if subjectURL.Scheme == "" {
		subjectURL.Scheme = donorURL.Scheme
	}
	if subjectURL.Host == "" {
		subjectURL.Host = donorURL.Host
	}
	return subjectURL.String()
}

// ExtractBaseURL reduces a URL to scheme plus host.
func ExtractBaseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

// StripQuery removes the query string and fragment from a URL.
func StripQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// JoinURL resolves ref against base the way a browser would.
func JoinURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

var wikiaHostPattern = regexp.MustCompile(`^([a-z-]+)\.(.+)\.wikia\.com$`)

// NormalizeWikiaURL rewrites legacy {lang}.{subdomain}.wikia.com URLs to the
// {subdomain}.fandom.com/{lang} scheme. The old language-subdomain hosts no
// longer resolve, so this has to happen before any request is made.
func NormalizeWikiaURL(rawURL string) string {
	normalized := NormalizeURLProtocol(rawURL)
	u, err := url.Parse(normalized)
	if err != nil {
		return rawURL
	}
	m := wikiaHostPattern.FindStringSubmatch(u.Hostname())
	if m == nil {
		return rawURL
	}
	lang, subdomain := m[1], m[2]
	u.Host = subdomain + ".fandom.com"
	u.Path = "/" + lang + u.Path
	return u.String()
}
