package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for expected, branchy outcomes.
var (
	ErrUnknownPlatform   = errors.New("wiki software not recognized")
	ErrNoAPIURL          = errors.New("no MediaWiki API URL found")
	ErrNoSitemap         = errors.New("sitemap not available")
	ErrNoIconLink        = errors.New("no icon link in page")
	ErrEmptyIconStem     = errors.New("icon filename stem is empty")
	ErrAlreadyRedirected = errors.New("origin is already redirected by an existing entry")
	ErrDuplicateID       = errors.New("entry ID already present in dataset")
	ErrLanguageMismatch  = errors.New("origin and destination languages differ")
	ErrInvalidURL        = errors.New("invalid URL")
)

// FetchError wraps transport and HTTP-status failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// APIError carries the error payload of a MediaWiki API response.
// It is distinct from FetchError: the HTTP exchange succeeded, the API
// itself refused the query.
type APIError struct {
	URL  string
	Code string
	Info string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mediawiki api error from %s: %s: %s", e.URL, e.Code, e.Info)
}

// DatasetError wraps failures reading or writing a sites data file.
type DatasetError struct {
	Path string
	Err  error
}

func (e *DatasetError) Error() string {
	return fmt.Sprintf("dataset error (%s): %v", e.Path, e.Err)
}

func (e *DatasetError) Unwrap() error { return e.Err }
