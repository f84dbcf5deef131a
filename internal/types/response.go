package types

import (
	"bytes"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Response is the result of resolving a wiki URL. The body has already been
// decompressed and decoded to UTF-8.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Headers are the response HTTP headers.
	Headers http.Header

	// Body is the decoded response body.
	Body []byte

	// ContentType is the MIME type of the response.
	ContentType string

	// FinalURL is the URL after any redirects and protocol fallback.
	FinalURL string

	// Protocol is the scheme the wiki actually resolved over, which may
	// differ from the scheme the caller asked for.
	Protocol string

	// FetchedAt is when this response was received.
	FetchedAt time.Time

	doc  *goquery.Document
	node *html.Node
}

// NewResponse creates a Response from an http.Response whose body has
// already been read and decoded.
func NewResponse(httpResp *http.Response, body []byte) *Response {
	finalURL := httpResp.Request.URL
	return &Response{
		StatusCode:  httpResp.StatusCode,
		Headers:     httpResp.Header,
		Body:        body,
		ContentType: httpResp.Header.Get("Content-Type"),
		FinalURL:    finalURL.String(),
		Protocol:    finalURL.Scheme,
		FetchedAt:   time.Now(),
	}
}

// Document returns the body parsed as a goquery document, lazily.
func (r *Response) Document() (*goquery.Document, error) {
	if r.doc != nil {
		return r.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	r.doc = doc
	return doc, nil
}

// HTMLNode returns the body parsed as an x/net/html tree for XPath queries,
// lazily. It shares no state with Document.
func (r *Response) HTMLNode() (*html.Node, error) {
	if r.node != nil {
		return r.node, nil
	}
	node, err := htmlquery.Parse(bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	r.node = node
	return node, nil
}

// URL returns the parsed final URL.
func (r *Response) URL() (*url.URL, error) {
	return url.Parse(r.FinalURL)
}

// IsSuccess returns true if the response status is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
