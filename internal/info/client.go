package info

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Endpoints holds the base URLs of every upstream service. The Wikipedia
// base may contain a "{lang}" placeholder that is replaced with the lookup
// language. Tests point all of them at a single httptest server.
type Endpoints struct {
	Wikipedia  string
	Commons    string
	Wikidata   string
	DuckDuckGo string
	Wiktionary string
	Openverse  string
	GoogleNews string
}

// DefaultEndpoints returns the public production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Wikipedia:  "https://{lang}.wikipedia.org",
		Commons:    "https://commons.wikimedia.org",
		Wikidata:   "https://www.wikidata.org",
		DuckDuckGo: "https://api.duckduckgo.com",
		Wiktionary: "https://en.wiktionary.org",
		Openverse:  "https://api.openverse.engineering",
		GoogleNews: "https://news.google.com",
	}
}

// withDefaults fills empty fields from [DefaultEndpoints].
func (e Endpoints) withDefaults() Endpoints {
	d := DefaultEndpoints()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
		*dst = strings.TrimRight(*dst, "/")
	}
	fill(&e.Wikipedia, d.Wikipedia)
	fill(&e.Commons, d.Commons)
	fill(&e.Wikidata, d.Wikidata)
	fill(&e.DuckDuckGo, d.DuckDuckGo)
	fill(&e.Wiktionary, d.Wiktionary)
	fill(&e.Openverse, d.Openverse)
	fill(&e.GoogleNews, d.GoogleNews)
	return e
}

func (e Endpoints) wikipedia(lang string) string {
	return strings.ReplaceAll(e.Wikipedia, "{lang}", lang)
}

// StatusError is returned when an upstream answers with a non-200 status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("info: GET %s: status %d", e.URL, e.Code)
}

// client performs the GET requests shared by all sources.
type client struct {
	http      *http.Client
	userAgent string
}

func (c *client) get(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("info: create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("info: GET %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: req.URL.Path, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("info: read %s: %w", req.URL.Path, err)
	}
	return body, nil
}

func (c *client) getJSON(ctx context.Context, rawURL string, query url.Values, v any) error {
	body, err := c.get(ctx, rawURL, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("info: decode %s: %w", rawURL, err)
	}
	return nil
}

// titlePath turns a page title into the path segment Wikimedia REST APIs
// expect.
func titlePath(title string) string {
	return url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}
