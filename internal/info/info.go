// Package info enriches a clicked keyword with a short definition, related
// images and recent news.
//
// [Aggregator.Fetch] fans out to several public reference services and always
// returns a structurally valid [Result]; individual source failures only leave
// fields empty. [Render] turns a Result into an HTML fragment for the overlay.
// [Runner] owns the worker goroutines that perform the network calls, and
// [Presenter] makes sure only the most recent click reaches the display.
package info

import (
	"context"
	"time"
)

// Default limits.
const (
	DefaultLang           = "en"
	DefaultMaxImages      = 6
	DefaultMaxNews        = 6
	DefaultNewsWindow     = 14 * 24 * time.Hour
	DefaultCacheTTL       = 10 * time.Minute
	DefaultCacheSize      = 4096
	DefaultRequestTimeout = 10 * time.Second
	DefaultUserAgent      = "KeywordInfoService/3.0 (+https://github.com/MrWong99/livenote)"
)

// Definition is a short textual description of a keyword.
type Definition struct {
	Title     string `json:"title"`
	Extract   string `json:"extract,omitempty"`
	URL       string `json:"url,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	// Source names the service that produced the definition.
	Source string `json:"source"`
}

// Empty reports whether d carries nothing worth displaying. A Wikipedia hit
// that only resolved a canonical title is empty.
func (d *Definition) Empty() bool {
	return d == nil || (d.Extract == "" && d.URL == "" && d.Thumbnail == "")
}

// Image is a picture related to a keyword.
type Image struct {
	URL       string  `json:"url"`
	Thumbnail string  `json:"thumbnail"`
	Title     string  `json:"title"`
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance,omitempty"`
}

// key identifies an image for deduplication.
func (im Image) key() string {
	return im.URL + "|" + im.Thumbnail
}

// NewsItem is one recent headline mentioning a keyword.
type NewsItem struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Published string `json:"published,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Result is the aggregated information about one keyword. The zero value
// with Keyword set is a valid "nothing found" result.
type Result struct {
	Keyword        string      `json:"keyword"`
	Lang           string      `json:"lang"`
	FetchedAt      time.Time   `json:"fetched_at"`
	Definition     *Definition `json:"definition"`
	Images         []Image     `json:"images"`
	News           []NewsItem  `json:"news"`
	CanonicalTitle string      `json:"canonical_title,omitempty"`
}

// Empty reports whether no source contributed anything.
func (r Result) Empty() bool {
	return r.Definition.Empty() && len(r.Images) == 0 && len(r.News) == 0
}

// Fetcher looks up information about a keyword. Implementations never fail;
// missing information is reported as empty fields.
type Fetcher interface {
	Fetch(ctx context.Context, keyword, lang string) Result
}

// DefinitionSource is one of the services raced for a keyword definition.
// A nil definition with a nil error means the source had nothing.
type DefinitionSource interface {
	Name() string
	Define(ctx context.Context, keyword, lang string) (*Definition, error)
}
