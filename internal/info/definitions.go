package info

import (
	"context"
	"errors"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Built-in definition source names, in preference order.
const (
	SourceWikipedia  = "wikipedia"
	SourceWikidata   = "wikidata"
	SourceDuckDuckGo = "duckduckgo"
	SourceWiktionary = "wiktionary"
)

// notFound reports whether err is an upstream 404, which the reference
// services use for "no such page" rather than for failures.
func notFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// ---------------------------------------------------------------------------
// Wikipedia
// ---------------------------------------------------------------------------

type wikipedia struct {
	c   *client
	end Endpoints
}

func (*wikipedia) Name() string { return SourceWikipedia }

type wikiSummary struct {
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	Description string `json:"description"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
	Thumbnail struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
}

// Define looks the keyword up directly and, on a miss, through page search.
// When search finds a title whose summary cannot be loaded, the returned
// definition carries only that canonical title.
func (w *wikipedia) Define(ctx context.Context, keyword, lang string) (*Definition, error) {
	base := w.end.wikipedia(lang)

	def, err := w.summary(ctx, base, keyword)
	if err != nil && !notFound(err) {
		return nil, err
	}
	if def != nil {
		return def, nil
	}

	var search struct {
		Pages []struct {
			Title string `json:"title"`
			Key   string `json:"key"`
		} `json:"pages"`
	}
	q := url.Values{"q": {keyword}, "limit": {"1"}}
	if err := w.c.getJSON(ctx, base+"/w/rest.php/v1/search/page", q, &search); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(search.Pages) == 0 {
		return nil, nil
	}
	title := search.Pages[0].Title
	if title == "" {
		title = search.Pages[0].Key
	}
	if title == "" {
		return nil, nil
	}

	def, err = w.summary(ctx, base, title)
	if err != nil && !notFound(err) {
		return nil, err
	}
	if def == nil {
		return &Definition{Title: title, Source: SourceWikipedia}, nil
	}
	return def, nil
}

func (w *wikipedia) summary(ctx context.Context, base, title string) (*Definition, error) {
	var s wikiSummary
	if err := w.c.getJSON(ctx, base+"/api/rest_v1/page/summary/"+titlePath(title), nil, &s); err != nil {
		return nil, err
	}
	if s.Title == "" {
		return nil, nil
	}
	extract := s.Extract
	if extract == "" {
		extract = s.Description
	}
	return &Definition{
		Title:     s.Title,
		Extract:   extract,
		URL:       s.ContentURLs.Desktop.Page,
		Thumbnail: s.Thumbnail.Source,
		Source:    SourceWikipedia,
	}, nil
}

// ---------------------------------------------------------------------------
// Wikidata
// ---------------------------------------------------------------------------

type wikidata struct {
	c   *client
	end Endpoints
}

func (*wikidata) Name() string { return SourceWikidata }

func (w *wikidata) Define(ctx context.Context, keyword, lang string) (*Definition, error) {
	var resp struct {
		Search []struct {
			ID          string `json:"id"`
			Label       string `json:"label"`
			Description string `json:"description"`
		} `json:"search"`
	}
	q := url.Values{
		"action":   {"wbsearchentities"},
		"format":   {"json"},
		"language": {lang},
		"search":   {keyword},
		"limit":    {"1"},
		"origin":   {"*"},
	}
	if err := w.c.getJSON(ctx, w.end.Wikidata+"/w/api.php", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Search) == 0 {
		return nil, nil
	}
	item := resp.Search[0]
	def := &Definition{Title: item.Label, Extract: item.Description, Source: SourceWikidata}
	if def.Title == "" {
		def.Title = keyword
	}
	if item.ID != "" {
		def.URL = w.end.Wikidata + "/wiki/" + url.PathEscape(item.ID)
	}
	if def.Empty() {
		return nil, nil
	}
	return def, nil
}

// ---------------------------------------------------------------------------
// DuckDuckGo instant answers
// ---------------------------------------------------------------------------

type duckDuckGo struct {
	c   *client
	end Endpoints
}

func (*duckDuckGo) Name() string { return SourceDuckDuckGo }

func (d *duckDuckGo) Define(ctx context.Context, keyword, _ string) (*Definition, error) {
	var resp struct {
		Heading      string `json:"Heading"`
		AbstractText string `json:"AbstractText"`
		Abstract     string `json:"Abstract"`
		AbstractURL  string `json:"AbstractURL"`
		Redirect     string `json:"Redirect"`
		Image        string `json:"Image"`
	}
	q := url.Values{
		"q":             {keyword},
		"format":        {"json"},
		"no_html":       {"1"},
		"skip_disambig": {"1"},
	}
	if err := d.c.getJSON(ctx, d.end.DuckDuckGo+"/", q, &resp); err != nil {
		return nil, err
	}
	def := &Definition{
		Title:     firstNonEmpty(resp.Heading, keyword),
		Extract:   firstNonEmpty(resp.AbstractText, resp.Abstract),
		URL:       firstNonEmpty(resp.AbstractURL, resp.Redirect),
		Thumbnail: resp.Image,
		Source:    SourceDuckDuckGo,
	}
	// DuckDuckGo returns image paths relative to its own host.
	if strings.HasPrefix(def.Thumbnail, "/") {
		def.Thumbnail = "https://duckduckgo.com" + def.Thumbnail
	}
	if def.Empty() {
		return nil, nil
	}
	return def, nil
}

// ---------------------------------------------------------------------------
// Wiktionary
// ---------------------------------------------------------------------------

// maxSenses bounds how many dictionary senses are joined into one extract.
const maxSenses = 3

var markupRe = regexp.MustCompile(`<[^>]*>`)

type wiktionary struct {
	c   *client
	end Endpoints
}

func (*wiktionary) Name() string { return SourceWiktionary }

// Define reads English senses only; the endpoint groups them by language
// code and the non-English groups describe the word as used in English text.
func (w *wiktionary) Define(ctx context.Context, term, _ string) (*Definition, error) {
	var resp map[string][]struct {
		PartOfSpeech string `json:"partOfSpeech"`
		Definitions  []struct {
			Definition string `json:"definition"`
		} `json:"definitions"`
	}
	err := w.c.getJSON(ctx, w.end.Wiktionary+"/api/rest_v1/page/definition/"+titlePath(term), nil, &resp)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var senses []string
	for _, usage := range resp["en"] {
		for _, d := range usage.Definitions {
			text := strings.TrimSpace(html.UnescapeString(markupRe.ReplaceAllString(d.Definition, "")))
			if text != "" {
				senses = append(senses, text)
			}
		}
	}
	if len(senses) == 0 {
		return nil, nil
	}
	if len(senses) > maxSenses {
		senses = senses[:maxSenses]
	}
	return &Definition{
		Title:   term,
		Extract: strings.Join(senses, "; "),
		URL:     w.end.Wiktionary + "/wiki/" + titlePath(term),
		Source:  SourceWiktionary,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
