package info

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
)

// SourceGoogleNews names the news source in metrics and logs.
const SourceGoogleNews = "googlenews"

// newsLocale selects the Google News edition.
type newsLocale struct {
	hl, gl, ceid string
}

// localeFor maps a lookup language to a news edition. Vietnamese gets the
// Vietnamese edition; everything else reads the US English one.
func localeFor(lang string) newsLocale {
	if strings.HasPrefix(strings.ToLower(lang), "vi") {
		return newsLocale{hl: "vi", gl: "VN", ceid: "VN:vi"}
	}
	return newsLocale{hl: "en", gl: "US", ceid: "US:en"}
}

// windowDays expresses the news window in whole days as Google's when:
// operator expects, never less than one.
func (a *Aggregator) windowDays() int {
	return max(1, int(a.newsWindow.Hours()/24))
}

func (a *Aggregator) newsKey(keyword string, loc newsLocale) string {
	return "news::" + strings.Join([]string{
		strings.ToLower(keyword),
		strconv.Itoa(a.maxNews),
		loc.hl, loc.gl, loc.ceid,
		strconv.Itoa(a.windowDays()),
	}, "||")
}

// news returns recent headlines for keyword. Results are cached per
// (keyword, limit, edition, window); concurrent requests for the same key
// share a single upstream fetch. Failures are not cached.
func (a *Aggregator) news(ctx context.Context, keyword, lang string) []NewsItem {
	loc := localeFor(lang)
	key := a.newsKey(keyword, loc)

	if items, ok := a.newsCache.Get(key); ok {
		a.metrics.RecordNewsCache(ctx, true)
		return slices.Clone(items)
	}
	a.metrics.RecordNewsCache(ctx, false)

	v, err, _ := a.flight.Do(key, func() (any, error) {
		if items, ok := a.newsCache.Get(key); ok {
			return items, nil
		}
		// The shared fetch must outlive any single caller giving up.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		items, err := callBreaker(fctx, a, SourceGoogleNews, func(ctx context.Context) ([]NewsItem, error) {
			return a.fetchNews(ctx, keyword, loc)
		})
		if err != nil {
			return nil, err
		}
		a.newsCache.Add(key, items)
		return items, nil
	})
	if err != nil {
		a.sourceFailed(ctx, SourceGoogleNews, err)
		return []NewsItem{}
	}
	return slices.Clone(v.([]NewsItem))
}

func (a *Aggregator) fetchNews(ctx context.Context, keyword string, loc newsLocale) ([]NewsItem, error) {
	q := url.Values{
		"q":    {fmt.Sprintf(`"%s" when:%dd`, keyword, a.windowDays())},
		"hl":   {loc.hl},
		"gl":   {loc.gl},
		"ceid": {loc.ceid},
	}
	body, err := a.c.get(ctx, a.end.GoogleNews+"/rss/search", q)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("info: parse news feed: %w", err)
	}

	items := make([]NewsItem, 0, min(len(feed.Items), a.maxNews))
	for _, it := range feed.Items {
		if len(items) >= a.maxNews {
			break
		}
		items = append(items, NewsItem{
			Title:     it.Title,
			URL:       it.Link,
			Published: it.Published,
			Source:    publisher(it),
		})
	}
	return items, nil
}

// publisher names the outlet of a news item. Google News puts it in the
// author field on some editions and otherwise appends " - Outlet" to the
// headline.
func publisher(it *gofeed.Item) string {
	if it.Author != nil && it.Author.Name != "" {
		return it.Author.Name
	}
	if i := strings.LastIndex(it.Title, " - "); i > 0 {
		return strings.TrimSpace(it.Title[i+3:])
	}
	return ""
}
