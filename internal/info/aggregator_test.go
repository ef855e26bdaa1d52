package info_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/livenote/internal/info"
	"github.com/MrWong99/livenote/internal/resilience"
)

// upstream is a fake of every reference service, each mounted under its own
// path prefix. Unrouted paths answer 404.
type upstream struct {
	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	hits   map[string]int
}

func newUpstream(t *testing.T) (*upstream, info.Endpoints) {
	t.Helper()
	u := &upstream{routes: map[string]http.HandlerFunc{}, hits: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.hits[r.URL.Path]++
		h, ok := u.routes[r.URL.Path]
		u.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return u, info.Endpoints{
		Wikipedia:  srv.URL + "/wp",
		Commons:    srv.URL + "/commons",
		Wikidata:   srv.URL + "/wd",
		DuckDuckGo: srv.URL + "/ddg",
		Wiktionary: srv.URL + "/wikt",
		Openverse:  srv.URL + "/ov",
		GoogleNews: srv.URL + "/gn",
	}
}

func (u *upstream) handle(path string, h http.HandlerFunc) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.routes[path] = h
}

func (u *upstream) json(path string, v any) {
	u.handle(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	})
}

func (u *upstream) count(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[path]
}

const newsFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>"Apple" - Google News</title>
<item><title>Apple unveils a new product - The Verge</title><link>https://news.example/a</link><pubDate>Mon, 12 Oct 2026 10:00:00 GMT</pubDate></item>
<item><title>Apple stock rises - Reuters</title><link>https://news.example/b</link><pubDate>Tue, 13 Oct 2026 08:30:00 GMT</pubDate></item>
<item><title>Third story - AP</title><link>https://news.example/c</link></item>
</channel></rss>`

func serveNews(u *upstream) {
	u.handle("/gn/rss/search", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(newsFeed))
	})
}

func newAggregator(end info.Endpoints, opts ...info.Option) *info.Aggregator {
	base := []info.Option{
		info.WithEndpoints(end),
		info.WithRequestTimeout(2 * time.Second),
	}
	return info.New(append(base, opts...)...)
}

func TestFetch_WikipediaDefinitionImagesAndNews(t *testing.T) {
	t.Parallel()
	u, end := newUpstream(t)
	u.json("/wp/api/rest_v1/page/summary/Apple", map[string]any{
		"title":        "Apple Inc.",
		"extract":      "Apple Inc. is an American technology company.",
		"content_urls": map[string]any{"desktop": map[string]any{"page": "https://en.wikipedia.org/wiki/Apple_Inc."}},
	})
	u.handle("/wp/w/api.php", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("titles"); got != "Apple Inc." {
			t.Errorf("pageimages titles = %q, want canonical title", got)
		}
		_, _ = w.Write([]byte(`{"query":{"pages":{"1":{"thumbnail":{"source":"https://img.example/logo.png"}}}}}`))
	})
	u.handle("/commons/w/api.php", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"query":{"pages":{
			"20":{"title":"File:Park.jpg","index":2,"imageinfo":[{"url":"https://img.example/park.jpg","thumburl":"https://img.example/park_t.jpg"}]},
			"10":{"title":"File:Store.jpg","index":1,"imageinfo":[{"url":"https://img.example/store.jpg","thumburl":"https://img.example/store_t.jpg"}]}}}}`))
	})
	serveNews(u)

	a := newAggregator(end, info.WithMaxImages(3), info.WithMaxNews(2))
	res := a.Fetch(context.Background(), "  Apple ", "en")

	if res.Keyword != "Apple" {
		t.Errorf("Keyword = %q, want trimmed %q", res.Keyword, "Apple")
	}
	if res.Definition == nil || res.Definition.Source != info.SourceWikipedia {
		t.Fatalf("Definition = %+v, want wikipedia", res.Definition)
	}
	if res.CanonicalTitle != "Apple Inc." {
		t.Errorf("CanonicalTitle = %q, want %q", res.CanonicalTitle, "Apple Inc.")
	}

	wantImages := []string{
		"https://img.example/logo.png",
		"https://img.example/store_t.jpg",
		"https://img.example/park_t.jpg",
	}
	if len(res.Images) != len(wantImages) {
		t.Fatalf("len(Images) = %d, want %d: %+v", len(res.Images), len(wantImages), res.Images)
	}
	for i, want := range wantImages {
		if res.Images[i].Thumbnail != want {
			t.Errorf("Images[%d].Thumbnail = %q, want %q", i, res.Images[i].Thumbnail, want)
		}
	}
	if n := u.count("/ov/v1/images"); n != 0 {
		t.Errorf("openverse called %d times although enough images were found", n)
	}

	if len(res.News) != 2 {
		t.Fatalf("len(News) = %d, want 2", len(res.News))
	}
	if res.News[0].Source != "The Verge" || res.News[0].URL != "https://news.example/a" {
		t.Errorf("News[0] = %+v", res.News[0])
	}
	if res.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
}

func TestFetch_WikipediaSearchResolvesCanonicalTitle(t *testing.T) {
	t.Parallel()
	u, end := newUpstream(t)
	u.json("/wp/w/rest.php/v1/search/page", map[string]any{
		"pages": []map[string]any{{"title": "Tower of London", "key": "Tower_of_London"}},
	})
	u.json("/wp/api/rest_v1/page/summary/Tower_of_London", map[string]any{
		"title":   "Tower of London",
		"extract": "A historic castle.",
	})

	res := newAggregator(end).Fetch(context.Background(), "london tower", "en")
	if res.Definition == nil || res.Definition.Extract != "A historic castle." {
		t.Fatalf("Definition = %+v", res.Definition)
	}
	if res.CanonicalTitle != "Tower of London" {
		t.Errorf("CanonicalTitle = %q", res.CanonicalTitle)
	}
}

func TestFetch_PrefersWikidataOverDuckDuckGo(t *testing.T) {
	t.Parallel()
	u, end := newUpstream(t)
	u.json("/wd/w/api.php", map[string]any{
		"search": []map[string]any{{"id": "Q42", "label": "Douglas Adams", "description": "English writer"}},
	})
	u.json("/ddg/", map[string]any{"Heading": "Douglas Adams", "AbstractText": "Author of Hitchhiker's Guide."})

	res := newAggregator(end).Fetch(context.Background(), "Douglas Adams", "en")
	if res.Definition == nil {
		t.Fatal("Definition = nil")
	}
	if res.Definition.Source != info.SourceWikidata {
		t.Errorf("Source = %q, want %q", res.Definition.Source, info.SourceWikidata)
	}
	if !strings.HasSuffix(res.Definition.URL, "/wiki/Q42") {
		t.Errorf("URL = %q, want wikidata item page", res.Definition.URL)
	}
	if res.CanonicalTitle != "Douglas Adams" {
		t.Errorf("CanonicalTitle = %q, want the definition title", res.CanonicalTitle)
	}
}

func TestFetch_WiktionaryStripsMarkup(t *testing.T) {
	t.Parallel()
	u, end := newUpstream(t)
	u.json("/wikt/api/rest_v1/page/definition/serendipity", map[string]any{
		"en": []map[string]any{{
			"partOfSpeech": "Noun",
			"definitions": []map[string]any{
				{"definition": "A <a href=\"/wiki/combination\">combination</a> of events &amp; luck."},
				{"definition": ""},
			},
		}},
	})

	res := newAggregator(end).Fetch(context.Background(), "serendipity", "en")
	if res.Definition == nil || res.Definition.Source != info.SourceWiktionary {
		t.Fatalf("Definition = %+v, want wiktionary", res.Definition)
	}
	if want := "A combination of events & luck."; res.Definition.Extract != want {
		t.Errorf("Extract = %q, want %q", res.Definition.Extract, want)
	}
}

func TestFetch_TotalFailureIsEmptyResult(t *testing.T) {
	t.Parallel()
	u, end := newUpstream(t)
	fail := func(w http.ResponseWriter, _ *http.Request) { http.Error(w, "boom", http.StatusInternalServerError) }
	for _, p := range []string{
		"/wp/api/rest_v1/page/summary/Nothing", "/wd/w/api.php", "/ddg/",
		"/wikt/api/rest_v1/page/definition/Nothing", "/ov/v1/images", "/gn/rss/search",
	} {
		u.handle(p, fail)
	}

	res := newAggregator(end).Fetch(context.Background(), "Nothing", "en")
	if res.Definition != nil {
		t.Errorf("Definition = %+v, want nil", res.Definition)
	}
	if res.Images == nil || len(res.Images) != 0 {
		t.Errorf("Images = %#v, want empty non-nil", res.Images)
	}
	if res.News == nil || len(res.News) != 0 {
		t.Errorf("News = %#v, want empty non-nil", res.News)
	}
	if !res.Empty() {
		t.Error("Empty() = false")
	}
	if html := info.Render(res); !strings.Contains(html, "No information found") {
		t.Errorf("Render = %q, want no-information fragment", html)
	}
}

func TestFetch_BlankKeywordSkipsNetwork(t *testing.T) {
	t.Parallel()
	src := &stubSource{name: "stub", def: &info.Definition{Title: "x", Extract: "y"}}
	a := info.New(
		info.WithEndpoints(info.Endpoints{GoogleNews: "http://127.0.0.1:1"}),
		info.WithDefinitionSources(src),
	)
	res := a.Fetch(context.Background(), "   ", "")
	if res.Keyword != "   " || res.Lang != info.DefaultLang {
		t.Errorf("Keyword/Lang = %q/%q", res.Keyword, res.Lang)
	}
	if src.calls.Load() != 0 {
		t.Error("definition source called for blank keyword")
	}
	if !res.Empty() {
		t.Error("blank keyword result not empty")
	}
}

func TestFetch_NewsCacheServesRepeatedRequests(t *testing.T) {
	t.Parallel()
	u, end := newUpstream(t)
	serveNews(u)

	a := newAggregator(end)
	first := a.Fetch(context.Background(), "Apple", "en")
	second := a.Fetch(context.Background(), "apple", "en")

	if n := u.count("/gn/rss/search"); n != 1 {
		t.Errorf("news requests = %d, want 1", n)
	}
	if len(first.News) == 0 || len(second.News) != len(first.News) {
		t.Errorf("news lengths = %d, %d", len(first.News), len(second.News))
	}

	// A different edition is a different cache entry.
	a.Fetch(context.Background(), "Apple", "vi")
	if n := u.count("/gn/rss/search"); n != 2 {
		t.Errorf("news requests after vi lookup = %d, want 2", n)
	}
}

func TestFetch_NewsQueryAndLocale(t *testing.T) {
	t.Parallel()
	tests := []struct {
		lang, hl, gl, ceid string
	}{
		{"en", "en", "US", "US:en"},
		{"vi", "vi", "VN", "VN:vi"},
		{"vi-VN", "vi", "VN", "VN:vi"},
		{"de", "en", "US", "US:en"},
	}
	for _, tc := range tests {
		t.Run(tc.lang, func(t *testing.T) {
			t.Parallel()
			u, end := newUpstream(t)
			var got atomic.Value
			u.handle("/gn/rss/search", func(w http.ResponseWriter, r *http.Request) {
				got.Store(r.URL.Query())
				_, _ = w.Write([]byte(newsFeed))
			})
			newAggregator(end, info.WithNewsWindow(7*24*time.Hour)).Fetch(context.Background(), "Hà Nội", tc.lang)

			q, ok := got.Load().(url.Values)
			if !ok {
				t.Fatal("news endpoint not called")
			}
			if q["q"][0] != `"Hà Nội" when:7d` {
				t.Errorf("q = %q", q["q"][0])
			}
			if q["hl"][0] != tc.hl || q["gl"][0] != tc.gl || q["ceid"][0] != tc.ceid {
				t.Errorf("locale = %s/%s/%s, want %s/%s/%s", q["hl"][0], q["gl"][0], q["ceid"][0], tc.hl, tc.gl, tc.ceid)
			}
		})
	}
}

func TestFetch_OpenverseRelevanceFloor(t *testing.T) {
	t.Parallel()
	u, end := newUpstream(t)
	u.json("/ov/v1/images", map[string]any{
		"results": []map[string]any{
			{"url": "https://ov.example/1", "thumbnail": "https://ov.example/1t", "title": "Random sunset", "source": "stocksnap"},
			{"url": "https://ov.example/2", "thumbnail": "https://ov.example/2t", "title": "Ha Noi old quarter", "source": "flickr"},
			{"url": "https://ov.example/3", "thumbnail": "", "title": "Hà Nội", "source": "flickr"},
		},
	})

	res := newAggregator(end, info.WithMaxImages(4)).Fetch(context.Background(), "Hà Nội", "vi")
	if len(res.Images) != 1 {
		t.Fatalf("Images = %+v, want only the relevant one", res.Images)
	}
	if res.Images[0].URL != "https://ov.example/2" {
		t.Errorf("Images[0] = %+v", res.Images[0])
	}
	if res.Images[0].Relevance < 1.5 {
		t.Errorf("Relevance = %v, want >= floor", res.Images[0].Relevance)
	}
}

func TestFetch_OpenverseFallsBackToUnscored(t *testing.T) {
	t.Parallel()
	u, end := newUpstream(t)
	u.json("/ov/v1/images", map[string]any{
		"results": []map[string]any{
			{"url": "https://ov.example/1", "thumbnail": "https://ov.example/1t", "title": "Sunset", "source": "stocksnap"},
			{"url": "https://ov.example/2", "thumbnail": "https://ov.example/2t", "title": "Beach", "source": "stocksnap"},
		},
	})

	res := newAggregator(end, info.WithMaxImages(6)).Fetch(context.Background(), "Zanzibar", "en")
	// All three query forms return the same two images; duplicates collapse.
	if len(res.Images) != 2 {
		t.Fatalf("len(Images) = %d, want 2 unscored fallbacks", len(res.Images))
	}
	if n := u.count("/ov/v1/images"); n != 3 {
		t.Errorf("openverse requests = %d, want 3 query forms", n)
	}
}

// ---------------------------------------------------------------------------
// Preference-ordered coalescing, with in-process sources
// ---------------------------------------------------------------------------

type stubSource struct {
	name  string
	def   *info.Definition
	err   error
	delay time.Duration
	calls atomic.Int32
	// canceled is set when the lookup observed cancellation.
	canceled atomic.Bool
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Define(ctx context.Context, _, _ string) (*info.Definition, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			s.canceled.Store(true)
			return nil, ctx.Err()
		}
	}
	return s.def, s.err
}

func TestFetch_DefinitionPreferenceOrder(t *testing.T) {
	t.Parallel()
	def := func(src string) *info.Definition {
		return &info.Definition{Title: src, Extract: "from " + src, Source: src}
	}

	tests := []struct {
		name    string
		sources []*stubSource
		want    string
	}{
		{
			name: "slow preferred source still wins",
			sources: []*stubSource{
				{name: "first", def: def("first"), delay: 50 * time.Millisecond},
				{name: "second", def: def("second")},
			},
			want: "first",
		},
		{
			name: "empty preferred source falls through",
			sources: []*stubSource{
				{name: "first", def: &info.Definition{Title: "only a title"}},
				{name: "second", def: def("second"), delay: 20 * time.Millisecond},
				{name: "third", def: def("third")},
			},
			want: "second",
		},
		{
			name: "errors fall through",
			sources: []*stubSource{
				{name: "first", err: errors.New("down")},
				{name: "second"},
				{name: "third", def: def("third")},
			},
			want: "third",
		},
		{
			name: "nothing anywhere",
			sources: []*stubSource{
				{name: "first", err: errors.New("down")},
				{name: "second"},
			},
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, end := newUpstream(t)
			srcs := make([]info.DefinitionSource, len(tc.sources))
			for i, s := range tc.sources {
				srcs[i] = s
			}
			res := newAggregator(end, info.WithDefinitionSources(srcs...)).Fetch(context.Background(), "kw", "en")

			got := ""
			if res.Definition != nil {
				got = res.Definition.Source
			}
			if got != tc.want {
				t.Errorf("definition source = %q, want %q", got, tc.want)
			}
			for _, s := range tc.sources {
				if s.calls.Load() != 1 {
					t.Errorf("source %s called %d times, want 1", s.name, s.calls.Load())
				}
			}
		})
	}
}

func TestFetch_LowerSourcesCancelledAfterWinner(t *testing.T) {
	t.Parallel()
	_, end := newUpstream(t)
	winner := &stubSource{name: "winner", def: &info.Definition{Title: "w", Extract: "w"}}
	slow := &stubSource{name: "slow", def: &info.Definition{Title: "s", Extract: "s"}, delay: 5 * time.Second}

	start := time.Now()
	res := newAggregator(end, info.WithDefinitionSources(winner, slow)).Fetch(context.Background(), "kw", "en")
	if time.Since(start) > 2*time.Second {
		t.Error("Fetch waited for a lower-preference source")
	}
	if res.Definition == nil || res.Definition.Title != "w" {
		t.Errorf("Definition = %+v", res.Definition)
	}
	deadline := time.Now().Add(time.Second)
	for !slow.canceled.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !slow.canceled.Load() {
		t.Error("lower-preference lookup was not cancelled")
	}
}

func TestAggregator_BreakerOpensForFailingSource(t *testing.T) {
	t.Parallel()
	_, end := newUpstream(t)
	bad := &stubSource{name: "bad", err: errors.New("down")}
	a := newAggregator(end,
		info.WithDefinitionSources(bad),
		info.WithBreakerConfig(resilience.CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}),
	)
	for range 4 {
		a.Fetch(context.Background(), "kw", "en")
	}
	if got := bad.calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2 before the breaker opened", got)
	}
	if st := a.Health()["bad"]; st != resilience.StateOpen {
		t.Errorf("breaker state = %v, want open", st)
	}
}
