package info

import (
	"context"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Image source names. Openverse results carry the provider they were
// indexed from (flickr, wikimedia, ...) instead.
const (
	SourceCommons   = "commons"
	SourceOpenverse = "openverse"
)

// Relevance scoring for general image search results.
const (
	scoreExactTitle    = 3.0
	scoreContainsTitle = 2.0
	scoreJaccard       = 2.5
	scoreWikiSource    = 1.5
	scoreFlickr        = 0.5
	relevanceFloor     = 1.5
	thumbWidth         = "600"
)

// wikiImages collects the page image of the canonical article and a Commons
// media search for the same title. Both lookups run concurrently; a failure
// in one does not discard the other.
func (a *Aggregator) wikiImages(ctx context.Context, title, lang string) []Image {
	var page, commons []Image
	var g errgroup.Group
	g.Go(func() error {
		imgs, err := callBreaker(ctx, a, SourceWikipedia, func(ctx context.Context) ([]Image, error) {
			return a.pageImage(ctx, title, lang)
		})
		if err != nil {
			a.sourceFailed(ctx, SourceWikipedia, err)
		}
		page = imgs
		return nil
	})
	g.Go(func() error {
		imgs, err := callBreaker(ctx, a, SourceCommons, func(ctx context.Context) ([]Image, error) {
			return a.commonsSearch(ctx, title)
		})
		if err != nil {
			a.sourceFailed(ctx, SourceCommons, err)
		}
		commons = imgs
		return nil
	})
	_ = g.Wait()
	return pickFirst(append(page, commons...), a.maxImages)
}

func (a *Aggregator) pageImage(ctx context.Context, title, lang string) ([]Image, error) {
	var resp struct {
		Query struct {
			Pages map[string]struct {
				Thumbnail struct {
					Source string `json:"source"`
				} `json:"thumbnail"`
			} `json:"pages"`
		} `json:"query"`
	}
	q := url.Values{
		"action":      {"query"},
		"format":      {"json"},
		"prop":        {"pageimages"},
		"titles":      {title},
		"pithumbsize": {thumbWidth},
		"origin":      {"*"},
	}
	if err := a.c.getJSON(ctx, a.end.wikipedia(lang)+"/w/api.php", q, &resp); err != nil {
		return nil, err
	}
	var out []Image
	for _, id := range sortedKeys(resp.Query.Pages) {
		src := resp.Query.Pages[id].Thumbnail.Source
		if src != "" {
			out = append(out, Image{URL: src, Thumbnail: src, Title: title, Source: SourceWikipedia})
		}
	}
	return out, nil
}

func (a *Aggregator) commonsSearch(ctx context.Context, title string) ([]Image, error) {
	var resp struct {
		Query struct {
			Pages map[string]struct {
				Title     string `json:"title"`
				Index     int    `json:"index"`
				ImageInfo []struct {
					URL      string `json:"url"`
					ThumbURL string `json:"thumburl"`
				} `json:"imageinfo"`
			} `json:"pages"`
		} `json:"query"`
	}
	q := url.Values{
		"action":       {"query"},
		"format":       {"json"},
		"generator":    {"search"},
		"gsrnamespace": {"6"},
		"gsrlimit":     {strconv.Itoa(a.maxImages)},
		"gsrsearch":    {title},
		"prop":         {"imageinfo"},
		"iiprop":       {"url|mime"},
		"iiurlwidth":   {thumbWidth},
		"origin":       {"*"},
	}
	if err := a.c.getJSON(ctx, a.end.Commons+"/w/api.php", q, &resp); err != nil {
		return nil, err
	}

	// Pages come back keyed by page id; index is the search rank.
	ids := sortedKeys(resp.Query.Pages)
	sort.SliceStable(ids, func(i, j int) bool {
		return resp.Query.Pages[ids[i]].Index < resp.Query.Pages[ids[j]].Index
	})

	var out []Image
	for _, id := range ids {
		pg := resp.Query.Pages[id]
		if len(pg.ImageInfo) == 0 {
			continue
		}
		info := pg.ImageInfo[0]
		if info.URL == "" && info.ThumbURL == "" {
			continue
		}
		out = append(out, Image{
			URL:       firstNonEmpty(info.URL, info.ThumbURL),
			Thumbnail: firstNonEmpty(info.ThumbURL, info.URL),
			Title:     firstNonEmpty(pg.Title, title),
			Source:    SourceCommons,
		})
	}
	return out, nil
}

// openverseImages searches Openverse by title, then by quoted phrase, then
// by plain query until enough candidates are found, and ranks them by
// relevance to keyword. Candidates below the relevance floor are dropped
// unless none clears it, in which case the top unfiltered results are kept.
func (a *Aggregator) openverseImages(ctx context.Context, keyword string) []Image {
	queries := []url.Values{
		{"title": {keyword}},
		{"q": {`"` + keyword + `"`}},
		{"q": {keyword}},
	}

	var cands []Image
	for _, q := range queries {
		if len(cands) >= a.maxImages {
			break
		}
		q.Set("mature", "false")
		q.Set("page_size", strconv.Itoa(a.maxImages))
		imgs, err := callBreaker(ctx, a, SourceOpenverse, func(ctx context.Context) ([]Image, error) {
			return a.openverseSearch(ctx, q)
		})
		if err != nil {
			a.sourceFailed(ctx, SourceOpenverse, err)
			continue
		}
		cands = append(cands, imgs...)
	}

	scored := cands[:0]
	for _, im := range cands {
		if im.Thumbnail == "" {
			continue
		}
		im.Relevance = scoreImage(keyword, im)
		scored = append(scored, im)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Relevance > scored[j].Relevance })

	var relevant []Image
	for _, im := range scored {
		if im.Relevance >= relevanceFloor {
			relevant = append(relevant, im)
		}
	}
	if len(relevant) == 0 && len(scored) > 0 {
		relevant = scored[:min(len(scored), a.maxImages)]
	}
	return pickFirst(relevant, a.maxImages)
}

func (a *Aggregator) openverseSearch(ctx context.Context, q url.Values) ([]Image, error) {
	var resp struct {
		Results []struct {
			URL       string `json:"url"`
			Thumbnail string `json:"thumbnail"`
			Title     string `json:"title"`
			Source    string `json:"source"`
		} `json:"results"`
	}
	if err := a.c.getJSON(ctx, a.end.Openverse+"/v1/images", q, &resp); err != nil {
		return nil, err
	}
	out := make([]Image, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, Image{
			URL:       r.URL,
			Thumbnail: r.Thumbnail,
			Title:     r.Title,
			Source:    firstNonEmpty(r.Source, SourceOpenverse),
		})
	}
	return out, nil
}

// scoreImage rates how well a candidate's title matches the keyword.
func scoreImage(keyword string, im Image) float64 {
	kw := normalizeText(keyword)
	title := normalizeText(im.Title)

	var score float64
	if kw != "" && title != "" {
		if kw == title {
			score += scoreExactTitle
		}
		if strings.Contains(" "+title+" ", " "+kw+" ") {
			score += scoreContainsTitle
		}
		score += scoreJaccard * jaccard(tokenize(keyword), tokenize(im.Title))
	}

	src := strings.ToLower(im.Source)
	if strings.Contains(src, "wikipedia") || strings.Contains(src, "wikimedia") || strings.Contains(src, "commons") {
		score += scoreWikiSource
	}
	if strings.Contains(src, "flickr") {
		score += scoreFlickr
	}
	return score
}

// transliterate maps letters that carry no combining mark under NFD but
// still have a plain ASCII reading.
var transliterate = map[rune]rune{
	'đ': 'd', 'Đ': 'D',
	'ø': 'o', 'Ø': 'O',
	'ł': 'l', 'Ł': 'L',
	'ı': 'i',
}

// foldAccents strips diacritics. A fresh transformer is built per call since
// chained transformers are stateful.
func foldAccents(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(func(r rune) rune {
			if m, ok := transliterate[r]; ok {
				return m
			}
			return r
		}),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// normalizeText folds accents and case and keeps only ASCII letters, digits
// and the separators - _ / . so titles from different sources compare.
func normalizeText(s string) string {
	s = strings.ToLower(foldAccents(s))
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '/', r == '.':
			return r
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

func tokenize(s string) []string {
	var out []string
	for _, t := range strings.Fields(normalizeText(s)) {
		if len(t) >= 2 {
			out = append(out, t)
		}
	}
	return out
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	sa := make(map[string]struct{}, len(a))
	for _, t := range a {
		sa[t] = struct{}{}
	}
	sb := make(map[string]struct{}, len(b))
	for _, t := range b {
		sb[t] = struct{}{}
	}
	inter := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(sa)+len(sb)-inter)
}

// pickFirst returns up to n images, skipping repeats of the same
// url|thumbnail pair.
func pickFirst(imgs []Image, n int) []Image {
	out := make([]Image, 0, min(len(imgs), n))
	seen := make(map[string]struct{}, len(imgs))
	for _, im := range imgs {
		if len(out) >= n {
			break
		}
		k := im.key()
		if k == "|" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, im)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
