package info_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/livenote/internal/info"
)

func TestRender(t *testing.T) {
	t.Parallel()
	fetched := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		result  info.Result
		want    []string
		notWant []string
	}{
		{
			name: "full result",
			result: info.Result{
				Keyword:    "Apple",
				FetchedAt:  fetched,
				Definition: &info.Definition{Title: "Apple Inc.", Extract: "A company.", URL: "https://en.wikipedia.org/wiki/Apple_Inc."},
				Images:     []info.Image{{URL: "https://img/1", Thumbnail: "https://img/1t", Title: "Logo"}},
				News:       []info.NewsItem{{Title: "Headline", URL: "https://news/1", Published: "Mon, 12 Oct 2026"}},
			},
			want: []string{
				`Results for <span class="keyword">Apple</span>`,
				"A company.",
				`href="https://en.wikipedia.org/wiki/Apple_Inc."`,
				`src="https://img/1t"`,
				"Latest News",
				"(Mon, 12 Oct 2026)",
				"Fetched at 2026-10-15T09:30:00Z",
			},
			notWant: []string{"No images found.", "No recent news.", "No definition found."},
		},
		{
			name: "news only",
			result: info.Result{
				Keyword:   "Zanzibar",
				FetchedAt: fetched,
				News:      []info.NewsItem{{Title: "Story", URL: "https://news/2"}},
			},
			want:    []string{"No definition found.", "No images found.", "Story"},
			notWant: []string{">Source<", "No recent news."},
		},
		{
			name: "images without thumbnails are skipped",
			result: info.Result{
				Keyword: "x",
				Images:  []info.Image{{URL: "https://img/only-url"}},
			},
			want:    []string{"No images found."},
			notWant: []string{"only-url"},
		},
		{
			name:    "nothing found",
			result:  info.Result{Keyword: "Nothing"},
			want:    []string{"No information found", "<b>Nothing</b>"},
			notWant: []string{"Results for"},
		},
		{
			name: "escapes untrusted content",
			result: info.Result{
				Keyword:    `<script>alert(1)</script>`,
				Definition: &info.Definition{Extract: `<img onerror=x>`, URL: "javascript:alert(1)"},
			},
			want:    []string{"&lt;script&gt;", "&lt;img onerror=x&gt;", "#ZgotmplZ"},
			notWant: []string{"<script>", "javascript:"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			html := info.Render(tc.result)
			for _, w := range tc.want {
				if !strings.Contains(html, w) {
					t.Errorf("Render missing %q in:\n%s", w, html)
				}
			}
			for _, nw := range tc.notWant {
				if strings.Contains(html, nw) {
					t.Errorf("Render contains %q in:\n%s", nw, html)
				}
			}
		})
	}
}

func TestRenderLoadingAndError(t *testing.T) {
	t.Parallel()
	if got := info.RenderLoading("A&B"); !strings.Contains(got, "A&amp;B") {
		t.Errorf("RenderLoading = %q, want escaped keyword", got)
	}
	if got := info.RenderError(); !strings.Contains(got, "kw-info-error") {
		t.Errorf("RenderError = %q", got)
	}
}
