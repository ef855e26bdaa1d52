package mcpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/livenote/internal/info"
	"github.com/MrWong99/livenote/internal/keyword"
	"github.com/MrWong99/livenote/internal/mcpserver"
	"github.com/MrWong99/livenote/internal/session"
)

type fakeSession struct {
	scored []keyword.Scored
	snap   session.Snapshot
	orders []keyword.Order
	ks     []int
}

func (f *fakeSession) Top(k int, order keyword.Order) []keyword.Scored {
	f.orders = append(f.orders, order)
	f.ks = append(f.ks, k)
	if k >= 0 && k < len(f.scored) {
		return f.scored[:k]
	}
	return f.scored
}

func (f *fakeSession) Snapshot() session.Snapshot { return f.snap }

type fakeLooker struct {
	err error
}

func (f fakeLooker) Lookup(_ context.Context, kw, lang string) (info.Result, error) {
	if f.err != nil {
		return info.Result{}, f.err
	}
	return info.Result{
		Keyword:    kw,
		Lang:       lang,
		FetchedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Definition: &info.Definition{Title: kw, Extract: "A city.", Source: "wikipedia"},
		Images:     []info.Image{{URL: "https://img/1.jpg", Thumbnail: "https://img/t1.jpg", Source: "commons"}},
		News:       []info.NewsItem{{Title: "News", URL: "https://news/1", Source: "Outlet"}},
	}, nil
}

func connect(t *testing.T, s *mcpserver.Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	ct, st := mcpsdk.NewInMemoryTransports()
	ss, err := s.MCP().Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcpsdk.ClientSession, name string, args map[string]any) *mcpsdk.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func text(res *mcpsdk.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func decode[T any](t *testing.T, res *mcpsdk.CallToolResult) T {
	t.Helper()
	if res.IsError {
		t.Fatalf("tool error: %s", text(res))
	}
	var v T
	if err := json.Unmarshal([]byte(text(res)), &v); err != nil {
		t.Fatalf("decode %q: %v", text(res), err)
	}
	return v
}

func newSession() *fakeSession {
	return &fakeSession{
		scored: []keyword.Scored{
			{Record: keyword.Record{Text: "Paris", Kind: keyword.KindEntity, HasNamedEntity: true}, Score: 3.5},
			{Record: keyword.Record{Text: "new product", Kind: keyword.KindPattern}, Score: 2},
		},
		snap: session.Snapshot{Sentences: []string{"one", "two", "three"}},
	}
}

func TestListTools(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		looker mcpserver.Looker
		want   []string
	}{
		{name: "with info", looker: fakeLooker{}, want: []string{"keyword_info", "top_keywords", "transcript"}},
		{name: "without info", want: []string{"top_keywords", "transcript"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cs := connect(t, mcpserver.New(newSession(), tt.looker))
			var got []string
			for tool, err := range cs.Tools(context.Background(), nil) {
				if err != nil {
					t.Fatalf("Tools: %v", err)
				}
				got = append(got, tool.Name)
			}
			slices.Sort(got)
			if !slices.Equal(got, tt.want) {
				t.Errorf("tools = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTopKeywords(t *testing.T) {
	t.Parallel()
	sess := newSession()
	cs := connect(t, mcpserver.New(sess, nil))

	out := decode[mcpserver.TopKeywordsOutput](t, call(t, cs, "top_keywords", map[string]any{"k": 1, "order": "appearance"}))
	if out.Order != "appearance" || len(out.Keywords) != 1 || out.Keywords[0].Text != "Paris" {
		t.Errorf("output = %+v", out)
	}
	if out.Keywords[0].Kind != "ner" || !out.Keywords[0].HasNamedEntity {
		t.Errorf("keyword = %+v", out.Keywords[0])
	}
	if len(sess.orders) != 1 || sess.orders[0] != keyword.OrderAppearance {
		t.Errorf("orders = %v", sess.orders)
	}

	// An omitted k asks for every keyword.
	all := decode[mcpserver.TopKeywordsOutput](t, call(t, cs, "top_keywords", nil))
	if len(all.Keywords) != 2 || sess.ks[len(sess.ks)-1] != keyword.All {
		t.Errorf("without k: %d keywords, k passed = %v", len(all.Keywords), sess.ks)
	}

	if res := call(t, cs, "top_keywords", map[string]any{"order": "random"}); !res.IsError {
		t.Errorf("invalid order accepted: %s", text(res))
	}
}

func TestTranscript(t *testing.T) {
	t.Parallel()
	cs := connect(t, mcpserver.New(newSession(), nil))

	out := decode[mcpserver.TranscriptOutput](t, call(t, cs, "transcript", map[string]any{"latest": 2}))
	if !slices.Equal(out.Sentences, []string{"two", "three"}) || out.Total != 3 {
		t.Errorf("output = %+v", out)
	}
	all := decode[mcpserver.TranscriptOutput](t, call(t, cs, "transcript", nil))
	if len(all.Sentences) != 3 {
		t.Errorf("all sentences = %v", all.Sentences)
	}
}

func TestKeywordInfo(t *testing.T) {
	t.Parallel()
	cs := connect(t, mcpserver.New(newSession(), fakeLooker{}, mcpserver.WithDefaultLanguage("vi")))

	out := decode[mcpserver.KeywordInfoOutput](t, call(t, cs, "keyword_info", map[string]any{"keyword": " Paris "}))
	if out.Keyword != "Paris" || out.Lang != "vi" || !out.Found {
		t.Errorf("output = %+v", out)
	}
	if out.Definition == nil || out.Definition.Extract != "A city." {
		t.Errorf("definition = %+v", out.Definition)
	}
	if len(out.Images) != 1 || len(out.News) != 1 || out.News[0].Source != "Outlet" {
		t.Errorf("images = %+v, news = %+v", out.Images, out.News)
	}
	if out.FetchedAt != "2026-01-02T03:04:05Z" {
		t.Errorf("fetched_at = %q", out.FetchedAt)
	}

	if res := call(t, cs, "keyword_info", map[string]any{"keyword": "  "}); !res.IsError {
		t.Errorf("blank keyword accepted: %s", text(res))
	}
}

func TestKeywordInfo_LookupFailure(t *testing.T) {
	t.Parallel()
	cs := connect(t, mcpserver.New(newSession(), fakeLooker{err: errors.New("runner stopped")}))
	res := call(t, cs, "keyword_info", map[string]any{"keyword": "Paris"})
	if !res.IsError || !strings.Contains(text(res), "runner stopped") {
		t.Errorf("result = %+v", res)
	}
}
