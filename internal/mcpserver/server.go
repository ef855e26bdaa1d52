// Package mcpserver exposes a running session to MCP clients.
//
// Three tools are registered:
//
//   - top_keywords: the session's keywords ranked by score or appearance.
//   - transcript: the consolidated transcript, optionally only the tail.
//   - keyword_info: definition, images and news for a keyword.
//
// The server is reachable over stdio ([Server.RunStdio]) or as a streamable
// HTTP endpoint ([Server.Handler]) mounted by the overlay at /mcp.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/livenote/internal/info"
	"github.com/MrWong99/livenote/internal/keyword"
	"github.com/MrWong99/livenote/internal/observe"
	"github.com/MrWong99/livenote/internal/session"
)

// Tool names.
const (
	ToolTopKeywords = "top_keywords"
	ToolTranscript  = "transcript"
	ToolKeywordInfo = "keyword_info"
)

// DefaultToolTimeout bounds a keyword_info lookup.
const DefaultToolTimeout = 20 * time.Second

// Session is the read side of a session. [*session.Session] implements it.
type Session interface {
	Top(k int, order keyword.Order) []keyword.Scored
	Snapshot() session.Snapshot
}

// Looker resolves keyword information. [*info.Runner] implements it.
type Looker interface {
	Lookup(ctx context.Context, keyword, lang string) (info.Result, error)
}

var (
	_ Session = (*session.Session)(nil)
	_ Looker  = (*info.Runner)(nil)
)

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the implementation version announced to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithDefaultLanguage sets the lookup language used when a keyword_info call
// names none. Default: en.
func WithDefaultLanguage(lang string) Option {
	return func(s *Server) {
		if lang != "" {
			s.lang = lang
		}
	}
}

// WithToolTimeout bounds keyword_info lookups. Default: 20s.
func WithToolTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics records metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Server is an MCP server bound to one session.
type Server struct {
	sess    Session
	looker  Looker
	version string
	lang    string
	timeout time.Duration
	metrics *observe.Metrics

	mcp *mcpsdk.Server
}

// New creates a Server. looker may be nil, in which case keyword_info is
// not offered.
func New(sess Session, looker Looker, opts ...Option) *Server {
	s := &Server{
		sess:    sess,
		looker:  looker,
		version: "dev",
		lang:    info.DefaultLang,
		timeout: DefaultToolTimeout,
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(s)
	}

	s.mcp = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "livenote", Version: s.version}, nil)
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        ToolTopKeywords,
		Description: "List the keywords detected in the live transcript, ranked by relevance score or by first appearance.",
	}, instrument(s, ToolTopKeywords, s.topKeywords))
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        ToolTranscript,
		Description: "Return the consolidated live transcript, optionally only the most recent sentences.",
	}, instrument(s, ToolTranscript, s.transcript))
	if looker != nil {
		mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
			Name:        ToolKeywordInfo,
			Description: "Look up a definition, related images and recent news for a keyword.",
		}, instrument(s, ToolKeywordInfo, s.keywordInfo))
	}
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcpsdk.Server { return s.mcp }

// Handler returns a streamable HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.mcp }, nil)
}

// RunStdio serves a single client over stdin/stdout until ctx is done or
// the client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	if err := s.mcp.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: stdio: %w", err)
	}
	return nil
}

// instrument wraps a tool handler with call counting, timing and logging.
func instrument[In, Out any](s *Server, name string, h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, Out, error) {
		ctx, span := observe.StartSpan(ctx, observe.SpanToolCall,
			trace.WithAttributes(attribute.String("tool", name)))
		start := time.Now()
		res, out, err := h(ctx, req, in)
		observe.EndSpan(span, err)
		status := "ok"
		if err != nil {
			status = "error"
			observe.Logger(ctx, "tool", name).Warn("mcp tool failed", "err", err)
		}
		s.metrics.RecordToolCall(ctx, name, status)
		s.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("tool", name)))
		return res, out, err
	}
}

// TopKeywordsInput are the top_keywords arguments.
type TopKeywordsInput struct {
	K     int    `json:"k,omitempty" jsonschema:"maximum number of keywords to return; 0 returns all"`
	Order string `json:"order,omitempty" jsonschema:"ranking: score (default) or appearance"`
}

// KeywordOutput is one ranked keyword.
type KeywordOutput struct {
	Text           string  `json:"text"`
	Score          float64 `json:"score"`
	Kind           string  `json:"kind"`
	HasProperNoun  bool    `json:"has_propn"`
	HasNamedEntity bool    `json:"has_ner"`
	SentenceIndex  int     `json:"sent_id"`
}

// TopKeywordsOutput is the top_keywords result.
type TopKeywordsOutput struct {
	Order    string          `json:"order"`
	Keywords []KeywordOutput `json:"keywords"`
}

func (s *Server) topKeywords(_ context.Context, _ *mcpsdk.CallToolRequest, in TopKeywordsInput) (*mcpsdk.CallToolResult, TopKeywordsOutput, error) {
	if in.K < 0 {
		return nil, TopKeywordsOutput{}, fmt.Errorf("k must not be negative, got %d", in.K)
	}
	var order keyword.Order
	switch strings.ToLower(in.Order) {
	case "", "score":
		order = keyword.OrderScore
	case "appearance":
		order = keyword.OrderAppearance
	default:
		return nil, TopKeywordsOutput{}, fmt.Errorf("order must be score or appearance, got %q", in.Order)
	}

	k := in.K
	if k == 0 {
		k = keyword.All
	}
	top := s.sess.Top(k, order)
	out := TopKeywordsOutput{Order: order.String(), Keywords: make([]KeywordOutput, len(top))}
	for i, k := range top {
		out.Keywords[i] = KeywordOutput{
			Text:           k.Text,
			Score:          k.Score,
			Kind:           string(k.Kind),
			HasProperNoun:  k.HasProperNoun,
			HasNamedEntity: k.HasNamedEntity,
			SentenceIndex:  k.SentenceIndex,
		}
	}
	return nil, out, nil
}

// TranscriptInput are the transcript arguments.
type TranscriptInput struct {
	Latest int `json:"latest,omitempty" jsonschema:"return only this many of the most recent sentences; 0 returns all"`
}

// TranscriptOutput is the transcript result.
type TranscriptOutput struct {
	Sentences []string `json:"sentences"`
	Total     int      `json:"total"`
	StartedAt string   `json:"started_at"`
}

func (s *Server) transcript(_ context.Context, _ *mcpsdk.CallToolRequest, in TranscriptInput) (*mcpsdk.CallToolResult, TranscriptOutput, error) {
	if in.Latest < 0 {
		return nil, TranscriptOutput{}, fmt.Errorf("latest must not be negative, got %d", in.Latest)
	}
	snap := s.sess.Snapshot()
	sentences := snap.Sentences
	if in.Latest > 0 {
		sentences = snap.Latest(in.Latest)
	}
	if sentences == nil {
		sentences = []string{}
	}
	return nil, TranscriptOutput{
		Sentences: sentences,
		Total:     len(snap.Sentences),
		StartedAt: snap.StartedAt.UTC().Format(time.RFC3339),
	}, nil
}

// KeywordInfoInput are the keyword_info arguments.
type KeywordInfoInput struct {
	Keyword string `json:"keyword" jsonschema:"the keyword to look up"`
	Lang    string `json:"lang,omitempty" jsonschema:"language code for the lookup, e.g. en or vi"`
}

// DefinitionOutput is the definition part of keyword_info.
type DefinitionOutput struct {
	Title   string `json:"title"`
	Extract string `json:"extract,omitempty"`
	URL     string `json:"url,omitempty"`
	Source  string `json:"source"`
}

// ImageOutput is one image of keyword_info.
type ImageOutput struct {
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Title     string `json:"title,omitempty"`
	Source    string `json:"source"`
}

// NewsOutput is one news item of keyword_info.
type NewsOutput struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Published string `json:"published,omitempty"`
	Source    string `json:"source,omitempty"`
}

// KeywordInfoOutput is the keyword_info result.
type KeywordInfoOutput struct {
	Keyword    string            `json:"keyword"`
	Lang       string            `json:"lang"`
	Found      bool              `json:"found"`
	Definition *DefinitionOutput `json:"definition,omitempty"`
	Images     []ImageOutput     `json:"images"`
	News       []NewsOutput      `json:"news"`
	FetchedAt  string            `json:"fetched_at"`
}

func (s *Server) keywordInfo(ctx context.Context, _ *mcpsdk.CallToolRequest, in KeywordInfoInput) (*mcpsdk.CallToolResult, KeywordInfoOutput, error) {
	kw := strings.TrimSpace(in.Keyword)
	if kw == "" {
		return nil, KeywordInfoOutput{}, errors.New("keyword is required")
	}
	lang := in.Lang
	if lang == "" {
		lang = s.lang
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.looker.Lookup(ctx, kw, lang)
	if err != nil {
		return nil, KeywordInfoOutput{}, fmt.Errorf("lookup %q: %w", kw, err)
	}
	return nil, infoOutput(res), nil
}

func infoOutput(res info.Result) KeywordInfoOutput {
	out := KeywordInfoOutput{
		Keyword:   res.Keyword,
		Lang:      res.Lang,
		Found:     !res.Empty(),
		Images:    make([]ImageOutput, 0, len(res.Images)),
		News:      make([]NewsOutput, 0, len(res.News)),
		FetchedAt: res.FetchedAt.Format(time.RFC3339),
	}
	if d := res.Definition; !d.Empty() {
		out.Definition = &DefinitionOutput{Title: d.Title, Extract: d.Extract, URL: d.URL, Source: d.Source}
	}
	for _, im := range res.Images {
		out.Images = append(out.Images, ImageOutput{URL: im.URL, Thumbnail: im.Thumbnail, Title: im.Title, Source: im.Source})
	}
	for _, n := range res.News {
		out.News = append(out.News, NewsOutput(n))
	}
	return out
}
