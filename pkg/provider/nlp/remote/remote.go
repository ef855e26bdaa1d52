// Package remote implements [nlp.Annotator] against an HTTP annotation
// service, typically a thin wrapper around a spaCy pipeline that returns
// dependency-based noun chunks.
//
// The service receives POST {base}/annotate with {"text": …, "lang": …} and
// answers with a JSON-encoded [nlp.Doc].
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/livenote/pkg/provider/nlp"
)

const defaultTimeout = 5 * time.Second

var _ nlp.Annotator = (*Annotator)(nil)

// Option is a functional option for [New].
type Option func(*Annotator)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Annotator) {
		if c != nil {
			a.client = c
		}
	}
}

// WithModel forwards a pipeline name (e.g. "en_core_web_sm") to the service.
func WithModel(model string) Option {
	return func(a *Annotator) { a.model = model }
}

// Annotator calls a remote annotation service.
type Annotator struct {
	baseURL string
	lang    string
	model   string
	client  *http.Client
}

// New returns an Annotator for lang served at baseURL.
func New(baseURL, lang string, opts ...Option) (*Annotator, error) {
	if baseURL == "" {
		return nil, errors.New("remote: baseURL must not be empty")
	}
	a := &Annotator{
		baseURL: strings.TrimRight(baseURL, "/"),
		lang:    lang,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Language implements [nlp.Annotator].
func (a *Annotator) Language() string { return a.lang }

type request struct {
	Text  string `json:"text"`
	Lang  string `json:"lang"`
	Model string `json:"model,omitempty"`
}

// Annotate implements [nlp.Annotator].
func (a *Annotator) Annotate(ctx context.Context, text string) (*nlp.Doc, error) {
	body, err := json.Marshal(request{Text: text, Lang: a.lang, Model: a.model})
	if err != nil {
		return nil, fmt.Errorf("remote: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/annotate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("remote: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var doc nlp.Doc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("remote: decode response: %w", err)
	}
	if doc.Text == "" {
		doc.Text = text
	}
	if err := validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// validate rejects spans that do not index into the token slice, which
// would otherwise panic downstream.
func validate(doc *nlp.Doc) error {
	n := len(doc.Tokens)
	check := func(kind string, s nlp.Span) error {
		if s.Start < 0 || s.End > n || s.Start > s.End {
			return fmt.Errorf("remote: %s span [%d,%d) out of range for %d tokens", kind, s.Start, s.End, n)
		}
		return nil
	}
	var errs []error
	for _, e := range doc.Entities {
		errs = append(errs, check("entity", e.Span))
	}
	for _, s := range doc.Sentences {
		errs = append(errs, check("sentence", s))
	}
	for _, s := range doc.NounChunks {
		errs = append(errs, check("noun chunk", s))
	}
	return errors.Join(errs...)
}
