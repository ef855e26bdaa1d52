// Package whisper provides whisper.cpp-backed ASR providers.
//
// [Provider] talks to a running whisper-server binary, which exposes a REST
// API at POST /inference. Each audio window is wrapped in a WAV container and
// submitted as a multipart upload. [NativeProvider] links whisper.cpp through
// its CGO bindings and runs inference in-process.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("auto"))
//	res, err := p.Transcribe(ctx, samples, asr.Options{SampleRate: 16000})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/livenote/pkg/audio"
	"github.com/MrWong99/livenote/pkg/provider/asr"
)

const (
	defaultLanguage = "auto"
	defaultTimeout  = 30 * time.Second
)

// Compile-time assertion that Provider implements asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base", "small"). When empty the server uses whichever model it
// was started with; this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language sent to the server when the call
// does not specify one. "auto" enables detection. Defaults to "auto".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client. Defaults to a client with a 30 s
// timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements asr.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements asr.Provider.
func (p *Provider) Name() string { return "whisper" }

// inferenceResponse is the subset of whisper-server's verbose_json output
// that we use. Older servers only return text.
type inferenceResponse struct {
	Text                        string  `json:"text"`
	Language                    string  `json:"language"`
	DetectedLanguage            string  `json:"detected_language"`
	DetectedLanguageProbability float64 `json:"detected_language_probability"`
}

// Transcribe encodes samples as WAV and POSTs them to the /inference
// endpoint as multipart/form-data.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, opts asr.Options) (*asr.Result, error) {
	start := time.Now()
	wav, err := audio.EncodeWAV(samples, opts.SampleRateOrDefault())
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	lang := opts.Language
	if lang == "" {
		lang = p.language
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        lang,
		"model":           p.model,
		"prompt":          opts.Prompt,
	}
	for _, k := range []string{"response_format", "language", "model", "prompt"} {
		if fields[k] == "" {
			continue
		}
		if err := mw.WriteField(k, fields[k]); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}
	var out inferenceResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	res := &asr.Result{
		Text:               strings.TrimSpace(out.Text),
		Language:           out.DetectedLanguage,
		LanguageConfidence: out.DetectedLanguageProbability,
		Duration:           time.Since(start),
	}
	if res.Language == "" {
		res.Language = out.Language
	}
	if res.Language == "" && lang != "auto" {
		res.Language = lang
	}
	return res, nil
}
