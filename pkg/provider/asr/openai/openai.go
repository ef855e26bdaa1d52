// Package openai provides an ASR provider backed by the OpenAI audio
// transcription API (whisper-1, gpt-4o-transcribe and compatible servers).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/livenote/pkg/audio"
	"github.com/MrWong99/livenote/pkg/provider/asr"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = string(oai.AudioModelWhisper1)

var _ asr.Provider = (*Provider)(nil)

// Provider implements asr.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, e.g. to target a
// self-hosted OpenAI-compatible transcription server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs an OpenAI transcription Provider. If model is empty,
// DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai asr: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Name implements asr.Provider.
func (p *Provider) Name() string { return "openai" }

// ModelID returns the configured model.
func (p *Provider) ModelID() string { return p.model }

// Transcribe implements asr.Provider. whisper-1 is asked for verbose JSON so
// the detected language can be reported; other models return plain JSON.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, opts asr.Options) (*asr.Result, error) {
	start := time.Now()
	wav, err := audio.EncodeWAV(samples, opts.SampleRateOrDefault())
	if err != nil {
		return nil, fmt.Errorf("openai asr: %w", err)
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if !opts.AutoDetect() {
		params.Language = oai.String(opts.Language)
	}
	if opts.Prompt != "" {
		params.Prompt = oai.String(opts.Prompt)
	}
	verbose := p.model == DefaultModel
	if verbose {
		params.ResponseFormat = oai.AudioResponseFormatVerboseJSON
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai asr: transcribe: %w", err)
	}

	res := &asr.Result{
		Text:     strings.TrimSpace(resp.Text),
		Duration: time.Since(start),
	}
	if verbose {
		res.Language = languageCode(resp.RawJSON())
	}
	if res.Language == "" && !opts.AutoDetect() {
		res.Language = opts.Language
	}
	return res, nil
}

// languageCode extracts the language reported in a verbose_json payload.
// whisper-1 reports English names ("english"); these are mapped to ISO codes
// for the languages the overlay localises.
func languageCode(raw string) string {
	var v struct {
		Language string `json:"language"`
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return ""
	}
	lang := strings.ToLower(strings.TrimSpace(v.Language))
	if code, ok := languageNames[lang]; ok {
		return code
	}
	return lang
}

var languageNames = map[string]string{
	"english":    "en",
	"vietnamese": "vi",
	"german":     "de",
	"french":     "fr",
	"spanish":    "es",
	"japanese":   "ja",
	"chinese":    "zh",
	"korean":     "ko",
}
