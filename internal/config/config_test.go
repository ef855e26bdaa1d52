package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/livenote/internal/config"
	"github.com/MrWong99/livenote/internal/entity"
	"github.com/MrWong99/livenote/pkg/provider/asr"
	"github.com/MrWong99/livenote/pkg/provider/nlp"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
  log_format: json
  origin_patterns: ["localhost:*"]

audio:
  source: wavfile
  file: /tmp/talk.wav
  record_duration: 4s
  overlap: 0.25

providers:
  asr:
    name: openai
    api_key: sk-test
    model: whisper-1
  asr_fallbacks:
    - name: whisper
      base_url: http://127.0.0.1:8080
  nlp:
    name: remote
    base_url: http://127.0.0.1:5000

transcript:
  similarity_threshold: 0.8
  vocabulary_files: [names.yaml]
  phonetic_correction: true

keywords:
  use_noun_chunks: false
  max_displayed: 10

info:
  lang: vi
  news_window: 48h

mcp:
  enabled: true
  transport: stdio
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9000")
	}
	if cfg.Server.LogFormat != config.LogFormatJSON {
		t.Errorf("server.log_format: got %q", cfg.Server.LogFormat)
	}
	if cfg.Audio.Source != config.SourceWAVFile || cfg.Audio.File != "/tmp/talk.wav" {
		t.Errorf("audio: got source=%q file=%q", cfg.Audio.Source, cfg.Audio.File)
	}
	if cfg.Audio.RecordDuration != 4*time.Second {
		t.Errorf("audio.record_duration: got %s, want 4s", cfg.Audio.RecordDuration)
	}
	if cfg.Audio.Overlap != 0.25 {
		t.Errorf("audio.overlap: got %.2f, want 0.25", cfg.Audio.Overlap)
	}
	if !cfg.Audio.PreferLoopback {
		t.Error("audio.prefer_loopback: default true was lost")
	}
	if cfg.Providers.ASR.Name != "openai" || len(cfg.Providers.ASRFallbacks) != 1 {
		t.Errorf("providers: got asr=%q fallbacks=%d", cfg.Providers.ASR.Name, len(cfg.Providers.ASRFallbacks))
	}
	if cfg.Keywords.UseNounChunks {
		t.Error("keywords.use_noun_chunks: got true, want false")
	}
	if !cfg.Keywords.UseNER {
		t.Error("keywords.use_ner: default true was lost")
	}
	if cfg.Keywords.MaxDisplayed != 10 {
		t.Errorf("keywords.max_displayed: got %d, want 10", cfg.Keywords.MaxDisplayed)
	}
	if cfg.Info.Lang != "vi" || cfg.Info.NewsWindow != 48*time.Hour {
		t.Errorf("info: got lang=%q news_window=%s", cfg.Info.Lang, cfg.Info.NewsWindow)
	}
	if !cfg.MCP.Enabled || cfg.MCP.Transport != config.MCPTransportStdio {
		t.Errorf("mcp: got enabled=%v transport=%q", cfg.MCP.Enabled, cfg.MCP.Transport)
	}
}

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	t.Parallel()
	for _, doc := range []string{"", "{}"} {
		cfg, err := config.LoadFromReader(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("LoadFromReader(%q): unexpected error: %v", doc, err)
		}

		checks := []struct {
			name      string
			got, want any
		}{
			{"server.listen_addr", cfg.Server.ListenAddr, "127.0.0.1:8765"},
			{"server.log_level", cfg.Server.LogLevel, config.LogInfo},
			{"audio.source", cfg.Audio.Source, config.SourcePortAudio},
			{"audio.sample_rate", cfg.Audio.SampleRate, 16000},
			{"audio.block_duration", cfg.Audio.BlockDuration, 100 * time.Millisecond},
			{"audio.record_duration", cfg.Audio.RecordDuration, 3 * time.Second},
			{"audio.overlap", cfg.Audio.Overlap, 0.5},
			{"audio.energy_threshold", cfg.Audio.EnergyThreshold, 0.01},
			{"providers.asr.name", cfg.Providers.ASR.Name, "whisper"},
			{"providers.asr.base_url", cfg.Providers.ASR.BaseURL, "http://127.0.0.1:8080"},
			{"providers.nlp.name", cfg.Providers.NLP.Name, "rulebased"},
			{"transcript.similarity_threshold", cfg.Transcript.SimilarityThreshold, 0.7},
			{"transcript.overlap_threshold", cfg.Transcript.OverlapThreshold, 0.6},
			{"transcript.max_buffer_size", cfg.Transcript.MaxBufferSize, 50},
			{"transcript.duplicate_window", cfg.Transcript.DuplicateWindow, 10},
			{"keywords.min_chars", cfg.Keywords.MinChars, 2},
			{"keywords.weight_propn", cfg.Keywords.WeightPropn, 1.2},
			{"keywords.weight_ner", cfg.Keywords.WeightNER, 1.5},
			{"keywords.max_displayed", cfg.Keywords.MaxDisplayed, 15},
			{"keywords.use_lemma", cfg.Keywords.UseLemma, true},
			{"info.lang", cfg.Info.Lang, "en"},
			{"info.workers", cfg.Info.Workers, 2},
			{"ui.poll_interval", cfg.UI.PollInterval, 100 * time.Millisecond},
			{"mcp.enabled", cfg.MCP.Enabled, false},
			{"mcp.transport", cfg.MCP.Transport, config.MCPTransportHTTP},
			{"telemetry.prometheus", cfg.Telemetry.Prometheus, true},
		}
		for _, c := range checks {
			if c.got != c.want {
				t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
			}
		}
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("keywords:\n  max_displayd: 3\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "server:\n  log_level: verbose\n", "server.log_level"},
		{"log format", "server:\n  log_format: xml\n", "server.log_format"},
		{"audio source", "audio:\n  source: alsa\n", "audio.source"},
		{"wavfile without file", "audio:\n  source: wavfile\n", "audio.file"},
		{"overlap", "audio:\n  overlap: 1\n", "audio.overlap"},
		{"block longer than window", "audio:\n  block_duration: 5s\n", "audio.block_duration"},
		{"similarity range", "transcript:\n  similarity_threshold: 1.5\n", "transcript.similarity_threshold"},
		{"negative buffer", "transcript:\n  max_buffer_size: -1\n", "transcript.max_buffer_size"},
		{"negative weight", "keywords:\n  weight_ner: -2\n", "keywords.weight_propn and keywords.weight_ner"},
		{"negative history", "keywords:\n  max_displayed: -1\n", "keywords.max_displayed"},
		{"mcp transport", "mcp:\n  transport: grpc\n", "mcp.transport"},
		{"native without model", "providers:\n  asr:\n    name: whisper-native\n", "providers.asr.model"},
		{"fallback without name", "providers:\n  asr_fallbacks:\n    - model: x\n", "providers.asr_fallbacks[0].name"},
		{"remote nlp without url", "providers:\n  nlp:\n    name: remote\n", "providers.nlp.base_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.LogLevel = "loud"
	cfg.Audio.Overlap = 2
	cfg.MCP.Transport = "carrier-pigeon"

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, want := range []string{"server.log_level", "audio.overlap", "mcp.transport"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error does not mention %q: %v", want, err)
		}
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"asr", "nlp"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

type stubASR struct{ name string }

func (s stubASR) Transcribe(context.Context, []float32, asr.Options) (*asr.Result, error) {
	return &asr.Result{}, nil
}
func (s stubASR) Name() string { return s.name }

type stubAnnotator struct{ lang string }

func (s stubAnnotator) Annotate(context.Context, string) (*nlp.Doc, error) { return &nlp.Doc{}, nil }
func (s stubAnnotator) Language() string                                 { return s.lang }

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	if _, err := reg.CreateASR(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateASR: got %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateNLP(config.ProviderEntry{Name: "nope"}, nil); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateNLP: got %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_RegisteredASR(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterASR("stub", func(e config.ProviderEntry) (asr.Provider, error) {
		return stubASR{name: e.Model}, nil
	})
	p, err := reg.CreateASR(config.ProviderEntry{Name: "stub", Model: "tiny"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "tiny" {
		t.Errorf("Name: got %q, want %q", p.Name(), "tiny")
	}
}

func TestRegistry_RegisteredNLP(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	var gotVocab []entity.Definition
	reg.RegisterNLP("stub", func(_ config.ProviderEntry, lang string, vocab []entity.Definition) (nlp.Annotator, error) {
		gotVocab = vocab
		return stubAnnotator{lang: lang}, nil
	})
	vocab := []entity.Definition{{Name: "Kubernetes", Label: entity.LabelProduct}}
	f, err := reg.CreateNLP(config.ProviderEntry{Name: "stub"}, vocab)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	langs := nlp.NewRegistry()
	langs.SetFallback(f)
	a, err := langs.Get("de-AT")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.Language() != "de" {
		t.Errorf("Language: got %q, want %q", a.Language(), "de")
	}
	if len(gotVocab) != 1 || gotVocab[0].Name != "Kubernetes" {
		t.Errorf("vocabulary not passed through: %+v", gotVocab)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	reg := config.NewRegistry()
	reg.RegisterASR("bad", func(config.ProviderEntry) (asr.Provider, error) { return nil, boom })
	if _, err := reg.CreateASR(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Errorf("got %v, want %v", err, boom)
	}
}

func TestRegistry_UnknownListsRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	for _, name := range []string{"whisper", "openai"} {
		reg.RegisterASR(name, func(config.ProviderEntry) (asr.Provider, error) { return stubASR{}, nil })
	}
	_, err := reg.CreateASR(config.ProviderEntry{Name: "whsiper"})
	if err == nil || !strings.Contains(err.Error(), "[openai whisper]") {
		t.Errorf("error %v should list the registered names", err)
	}
}
