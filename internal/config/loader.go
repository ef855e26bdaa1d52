package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr": {"whisper", "whisper-native", "openai"},
	"nlp": {"rulebased", "remote"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], fills any
// zeroed values with their defaults and validates the result. An empty
// document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their defaults, so an explicit
// zero (e.g. overlap: 0) also becomes the default. Booleans are left alone;
// their defaults live in [Default].
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, "127.0.0.1:8765")
	setDefault(&cfg.Server.LogLevel, LogInfo)
	setDefault(&cfg.Server.LogFormat, LogFormatText)

	setDefault(&cfg.Audio.Source, SourcePortAudio)
	setDefault(&cfg.Audio.SampleRate, 16000)
	setDefault(&cfg.Audio.BlockDuration, 100*time.Millisecond)
	setDefault(&cfg.Audio.RecordDuration, 3*time.Second)
	setDefault(&cfg.Audio.Overlap, 0.5)
	setDefault(&cfg.Audio.EnergyThreshold, 0.01)

	setDefault(&cfg.Providers.ASR.Name, "whisper")
	if cfg.Providers.ASR.Name == "whisper" {
		setDefault(&cfg.Providers.ASR.BaseURL, "http://127.0.0.1:8080")
	}
	setDefault(&cfg.Providers.NLP.Name, "rulebased")

	setDefault(&cfg.Transcript.SimilarityThreshold, 0.7)
	setDefault(&cfg.Transcript.OverlapThreshold, 0.6)
	setDefault(&cfg.Transcript.MaxBufferSize, 50)
	setDefault(&cfg.Transcript.DuplicateWindow, 10)

	setDefault(&cfg.Keywords.MinChars, 2)
	setDefault(&cfg.Keywords.WeightPropn, 1.2)
	setDefault(&cfg.Keywords.WeightNER, 1.5)
	setDefault(&cfg.Keywords.MaxDisplayed, 15)

	setDefault(&cfg.Info.Lang, "en")
	setDefault(&cfg.Info.MaxImages, 6)
	setDefault(&cfg.Info.MaxNews, 6)
	setDefault(&cfg.Info.NewsWindow, 14*24*time.Hour)
	setDefault(&cfg.Info.CacheTTL, 10*time.Minute)
	setDefault(&cfg.Info.CacheSize, 4096)
	setDefault(&cfg.Info.RequestTimeout, 10*time.Second)
	setDefault(&cfg.Info.Workers, 2)

	setDefault(&cfg.UI.PollInterval, 100*time.Millisecond)
	setDefault(&cfg.UI.LatestSentences, 2)

	setDefault(&cfg.MCP.Transport, MCPTransportHTTP)

	setDefault(&cfg.Telemetry.ServiceName, "livenote")
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Audio
	a := cfg.Audio
	if a.Source != "" && !a.Source.IsValid() {
		errs = append(errs, fmt.Errorf("audio.source %q is invalid; valid values: portaudio, wavfile", a.Source))
	}
	if a.Source == SourceWAVFile && a.File == "" {
		errs = append(errs, errors.New("audio.file is required when audio.source is wavfile"))
	}
	if a.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", a.SampleRate))
	}
	if a.BlockDuration < 0 || a.RecordDuration < 0 {
		errs = append(errs, errors.New("audio.block_duration and audio.record_duration must not be negative"))
	}
	if a.RecordDuration > 0 && a.BlockDuration > a.RecordDuration {
		errs = append(errs, fmt.Errorf("audio.block_duration %s exceeds audio.record_duration %s", a.BlockDuration, a.RecordDuration))
	}
	if a.Overlap < 0 || a.Overlap >= 1 {
		errs = append(errs, fmt.Errorf("audio.overlap %.2f is out of range [0, 1)", a.Overlap))
	}
	if a.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("audio.energy_threshold %.4f must not be negative", a.EnergyThreshold))
	}

	// Providers
	errs = validateASR(errs, "providers.asr", cfg.Providers.ASR)
	for i, fb := range cfg.Providers.ASRFallbacks {
		errs = validateASR(errs, fmt.Sprintf("providers.asr_fallbacks[%d]", i), fb)
	}
	validateProviderName("nlp", cfg.Providers.NLP.Name)
	if cfg.Providers.NLP.Name == "remote" && cfg.Providers.NLP.BaseURL == "" {
		errs = append(errs, errors.New("providers.nlp.base_url is required when providers.nlp.name is remote"))
	}

	// Transcript
	t := cfg.Transcript
	errs = appendRatio(errs, "transcript.similarity_threshold", t.SimilarityThreshold)
	errs = appendRatio(errs, "transcript.overlap_threshold", t.OverlapThreshold)
	if t.MaxBufferSize < 0 || t.DuplicateWindow < 0 || t.MinDuplicateLength < 0 {
		errs = append(errs, errors.New("transcript.max_buffer_size, duplicate_window and min_duplicate_length must not be negative"))
	}
	if t.PhoneticCorrection && len(t.VocabularyFiles) == 0 {
		slog.Warn("transcript.phonetic_correction is enabled but no vocabulary_files are configured; correction is a no-op")
	}

	// Keywords
	k := cfg.Keywords
	if k.MinChars < 0 {
		errs = append(errs, fmt.Errorf("keywords.min_chars %d must not be negative", k.MinChars))
	}
	if k.WeightPropn < 0 || k.WeightNER < 0 {
		errs = append(errs, errors.New("keywords.weight_propn and keywords.weight_ner must not be negative"))
	}
	if k.MaxDisplayed < 0 {
		errs = append(errs, fmt.Errorf("keywords.max_displayed %d must not be negative", k.MaxDisplayed))
	}

	// Info
	in := cfg.Info
	if in.MaxImages < 0 || in.MaxNews < 0 || in.Workers < 0 || in.CacheSize < 0 {
		errs = append(errs, errors.New("info.max_images, max_news, workers and cache_size must not be negative"))
	}
	if in.NewsWindow < 0 || in.CacheTTL < 0 || in.RequestTimeout < 0 {
		errs = append(errs, errors.New("info.news_window, cache_ttl and request_timeout must not be negative"))
	}

	// UI
	if cfg.UI.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("ui.poll_interval %s must not be negative", cfg.UI.PollInterval))
	}

	// MCP
	if cfg.MCP.Transport != "" && !cfg.MCP.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("mcp.transport %q is invalid; valid values: http, stdio", cfg.MCP.Transport))
	}

	return errors.Join(errs...)
}

// validateASR checks the fields each built-in recogniser needs.
func validateASR(errs []error, prefix string, e ProviderEntry) []error {
	if e.Name == "" {
		return append(errs, fmt.Errorf("%s.name is required", prefix))
	}
	validateProviderName("asr", e.Name)
	switch e.Name {
	case "whisper":
		if e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for whisper", prefix))
		}
	case "whisper-native":
		if e.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model (model file path) is required for whisper-native", prefix))
		}
	case "openai":
		if e.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required for openai (or set OPENAI_API_KEY)", prefix))
		}
	}
	return errs
}

// appendRatio appends an error when v is outside [0, 1].
func appendRatio(errs []error, field string, v float64) []error {
	if v < 0 || v > 1 {
		return append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", field, v))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
