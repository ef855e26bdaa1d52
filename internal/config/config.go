// Package config provides the configuration schema, loader, file watcher and
// provider registry for livenote.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// AudioSource selects where audio comes from.
type AudioSource string

const (
	// SourcePortAudio captures from a live device, preferring a loopback
	// (monitor) device so the overlay hears what the machine plays.
	SourcePortAudio AudioSource = "portaudio"

	// SourceWAVFile replays a WAV file.
	SourceWAVFile AudioSource = "wavfile"
)

// IsValid reports whether s is a recognised audio source.
func (s AudioSource) IsValid() bool {
	return s == SourcePortAudio || s == SourceWAVFile
}

// MCPTransport selects how the MCP server is exposed.
type MCPTransport string

const (
	// MCPTransportHTTP mounts a streamable HTTP endpoint at /mcp on the
	// overlay server.
	MCPTransportHTTP MCPTransport = "http"

	// MCPTransportStdio serves MCP over stdin/stdout.
	MCPTransportStdio MCPTransport = "stdio"
)

// IsValid reports whether t is a recognised MCP transport.
func (t MCPTransport) IsValid() bool {
	return t == MCPTransportHTTP || t == MCPTransportStdio
}

// Config is the root configuration structure for livenote.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Keywords   KeywordsConfig   `yaml:"keywords"`
	Info       InfoConfig       `yaml:"info"`
	UI         UIConfig         `yaml:"ui"`
	MCP        MCPConfig        `yaml:"mcp"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the overlay server.
type ServerConfig struct {
	// ListenAddr is the TCP address the overlay listens on.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or JSON log lines.
	LogFormat LogFormat `yaml:"log_format"`

	// OriginPatterns lists extra hosts allowed to open the WebSocket feed,
	// e.g. "localhost:*" when the page is served from a dev server.
	OriginPatterns []string `yaml:"origin_patterns"`
}

// AudioConfig configures capture and windowing.
type AudioConfig struct {
	Source         AudioSource   `yaml:"source"`
	Device         string        `yaml:"device"`
	PreferLoopback bool          `yaml:"prefer_loopback"`
	SampleRate     int           `yaml:"sample_rate"`
	BlockDuration  time.Duration `yaml:"block_duration"`

	// RecordDuration is the length of one transcription window.
	RecordDuration time.Duration `yaml:"record_duration"`

	// Overlap is the fraction of a window shared with the next one, in [0, 1).
	Overlap float64 `yaml:"overlap"`

	// EnergyThreshold is the RMS below which a window counts as silence.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// File is the WAV file replayed when Source is "wavfile".
	File string `yaml:"file"`
}

// ProvidersConfig declares the ASR backends and the annotation backend.
type ProvidersConfig struct {
	ASR ProviderEntry `yaml:"asr"`

	// ASRFallbacks are tried in order when the primary fails or its circuit
	// breaker is open.
	ASRFallbacks []ProviderEntry `yaml:"asr_fallbacks"`

	NLP ProviderEntry `yaml:"nlp"`
}

// ProviderEntry is the configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g. "whisper", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL is the provider's endpoint. For "whisper" it is the
	// whisper.cpp server; for "remote" the annotation service.
	BaseURL string `yaml:"base_url"`

	// Model selects a model. For "whisper-native" it is the model file path.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// TranscriptConfig tunes the deduplicator/merger and the correction stage.
type TranscriptConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	OverlapThreshold    float64 `yaml:"overlap_threshold"`
	MaxBufferSize       int     `yaml:"max_buffer_size"`
	DuplicateWindow     int     `yaml:"duplicate_window"`
	MinDuplicateLength  int     `yaml:"min_duplicate_length"`

	// Language is passed to the recogniser. Empty means auto-detect.
	Language string `yaml:"language"`

	// Prompt biases the recogniser towards a vocabulary or style.
	Prompt string `yaml:"prompt"`

	// VocabularyFiles are entity YAML files. Their names feed both the
	// rule-based annotator and, with PhoneticCorrection, the corrector.
	VocabularyFiles []string `yaml:"vocabulary_files"`

	PhoneticCorrection bool `yaml:"phonetic_correction"`
}

// KeywordsConfig tunes the keyword extractor and the displayed history.
type KeywordsConfig struct {
	MinChars      int     `yaml:"min_chars"`
	WeightPropn   float64 `yaml:"weight_propn"`
	WeightNER     float64 `yaml:"weight_ner"`
	UseNounChunks bool    `yaml:"use_noun_chunks"`
	UseNER        bool    `yaml:"use_ner"`
	UseLemma      bool    `yaml:"use_lemma"`

	// MaxDisplayed bounds the newest-first keyword history. Hot-reloadable.
	MaxDisplayed int `yaml:"max_displayed"`
}

// InfoConfig configures keyword lookups.
type InfoConfig struct {
	// Lang is the lookup language. Hot-reloadable.
	Lang           string        `yaml:"lang"`
	MaxImages      int           `yaml:"max_images"`
	MaxNews        int           `yaml:"max_news"`
	NewsWindow     time.Duration `yaml:"news_window"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	CacheSize      int           `yaml:"cache_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Workers        int           `yaml:"workers"`
	UserAgent      string        `yaml:"user_agent"`
}

// UIConfig configures the consumer that feeds the overlay.
type UIConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`

	// LatestSentences is how many sentences a transcript event shows.
	LatestSentences int `yaml:"latest_sentences"`
}

// MCPConfig configures the MCP tool server.
type MCPConfig struct {
	Enabled   bool         `yaml:"enabled"`
	Transport MCPTransport `yaml:"transport"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`

	// Prometheus serves /metrics on the overlay server.
	Prometheus bool `yaml:"prometheus"`
}

// Default returns a Config with every field set to its default. [Load]
// decodes on top of it, so booleans that default to true stay true unless
// the file says otherwise.
func Default() *Config {
	cfg := &Config{
		Audio: AudioConfig{PreferLoopback: true},
		Keywords: KeywordsConfig{
			UseNounChunks: true,
			UseNER:        true,
			UseLemma:      true,
		},
		Telemetry: TelemetryConfig{Prometheus: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
