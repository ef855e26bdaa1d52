// Command livenote is the main entry point for the livenote transcription
// overlay server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/livenote/internal/app"
	"github.com/MrWong99/livenote/internal/config"
	"github.com/MrWong99/livenote/internal/entity"
	"github.com/MrWong99/livenote/internal/observe"
	"github.com/MrWong99/livenote/internal/resilience"
	"github.com/MrWong99/livenote/pkg/audio"
	"github.com/MrWong99/livenote/pkg/audio/portaudio"
	"github.com/MrWong99/livenote/pkg/audio/wavfile"
	"github.com/MrWong99/livenote/pkg/provider/asr"
	oaasr "github.com/MrWong99/livenote/pkg/provider/asr/openai"
	"github.com/MrWong99/livenote/pkg/provider/asr/whisper"
	"github.com/MrWong99/livenote/pkg/provider/nlp"
	"github.com/MrWong99/livenote/pkg/provider/nlp/remote"
	"github.com/MrWong99/livenote/pkg/provider/nlp/rulebased"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "livenote: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "livenote: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(cfg.Server.LogFormat, &level))

	slog.Info("livenote starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Prometheus:     cfg.Telemetry.Prometheus,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	opts := []app.Option{app.WithVersion(version), app.WithLogLevel(&level)}
	if h := telemetry.Handler(); h != nil {
		opts = append(opts, app.WithMetricsHandler(h))
	}
	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.Reload)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("overlay ready; press Ctrl+C to shut down", "url", "http://"+cfg.Server.ListenAddr)

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the recognisers and annotation backends that
// ship with livenote into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── ASR ───────────────────────────────────────────────────────────────────

	reg.RegisterASR("whisper", func(entry config.ProviderEntry) (asr.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterASR("whisper-native", func(entry config.ProviderEntry) (asr.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := optInt(entry.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterASR("openai", func(entry config.ProviderEntry) (asr.Provider, error) {
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		var opts []oaasr.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaasr.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oaasr.WithTimeout(d))
		}
		return oaasr.New(apiKey, entry.Model, opts...)
	})

	// ── NLP ───────────────────────────────────────────────────────────────────

	reg.RegisterNLP("rulebased", func(_ config.ProviderEntry, lang string, vocab []entity.Definition) (nlp.Annotator, error) {
		opts := []rulebased.Option{rulebased.WithEntries(entity.Entries(vocab)...)}
		if lang == "en" {
			return rulebased.NewEnglish(opts...), nil
		}
		return rulebased.NewGeneric(lang, opts...), nil
	})

	reg.RegisterNLP("remote", func(entry config.ProviderEntry, lang string, _ []entity.Definition) (nlp.Annotator, error) {
		var opts []remote.Option
		if entry.Model != "" {
			opts = append(opts, remote.WithModel(entry.Model))
		}
		return remote.New(entry.BaseURL, lang, opts...)
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the recogniser chain, the audio source, the
// vocabulary and the annotator named in cfg.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	recogniser, err := buildASR(cfg, reg)
	if err != nil {
		return nil, err
	}
	ps.ASR = recogniser

	ps.Source = buildSource(cfg.Audio)
	slog.Info("audio source created", "source", ps.Source.Name())

	if len(cfg.Transcript.VocabularyFiles) > 0 {
		vocab, err := entity.LoadFiles(cfg.Transcript.VocabularyFiles...)
		if err != nil {
			return nil, fmt.Errorf("load vocabulary: %w", err)
		}
		ps.Vocabulary = vocab
		slog.Info("vocabulary loaded", "names", vocab.Len())
	}

	var defs []entity.Definition
	if ps.Vocabulary != nil {
		defs = ps.Vocabulary.All()
	}
	factory, err := reg.CreateNLP(cfg.Providers.NLP, defs)
	if err != nil {
		return nil, fmt.Errorf("create nlp provider %q: %w", cfg.Providers.NLP.Name, err)
	}
	annotators := nlp.NewRegistry()
	annotators.SetFallback(factory)
	ann, err := annotators.Get(annotatorLanguage(cfg))
	if err != nil {
		return nil, fmt.Errorf("create annotator: %w", err)
	}
	ps.Annotator = ann
	slog.Info("provider created", "kind", "nlp", "name", cfg.Providers.NLP.Name, "lang", ann.Language())

	return ps, nil
}

// buildASR creates the primary recogniser and, when fallbacks are
// configured, wraps the chain in a circuit-breaking fallback group.
func buildASR(cfg *config.Config, reg *config.Registry) (asr.Provider, error) {
	primary, err := reg.CreateASR(cfg.Providers.ASR)
	if err != nil {
		return nil, fmt.Errorf("create asr provider %q: %w", cfg.Providers.ASR.Name, err)
	}
	slog.Info("provider created", "kind", "asr", "name", cfg.Providers.ASR.Name)
	if len(cfg.Providers.ASRFallbacks) == 0 {
		return primary, nil
	}

	fb := resilience.NewASRFallback(primary, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("asr breaker changed", "provider", name, "from", from.String(), "to", to.String())
				observe.DefaultMetrics().RecordBreakerTransition(context.Background(), "asr/"+name, to.String())
			},
		},
	})
	for _, entry := range cfg.Providers.ASRFallbacks {
		p, err := reg.CreateASR(entry)
		if err != nil {
			return nil, fmt.Errorf("create asr fallback %q: %w", entry.Name, err)
		}
		fb.AddFallback(p)
		slog.Info("provider created", "kind", "asr-fallback", "name", entry.Name)
	}
	return fb, nil
}

func buildSource(ac config.AudioConfig) audio.Source {
	if ac.Source == config.SourceWAVFile {
		return wavfile.New(ac.File,
			wavfile.WithSampleRate(ac.SampleRate),
			wavfile.WithBlockDuration(ac.BlockDuration),
			wavfile.WithRealtime(true),
		)
	}
	return portaudio.New(
		portaudio.WithDevice(ac.Device),
		portaudio.WithPreferLoopback(ac.PreferLoopback),
		portaudio.WithSampleRate(ac.SampleRate),
		portaudio.WithBlockDuration(ac.BlockDuration),
	)
}

// annotatorLanguage picks the annotation language: the forced transcript
// language, else the info language.
func annotatorLanguage(cfg *config.Config) string {
	if cfg.Transcript.Language != "" {
		return cfg.Transcript.Language
	}
	if cfg.Info.Lang != "" {
		return cfg.Info.Lang
	}
	return "en"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(format config.LogFormat, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes plain integers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// optDuration parses a duration option such as "30s".
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
