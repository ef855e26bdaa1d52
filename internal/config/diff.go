package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Hot-reloadable fields are reported individually; every other change is
// listed in RestartRequired so the caller can tell the user.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WeightsChanged is set when keywords.weight_propn or weight_ner changed.
	WeightsChanged bool
	WeightPropn    float64
	WeightNER      float64

	MaxDisplayedChanged bool
	NewMaxDisplayed     int

	InfoLangChanged bool
	NewInfoLang     string

	// RestartRequired names the top-level sections that changed in ways
	// that only take effect after a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.WeightsChanged || d.MaxDisplayedChanged ||
		d.InfoLangChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Keywords.WeightPropn != new.Keywords.WeightPropn || old.Keywords.WeightNER != new.Keywords.WeightNER {
		d.WeightsChanged = true
		d.WeightPropn = new.Keywords.WeightPropn
		d.WeightNER = new.Keywords.WeightNER
	}

	if old.Keywords.MaxDisplayed != new.Keywords.MaxDisplayed {
		d.MaxDisplayedChanged = true
		d.NewMaxDisplayed = new.Keywords.MaxDisplayed
	}

	if old.Info.Lang != new.Info.Lang {
		d.InfoLangChanged = true
		d.NewInfoLang = new.Info.Lang
	}

	// Compare the remainder with the hot-reloadable fields masked out.
	o, n := *old, *new
	o.Server.LogLevel, n.Server.LogLevel = "", ""
	o.Keywords.WeightPropn, n.Keywords.WeightPropn = 0, 0
	o.Keywords.WeightNER, n.Keywords.WeightNER = 0, 0
	o.Keywords.MaxDisplayed, n.Keywords.MaxDisplayed = 0, 0
	o.Info.Lang, n.Info.Lang = "", ""

	if !serverEqual(o.Server, n.Server) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if o.Audio != n.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !providersEqual(o.Providers, n.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !transcriptEqual(o.Transcript, n.Transcript) {
		d.RestartRequired = append(d.RestartRequired, "transcript")
	}
	if o.Keywords != n.Keywords {
		d.RestartRequired = append(d.RestartRequired, "keywords")
	}
	if o.Info != n.Info {
		d.RestartRequired = append(d.RestartRequired, "info")
	}
	if o.UI != n.UI {
		d.RestartRequired = append(d.RestartRequired, "ui")
	}
	if o.MCP != n.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}
	if o.Telemetry != n.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	return d
}

func serverEqual(a, b ServerConfig) bool {
	return a.ListenAddr == b.ListenAddr && a.LogLevel == b.LogLevel &&
		a.LogFormat == b.LogFormat && slices.Equal(a.OriginPatterns, b.OriginPatterns)
}

func transcriptEqual(a, b TranscriptConfig) bool {
	return a.SimilarityThreshold == b.SimilarityThreshold &&
		a.OverlapThreshold == b.OverlapThreshold &&
		a.MaxBufferSize == b.MaxBufferSize &&
		a.DuplicateWindow == b.DuplicateWindow &&
		a.MinDuplicateLength == b.MinDuplicateLength &&
		a.Language == b.Language &&
		a.Prompt == b.Prompt &&
		a.PhoneticCorrection == b.PhoneticCorrection &&
		slices.Equal(a.VocabularyFiles, b.VocabularyFiles)
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.ASR, b.ASR) && entryEqual(a.NLP, b.NLP) &&
		slices.EqualFunc(a.ASRFallbacks, b.ASRFallbacks, entryEqual)
}

// entryEqual compares provider entries. Options are compared by key set and
// scalar value only; nested maps always count as changed.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || !scalarEqual(av, bv) {
			return false
		}
	}
	return true
}

func scalarEqual(a, b any) bool {
	switch a.(type) {
	case string, bool, int, int64, float64, nil:
		return a == b
	}
	return false
}
