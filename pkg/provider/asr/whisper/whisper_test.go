package whisper_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/livenote/pkg/provider/asr"
	"github.com/MrWong99/livenote/pkg/provider/asr/whisper"
)

// ---- helpers ----------------------------------------------------------------

// newMockServer responds to POST /inference with body and records the
// multipart fields of the last request in *fields.
func newMockServer(t *testing.T, body any, calls *atomic.Int32, fields *map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		if fields != nil {
			got := map[string]string{}
			for k, v := range r.MultipartForm.Value {
				got[k] = v[0]
			}
			*fields = got
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func speech(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return s
}

// ---- construction -----------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_Name(t *testing.T) {
	t.Parallel()
	p, err := whisper.New("http://localhost:8080", whisper.WithModel("small"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "whisper" {
		t.Errorf("Name() = %q, want whisper", p.Name())
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_VerboseJSON(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	var fields map[string]string
	srv := newMockServer(t, map[string]any{
		"text":                          "  hello there  ",
		"language":                      "english",
		"detected_language":             "en",
		"detected_language_probability": 0.93,
	}, &calls, &fields)

	p, _ := whisper.New(srv.URL+"/", whisper.WithModel("base"))
	res, err := p.Transcribe(context.Background(), speech(16000), asr.Options{SampleRate: 16000})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello there" {
		t.Errorf("Text = %q, want trimmed text", res.Text)
	}
	if res.Language != "en" || res.LanguageConfidence != 0.93 {
		t.Errorf("language = %q/%v, want en/0.93", res.Language, res.LanguageConfidence)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if fields["language"] != "auto" || fields["model"] != "base" || fields["response_format"] != "verbose_json" {
		t.Errorf("unexpected form fields: %v", fields)
	}
}

func TestTranscribe_ForcedLanguageEchoed(t *testing.T) {
	t.Parallel()
	var fields map[string]string
	srv := newMockServer(t, map[string]any{"text": "xin chào"}, nil, &fields)

	p, _ := whisper.New(srv.URL)
	res, err := p.Transcribe(context.Background(), speech(1600), asr.Options{Language: "vi", Prompt: "Hà Nội"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Language != "vi" {
		t.Errorf("Language = %q, want vi", res.Language)
	}
	if fields["language"] != "vi" || fields["prompt"] != "Hà Nội" {
		t.Errorf("unexpected form fields: %v", fields)
	}
}

func TestTranscribe_HTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), speech(160), asr.Options{}); err == nil {
		t.Fatal("expected error on HTTP 500")
	}
}

func TestTranscribe_BadJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), speech(160), asr.Options{}); err == nil {
		t.Fatal("expected error on malformed JSON")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, map[string]any{"text": "x"}, nil, nil)
	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, speech(160), asr.Options{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
