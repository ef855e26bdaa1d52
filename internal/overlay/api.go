package overlay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/livenote/internal/engine"
	"github.com/MrWong99/livenote/internal/keyword"
)

type errorResponse struct {
	Error string `json:"error"`
}

type keywordsResponse struct {
	Order    string           `json:"order"`
	Keywords []keyword.Scored `json:"keywords"`
}

type transcriptResponse struct {
	Sentences []string `json:"sentences"`
	FullText  string   `json:"full_text"`
	Total     int      `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// intParam parses a non-negative integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, v)
	}
	return n, nil
}

// handleKeywords serves GET /api/keywords?k=&order=score|appearance. k=0
// returns every keyword.
func (s *Server) handleKeywords(w http.ResponseWriter, r *http.Request) {
	k, err := intParam(r, "k", DefaultTopKeywords)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order := keyword.OrderScore
	switch v := strings.ToLower(r.URL.Query().Get("order")); v {
	case "", "score":
	case "appearance":
		order = keyword.OrderAppearance
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid order %q: must be score or appearance", v))
		return
	}
	if k == 0 {
		k = keyword.All
	}
	top := s.backend.Session().Top(k, order)
	if top == nil {
		top = []keyword.Scored{}
	}
	writeJSON(w, http.StatusOK, keywordsResponse{Order: order.String(), Keywords: top})
}

// handleTranscript serves GET /api/transcript?latest=n. latest=0, the
// default, returns every sentence.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	latest, err := intParam(r, "latest", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap := s.backend.Session().Snapshot()
	sentences := snap.Sentences
	if latest > 0 {
		sentences = snap.Latest(latest)
	}
	if sentences == nil {
		sentences = []string{}
	}
	writeJSON(w, http.StatusOK, transcriptResponse{
		Sentences: sentences,
		FullText:  snap.FullText,
		Total:     len(snap.Sentences),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Status())
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.backend.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	if err := s.backend.StartCapture(); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, engine.ErrRunning) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.backend.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.backend.StopCapture(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.backend.Status())
}

// handleClick serves POST /api/click with body {"keyword": "..."}. The info
// result arrives on the WebSocket feed.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req clientMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClientMessage)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.backend.Click(strings.TrimSpace(req.Keyword)) {
		writeError(w, http.StatusBadRequest, "keyword is required")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
