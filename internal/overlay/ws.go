package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/livenote/internal/observe"
)

// maxClientMessage bounds a single client frame.
const maxClientMessage = 4096

// clientMessage is a command sent by an overlay client.
type clientMessage struct {
	Type    string `json:"type"`
	Keyword string `json:"keyword,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		slog.Debug("overlay: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxClientMessage)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := observe.Logger(ctx)

	id, events := s.hub.add()
	defer s.hub.remove(id)
	s.metrics.OverlayClients.Add(ctx, 1)
	defer s.metrics.OverlayClients.Add(context.WithoutCancel(ctx), -1)
	log.Info("overlay client connected", "client", id, "remote", r.RemoteAddr)

	go func() {
		defer cancel()
		s.readLoop(ctx, conn)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("overlay client disconnected", "client", id)
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case data := <-events:
			wctx, wcancel := context.WithTimeout(ctx, s.writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			wcancel()
			if err != nil {
				log.Debug("overlay: write failed", "client", id, "err", err)
				return
			}
		}
	}
}

// readLoop handles client commands until the connection fails.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				slog.Debug("overlay: read failed", "err", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("overlay: malformed client message", "err", err)
			continue
		}
		s.dispatch(msg)
	}
}

func (s *Server) dispatch(msg clientMessage) {
	switch msg.Type {
	case "click":
		s.backend.Click(strings.TrimSpace(msg.Keyword))
	case "clear":
		s.backend.Clear()
	case "start":
		// Failures are published to clients as error events.
		_ = s.backend.StartCapture()
	case "stop":
		if err := s.backend.StopCapture(); err != nil {
			slog.Warn("overlay: stop capture", "err", err)
		}
	default:
		slog.Debug("overlay: unknown client message", "type", msg.Type)
	}
}
