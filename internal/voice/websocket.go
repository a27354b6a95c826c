package voice

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/ravindur-dev/careerpal/internal/identity"
	"github.com/ravindur-dev/careerpal/internal/session"
)

// WebSocketHandler bridges the browser's speech recognizer to the voice
// controller: the client pushes transcript fragments and start/stop commands
// over one socket, the server pushes capture state and exchange updates back.
type WebSocketHandler struct {
	ctrl          *Controller
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a capture channel handler.
func NewWebSocketHandler(ctrl *Controller, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		ctrl:          ctrl,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// captureFrame is a client-to-server message.
type captureFrame struct {
	Type string `json:"type"` // "start", "transcript", "stop", "activate"
	Text string `json:"text,omitempty"`
}

// captureEvent is a server-to-client message.
type captureEvent struct {
	Type      string `json:"type"` // "state", "exchange", "advisory"
	Capturing bool   `json:"capturing"`
	Query     string `json:"query,omitempty"`
	Response  string `json:"response,omitempty"`
	Text      string `json:"text,omitempty"`
}

// ServeHTTP implements http.Handler for the capture WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := identity.ClientIDFromContext(r.Context())
	slog.Info("voice capture connection request", "client_id", clientID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept voice capture websocket", "error", err, "client_id", clientID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "capture session ended"); closeErr != nil {
			slog.Debug("failed to close capture websocket", "error", closeErr, "client_id", clientID)
		}
	}()

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				slog.Info("voice capture connection closed", "client_id", clientID)
			} else {
				slog.Debug("voice capture read error", "error", err, "client_id", clientID)
			}
			return
		}

		var frame captureFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Debug("invalid capture frame", "error", err, "client_id", clientID)
			continue
		}

		h.dispatch(ctx, ws, frame)
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, ws *websocket.Conn, frame captureFrame) {
	switch frame.Type {
	case "start":
		// Start while capturing is a no-op; report state either way.
		_ = h.ctrl.Start()
		h.writeEvent(ctx, ws, captureEvent{Type: "state", Capturing: h.ctrl.Capturing()})

	case "transcript":
		h.ctrl.AppendTranscript(frame.Text)

	case "stop":
		err := h.ctrl.Stop(ctx)
		h.writeEvent(ctx, ws, captureEvent{Type: "state", Capturing: h.ctrl.Capturing()})
		if errors.Is(err, session.ErrBusy) {
			h.writeEvent(ctx, ws, captureEvent{Type: "advisory", Text: "a turn is already in flight"})
			return
		}
		if err != nil {
			return
		}
		last := h.ctrl.LastExchange()
		if last.Query == "" && last.Response != "" {
			h.writeEvent(ctx, ws, captureEvent{Type: "advisory", Text: last.Response})
			return
		}
		h.writeEvent(ctx, ws, captureEvent{Type: "exchange", Query: last.Query, Response: last.Response})

	case "activate":
		h.ctrl.Activate(ctx)

	default:
		slog.Debug("unknown capture frame type", "type", frame.Type)
	}
}

func (h *WebSocketHandler) writeEvent(ctx context.Context, ws *websocket.Conn, event captureEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Debug("failed to encode capture event", "error", err)
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("failed to write capture event", "error", err)
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("voice capture origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
