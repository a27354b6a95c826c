// Package api exposes the conversational session controller over HTTP to the
// browser frontend.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ravindur-dev/careerpal/internal/backend"
	"github.com/ravindur-dev/careerpal/internal/chat"
	"github.com/ravindur-dev/careerpal/internal/identity"
	"github.com/ravindur-dev/careerpal/internal/session"
	"github.com/ravindur-dev/careerpal/internal/voice"
)

// maxRequestBodySize caps incoming request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler routes frontend requests to the flow controllers and relays the
// out-of-core endpoints (auth, quiz, sentiment) to the inference backend.
type Handler struct {
	chat    *chat.Controller
	voice   *voice.Controller
	store   *session.Store
	backend *backend.Client
	limiter *RateLimiter
}

// NewHandler creates the API handler.
func NewHandler(chatCtrl *chat.Controller, voiceCtrl *voice.Controller, store *session.Store, client *backend.Client, limiter *RateLimiter) *Handler {
	return &Handler{
		chat:    chatCtrl,
		voice:   voiceCtrl,
		store:   store,
		backend: client,
		limiter: limiter,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/chat", func(r chi.Router) {
			r.Get("/history", h.GetHistory)
			r.Get("/status", h.GetStatus)
			r.Post("/compose", h.SetComposing)
			r.Post("/send", h.SendMessage)
		})
		r.Route("/voice", func(r chi.Router) {
			r.Post("/start", h.StartCapture)
			r.Post("/stop", h.StopCapture)
			r.Post("/query", h.SubmitManual)
			r.Get("/last", h.GetLastExchange)
			r.Get("/activate", h.ActivateVoiceCommand)
		})
		r.Post("/auth/signup", h.relay(func(r *http.Request, body map[string]any) (map[string]any, error) {
			return h.backend.SignUp(r.Context(), body)
		}))
		r.Post("/auth/signin", h.relay(func(r *http.Request, body map[string]any) (map[string]any, error) {
			return h.backend.SignIn(r.Context(), body)
		}))
		r.Get("/user", h.GetUserDetails)
		r.Post("/quiz", h.relay(func(r *http.Request, body map[string]any) (map[string]any, error) {
			return h.backend.SubmitQuiz(r.Context(), body)
		}))
		r.Post("/sentiment", h.relay(func(r *http.Request, body map[string]any) (map[string]any, error) {
			text, _ := body["text"].(string)
			return h.backend.AnalyzeSentiment(r.Context(), text)
		}))
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// GetHistory returns the full transcript plus the busy flag.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"messages": h.store.History(),
		"busy":     h.store.Busy(),
	})
}

// GetStatus returns the busy flag and the composing buffer.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"busy":      h.store.Busy(),
		"composing": h.store.Composing(),
	})
}

// SetComposing replaces the composing-input buffer.
func (h *Handler) SetComposing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	h.store.SetComposing(req.Text)
	w.WriteHeader(http.StatusNoContent)
}

// SendMessage submits a typed chat turn and returns the updated transcript.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.chat.Submit(r.Context(), req.Message); err != nil {
		if errors.Is(err, session.ErrBusy) {
			Error(w, http.StatusConflict, "a turn is already in flight")
			return
		}
		Error(w, http.StatusInternalServerError, "failed to submit message")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"messages": h.store.History(),
		"busy":     h.store.Busy(),
	})
}

// StartCapture transitions the capture state machine to Capturing.
func (h *Handler) StartCapture(w http.ResponseWriter, r *http.Request) {
	// Start while capturing is a rejected no-op; the reported state is
	// authoritative either way.
	_ = h.voice.Start()
	JSON(w, http.StatusOK, map[string]any{"capturing": h.voice.Capturing()})
}

// StopCapture stops capture, submits the transcript, and returns the
// resulting last exchange.
func (h *Handler) StopCapture(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	err := h.voice.Stop(r.Context())
	if errors.Is(err, voice.ErrNotCapturing) {
		JSON(w, http.StatusOK, map[string]any{"capturing": false})
		return
	}
	if errors.Is(err, session.ErrBusy) {
		Error(w, http.StatusConflict, "a turn is already in flight")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"capturing": h.voice.Capturing(),
		"exchange":  h.voice.LastExchange(),
	})
}

// SubmitManual submits a typed voice query, for browsers without speech
// recognition support.
func (h *Handler) SubmitManual(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.voice.SubmitManual(r.Context(), req.Text); err != nil {
		if errors.Is(err, session.ErrBusy) {
			Error(w, http.StatusConflict, "a turn is already in flight")
			return
		}
		Error(w, http.StatusInternalServerError, "failed to submit query")
		return
	}

	JSON(w, http.StatusOK, map[string]any{"exchange": h.voice.LastExchange()})
}

// GetLastExchange returns the standalone last-query/last-response view.
func (h *Handler) GetLastExchange(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"exchange": h.voice.LastExchange()})
}

// ActivateVoiceCommand fires the activation side-channel. The outcome is
// logged server-side only, so the response is always accepted.
func (h *Handler) ActivateVoiceCommand(w http.ResponseWriter, r *http.Request) {
	h.voice.Activate(r.Context())
	w.WriteHeader(http.StatusAccepted)
}

// relayFunc forwards a decoded request body to one backend endpoint.
type relayFunc func(r *http.Request, body map[string]any) (map[string]any, error)

// relay forwards a POST body to the backend and hands the payload straight
// back: validation-class responses keep their field errors intact for the
// frontend forms.
func (h *Handler) relay(fn relayFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if !h.decode(w, r, &body) {
			return
		}
		payload, err := fn(r, body)
		if err != nil {
			Error(w, http.StatusBadGateway, err.Error())
			return
		}
		JSON(w, http.StatusOK, payload)
	}
}

// GetUserDetails relays the signed-in user's profile from the backend.
func (h *Handler) GetUserDetails(w http.ResponseWriter, r *http.Request) {
	payload, err := h.backend.UserDetails(r.Context())
	if err != nil {
		Error(w, http.StatusBadGateway, err.Error())
		return
	}
	JSON(w, http.StatusOK, payload)
}

// decode reads a size-capped JSON body into v, writing the error response
// itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// allow enforces the per-client rate limit when a limiter is configured.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	clientID := identity.ClientIDFromContext(r.Context())
	if clientID == "" {
		clientID = r.RemoteAddr
	}
	if !h.limiter.Allow(clientID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}
