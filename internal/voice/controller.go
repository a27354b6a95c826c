// Package voice orchestrates spoken conversation turns: the capture state
// machine fed by the browser's speech recognizer, the manual text fallback,
// and the detached voice-command activation signal.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ravindur-dev/careerpal/internal/backend"
	"github.com/ravindur-dev/careerpal/internal/identity"
	"github.com/ravindur-dev/careerpal/internal/session"
	"github.com/ravindur-dev/careerpal/internal/turnlog"
)

const (
	emptyTranscriptAdvisory = "Please speak something before sending."
	emptyManualAdvisory     = "Please enter a question."
	noResponseReply         = "No response received"

	errorReplyFormat = "Error: %s. Please check your GOOGLE_API_KEY is set in the backend .env file."
)

var (
	// ErrAlreadyCapturing is returned by Start while capture is active.
	ErrAlreadyCapturing = errors.New("capture already active")
	// ErrNotCapturing is returned by Stop while capture is idle.
	ErrNotCapturing = errors.New("capture not active")
)

// Exchange is the standalone last-query/last-response display pair. It always
// reflects the most recent voice or manual submission, independent of the
// running transcript.
type Exchange struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

// Controller owns the capture state machine and the voice commit path.
// The capture source is a singleton device resource: only one capture may be
// active at a time, enforced here.
type Controller struct {
	session *session.Store
	backend backend.Caller
	turns   turnlog.Logger
	log     *slog.Logger

	mu         sync.Mutex
	capturing  bool
	transcript strings.Builder
	last       Exchange
}

// NewController wires a voice controller over the shared session store.
func NewController(store *session.Store, caller backend.Caller, turns turnlog.Logger, log *slog.Logger) *Controller {
	if turns == nil {
		turns = turnlog.NopLogger{}
	}
	return &Controller{
		session: store,
		backend: caller,
		turns:   turns,
		log:     log,
	}
}

// Start transitions Idle -> Capturing and begins accumulating the transcript.
// Returns ErrAlreadyCapturing (state unchanged) if capture is active.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capturing {
		return ErrAlreadyCapturing
	}
	c.capturing = true
	c.transcript.Reset()
	c.log.Info("voice capture started")
	return nil
}

// AppendTranscript accumulates a transcript fragment pushed by the capture
// source. Fragments arriving while idle are ignored.
func (c *Controller) AppendTranscript(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.capturing {
		return
	}
	if c.transcript.Len() > 0 && text != "" {
		c.transcript.WriteByte(' ')
	}
	c.transcript.WriteString(text)
}

// Capturing reports whether capture is active.
func (c *Controller) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Transcript returns the transcript accumulated so far.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.String()
}

// Stop transitions Capturing -> Idle, reads the accumulated transcript
// exactly once, clears it, and submits it as a voice turn. Returns
// ErrNotCapturing if capture is idle, and session.ErrBusy if a turn is in
// flight; either way the capture state and transcript are left untouched, so
// a busy-rejected stop can be retried without losing the captured speech.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return ErrNotCapturing
	}

	text := c.transcript.String()
	if strings.TrimSpace(text) == "" {
		c.capturing = false
		c.transcript.Reset()
		c.mu.Unlock()
		c.log.Info("voice capture stopped", "transcript_length", 0)
		c.setLast(Exchange{Response: emptyTranscriptAdvisory})
		return nil
	}

	// Claim the session before tearing down capture state.
	if err := c.session.TryAcquire(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.capturing = false
	c.transcript.Reset()
	c.mu.Unlock()
	defer c.session.Release()

	c.log.Info("voice capture stopped", "transcript_length", len(text))
	return c.exchange(ctx, text, "voice")
}

// SubmitManual runs the same commit path as Stop for typed fallback input,
// for browsers without speech recognition support.
func (c *Controller) SubmitManual(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		c.setLast(Exchange{Response: emptyManualAdvisory})
		return nil
	}
	if err := c.session.TryAcquire(); err != nil {
		return err
	}
	defer c.session.Release()
	return c.exchange(ctx, text, "manual")
}

// exchange is the single voice commit path. The caller holds the session
// guard and has rejected empty input already; the text becomes one user
// message and one assistant message in the shared transcript, with the
// last-exchange slots updated either way.
func (c *Controller) exchange(ctx context.Context, text, channel string) error {
	c.session.Append(session.NewMessage(session.RoleUser, text))

	payload, err := c.backend.VoiceQuery(ctx, text)
	if err != nil {
		c.log.Error("voice backend call failed", "error", err)
		reply := fmt.Sprintf(errorReplyFormat, err)
		c.session.Append(session.NewMessage(session.RoleAssistant, reply))
		c.setLast(Exchange{Query: text, Response: reply})
		c.recordTurn(ctx, channel, text, reply, err.Error())
		return nil
	}

	// The backend echoes back the resolved query; prefer it over the raw text.
	query := text
	if s, ok := payload["query"].(string); ok && s != "" {
		query = s
	}

	reply := noResponseReply
	if v, ok := payload["response"]; ok && v != nil && v != "" {
		reply = backend.NormalizeReply(v)
	}

	c.session.Append(session.NewMessage(session.RoleAssistant, reply))
	c.setLast(Exchange{Query: query, Response: reply})
	c.recordTurn(ctx, channel, query, reply, "")
	return nil
}

// Activate fires the one-shot voice-command activation signal. It is a
// device trigger, not a conversational turn: failures are logged, never
// surfaced into the session, and the session store is never touched.
func (c *Controller) Activate(ctx context.Context) {
	payload, err := c.backend.ActivateVoiceCommand(ctx)
	if err != nil {
		c.log.Error("voice command activation failed", "error", err)
		return
	}
	if msg, ok := payload["message"].(string); ok && msg != "" {
		c.log.Info("voice command activated", "message", msg)
	}
}

// LastExchange returns the standalone last-query/last-response view.
func (c *Controller) LastExchange() Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Controller) setLast(e Exchange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = e
}

func (c *Controller) recordTurn(ctx context.Context, channel, query, response, errText string) {
	c.turns.Record(turnlog.Turn{
		ClientID:  identity.ClientIDFromContext(ctx),
		Channel:   channel,
		Query:     query,
		Response:  response,
		ErrorText: errText,
	})
}
