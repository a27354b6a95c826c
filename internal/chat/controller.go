// Package chat orchestrates typed-text conversation turns.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ravindur-dev/careerpal/internal/backend"
	"github.com/ravindur-dev/careerpal/internal/identity"
	"github.com/ravindur-dev/careerpal/internal/session"
	"github.com/ravindur-dev/careerpal/internal/turnlog"
)

const (
	// shortcutPhrase gets a fixed local reply with no backend call.
	shortcutPhrase = "thank you"
	courtesyReply  = "You are welcome, Good luck to your future!"

	errorReplyFormat = "Error: %s. Please check your GOOGLE_API_KEY is set in the backend .env file."
	noResponseReply  = "Sorry, I couldn't get a valid response. Please check your GOOGLE_API_KEY is set in the backend .env file."
)

// Controller runs one chat turn at a time against the shared session.
type Controller struct {
	session *session.Store
	backend backend.Caller
	turns   turnlog.Logger
	log     *slog.Logger
}

// NewController wires a chat controller over the session store and backend.
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

// Submit runs a full chat turn: commit the user message, resolve the
// assistant reply (shortcut, backend success, or surfaced failure), and
// commit that reply. Whitespace-only input is a no-op. A submission while
// another turn is in flight returns session.ErrBusy without touching state.
//
// Every failure past the busy guard is converted into an assistant message,
// so the returned error is non-nil only for the empty/busy guards and the
// conversation stays usable after any failed turn.
func (c *Controller) Submit(ctx context.Context, input string) error {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}

	if err := c.session.TryAcquire(); err != nil {
		return err
	}
	defer c.session.Release()

	c.session.Append(session.NewMessage(session.RoleUser, input))
	c.session.SetComposing("")

	reply := c.resolveReply(ctx, trimmed, input)
	c.session.Append(session.NewMessage(session.RoleAssistant, reply))
	return nil
}

func (c *Controller) resolveReply(ctx context.Context, trimmed, raw string) string {
	if strings.EqualFold(trimmed, shortcutPhrase) {
		c.log.Info("chat shortcut reply", "phrase", shortcutPhrase)
		c.recordTurn(ctx, raw, courtesyReply, "")
		return courtesyReply
	}

	payload, err := c.backend.Chat(ctx, raw)
	if err != nil {
		c.log.Error("chat backend call failed", "error", err)
		reply := fmt.Sprintf(errorReplyFormat, err)
		c.recordTurn(ctx, raw, reply, err.Error())
		return reply
	}

	v, ok := payload["response"]
	if !ok || v == nil || v == "" {
		c.log.Warn("chat payload missing response field")
		c.recordTurn(ctx, raw, noResponseReply, "missing response field")
		return noResponseReply
	}

	reply := backend.NormalizeReply(v)
	c.recordTurn(ctx, raw, reply, "")
	return reply
}

func (c *Controller) recordTurn(ctx context.Context, query, response, errText string) {
	c.turns.Record(turnlog.Turn{
		ClientID:  identity.ClientIDFromContext(ctx),
		Channel:   "chat",
		Query:     query,
		Response:  response,
		ErrorText: errText,
	})
}
