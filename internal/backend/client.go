// Package backend is the HTTP client for the remote inference service.
//
// Every call funnels through Do, which collapses the many ways a request can
// fail (transport error, non-2xx status, unreadable body) into a single
// payload-or-error outcome so callers never touch raw transport errors.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Backend endpoint paths, relative to the configured base URL.
const (
	pathChat         = "/chat/"
	pathVoiceQuery   = "/voice/"
	pathVoiceCommand = "/bot/cmd/"
	pathSignUp       = "/auth/signup/"
	pathSignIn       = "/auth/signin/"
	pathUserDetails  = "/get/user/"
	pathQuiz         = "/get/quiz/"
	pathSentiment    = "/get/sentiment/"
)

// networkFailureFallback is used when a transport error carries no description.
const networkFailureFallback = "Failed to fetch data from server"

// maxResponseBodySize caps how much of a backend response is read (1MB).
const maxResponseBodySize = 1 << 20

// Caller is the conversational subset of the backend consumed by the flow
// controllers. *Client implements it; tests substitute fakes.
type Caller interface {
	// Chat sends a typed chat message. The success payload carries a
	// "response" field (string or object, see NormalizeReply).
	Chat(ctx context.Context, message string) (map[string]any, error)

	// VoiceQuery sends a spoken/manual query. The success payload echoes the
	// resolved "query" and carries a "response" string.
	VoiceQuery(ctx context.Context, query string) (map[string]any, error)

	// ActivateVoiceCommand fires the one-shot voice activation signal.
	// The payload's "message" field is informational only.
	ActivateVoiceCommand(ctx context.Context) (map[string]any, error)
}

var _ Caller = (*Client)(nil)

// Client calls the inference backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Do performs a backend request and returns exactly one of payload or error.
//
// A 2xx status returns the decoded body. A 400 status also returns the body
// with a nil error: the backend flags bad input with per-field messages there,
// and callers inspect those rather than treat the turn as failed. Any other
// status becomes an error built by failureReason. A transport-level failure
// becomes an error carrying the underlying description.
func (c *Client) Do(ctx context.Context, method, path string, body any) (map[string]any, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, describeFailure(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, describeFailure(err)
	}
	defer resp.Body.Close()

	// Tolerate unparsable bodies: an empty payload still lets the status
	// branches below produce a usable outcome.
	payload := map[string]any{}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err == nil && len(data) > 0 {
		if decodeErr := json.Unmarshal(data, &payload); decodeErr != nil {
			payload = map[string]any{}
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return payload, nil
	}
	if resp.StatusCode == http.StatusBadRequest {
		// Validation echo: the body holds field-level errors for the caller.
		return payload, nil
	}
	return nil, errors.New(failureReason(payload, resp.StatusCode))
}

// failureReason extracts a human-readable reason from an error response body.
// Priority: explicit "error" field, then "message", then all body values
// joined, then a generic status fallback.
func failureReason(payload map[string]any, status int) string {
	if s, ok := payload["error"].(string); ok && s != "" {
		return s
	}
	if s, ok := payload["message"].(string); ok && s != "" {
		return s
	}
	if joined := joinPayloadValues(payload); joined != "" {
		return joined
	}
	return fmt.Sprintf("HTTP error! status: %d", status)
}

// joinPayloadValues flattens every body value (field-error arrays included)
// into one comma-separated string, in sorted key order for determinism.
func joinPayloadValues(payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		switch v := payload[k].(type) {
		case []any:
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
		case nil:
		default:
			parts = append(parts, fmt.Sprint(v))
		}
	}
	return strings.Join(parts, ", ")
}

func describeFailure(err error) error {
	if err == nil || strings.TrimSpace(err.Error()) == "" {
		return errors.New(networkFailureFallback)
	}
	return err
}

// Chat sends a typed chat message to the conversational endpoint.
// Ping reports whether the backend is reachable. Any HTTP response counts as
// reachable: the root path may well answer 404, but an answer means the
// service is up.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) Chat(ctx context.Context, message string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, pathChat, map[string]any{"message": message})
}

// VoiceQuery sends a spoken or manually typed voice query.
func (c *Client) VoiceQuery(ctx context.Context, query string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, pathVoiceQuery, map[string]any{"query": query})
}

// ActivateVoiceCommand fires the voice-command activation signal.
func (c *Client) ActivateVoiceCommand(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, pathVoiceCommand, nil)
}

// SignUp registers a new user. The age field is coerced to an integer when it
// arrives as a parseable string, matching what the backend validator expects.
func (c *Client) SignUp(ctx context.Context, fields map[string]any) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, pathSignUp, coerceAge(fields))
}

// SignIn authenticates an existing user.
func (c *Client) SignIn(ctx context.Context, credentials map[string]any) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, pathSignIn, credentials)
}

// UserDetails fetches the signed-in user's profile.
func (c *Client) UserDetails(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, pathUserDetails, nil)
}

// SubmitQuiz submits quiz answers for career prediction.
func (c *Client) SubmitQuiz(ctx context.Context, answers map[string]any) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, pathQuiz, answers)
}

// AnalyzeSentiment requests sentiment analysis for the given text.
func (c *Client) AnalyzeSentiment(ctx context.Context, text string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, pathSentiment, map[string]any{"text": text})
}

func coerceAge(fields map[string]any) map[string]any {
	s, ok := fields["age"].(string)
	if !ok {
		return fields
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fields
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	out["age"] = n
	return out
}
