package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ravindur-dev/careerpal/internal/session"
)

// fakeCaller implements backend.Caller for controller tests.
type fakeCaller struct {
	payload       map[string]any
	err           error
	voiceCalls    int
	activateCalls int
	lastQuery     string
}

func (f *fakeCaller) Chat(ctx context.Context, message string) (map[string]any, error) {
	return f.payload, f.err
}

func (f *fakeCaller) VoiceQuery(ctx context.Context, query string) (map[string]any, error) {
	f.voiceCalls++
	f.lastQuery = query
	return f.payload, f.err
}

func (f *fakeCaller) ActivateVoiceCommand(ctx context.Context) (map[string]any, error) {
	f.activateCalls++
	return f.payload, f.err
}

func newTestController(caller *fakeCaller) (*Controller, *session.Store) {
	store := session.NewStore()
	return NewController(store, caller, nil, slog.Default()), store
}

func TestCaptureStateMachine(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(&fakeCaller{payload: map[string]any{"response": "ok"}})

	if ctrl.Capturing() {
		t.Fatal("expected idle initially")
	}
	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !ctrl.Capturing() {
		t.Fatal("expected capturing after Start")
	}
	if err := ctrl.Start(); !errors.Is(err, ErrAlreadyCapturing) {
		t.Errorf("expected ErrAlreadyCapturing, got %v", err)
	}
	if !ctrl.Capturing() {
		t.Error("rejected Start must not change state")
	}
}

func TestStopWhileBusyKeepsCapture(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{payload: map[string]any{"response": "ok"}}
	ctrl, store := newTestController(caller)

	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ctrl.AppendTranscript("what is devops")

	if err := store.TryAcquire(); err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}

	if err := ctrl.Stop(context.Background()); !errors.Is(err, session.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if !ctrl.Capturing() {
		t.Error("busy-rejected Stop must leave capture active")
	}
	if got := ctrl.Transcript(); got != "what is devops" {
		t.Errorf("busy-rejected Stop must keep the transcript, got %q", got)
	}
	if caller.voiceCalls != 0 {
		t.Error("busy-rejected Stop must not call the backend")
	}
	if store.Len() != 1 {
		t.Error("busy-rejected Stop must not touch history")
	}

	// Retrying after the in-flight turn finishes submits the kept speech.
	store.Release()
	if err := ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("retried Stop failed: %v", err)
	}
	if caller.lastQuery != "what is devops" {
		t.Errorf("retried Stop submitted %q", caller.lastQuery)
	}
	if store.Len() != 3 {
		t.Errorf("expected greeting plus one exchange, got %d messages", store.Len())
	}
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{}
	ctrl, store := newTestController(caller)

	if err := ctrl.Stop(context.Background()); !errors.Is(err, ErrNotCapturing) {
		t.Fatalf("expected ErrNotCapturing, got %v", err)
	}
	if caller.voiceCalls != 0 {
		t.Error("Stop while idle must not call the backend")
	}
	if store.Len() != 1 {
		t.Error("Stop while idle must not touch history")
	}
}

func TestStopWithEmptyTranscriptYieldsAdvisory(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{}
	ctrl, store := newTestController(caller)

	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if caller.voiceCalls != 0 {
		t.Error("empty transcript must not call the backend")
	}
	if store.Len() != 1 {
		t.Error("empty transcript must not touch history")
	}
	if got := ctrl.LastExchange().Response; got != emptyTranscriptAdvisory {
		t.Errorf("expected advisory %q, got %q", emptyTranscriptAdvisory, got)
	}
}

func TestStopSubmitsAccumulatedTranscript(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{payload: map[string]any{
		"query":    "what is devops",
		"response": "DevOps combines development and operations.",
	}}
	ctrl, store := newTestController(caller)

	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ctrl.AppendTranscript("what is")
	ctrl.AppendTranscript("devops")
	if got := ctrl.Transcript(); got != "what is devops" {
		t.Fatalf("unexpected accumulated transcript: %q", got)
	}

	if err := ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if caller.voiceCalls != 1 {
		t.Fatalf("expected one backend call, got %d", caller.voiceCalls)
	}
	if caller.lastQuery != "what is devops" {
		t.Errorf("expected transcript forwarded, got %q", caller.lastQuery)
	}
	if got := ctrl.Transcript(); got != "" {
		t.Errorf("expected transcript cleared after Stop, got %q", got)
	}

	history := store.History()
	if len(history) != 3 {
		t.Fatalf("expected greeting + user + assistant, got %d", len(history))
	}
	if history[1].Role != session.RoleUser || history[1].Content != "what is devops" {
		t.Errorf("unexpected user message: %+v", history[1])
	}
	if history[2].Role != session.RoleAssistant {
		t.Errorf("unexpected assistant message: %+v", history[2])
	}

	last := ctrl.LastExchange()
	if last.Query != "what is devops" {
		t.Errorf("expected echoed query in last exchange, got %q", last.Query)
	}
	if last.Response != "DevOps combines development and operations." {
		t.Errorf("unexpected last response: %q", last.Response)
	}
}

func TestTranscriptIgnoredWhileIdle(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(&fakeCaller{})
	ctrl.AppendTranscript("stray fragment")
	if got := ctrl.Transcript(); got != "" {
		t.Errorf("fragments while idle must be dropped, got %q", got)
	}
}

func TestSubmitManualEmptyYieldsAdvisory(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{}
	ctrl, store := newTestController(caller)

	if err := ctrl.SubmitManual(context.Background(), "   "); err != nil {
		t.Fatalf("SubmitManual failed: %v", err)
	}
	if caller.voiceCalls != 0 {
		t.Error("empty manual input must not call the backend")
	}
	if store.Len() != 1 {
		t.Error("empty manual input must not touch history")
	}
	if got := ctrl.LastExchange().Response; got != emptyManualAdvisory {
		t.Errorf("expected advisory %q, got %q", emptyManualAdvisory, got)
	}
}

func TestSubmitManualFailureSurfacesReasonAndHint(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{err: errors.New("Invalid API key")}
	ctrl, store := newTestController(caller)

	if err := ctrl.SubmitManual(context.Background(), "career advice"); err != nil {
		t.Fatalf("SubmitManual failed: %v", err)
	}

	history := store.History()
	last := history[len(history)-1]
	if !strings.Contains(last.Content, "Invalid API key") || !strings.Contains(last.Content, "GOOGLE_API_KEY") {
		t.Errorf("expected reason and credential hint, got %q", last.Content)
	}
	exchange := ctrl.LastExchange()
	if exchange.Query != "career advice" {
		t.Errorf("expected raw text as query on failure, got %q", exchange.Query)
	}
	if store.Busy() {
		t.Error("expected busy cleared after failure")
	}
}

func TestSubmitManualMissingResponseFallsBack(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(&fakeCaller{payload: map[string]any{"query": "q"}})

	if err := ctrl.SubmitManual(context.Background(), "hello"); err != nil {
		t.Fatalf("SubmitManual failed: %v", err)
	}
	if got := ctrl.LastExchange().Response; got != noResponseReply {
		t.Errorf("expected %q, got %q", noResponseReply, got)
	}
}

func TestActivateNeverTouchesSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		caller *fakeCaller
	}{
		{name: "success", caller: &fakeCaller{payload: map[string]any{"message": "Voice activated"}}},
		{name: "failure", caller: &fakeCaller{err: errors.New("backend down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl, store := newTestController(tt.caller)

			ctrl.Activate(context.Background())

			if tt.caller.activateCalls != 1 {
				t.Errorf("expected one activation call, got %d", tt.caller.activateCalls)
			}
			if store.Len() != 1 {
				t.Error("activation must never touch the session history")
			}
			if got := ctrl.LastExchange(); got != (Exchange{}) {
				t.Errorf("activation must not touch the last exchange, got %+v", got)
			}
		})
	}
}
