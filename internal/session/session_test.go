package session

import (
	"sync"
	"testing"
)

func TestNewStoreSeedsGreeting(t *testing.T) {
	t.Parallel()

	s := NewStore()
	history := s.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 seeded message, got %d", len(history))
	}
	if history[0].Role != RoleAssistant {
		t.Errorf("expected assistant greeting, got role %q", history[0].Role)
	}
	if history[0].Content != Greeting {
		t.Errorf("unexpected greeting: %q", history[0].Content)
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Append(NewMessage(RoleUser, "first"))
	s.Append(NewMessage(RoleAssistant, "second"))
	s.Append(NewMessage(RoleUser, "third"))

	history := s.History()
	want := []string{Greeting, "first", "second", "third"}
	if len(history) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(history))
	}
	for i, content := range want {
		if history[i].Content != content {
			t.Errorf("history[%d] = %q, want %q", i, history[i].Content, content)
		}
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	t.Parallel()

	s := NewStore()
	history := s.History()
	history[0].Content = "tampered"
	if s.History()[0].Content != Greeting {
		t.Error("mutating the returned slice leaked into the store")
	}
}

func TestTryAcquireRejectsConcurrentTurns(t *testing.T) {
	t.Parallel()

	s := NewStore()
	if err := s.TryAcquire(); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := s.TryAcquire(); err != ErrBusy {
		t.Errorf("expected ErrBusy on second acquire, got %v", err)
	}
	if !s.Busy() {
		t.Error("expected busy to be reported while held")
	}

	s.Release()
	if s.Busy() {
		t.Error("expected busy cleared after release")
	}
	if err := s.TryAcquire(); err != nil {
		t.Errorf("acquire after release failed: %v", err)
	}
}

func TestComposingBuffer(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.SetComposing("draft reply")
	if got := s.Composing(); got != "draft reply" {
		t.Errorf("expected composing buffer to round-trip, got %q", got)
	}
	s.SetComposing("")
	if got := s.Composing(); got != "" {
		t.Errorf("expected cleared buffer, got %q", got)
	}
}

func TestConcurrentAppendsAllLand(t *testing.T) {
	t.Parallel()

	s := NewStore()
	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			s.Append(NewMessage(RoleUser, "msg"))
		}()
	}
	wg.Wait()

	if got := s.Len(); got != n+1 {
		t.Errorf("expected %d messages, got %d", n+1, got)
	}
}
