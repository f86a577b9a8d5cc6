package chat

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestNewConversationSeedsSystemMessage(t *testing.T) {
	c := NewConversation("")
	history := c.History()
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	if history[0].Role != RoleSystem {
		t.Fatalf("history[0].Role = %q, want %q", history[0].Role, RoleSystem)
	}
	if history[0].Content != DefaultPersona {
		t.Fatalf("history[0].Content = %q, want default persona", history[0].Content)
	}
}

func TestAppendRejectsUnknownRole(t *testing.T) {
	c := NewConversation("")
	err := c.Append(Message{Role: Role("narrator"), Content: "hm"})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("Append() error = %v, want ErrInvalidRole", err)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d after rejected append, want 1", c.Len())
	}
}

func TestSystemMessageStaysFirstAcrossAppends(t *testing.T) {
	c := NewConversation("")
	for i := 0; i < 10; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if err := c.Append(NewMessage(role, fmt.Sprintf("msg %d", i))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	history := c.History()
	if len(history) != 11 {
		t.Fatalf("len(history) = %d, want 11", len(history))
	}
	if history[0].Role != RoleSystem {
		t.Fatalf("history[0].Role = %q, want %q", history[0].Role, RoleSystem)
	}
}

func TestResetYieldsSinglePersonaMessage(t *testing.T) {
	c := NewConversation("custom persona")
	for i := 0; i < 10; i++ {
		if err := c.Append(NewMessage(RoleUser, "hello")); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	c.Reset()
	history := c.History()
	if len(history) != 1 {
		t.Fatalf("len(history) after Reset = %d, want 1", len(history))
	}
	if history[0].Role != RoleSystem || history[0].Content != "custom persona" {
		t.Fatalf("unexpected seed message after Reset: %+v", history[0])
	}
}

func TestHistoryIsCopyOnRead(t *testing.T) {
	c := NewConversation("")
	if err := c.Append(NewMessage(RoleUser, "hello")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	history := c.History()
	history[0].Content = "tampered"
	if got := c.History()[0].Content; got == "tampered" {
		t.Fatalf("History() returned a view into internal state")
	}
}

func TestConcurrentAppendsKeepLengthConsistent(t *testing.T) {
	c := NewConversation("")
	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Append(NewMessage(RoleUser, "x"))
		}()
	}
	wg.Wait()
	if c.Len() != n+1 {
		t.Fatalf("Len() = %d, want %d", c.Len(), n+1)
	}
}
