package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultPersona is the system instruction seeded into every conversation.
const DefaultPersona = "You are a helpful assistant. Reply only one line"

var ErrInvalidRole = errors.New("invalid message role")

// Message is one conversational entry. Messages are never mutated after creation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// Conversation is the ordered, append-only message log for one session.
// Element 0 is always the system persona message.
type Conversation struct {
	mu       sync.RWMutex
	persona  string
	messages []Message
}

func NewConversation(persona string) *Conversation {
	if persona == "" {
		persona = DefaultPersona
	}
	c := &Conversation{persona: persona}
	c.messages = []Message{NewMessage(RoleSystem, persona)}
	return c
}

// Append adds a message to the end of the log.
func (c *Conversation) Append(msg Message) error {
	switch msg.Role {
	case RoleSystem, RoleUser, RoleAssistant:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

// Reset atomically replaces the log with a single fresh system message.
func (c *Conversation) Reset() {
	fresh := []Message{NewMessage(RoleSystem, c.persona)}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = fresh
}

// History returns a copy of the ordered message log.
func (c *Conversation) History() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Persona returns the system instruction this conversation was seeded with.
func (c *Conversation) Persona() string {
	return c.persona
}
