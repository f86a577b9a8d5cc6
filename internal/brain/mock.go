package brain

import (
	"context"
	"fmt"

	"github.com/ent0n29/aria/internal/chat"
)

// MockClient is a local fallback brain used when no Groq key is configured.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Complete(_ context.Context, history []chat.Message) (string, error) {
	last := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == chat.RoleUser {
			last = history[i].Content
			break
		}
	}
	if last == "" {
		return EmptyReplyFallback, nil
	}
	return fmt.Sprintf("You said: %s", last), nil
}
