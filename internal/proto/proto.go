// Package proto holds the shared conversation protocol types.
package proto

import (
	"errors"
	"strings"
	"sync"
)

// Roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrSystemNotFirst happens when a system message is added to a
// conversation that already has messages.
var ErrSystemNotFirst = errors.New("system message must be the first message")

// NoSystemAdvisory is the advisory shown when a conversation is started
// without a system message.
const NoSystemAdvisory = "no system message present"

// Message is a message in the conversation.
type Message struct {
	Content string `json:"content"`
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
}

// Chunk is a streaming fragment of an in-progress assistant message.
type Chunk struct {
	Role    string
	Content string
}

// Request is a chat completion request.
type Request struct {
	Messages []Message
	Model    string
	Stream   bool
}

// Conversation is the ordered message history. A system message, if
// present, is always the first entry and there is never more than one.
// All mutations go through the Add methods, which are safe to call while
// another goroutine holds a Snapshot.
type Conversation struct {
	mu       sync.Mutex
	messages []Message
}

// New creates a conversation, optionally seeded with saved messages.
func New(messages ...Message) *Conversation {
	c := &Conversation{}
	c.messages = append(c.messages, messages...)
	return c
}

// AddSystem appends the system message. It fails with
// [ErrSystemNotFirst] unless the conversation is still empty.
func (c *Conversation) AddSystem(content string) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) > 0 {
		return Message{}, ErrSystemNotFirst
	}
	msg := Message{
		Role:    RoleSystem,
		Content: content,
	}
	c.messages = append(c.messages, msg)
	return msg, nil
}

// AddUser appends a user message. The returned flag reports whether this
// was the very first message, meaning no system message is present:
// that is advisory, not an error.
func (c *Conversation) AddUser(content, name string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	first := len(c.messages) == 0
	msg := Message{
		Role:    RoleUser,
		Content: content,
		Name:    name,
	}
	c.messages = append(c.messages, msg)
	return msg, first
}

// AddAssistant appends a finalized assistant turn.
func (c *Conversation) AddAssistant(content string) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := Message{
		Role:    RoleAssistant,
		Content: content,
	}
	c.messages = append(c.messages, msg)
	return msg
}

// Snapshot returns a copy of the history safe to hold across an exchange
// while the live conversation keeps moving.
func (c *Conversation) Snapshot() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *Conversation) String() string {
	return Render(c.Snapshot())
}

// Render renders messages the way saved conversations are shown.
func Render(messages []Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case RoleSystem:
			sb.WriteString("**System**: ")
		case RoleUser:
			sb.WriteString("**User**: ")
		case RoleAssistant:
			sb.WriteString("**Assistant**: ")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
