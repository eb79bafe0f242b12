// Package conversation holds the linear chat history sent to the model on every turn.
package conversation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

var (
	ErrUnknownRole    = errors.New("unknown message role")
	ErrSystemNotFirst = errors.New("system message must be the first message")
	ErrOutOfOrder     = errors.New("message out of order")
)

// Message is a single chat message in its wire shape.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System, User and Assistant build messages for the matching role.
func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Conversation is an append-only message history.
type Conversation struct {
	ID       string
	messages []Message
}

// New returns an empty conversation with a fresh random ID.
func New() *Conversation {
	return &Conversation{ID: uuid.NewString()}
}

// Add appends msg, or returns an error and leaves the history untouched.
func (c *Conversation) Add(msg Message) error {
	if err := c.check(msg); err != nil {
		return err
	}
	c.messages = append(c.messages, msg)
	return nil
}

// Preview returns the history as it would look after Add(msg) without changing it.
func (c *Conversation) Preview(msg Message) ([]Message, error) {
	if err := c.check(msg); err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(c.messages)+1)
	out = append(out, c.messages...)
	return append(out, msg), nil
}

// Messages returns a copy of the history in insertion order.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int { return len(c.messages) }

// Last returns the most recent message and false when the history is empty.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

func (c *Conversation) check(msg Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, msg.Role)
	}
	last, ok := c.Last()
	if msg.Role == RoleSystem {
		if ok {
			return ErrSystemNotFirst
		}
		return nil
	}
	want := RoleUser
	if ok && last.Role == RoleUser {
		want = RoleAssistant
	}
	if msg.Role != want {
		prev := Role("start")
		if ok {
			prev = last.Role
		}
		return fmt.Errorf("%w: %s cannot follow %s", ErrOutOfOrder, msg.Role, prev)
	}
	return nil
}
