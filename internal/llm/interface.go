package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/comigor/dialchat-go/internal/conversation"
)

// Client runs one chat-completions exchange and renders the reply as it goes.
// It is the only surface the session depends on, so tests can swap it for a mock.
type Client interface {
	// Complete waits for the whole reply and prints it as "AI: <content>".
	Complete(ctx context.Context, messages []conversation.Message) (conversation.Message, error)
	// Stream prints content snippets as they arrive, then a newline.
	Stream(ctx context.Context, messages []conversation.Message) (conversation.Message, error)
}

// ErrNoChoices is returned when a successful response carries no choices.
var ErrNoChoices = errors.New("no choice has been present in the response")

// APIError is a non-200 answer from the endpoint, or an error object sent mid-stream.
// Err keeps the underlying SDK error, if any.
type APIError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return "stream error: " + e.Body
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *APIError) Unwrap() error { return e.Err }

// deploymentPath is the Azure-style route served by DIAL.
func deploymentPath(endpoint, deployment string) string {
	return strings.TrimRight(endpoint, "/") + "/openai/deployments/" + url.PathEscape(deployment) + "/chat/completions"
}
