package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/comigor/dialchat-go/internal/config"
	"github.com/comigor/dialchat-go/internal/conversation"
	"github.com/comigor/dialchat-go/internal/logger"
	"github.com/comigor/dialchat-go/internal/sse"
)

const doneMarker = "[DONE]"

// HTTPClient builds the chat-completions request by hand and parses the event stream itself.
type HTTPClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
	out      io.Writer
}

// NewHTTPClient creates a client for the deployment in cfg that renders to out.
func NewHTTPClient(cfg config.DialConfig, out io.Writer) *HTTPClient {
	return &HTTPClient{
		endpoint: deploymentPath(cfg.Endpoint, cfg.Deployment),
		apiKey:   cfg.APIKey,
		client:   &http.Client{},
		out:      out,
	}
}

type chatRequest struct {
	Messages []conversation.Message `json:"messages"`
	Stream   bool                   `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

func (c *HTTPClient) post(ctx context.Context, payload chatRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	logger.L.Debug("dial request", "url", c.endpoint, "body", string(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		text, _ := io.ReadAll(resp.Body)
		logger.L.Debug("dial error response", "status", resp.StatusCode, "body", string(text))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(text)}
	}
	return resp, nil
}

// Complete implements Client.
func (c *HTTPClient) Complete(ctx context.Context, messages []conversation.Message) (conversation.Message, error) {
	resp, err := c.post(ctx, chatRequest{Messages: messages})
	if err != nil {
		return conversation.Message{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("read response: %w", err)
	}
	logger.L.Debug("dial response", "status", resp.StatusCode, "body", string(raw))

	var data chatResponse
	if err := json.Unmarshal(raw, &data); err != nil {
		return conversation.Message{}, fmt.Errorf("decode response: %w", err)
	}
	if len(data.Choices) == 0 {
		return conversation.Message{}, ErrNoChoices
	}
	content := data.Choices[0].Message.Content

	fmt.Fprintln(c.out, "AI:", content)
	return conversation.Assistant(content), nil
}

// Stream implements Client.
func (c *HTTPClient) Stream(ctx context.Context, messages []conversation.Message) (conversation.Message, error) {
	resp, err := c.post(ctx, chatRequest{Messages: messages, Stream: true})
	if err != nil {
		return conversation.Message{}, err
	}
	defer resp.Body.Close()

	var acc snippets
	dec := sse.NewDecoder(resp.Body)
	for {
		data, err := dec.Next()
		if errors.Is(err, io.EOF) {
			logger.L.Debug("dial stream closed without done marker", "chunks", acc.count)
			break
		}
		if err != nil {
			acc.finish(c.out)
			return conversation.Message{}, fmt.Errorf("read stream: %w", err)
		}
		data = strings.TrimSpace(data)
		logger.L.Debug("dial stream event", "data", data)
		if data == doneMarker {
			break
		}
		if data == "" {
			continue
		}

		snippet, err := contentSnippet(data)
		if err != nil {
			acc.finish(c.out)
			return conversation.Message{}, err
		}
		acc.write(c.out, snippet)
	}
	acc.finish(c.out)
	return conversation.Assistant(acc.b.String()), nil
}

// contentSnippet extracts choices[0].delta.content from one stream chunk; missing parts yield "".
func contentSnippet(data string) (string, error) {
	var chunk chatChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", fmt.Errorf("decode stream chunk: %w", err)
	}
	if chunk.Error != nil {
		return "", &APIError{Body: chunk.Error.Message}
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	return chunk.Choices[0].Delta.Content, nil
}
