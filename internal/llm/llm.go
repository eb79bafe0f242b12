package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/comigor/dialchat-go/internal/config"
	"github.com/comigor/dialchat-go/internal/conversation"
	"github.com/comigor/dialchat-go/internal/logger"
	"github.com/sashabaranov/go-openai"
)

// SDKClient talks to the deployment through go-openai configured for Azure-style routing.
type SDKClient struct {
	api        *openai.Client
	deployment string
	out        io.Writer
}

// NewSDKClient creates a go-openai backed client that renders to out.
func NewSDKClient(cfg config.DialConfig, out io.Writer) *SDKClient {
	config := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	if cfg.APIVersion != "" {
		config.APIVersion = cfg.APIVersion
	}
	// deployment names such as "gpt-4.1" must reach the URL untouched
	config.AzureModelMapperFunc = func(model string) string { return model }

	return &SDKClient{
		api:        openai.NewClientWithConfig(config),
		deployment: cfg.Deployment,
		out:        out,
	}
}

func (c *SDKClient) request(messages []conversation.Message) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    c.deployment,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return req
}

// Complete implements Client.
func (c *SDKClient) Complete(ctx context.Context, messages []conversation.Message) (conversation.Message, error) {
	logger.L.Debug("sdk completion request", "deployment", c.deployment, "messages", len(messages))

	resp, err := c.api.CreateChatCompletion(ctx, c.request(messages))
	if err != nil {
		return conversation.Message{}, sdkError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return conversation.Message{}, ErrNoChoices
	}
	content := resp.Choices[0].Message.Content
	logger.L.Debug("sdk completion response", "id", resp.ID, "finish_reason", resp.Choices[0].FinishReason, "total_tokens", resp.Usage.TotalTokens)

	fmt.Fprintln(c.out, "AI:", content)
	return conversation.Assistant(content), nil
}

// Stream implements Client.
func (c *SDKClient) Stream(ctx context.Context, messages []conversation.Message) (conversation.Message, error) {
	logger.L.Debug("sdk stream request", "deployment", c.deployment, "messages", len(messages))

	stream, err := c.api.CreateChatCompletionStream(ctx, c.request(messages))
	if err != nil {
		return conversation.Message{}, sdkError("chat completion stream", err)
	}
	defer stream.Close()

	var acc snippets
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			acc.finish(c.out)
			return conversation.Message{}, sdkError("chat completion stream", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		acc.write(c.out, chunk.Choices[0].Delta.Content)
	}
	acc.finish(c.out)
	logger.L.Debug("sdk stream finished", "chunks", acc.count, "bytes", acc.b.Len())
	return conversation.Assistant(acc.b.String()), nil
}

// sdkError maps go-openai's error types onto APIError so both clients report failures alike.
// Anything else (transport, cancellation) is wrapped with op.
func sdkError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := reqErr.HTTPStatus
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Body: body, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
