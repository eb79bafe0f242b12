package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/comigor/dialchat-go/internal/config"
	"github.com/comigor/dialchat-go/internal/conversation"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

// azureServer mimics the deployment route go-openai builds in Azure mode.
func azureServer(t *testing.T, deployment string, handler func(w http.ResponseWriter, req openai.ChatCompletionRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/openai/deployments/"+deployment+"/chat/completions", r.URL.Path)
		require.Equal(t, "2024-02-01", r.URL.Query().Get("api-version"))
		require.Equal(t, "sdk-key", r.Header.Get("api-key"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req openai.ChatCompletionRequest
		require.NoError(t, json.Unmarshal(body, &req))
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSDKClient(srv *httptest.Server, deployment string, out io.Writer) *SDKClient {
	return NewSDKClient(config.DialConfig{
		Endpoint:   srv.URL,
		APIKey:     "sdk-key",
		Deployment: deployment,
		APIVersion: "2024-02-01",
	}, out)
}

func TestSDKClient_Complete(t *testing.T) {
	srv := azureServer(t, "gpt-4.1", func(w http.ResponseWriter, req openai.ChatCompletionRequest) {
		require.False(t, req.Stream)
		require.Equal(t, "gpt-4.1", req.Model)
		require.Len(t, req.Messages, 2)
		require.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
		require.Equal(t, "hi", req.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"Hey"},"finish_reason":"stop"}]}`)
	})
	var out bytes.Buffer

	msg, err := newTestSDKClient(srv, "gpt-4.1", &out).Complete(context.Background(), history)
	require.NoError(t, err)
	require.Equal(t, conversation.Assistant("Hey"), msg)
	require.Equal(t, "AI: Hey\n", out.String())
}

func TestSDKClient_CompleteNoChoices(t *testing.T) {
	srv := azureServer(t, "gpt-4o", func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c2","choices":[]}`)
	})

	_, err := newTestSDKClient(srv, "gpt-4o", io.Discard).Complete(context.Background(), history)
	require.ErrorIs(t, err, ErrNoChoices)
}

func TestSDKClient_CompleteAPIError(t *testing.T) {
	srv := azureServer(t, "gpt-4o", func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit","code":"429"}}`)
	})

	_, err := newTestSDKClient(srv, "gpt-4o", io.Discard).Complete(context.Background(), history)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.EqualError(t, err, "HTTP 429: slow down")

	// the SDK error stays reachable
	var sdkErr *openai.APIError
	require.ErrorAs(t, err, &sdkErr)
}

// TestClients_SameErrorShape checks both clients surface an unauthorized answer as *APIError.
func TestClients_SameErrorShape(t *testing.T) {
	unauthorized := func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid key"}}`)
	}
	sdkSrv := azureServer(t, "gpt-4o", func(w http.ResponseWriter, _ openai.ChatCompletionRequest) { unauthorized(w) })
	httpSrv := dialServer(t, false, unauthorized)

	clients := map[string]Client{
		"sdk":  newTestSDKClient(sdkSrv, "gpt-4o", io.Discard),
		"http": newTestHTTPClient(httpSrv, io.Discard),
	}
	for name, c := range clients {
		t.Run(name, func(t *testing.T) {
			_, err := c.Complete(context.Background(), history)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
			require.Contains(t, err.Error(), "HTTP 401: ")
			require.Contains(t, err.Error(), "invalid key")
		})
	}
}

func TestSDKClient_Stream(t *testing.T) {
	srv := azureServer(t, "gpt-4o", func(w http.ResponseWriter, req openai.ChatCompletionRequest) {
		require.True(t, req.Stream)
		writeEvents(w,
			`{"id":"s1","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			`{"id":"s1","choices":[{"index":0,"delta":{"content":"Good "}}]}`,
			`{"id":"s1","choices":[]}`,
			`{"id":"s1","choices":[{"index":0,"delta":{"content":"morning"}}]}`,
			`{"id":"s1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			"[DONE]",
		)
	})
	var out bytes.Buffer

	msg, err := newTestSDKClient(srv, "gpt-4o", &out).Stream(context.Background(), history)
	require.NoError(t, err)
	require.Equal(t, conversation.Assistant("Good morning"), msg)
	require.Equal(t, "Good morning\n", out.String())
}

func TestSDKClient_StreamAPIError(t *testing.T) {
	srv := azureServer(t, "gpt-4o", func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})
	var out bytes.Buffer

	_, err := newTestSDKClient(srv, "gpt-4o", &out).Stream(context.Background(), history)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	require.EqualError(t, err, "HTTP 500: boom")
	require.Empty(t, out.String())
}

func TestSDKClient_StreamErrorChunk(t *testing.T) {
	srv := azureServer(t, "gpt-4o", func(w http.ResponseWriter, _ openai.ChatCompletionRequest) {
		writeEvents(w,
			`{"id":"s2","choices":[{"index":0,"delta":{"content":"Hi"}}]}`,
			`{"error":{"message":"content filtered","code":"content_filter"}}`,
		)
	})
	var out bytes.Buffer

	_, err := newTestSDKClient(srv, "gpt-4o", &out).Stream(context.Background(), history)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Zero(t, apiErr.StatusCode)
	require.EqualError(t, err, "stream error: content filtered")
	require.Equal(t, "Hi\n", out.String())
}
