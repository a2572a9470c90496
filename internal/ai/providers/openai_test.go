package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/ai"
)

func mockOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewOpenAIClient("sk-test-key", "gpt-4o")
	client.apiBaseURL = server.URL
	return client
}

// TestOpenAIClient_Generate_ParsesTextResponse verifies the plain chat path.
func TestOpenAIClient_Generate_ParsesTextResponse(t *testing.T) {
	client := mockOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3}
		}`))
	})

	resp, err := client.Generate(context.Background(), &ai.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 12, resp.InputTokens)
	assert.Equal(t, 3, resp.OutputTokens)
	assert.Empty(t, resp.ToolCalls)
}

// TestOpenAIClient_Generate_ForcedToolCall verifies function calling wiring
// both ways.
func TestOpenAIClient_Generate_ForcedToolCall(t *testing.T) {
	client := mockOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body["tools"], 1)
		require.NotNil(t, body["tool_choice"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "report_diagnosis", "arguments": "{\"root_cause\":\"x\"}"}}]},
				"finish_reason": "tool_calls"}],
			"usage": {"prompt_tokens": 100, "completion_tokens": 20}
		}`))
	})

	resp, err := client.Generate(context.Background(), &ai.Request{
		Prompt:    "diagnose",
		Tools:     []ai.ToolDef{{Name: "report_diagnosis", Parameters: json.RawMessage(`{"type":"object"}`)}},
		ForceTool: "report_diagnosis",
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "report_diagnosis", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"root_cause":"x"}`, string(resp.ToolCalls[0].Arguments))
}

// TestOpenAIClient_Generate_RateLimited verifies 429 maps to the rate-limit
// error carrying the Retry-After hint.
func TestOpenAIClient_Generate_RateLimited(t *testing.T) {
	client := mockOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Generate(context.Background(), &ai.Request{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrRateLimited)

	var rl *ai.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
}

// TestOpenAIClient_Generate_ServerError verifies 5xx maps to unavailable.
func TestOpenAIClient_Generate_ServerError(t *testing.T) {
	client := mockOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Generate(context.Background(), &ai.Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ai.ErrUnavailable)
}

// TestOpenAIClient_Generate_EmptyChoices verifies malformed output mapping.
func TestOpenAIClient_Generate_EmptyChoices(t *testing.T) {
	client := mockOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model": "gpt-4o", "choices": []}`))
	})

	_, err := client.Generate(context.Background(), &ai.Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ai.ErrMalformedOutput)
}

// TestOpenAIClient_GetModelInfo verifies pricing metadata.
func TestOpenAIClient_GetModelInfo(t *testing.T) {
	info := NewOpenAIClient("sk-test", "gpt-4o").GetModelInfo()
	assert.Equal(t, "openai", info.Provider)
	assert.Equal(t, "gpt-4o", info.Model)
	assert.Greater(t, info.CostPer1kInputTokens, 0.0)
	assert.True(t, info.SupportsTools)
}

// TestOpenAIClient_Generate_SystemPromptFirst verifies message assembly.
func TestOpenAIClient_Generate_SystemPromptFirst(t *testing.T) {
	client := mockOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []map[string]any `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0]["role"])
		assert.Equal(t, "user", body.Messages[1]["role"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-4o","choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	})

	_, err := client.Generate(context.Background(), &ai.Request{System: "be terse", Prompt: "hi"})
	assert.NoError(t, err)
}
