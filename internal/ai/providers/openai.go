// Package providers contains concrete LLM provider implementations.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/ai"
)

// OpenAIClient implements the ai.Provider interface against the OpenAI
// chat completions API, including function calling for structured output.
type OpenAIClient struct {
	apiKey     string
	model      string
	apiBaseURL string
	httpClient *http.Client
}

// openaiRequest represents the JSON request sent to the OpenAI API.
type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	Tools       []openaiTool    `json:"tools,omitempty"`
	ToolChoice  any             `json:"tool_choice,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiTool struct {
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type openaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// openaiResponse represents the JSON response from the OpenAI API.
type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string           `json:"role"`
			Content   string           `json:"content"`
			ToolCalls []openaiToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// openaiModelPricing contains cost information per model.
type openaiModelPricing struct {
	inputCostPer1k  float64
	outputCostPer1k float64
}

var gptModels = map[string]openaiModelPricing{
	"gpt-4-turbo": {inputCostPer1k: 0.01, outputCostPer1k: 0.03},
	"gpt-4o":      {inputCostPer1k: 0.005, outputCostPer1k: 0.015},
	"gpt-4o-mini": {inputCostPer1k: 0.00015, outputCostPer1k: 0.0006},
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		model:      model,
		apiBaseURL: "https://api.openai.com",
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Generate sends a request to OpenAI and returns the response.
func (c *OpenAIClient) Generate(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	openaiReq := openaiRequest{
		Model:       model,
		Messages:    buildMessages(req),
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		openaiReq.MaxTokens = req.MaxTokens
	}
	for _, tool := range req.Tools {
		openaiReq.Tools = append(openaiReq.Tools, openaiTool{
			Type: "function",
			Function: openaiFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	if req.ForceTool != "" {
		openaiReq.ToolChoice = map[string]any{
			"type":     "function",
			"function": map[string]string{"name": req.ForceTool},
		}
	}

	reqBody, err := json.Marshal(openaiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/chat/completions", c.apiBaseURL), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	startTime := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to OpenAI failed: %v: %w", err, ai.ErrUnavailable)
	}
	defer httpResp.Body.Close() //nolint:errcheck // close error ignored in defer

	if err := classifyStatus(httpResp); err != nil {
		return nil, err
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var openaiResp openaiResponse
	if err := json.Unmarshal(respBody, &openaiResp); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAI response: %v: %w", err, ai.ErrMalformedOutput)
	}
	if len(openaiResp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI response has no choices: %w", ai.ErrMalformedOutput)
	}

	choice := openaiResp.Choices[0]
	resp := &ai.Response{
		Content:      choice.Message.Content,
		Model:        openaiResp.Model,
		FinishReason: choice.FinishReason,
		InputTokens:  openaiResp.Usage.PromptTokens,
		OutputTokens: openaiResp.Usage.CompletionTokens,
		ResponseTime: time.Since(startTime),
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ai.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return resp, nil
}

// HealthCheck verifies that the API key is valid and can reach OpenAI.
func (c *OpenAIClient) HealthCheck(ctx context.Context) error {
	req := &ai.Request{Prompt: "test", MaxTokens: 5}
	if _, err := c.Generate(ctx, req); err != nil {
		if strings.Contains(err.Error(), "401") || strings.Contains(err.Error(), "Unauthorized") {
			return fmt.Errorf("OpenAI authentication failed: invalid API key")
		}
		return fmt.Errorf("OpenAI health check failed: %w", err)
	}
	return nil
}

// GetModelInfo returns metadata about this OpenAI model.
func (c *OpenAIClient) GetModelInfo() *ai.ModelInfo {
	pricing, exists := gptModels[c.model]
	if !exists {
		pricing = openaiModelPricing{inputCostPer1k: 0.01, outputCostPer1k: 0.03}
	}
	return &ai.ModelInfo{
		Provider:              "openai",
		Model:                 c.model,
		MaxTokens:             128000,
		CostPer1kInputTokens:  pricing.inputCostPer1k,
		CostPer1kOutputTokens: pricing.outputCostPer1k,
		SupportsTools:         true,
	}
}

func buildMessages(req *ai.Request) []openaiMessage {
	var messages []openaiMessage
	if req.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.System})
	}
	if len(req.Messages) > 0 {
		for _, m := range req.Messages {
			msg := openaiMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
			for _, tc := range m.ToolCalls {
				call := openaiToolCall{ID: tc.ID, Type: "function"}
				call.Function.Name = tc.Name
				call.Function.Arguments = string(tc.Arguments)
				msg.ToolCalls = append(msg.ToolCalls, call)
			}
			messages = append(messages, msg)
		}
		return messages
	}
	return append(messages, openaiMessage{Role: "user", Content: req.Prompt})
}

// classifyStatus maps HTTP failures onto the provider error kinds.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if header := resp.Header.Get("Retry-After"); header != "" {
			if secs, err := strconv.Atoi(header); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &ai.RateLimitError{RetryAfter: retryAfter}
	case resp.StatusCode >= 500:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d from OpenAI: %s: %w", resp.StatusCode, string(bodyBytes), ai.ErrUnavailable)
	default:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d from OpenAI: %s", resp.StatusCode, string(bodyBytes))
	}
}
