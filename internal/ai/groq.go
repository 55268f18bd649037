package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.2
)

// GroqClient calls the Groq OpenAI-compatible chat completions API.
type GroqClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

type groqMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []groqToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type groqToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type groqTool struct {
	Type     string       `json:"type"`
	Function groqFunction `json:"function"`
}

type groqFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type groqChatRequest struct {
	Model          string            `json:"model"`
	Messages       []groqMessage     `json:"messages"`
	Tools          []groqTool        `json:"tools,omitempty"`
	Temperature    float32           `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type groqChatResponse struct {
	Choices []struct {
		Message groqMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewGroqClient создает клиент Groq с заданными параметрами.
func NewGroqClient(apiKey, baseURL, model string, timeout time.Duration, maxTokens int) *GroqClient {
	trimmedURL := strings.TrimRight(baseURL, "/")
	return &GroqClient{
		apiKey:    apiKey,
		baseURL:   trimmedURL,
		model:     model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Chat отправляет обмен в Groq и возвращает текст, вызовы инструментов и сырой ответ API.
func (c *GroqClient) Chat(ctx context.Context, request ChatRequest) (ChatResponse, []byte, error) {
	messages, err := toGroqMessages(request)
	if err != nil {
		return ChatResponse{}, nil, err
	}

	reqBody := groqChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: resolveTemperature(request.Temperature),
		MaxTokens:   resolveMaxTokens(c.maxTokens),
	}
	for _, tool := range request.Tools {
		reqBody.Tools = append(reqBody.Tools, groqTool{
			Type: "function",
			Function: groqFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  jsonSchema(tool.Parameters),
			},
		})
	}

	message, body, err := c.complete(ctx, reqBody)
	if err != nil {
		return ChatResponse{}, body, err
	}

	turn := Turn{Role: RoleModel, Text: message.Content}
	for _, call := range message.ToolCalls {
		args := map[string]any{}
		if strings.TrimSpace(call.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return ChatResponse{}, body, fmt.Errorf("groq tool call arguments: %w", err)
			}
		}
		turn.ToolCalls = append(turn.ToolCalls, ToolCall{ID: call.ID, Name: call.Function.Name, Args: args})
	}

	return ChatResponse{Text: turn.Text, ToolCalls: turn.ToolCalls, Turn: turn}, body, nil
}

// Extract поддерживает только текстовые вложения (CSV, JSON, plain text).
func (c *GroqClient) Extract(ctx context.Context, request ExtractRequest) (string, []byte, error) {
	if !isTextMIME(request.MIMEType) {
		return "", nil, fmt.Errorf("groq client does not support %s attachments", request.MIMEType)
	}

	schema, err := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			request.ListField: map[string]any{"type": "array", "items": jsonSchema(request.Fields)},
		},
	})
	if err != nil {
		return "", nil, err
	}

	prompt := fmt.Sprintf("%s\n\nRespond with JSON only matching this schema:\n%s\n\nDocument:\n%s",
		request.Prompt, string(schema), string(request.Data))

	reqBody := groqChatRequest{
		Model: c.model,
		Messages: []groqMessage{
			{Role: "system", Content: "You extract structured data. Respond with JSON only, without extra text."},
			{Role: "user", Content: prompt},
		},
		Temperature:    defaultTemperature,
		MaxTokens:      resolveMaxTokens(c.maxTokens),
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	message, body, err := c.complete(ctx, reqBody)
	if err != nil {
		return "", body, err
	}
	return message.Content, body, nil
}

func (c *GroqClient) complete(ctx context.Context, reqBody groqChatRequest) (groqMessage, []byte, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return groqMessage{}, nil, errors.New("groq api key is missing")
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return groqMessage{}, nil, err
	}

	endpoint := fmt.Sprintf("%s/chat/completions", c.baseURL)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return groqMessage{}, nil, err
	}

	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return groqMessage{}, nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return groqMessage{}, nil, err
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		var apiErr groqChatResponse
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != nil {
			return groqMessage{}, body, fmt.Errorf("groq api error: %s", apiErr.Error.Message)
		}
		return groqMessage{}, body, fmt.Errorf("groq api error: %s", strings.TrimSpace(string(body)))
	}

	var parsed groqChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return groqMessage{}, body, err
	}

	if len(parsed.Choices) == 0 {
		return groqMessage{}, body, errors.New("groq response missing choices")
	}

	return parsed.Choices[0].Message, body, nil
}

func toGroqMessages(request ChatRequest) ([]groqMessage, error) {
	messages := make([]groqMessage, 0, len(request.Turns)+1)
	if system := strings.TrimSpace(request.System); system != "" {
		messages = append(messages, groqMessage{Role: "system", Content: system})
	}

	hasUser := false
	for _, turn := range request.Turns {
		switch turn.Role {
		case RoleModel:
			message := groqMessage{Role: "assistant", Content: turn.Text}
			for _, call := range turn.ToolCalls {
				args, err := json.Marshal(call.Args)
				if err != nil {
					return nil, err
				}
				toolCall := groqToolCall{ID: call.ID, Type: "function"}
				toolCall.Function.Name = call.Name
				toolCall.Function.Arguments = string(args)
				message.ToolCalls = append(message.ToolCalls, toolCall)
			}
			messages = append(messages, message)
		case RoleTool:
			if turn.ToolResult == nil {
				continue
			}
			content, err := json.Marshal(turn.ToolResult.Response)
			if err != nil {
				return nil, err
			}
			messages = append(messages, groqMessage{
				Role:       "tool",
				Content:    string(content),
				ToolCallID: turn.ToolResult.ID,
				Name:       turn.ToolResult.Name,
			})
		default:
			text := strings.TrimSpace(turn.Text)
			if text == "" {
				continue
			}
			hasUser = true
			messages = append(messages, groqMessage{Role: "user", Content: text})
		}
	}

	if !hasUser {
		return nil, errors.New("groq request has no user content")
	}
	return messages, nil
}

func jsonSchema(params []ToolParameter) map[string]any {
	properties := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for _, param := range params {
		property := map[string]any{"type": string(param.Type)}
		if param.Description != "" {
			property["description"] = param.Description
		}
		if len(param.Enum) > 0 {
			property["enum"] = param.Enum
		}
		properties[param.Name] = property
		if param.Required {
			required = append(required, param.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func isTextMIME(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/csv":
		return true
	default:
		return false
	}
}
