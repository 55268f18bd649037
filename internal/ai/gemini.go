package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// GeminiClient calls Gemini through the genai SDK.
type GeminiClient struct {
	apiKey    string
	baseURL   string
	model     string
	timeout   time.Duration
	maxTokens int

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient создает клиент Gemini с заданными параметрами.
// SDK-клиент создается лениво при первом запросе.
func NewGeminiClient(apiKey, baseURL, model string, timeout time.Duration, maxTokens int) *GeminiClient {
	return &GeminiClient{
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		timeout:   timeout,
		maxTokens: maxTokens,
	}
}

// Chat отправляет обмен в Gemini с объявленными инструментами и возвращает
// текст, вызовы функций и сырой ответ API.
func (c *GeminiClient) Chat(ctx context.Context, request ChatRequest) (ChatResponse, []byte, error) {
	client, err := c.sdk(ctx)
	if err != nil {
		return ChatResponse{}, nil, err
	}

	contents := toGeminiContents(request.Turns)
	if len(contents) == 0 {
		return ChatResponse{}, nil, errors.New("gemini request has no user content")
	}

	temperature := resolveTemperature(request.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(resolveMaxTokens(c.maxTokens)),
	}
	if system := strings.TrimSpace(request.System); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if len(request.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toGeminiDeclarations(request.Tools)}}
	}

	response, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return ChatResponse{}, nil, fmt.Errorf("gemini api error: %w", err)
	}

	raw, _ := json.Marshal(response)
	parsed, err := fromGeminiResponse(response)
	if err != nil {
		return ChatResponse{}, raw, err
	}
	return parsed, raw, nil
}

// Extract отправляет документ с инструкцией и JSON-схемой ответа, возвращает JSON-текст.
func (c *GeminiClient) Extract(ctx context.Context, request ExtractRequest) (string, []byte, error) {
	client, err := c.sdk(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(request.Data) == 0 {
		return "", nil, errors.New("gemini extract request has no document")
	}

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: request.MIMEType, Data: request.Data}},
			{Text: request.Prompt},
		},
	}}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens:  int32(resolveMaxTokens(c.maxTokens)),
		ResponseMIMEType: "application/json",
		ResponseSchema:   extractionSchema(request),
	}

	response, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", nil, fmt.Errorf("gemini api error: %w", err)
	}

	raw, _ := json.Marshal(response)
	return response.Text(), raw, nil
}

func (c *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, errors.New("gemini api key is missing")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	config := &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.baseURL != "" {
		config.HTTPOptions.BaseURL = c.baseURL
	}
	if c.timeout > 0 {
		timeout := c.timeout
		config.HTTPOptions.Timeout = &timeout
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.client = client
	return client, nil
}

func toGeminiContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))

	for _, turn := range turns {
		switch turn.Role {
		case RoleModel:
			parts := make([]*genai.Part, 0, len(turn.ToolCalls)+1)
			if text := strings.TrimSpace(turn.Text); text != "" {
				parts = append(parts, &genai.Part{Text: text})
			}
			for i, call := range turn.ToolCalls {
				part := &genai.Part{FunctionCall: &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: call.Args}}
				if i == 0 {
					part.ThoughtSignature = turn.Signature
				}
				parts = append(parts, part)
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}
		case RoleTool:
			if turn.ToolResult == nil {
				continue
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       turn.ToolResult.ID,
					Name:     turn.ToolResult.Name,
					Response: turn.ToolResult.Response,
				}}},
			})
		default:
			text := strings.TrimSpace(turn.Text)
			if text == "" {
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}})
		}
	}

	return contents
}

func fromGeminiResponse(response *genai.GenerateContentResponse) (ChatResponse, error) {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ChatResponse{}, errors.New("gemini response missing candidates")
	}

	var builder strings.Builder
	turn := Turn{Role: RoleModel}

	for _, part := range response.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
			if turn.Signature == nil {
				turn.Signature = part.ThoughtSignature
			}
			continue
		}
		if !part.Thought {
			builder.WriteString(part.Text)
		}
	}

	turn.Text = builder.String()
	return ChatResponse{Text: turn.Text, ToolCalls: turn.ToolCalls, Turn: turn}, nil
}

func toGeminiDeclarations(tools []ToolDeclaration) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  objectSchema(tool.Parameters),
		})
	}
	return declarations
}

func objectSchema(params []ToolParameter) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(params)),
	}
	for _, param := range params {
		kind := genai.TypeString
		if param.Type == ParameterNumber {
			kind = genai.TypeNumber
		}
		schema.Properties[param.Name] = &genai.Schema{
			Type:        kind,
			Description: param.Description,
			Enum:        param.Enum,
		}
		if param.Required {
			schema.Required = append(schema.Required, param.Name)
		}
	}
	return schema
}

func extractionSchema(request ExtractRequest) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			request.ListField: {
				Type:  genai.TypeArray,
				Items: objectSchema(request.Fields),
			},
		},
	}
}
