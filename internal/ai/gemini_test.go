package ai

import (
	"context"
	"testing"
	"time"

	"google.golang.org/genai"
)

// TestToGeminiContents проверяет преобразование реплик в контент genai.
func TestToGeminiContents(t *testing.T) {
	contents := toGeminiContents([]Turn{
		{Role: RoleUser, Text: "add rent"},
		{Role: RoleModel, ToolCalls: []ToolCall{{ID: "c1", Name: "createTransaction"}}, Signature: []byte("sig")},
		{Role: RoleTool, ToolResult: &ToolResult{ID: "c1", Name: "createTransaction", Response: map[string]any{"result": "Success"}}},
		{Role: RoleUser, Text: "   "},
	})

	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[1].Role != genai.RoleModel || contents[1].Parts[0].FunctionCall.Name != "createTransaction" {
		t.Fatalf("unexpected model content: %+v", contents[1])
	}
	if string(contents[1].Parts[0].ThoughtSignature) != "sig" {
		t.Fatal("expected thought signature to be carried over")
	}
	if contents[2].Parts[0].FunctionResponse == nil || contents[2].Parts[0].FunctionResponse.ID != "c1" {
		t.Fatalf("unexpected function response: %+v", contents[2])
	}
}

// TestFromGeminiResponse проверяет разбор текста и вызовов функций.
func TestFromGeminiResponse(t *testing.T) {
	response := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{
			{Text: "thinking", Thought: true},
			{Text: "Saving it."},
			{FunctionCall: &genai.FunctionCall{Name: "createTransaction", Args: map[string]any{"amount": 10.0}}},
		}},
	}}}

	parsed, err := fromGeminiResponse(response)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Text != "Saving it." {
		t.Fatalf("unexpected text %q", parsed.Text)
	}
	if len(parsed.ToolCalls) != 1 || parsed.Turn.Role != RoleModel {
		t.Fatalf("unexpected tool calls: %+v", parsed)
	}

	if _, err := fromGeminiResponse(&genai.GenerateContentResponse{}); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

// TestObjectSchema проверяет построение схемы параметров.
func TestObjectSchema(t *testing.T) {
	schema := objectSchema([]ToolParameter{
		{Name: "amount", Type: ParameterNumber, Required: true},
		{Name: "type", Type: ParameterString, Enum: []string{"income", "expense"}, Required: true},
		{Name: "category", Type: ParameterString},
	})
	if schema.Properties["amount"].Type != genai.TypeNumber {
		t.Fatal("expected number type for amount")
	}
	if len(schema.Required) != 2 || len(schema.Properties["type"].Enum) != 2 {
		t.Fatalf("unexpected schema: %+v", schema)
	}
}

// TestGeminiMissingKey проверяет ошибку без ключа API.
func TestGeminiMissingKey(t *testing.T) {
	client := NewGeminiClient("", "", "gemini-2.5-flash", time.Second, 0)
	if _, _, err := client.Chat(context.Background(), ChatRequest{Turns: []Turn{{Role: RoleUser, Text: "hi"}}}); err == nil {
		t.Fatal("expected missing key error")
	}
}
