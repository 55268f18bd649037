package ai

import (
	"github.com/shopspring/decimal"

	"example.com/fincap/backend/internal/models"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type ToolResult struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Turn описывает одну реплику обмена: текст пользователя, ответ модели (с вызовами
// инструментов) или результат инструмента.
type Turn struct {
	Role       Role        `json:"role"`
	Text       string      `json:"text,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	// Signature хранит непрозрачные данные провайдера, которые нужно вернуть в продолжении.
	Signature []byte `json:"-"`
}

type ParameterType string

const (
	ParameterString ParameterType = "string"
	ParameterNumber ParameterType = "number"
)

type ToolParameter struct {
	Name        string        `json:"name"`
	Type        ParameterType `json:"type"`
	Description string        `json:"description,omitempty"`
	Enum        []string      `json:"enum,omitempty"`
	Required    bool          `json:"required,omitempty"`
}

type ToolDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

type ChatRequest struct {
	System      string            `json:"system"`
	Turns       []Turn            `json:"turns"`
	Tools       []ToolDeclaration `json:"tools,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
}

// ChatResponse содержит текст и/или вызовы инструментов. Turn хранит реплику модели
// в виде, пригодном для продолжения обмена.
type ChatResponse struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Turn      Turn       `json:"turn"`
}

// ExtractRequest asks the model for a JSON object {"<ListField>": [ {Fields...} ]}
// extracted from an attached document.
type ExtractRequest struct {
	Prompt    string          `json:"prompt"`
	MIMEType  string          `json:"mime_type"`
	Data      []byte          `json:"-"`
	ListField string          `json:"list_field"`
	Fields    []ToolParameter `json:"fields"`
}

// Candidate is a sanitized transaction candidate extracted from a document.
type Candidate struct {
	Date        string                 `json:"date"`
	Description string                 `json:"description"`
	Amount      decimal.Decimal        `json:"amount"`
	Type        models.TransactionType `json:"type"`
	Category    string                 `json:"category"`
}

type AnalyzeDocumentInput struct {
	MIMEType string
	Data     []byte
	AsOf     string
}
