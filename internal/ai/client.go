package ai

import "context"

// Client is a language-model provider capable of tool calls and structured extraction.
// Both methods also return the raw provider payload for auditing.
type Client interface {
	Chat(ctx context.Context, request ChatRequest) (ChatResponse, []byte, error)
	Extract(ctx context.Context, request ExtractRequest) (string, []byte, error)
}

func resolveMaxTokens(value int) int {
	if value > 0 {
		return value
	}

	return defaultMaxTokens
}

func resolveTemperature(value float32) float32 {
	if value > 0 {
		return value
	}

	return defaultTemperature
}
