package api

import (
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates token counts. Streaming responses carry no usage block, so the
// interaction log records estimates instead.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a counter using GPT-4 encoding for every model
func NewTokenCounter() *TokenCounter {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{codec: codec}
}

// Count returns the estimated number of tokens in text
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountMessages estimates the prompt tokens of a message list
func (tc *TokenCounter) CountMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += tc.Count(m.Content)
	}
	return total
}
