package api

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/lamim/storyforge/internal/config"
)

// reasoningFields are the delta fields OpenAI-compatible servers use for reasoning text
var reasoningFields = []string{"reasoning_content", "reasoning"}

// openAIProvider streams from any OpenAI-compatible chat completions endpoint
type openAIProvider struct {
	client   openai.Client
	modelCfg config.ModelConfig
	logger   *slog.Logger
}

func newOpenAIProvider(modelCfg config.ModelConfig, apiKey string, logger *slog.Logger) *openAIProvider {
	// Retries are owned by RetryPolicy so every attempt restarts the accumulators
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if modelCfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(modelCfg.BaseURL))
	}
	return &openAIProvider{
		client:   openai.NewClient(opts...),
		modelCfg: modelCfg,
		logger:   logger,
	}
}

func (p *openAIProvider) name() string { return config.ProviderOpenAI }

func (p *openAIProvider) stream(ctx context.Context, req Request) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		params := openai.ChatCompletionNewParams{
			Model:       openai.ChatModel(p.modelCfg.ModelName),
			Messages:    toOpenAIMessages(req.Messages),
			Temperature: openai.Float(p.modelCfg.Temperature),
			TopP:        openai.Float(p.modelCfg.TopP),
			MaxTokens:   openai.Int(int64(p.modelCfg.MaxOutputTokens)),
		}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer func() {
			_ = stream.Close()
		}()

		for stream.Next() {
			chunk, ok := parseChunk(stream.Current().RawJSON())
			if !ok {
				continue
			}
			if chunk.Malformed {
				p.logger.Debug("Malformed stream chunk", "stage", req.Stage)
			}
			if !yield(chunk, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(Chunk{}, fmt.Errorf("openai stream: %w", err))
		}
	}
}

// parseChunk maps one raw chat.completion.chunk event onto a Chunk.
// ok is false for events that carry nothing to decode, such as a trailing usage block.
func parseChunk(raw string) (chunk Chunk, ok bool) {
	if !gjson.Valid(raw) {
		return Chunk{Content: raw, Malformed: true}, true
	}

	choices := gjson.Get(raw, "choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		if gjson.Get(raw, "usage").Exists() {
			return Chunk{}, false
		}
		return Chunk{Malformed: true}, true
	}

	delta := gjson.Get(raw, "choices.0.delta")
	if !delta.Exists() {
		// Some servers send whole messages instead of deltas
		if content := gjson.Get(raw, "choices.0.message.content"); content.Type == gjson.String {
			return Chunk{Content: content.Str, Malformed: true}, true
		}
		return Chunk{Malformed: true}, true
	}

	chunk.Content = delta.Get("content").String()
	for _, field := range reasoningFields {
		if r := delta.Get(field); r.Type == gjson.String && r.Str != "" {
			chunk.Reasoning = r.Str
			break
		}
	}
	return chunk, true
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
