package api

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	ollama "github.com/ollama/ollama/api"

	"github.com/lamim/storyforge/internal/config"
)

var errConsumerStopped = errors.New("consumer stopped reading")

// ollamaProvider streams from a native Ollama server. Thinking models report reasoning
// in Message.Thinking, which maps onto the separate reasoning channel.
type ollamaProvider struct {
	client   *ollama.Client
	modelCfg config.ModelConfig
}

func newOllamaProvider(modelCfg config.ModelConfig) (*ollamaProvider, error) {
	parsedURL, err := url.Parse(modelCfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base_url: %w", err)
	}
	return &ollamaProvider{
		client:   ollama.NewClient(parsedURL, http.DefaultClient),
		modelCfg: modelCfg,
	}, nil
}

func (p *ollamaProvider) name() string { return config.ProviderOllama }

func (p *ollamaProvider) stream(ctx context.Context, req Request) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		stream := true
		chatReq := &ollama.ChatRequest{
			Model:    p.modelCfg.ModelName,
			Messages: toOllamaMessages(req.Messages),
			Stream:   &stream,
			Options: map[string]any{
				"temperature": p.modelCfg.Temperature,
				"top_p":       p.modelCfg.TopP,
				"num_predict": p.modelCfg.MaxOutputTokens,
			},
		}

		stopped := false
		err := p.client.Chat(ctx, chatReq, func(resp ollama.ChatResponse) error {
			if resp.Message.Content == "" && resp.Message.Thinking == "" {
				// Final stats-only message
				return nil
			}
			if !yield(Chunk{Reasoning: resp.Message.Thinking, Content: resp.Message.Content}, nil) {
				stopped = true
				return errConsumerStopped
			}
			return nil
		})
		if stopped {
			return
		}
		if err != nil {
			yield(Chunk{}, fmt.Errorf("ollama chat: %w", err))
		}
	}
}

func toOllamaMessages(messages []Message) []ollama.Message {
	out := make([]ollama.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, ollama.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
