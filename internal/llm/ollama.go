package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaSynthesizer talks to a local Ollama server through langchaingo.
type OllamaSynthesizer struct {
	client llms.Model
	model  string
}

// NewOllamaSynthesizer creates an Ollama synthesizer. An empty serverURL uses
// the langchaingo default (localhost:11434).
func NewOllamaSynthesizer(model, serverURL string) (*OllamaSynthesizer, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return &OllamaSynthesizer{client: client, model: model}, nil
}

func (s *OllamaSynthesizer) Name() string { return "ollama" }

func (s *OllamaSynthesizer) Synthesize(ctx context.Context, req *SynthesisRequest) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt(req)),
		llms.TextParts(llms.ChatMessageTypeHuman, UserMessage(req)),
	}
	resp, err := s.client.GenerateContent(ctx, messages,
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(req.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return cleanReply(resp.Choices[0].Content)
}
