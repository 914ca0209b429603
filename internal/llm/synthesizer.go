// Package llm turns a question and retrieved site content into a written
// answer through a configurable chat model provider.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/hyperjump/kotae/internal/content"
)

var (
	// ErrNotConfigured means the selected provider lacks credentials.
	ErrNotConfigured = errors.New("synthesis provider not configured")
	// ErrEmptyResponse means the provider replied without any text.
	ErrEmptyResponse = errors.New("empty response from synthesis provider")
)

// ContextDocument is one piece of site content given to the model.
type ContextDocument struct {
	Title string
	Body  string
}

// SynthesisRequest carries everything a provider needs to answer a question.
type SynthesisRequest struct {
	Query              string
	Documents          []ContextDocument
	SystemInstructions string
	MaxTokens          int
	Temperature        float64
}

// Synthesizer writes an answer grounded in the request documents.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *SynthesisRequest) (string, error)
	Name() string
}

// cleanReply trims and entity-decodes a provider reply.
func cleanReply(text string) (string, error) {
	text = strings.TrimSpace(content.DecodeEntities(strings.TrimSpace(text)))
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func systemPrompt(req *SynthesisRequest) string {
	if req.SystemInstructions != "" {
		return req.SystemInstructions
	}
	return DefaultInstructions
}
