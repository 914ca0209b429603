package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrInvalidCredentials means the provider rejected the configured API key.
	ErrInvalidCredentials = errors.New("synthesis provider rejected the API key")
	// ErrCheckUnsupported means the provider has no credential check.
	ErrCheckUnsupported = errors.New("credential check not supported by provider")
)

// CredentialChecker validates a provider's credentials against an endpoint
// that costs no tokens.
type CredentialChecker interface {
	CheckCredentials(ctx context.Context) error
}

// CheckCredentials validates s's credentials, or returns ErrCheckUnsupported
// when s cannot check them.
func CheckCredentials(ctx context.Context, s Synthesizer) error {
	if c, ok := s.(CredentialChecker); ok {
		return c.CheckCredentials(ctx)
	}
	return ErrCheckUnsupported
}

// CheckCredentials lists the models visible to the key.
func (s *OpenAISynthesizer) CheckCredentials(ctx context.Context) error {
	_, err := s.client.ListModels(ctx)
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && rejectedKey(apiErr.HTTPStatusCode, false) {
		return fmt.Errorf("openai: %w: %s", ErrInvalidCredentials, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && rejectedKey(reqErr.HTTPStatusCode, false) {
		return fmt.Errorf("openai: %w", ErrInvalidCredentials)
	}
	return fmt.Errorf("openai credential check failed: %w", err)
}

// CheckCredentials lists models through the Models API.
func (s *AnthropicSynthesizer) CheckCredentials(ctx context.Context) error {
	endpoint := strings.TrimSuffix(s.url, "/messages") + "/models?limit=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return checkModelsResponse(s.client, req, "anthropic", false)
}

// CheckCredentials lists models; Gemini reports a bad key as 400.
func (s *GeminiSynthesizer) CheckCredentials(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s?pageSize=1&key=%s", s.baseURL, url.QueryEscape(s.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return checkModelsResponse(s.client, req, "gemini", true)
}

// CheckCredentials forwards to the wrapped synthesizer.
func (s *Instrumented) CheckCredentials(ctx context.Context) error {
	return CheckCredentials(ctx, s.next)
}

func checkModelsResponse(client *http.Client, req *http.Request, provider string, badRequestIsKey bool) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s credential check failed: %w", provider, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case rejectedKey(resp.StatusCode, badRequestIsKey):
		return fmt.Errorf("%s: %w (status %d)", provider, ErrInvalidCredentials, resp.StatusCode)
	default:
		return fmt.Errorf("%s credential check returned status %d", provider, resp.StatusCode)
	}
}

func rejectedKey(status int, badRequestIsKey bool) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	case http.StatusBadRequest:
		return badRequestIsKey
	}
	return false
}
