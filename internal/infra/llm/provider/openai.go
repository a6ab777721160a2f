package provider

import (
	"context"
	"fmt"

	"github.com/vietddude/verdict/internal/core/domain"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient calls an OpenAI-compatible chat completions endpoint.
// It does not implement Uploader; attachments are ignored.
type OpenAIClient struct {
	identity domain.BackendIdentity
	apiKey   string
	http     *httpTransport
}

// NewOpenAIClient creates a client for model authenticated with apiKey.
func NewOpenAIClient(model, apiKey string, opts ...HTTPOption) *OpenAIClient {
	return &OpenAIClient{
		identity: domain.BackendIdentity{Provider: "openai", Model: model},
		apiKey:   apiKey,
		http:     newHTTPTransport(openAIBaseURL, opts),
	}
}

func (c *OpenAIClient) Identity() domain.BackendIdentity {
	return c.identity
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends one chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, p Prompt) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingCredential
	}

	req := chatRequest{Model: c.identity.Model}
	if p.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: p.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: p.Text})
	if p.JSON {
		req.ResponseFormat = map[string]string{"type": "json_object"}
	}

	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := c.http.postJSON(ctx, "/chat/completions", headers, req, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty completion", ErrInvalidReply)
	}
	return resp.Choices[0].Message.Content, nil
}
