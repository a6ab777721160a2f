package provider

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/vietddude/verdict/internal/core/domain"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiClient calls the Generative Language REST API.
type GeminiClient struct {
	identity domain.BackendIdentity
	apiKey   string
	http     *httpTransport
}

// NewGeminiClient creates a client for model authenticated with apiKey.
func NewGeminiClient(model, apiKey string, opts ...HTTPOption) *GeminiClient {
	return &GeminiClient{
		identity: domain.BackendIdentity{Provider: "gemini", Model: model},
		apiKey:   apiKey,
		http:     newHTTPTransport(geminiBaseURL, opts),
	}
}

func (c *GeminiClient) Identity() domain.BackendIdentity {
	return c.identity
}

type geminiPart struct {
	Text     string          `json:"text,omitempty"`
	FileData *geminiFileData `json:"file_data,omitempty"`
}

type geminiFileData struct {
	MIMEType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  map[string]any  `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Complete sends one generateContent request.
func (c *GeminiClient) Complete(ctx context.Context, p Prompt) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingCredential
	}

	parts := []geminiPart{{Text: p.Text}}
	for _, f := range p.Files {
		parts = append(parts, geminiPart{FileData: &geminiFileData{MIMEType: f.MIMEType, FileURI: f.URI}})
	}

	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
	}
	if p.System != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: p.System}}}
	}
	if p.JSON {
		req.GenerationConfig = map[string]any{"responseMimeType": "application/json"}
	}

	var resp geminiResponse
	path := "/v1beta/models/" + url.PathEscape(c.identity.Model) + ":generateContent"
	if err := c.http.postJSON(ctx, path, c.headers(), req, &resp); err != nil {
		return "", err
	}

	if resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrInvalidReply)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: empty candidate (finish reason %s)", ErrInvalidReply, resp.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}

// Upload sends a local file to the Files API so prompts can reference it.
func (c *GeminiClient) Upload(ctx context.Context, path string) (FileRef, error) {
	if c.apiKey == "" {
		return FileRef{}, ErrMissingCredential
	}

	f, err := os.Open(path)
	if err != nil {
		return FileRef{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	headers := c.headers()
	headers["X-Goog-Upload-Protocol"] = "raw"
	headers["X-Goog-Upload-File-Name"] = filepath.Base(path)

	var resp struct {
		File struct {
			Name     string `json:"name"`
			URI      string `json:"uri"`
			MIMEType string `json:"mimeType"`
		} `json:"file"`
	}
	if err := c.http.post(ctx, "/upload/v1beta/files", mimeType, headers, f, &resp); err != nil {
		return FileRef{}, err
	}
	if resp.File.URI == "" {
		return FileRef{}, fmt.Errorf("%w: upload returned no uri", ErrInvalidReply)
	}

	ref := FileRef{Name: resp.File.Name, URI: resp.File.URI, MIMEType: resp.File.MIMEType}
	if ref.MIMEType == "" {
		ref.MIMEType = mimeType
	}
	return ref, nil
}

func (c *GeminiClient) headers() map[string]string {
	return map[string]string{"x-goog-api-key": c.apiKey}
}
