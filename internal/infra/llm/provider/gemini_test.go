package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiClient_Complete(t *testing.T) {
	var got geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"{\"is_true\":"},{"text":"true}"}]}}]}`)
	}))
	defer server.Close()

	c := NewGeminiClient("gemini-2.5-flash", "secret", WithBaseURL(server.URL))
	text, err := c.Complete(context.Background(), Prompt{
		System: "be brief",
		Text:   "is water wet?",
		JSON:   true,
		Files:  []FileRef{{URI: "https://files/abc", MIMEType: "application/pdf"}},
	})

	require.NoError(t, err)
	assert.Equal(t, `{"is_true":true}`, text)
	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 2)
	assert.Equal(t, "is water wet?", got.Contents[0].Parts[0].Text)
	assert.Equal(t, "https://files/abc", got.Contents[0].Parts[1].FileData.FileURI)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "application/json", got.GenerationConfig["responseMimeType"])
}

func TestGeminiClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		header    string
		wantClass string
		wantHint  time.Duration
	}{
		{
			name:   "quota with retry info",
			status: 429,
			body: `{"error":{"code":429,"message":"You exceeded your current quota","status":"RESOURCE_EXHAUSTED",
				"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"17s"}]}}`,
			wantClass: "rate",
			wantHint:  17 * time.Second,
		},
		{
			name:      "retry-after header",
			status:    429,
			body:      `slow down`,
			header:    "30",
			wantClass: "rate",
			wantHint:  30 * time.Second,
		},
		{
			name:      "model not found",
			status:    404,
			body:      `{"error":{"code":404,"message":"models/gemini-9 is not found for API version v1beta","status":"NOT_FOUND"}}`,
			wantClass: "unavailable",
		},
		{
			name:      "invalid api key",
			status:    400,
			body:      `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`,
			wantClass: "unavailable",
		},
		{
			name:      "server error",
			status:    500,
			body:      `{"error":{"code":500,"message":"Internal error","status":"INTERNAL"}}`,
			wantClass: "transient",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			c := NewGeminiClient("m", "k", WithBaseURL(server.URL))
			_, err := c.Complete(context.Background(), Prompt{Text: "x"})
			require.Error(t, err)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.Code)

			classified := Classify(err)
			switch tt.wantClass {
			case "rate":
				var rl *RateLimitedError
				require.ErrorAs(t, classified, &rl)
				assert.Equal(t, tt.wantHint, rl.RetryAfter)
			case "unavailable":
				var un *UnavailableError
				assert.ErrorAs(t, classified, &un)
			case "transient":
				var tr *TransientError
				assert.ErrorAs(t, classified, &tr)
			}
		})
	}
}

func TestGeminiClient_MalformedAndMissingKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	}))
	defer server.Close()

	_, err := NewGeminiClient("m", "k", WithBaseURL(server.URL)).Complete(context.Background(), Prompt{Text: "x"})
	assert.ErrorIs(t, err, ErrInvalidReply)

	_, err = NewGeminiClient("m", "").Complete(context.Background(), Prompt{Text: "x"})
	assert.True(t, errors.Is(err, ErrMissingCredential))
}

func TestGeminiClient_Upload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/v1beta/files", r.URL.Path)
		assert.Equal(t, "raw", r.Header.Get("X-Goog-Upload-Protocol"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "chapter one", string(body))
		_, _ = io.WriteString(w, `{"file":{"name":"files/abc","uri":"https://files/abc","mimeType":"text/plain"}}`)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("chapter one"), 0o644))

	ref, err := NewGeminiClient("m", "k", WithBaseURL(server.URL)).Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, FileRef{Name: "files/abc", URI: "https://files/abc", MIMEType: "text/plain"}, ref)

	_, err = NewGeminiClient("m", "k", WithBaseURL(server.URL)).Upload(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
