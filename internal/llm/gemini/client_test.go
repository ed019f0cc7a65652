package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/genai"

	"coderoom/internal/llm"
)

func newStubClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	genaiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     "test",
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: server.Client(),
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    server.URL,
			APIVersion: "v1beta",
		},
	})
	if err != nil {
		t.Fatalf("failed to create genai client: %v", err)
	}

	return &Client{
		client: genaiClient,
		config: &Config{APIKey: "test", Model: "test-model"},
	}
}

func textResponse(w http.ResponseWriter, text string) {
	resp := map[string]any{
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": text}},
				},
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func TestClientGenerateCodeSuccess(t *testing.T) {
	var body map[string]any
	client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/test-model:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		textResponse(w, "print('hello')")
	})

	temp := float32(0.6)
	resp, err := client.GenerateCode(context.Background(), &llm.Request{
		RequestID:         "req-1",
		Prompt:            "print hello",
		SystemInstruction: "only code",
		Temperature:       &temp,
	})
	if err != nil {
		t.Fatalf("GenerateCode returned error: %v", err)
	}
	if resp.Text != "print('hello')" {
		t.Fatalf("expected response text, got %q", resp.Text)
	}
	if resp.Model != "test-model" || resp.Provider != "gemini" || resp.RequestID != "req-1" {
		t.Fatalf("unexpected metadata %+v", resp)
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Fatalf("expected system instruction in request body, got %v", body)
	}
}

func TestClientGenerateCodeRateLimit(t *testing.T) {
	client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "429 rate limit", http.StatusTooManyRequests)
	})

	_, err := client.GenerateCode(context.Background(), &llm.Request{Prompt: "prompt"})
	var provErr *llm.ProviderError
	if !errors.As(err, &provErr) || provErr.Code != llm.ErrCodeRateLimit {
		t.Fatalf("expected provider rate limit error, got %v", err)
	}
}

func TestClientGenerateCodeEmptyResponse(t *testing.T) {
	client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		textResponse(w, "  ")
	})

	_, err := client.GenerateCode(context.Background(), &llm.Request{Prompt: "prompt"})
	var provErr *llm.ProviderError
	if !errors.As(err, &provErr) || provErr.Code != llm.ErrCodeInvalidInput {
		t.Fatalf("expected invalid input error for empty response, got %v", err)
	}
}

func TestClientGenerateCodeTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	// registered after the server so it runs before server.Close
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GenerateCode(ctx, &llm.Request{Prompt: "prompt"})
	var provErr *llm.ProviderError
	if !errors.As(err, &provErr) || provErr.Code != llm.ErrCodeTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestGetProviderNameAndRateLimitHelper(t *testing.T) {
	client := &Client{}
	if client.GetProviderName() != "gemini" {
		t.Fatalf("expected provider name gemini")
	}

	cases := map[string]bool{
		"429 rate limit exceeded": true,
		"RESOURCE_EXHAUSTED":      true,
		"quota exceeded":          true,
		"other error":             false,
	}
	for input, expect := range cases {
		if got := isRateLimitError(errors.New(input)); got != expect {
			t.Fatalf("isRateLimitError(%s) = %v, expected %v", input, got, expect)
		}
	}
	if isRateLimitError(nil) {
		t.Fatalf("expected nil error to return false")
	}
}

func TestRegisteredFactoryRequiresKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := llm.NewProvider("gemini"); err == nil {
		t.Fatal("expected factory to fail without API key")
	}

	t.Setenv("GEMINI_API_KEY", "key")
	p, err := llm.NewProvider("gemini")
	if err != nil {
		t.Fatalf("expected provider, got %v", err)
	}
	if p.GetProviderName() != "gemini" {
		t.Fatalf("unexpected provider %s", p.GetProviderName())
	}
}
