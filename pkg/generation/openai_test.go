package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_Generate(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"The Fool walks..."},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL})
	text, err := client.Generate(context.Background(), Request{System: "be wise", Prompt: "read my cards"})
	require.NoError(t, err)
	assert.Equal(t, "The Fool walks...", text)

	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, DefaultTemperature, got.Temperature)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "be wise", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "read my cards", got.Messages[1].Content)
}

func TestOpenAI_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"api error", http.StatusTooManyRequests, `{"error":{"message":"rate limited","type":"requests"}}`, ErrUpstream},
		{"raw error", http.StatusBadGateway, `upstream down`, ErrUpstream},
		{"no choices", http.StatusOK, `{"choices":[]}`, ErrEmptyCompletion},
		{"blank content", http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"  "}}]}`, ErrEmptyCompletion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL})
			_, err := client.Generate(context.Background(), Request{Prompt: "hi"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOpenAI_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewOpenAI(OpenAIConfig{BaseURL: server.URL})
	_, err := client.Generate(ctx, Request{Prompt: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
}
