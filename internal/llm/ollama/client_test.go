package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statements-tracker/internal/llm"
)

func TestClient_Generate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{Response: `{"transactions":[]}`, Done: true})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/api/generate", Model: "llama3"}, nil)
	out, err := c.Generate(context.Background(), "list rows")
	require.NoError(t, err)
	assert.Equal(t, `{"transactions":[]}`, out)
	assert.Equal(t, "llama3", got.Model)
	assert.Equal(t, "list rows", got.Prompt)
	assert.False(t, got.Stream)
}

func TestClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading model", http.StatusServiceUnavailable)
	}))
	c := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := c.Generate(context.Background(), "p")
	require.ErrorIs(t, err, llm.ErrUnavailable)
	srv.Close()

	_, err = c.Generate(context.Background(), "p")
	require.ErrorIs(t, err, llm.ErrUnavailable, "connection refused")
}

func TestClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"qwen2.5:7b","model":"qwen2.5:7b"},{"name":"llama3:latest"}]}`))
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(Config{BaseURL: srv.URL}, nil).Ping(context.Background()))
	assert.NoError(t, NewClient(Config{BaseURL: srv.URL, Model: "llama3"}, nil).Ping(context.Background()))

	err := NewClient(Config{BaseURL: srv.URL, Model: "mistral"}, nil).Ping(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, llm.ErrUnavailable)
}
