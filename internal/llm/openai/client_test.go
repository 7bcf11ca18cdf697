package openai

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
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "proj", r.Header.Get("OpenAI-Project"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  {\"winner_index\":0}  "}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1/", Project: "proj"}, nil)
	out, err := c.Generate(context.Background(), "judge")
	require.NoError(t, err)
	assert.Equal(t, `{"winner_index":0}`, out)
}

func TestClient_GenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, llm.ErrUnavailable},
		{"server error", http.StatusBadGateway, `{}`, llm.ErrUnavailable},
		{"no choices", http.StatusOK, `{"choices":[]}`, errNoChoices},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil).Generate(context.Background(), "p")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("bad request is not unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"bad model"}`, http.StatusBadRequest)
		}))
		defer srv.Close()
		_, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil).Generate(context.Background(), "p")
		require.Error(t, err)
		assert.NotErrorIs(t, err, llm.ErrUnavailable)
	})
}

func TestClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil).Ping(context.Background()))

	t.Setenv("OPENAI_API_KEY", "")
	assert.Error(t, NewClient(Config{BaseURL: srv.URL}, nil).Ping(context.Background()))
}
