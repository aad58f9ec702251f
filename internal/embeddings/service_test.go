package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func teiServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)

		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		count := 1
		if inputs, ok := req.Inputs.([]interface{}); ok {
			count = len(inputs)
		}
		vectors := make([][]float32, count)
		for i := range vectors {
			vectors[i] = make([]float32, dim)
			vectors[i][0] = float32(i + 1)
		}
		_ = json.NewEncoder(w).Encode(vectors)
	}))
}

func TestService_EmbedQuery(t *testing.T) {
	srv := teiServer(t, 4)
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL, Model: "BAAI/bge-small-en-v1.5"})
	require.NoError(t, err)

	vec, err := svc.EmbedQuery(context.Background(), "Jenkins serves Project_Alpha")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestService_EmbedDocuments(t *testing.T) {
	srv := teiServer(t, 4)
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	vecs, err := svc.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
}

func TestService_EmptyInput(t *testing.T) {
	svc, err := NewService(Config{BaseURL: "http://localhost:9"})
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestService_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "query")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestNewService_RequiresBaseURL(t *testing.T) {
	_, err := NewService(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewProvider(t *testing.T) {
	t.Run("tei provider reports dimension", func(t *testing.T) {
		p, err := NewProvider(Config{Provider: "tei", BaseURL: "http://localhost:8080", Model: "BAAI/bge-small-en-v1.5"})
		require.NoError(t, err)
		assert.Equal(t, 384, p.Dimension())
		assert.NoError(t, p.Close())
	})

	t.Run("dimension override wins", func(t *testing.T) {
		p, err := NewProvider(Config{Provider: "tei", BaseURL: "http://localhost:8080", Dimension: 1024})
		require.NoError(t, err)
		assert.Equal(t, 1024, p.Dimension())
	})

	t.Run("openai requires api key", func(t *testing.T) {
		_, err := NewProvider(Config{Provider: "openai"})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("unknown provider rejected", func(t *testing.T) {
		_, err := NewProvider(Config{Provider: "gemini"})
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})
}

func TestDetectDimensionFromModel(t *testing.T) {
	tests := []struct {
		model    string
		expected int
	}{
		{"BAAI/bge-small-en-v1.5", 384},
		{"BAAI/bge-base-en-v1.5", 768},
		{"BAAI/bge-large-en-v1.5", 1024},
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"unknown-model", 384},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, detectDimensionFromModel(tt.model), tt.model)
	}
}
