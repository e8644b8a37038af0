package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTEIServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		count := 1
		if inputs, ok := req.Inputs.([]interface{}); ok {
			count = len(inputs)
		}
		vectors := make([][]float32, count)
		for i := range vectors {
			vectors[i] = make([]float32, dim)
			vectors[i][0] = 1
		}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	}))
}

func TestServiceEmbedDocuments(t *testing.T) {
	srv := newTEIServer(t, 4)
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL, Model: "test-model"}, nil)
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 4)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestServiceEmbedQuery(t *testing.T) {
	srv := newTEIServer(t, 4)
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL, Model: "test-model"}, nil)
	require.NoError(t, err)

	vec, err := svc.EmbedQuery(context.Background(), "what is rent")
	require.NoError(t, err)
	assert.Len(t, vec, 4)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestServiceUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL, Model: "test-model"}, nil)
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestNewServiceRequiresBaseURL(t *testing.T) {
	_, err := NewService(Config{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
