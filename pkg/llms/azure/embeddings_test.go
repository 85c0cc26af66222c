package azure_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/effective-security/azurellm/pkg/llms/azure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbeddings(t *testing.T, url string) *azure.Embeddings {
	e, err := azure.NewEmbeddings(
		azure.WithEndpoint(url),
		azure.WithAPIKey("test-key"),
		azure.WithDeployment("emb-dep"),
		azure.WithMaxRetries(0),
	)
	require.NoError(t, err)
	return e
}

func TestEmbeddings(t *testing.T) {
	got := &captured{}
	srv := newServer(t, http.StatusOK, `{
		"object": "list",
		"model": "text-embedding-3-large",
		"data": [
			{"object": "embedding", "index": 1, "embedding": [0.4, 0.5]},
			{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]}
		],
		"usage": {"prompt_tokens": 4, "total_tokens": 4}
	}`, got)

	e := newEmbeddings(t, srv.URL)
	assert.Equal(t, "emb-dep", e.GetName())
	assert.Equal(t, "emb-dep", e.ModelName())

	vecs, err := e.CreateEmbedding(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vecs[0])
	assert.Equal(t, []float32{0.4, 0.5}, vecs[1])

	assert.Contains(t, got.path, "/deployments/emb-dep/embeddings")
	assert.Equal(t, azure.DefaultAPIVersion, got.version)
	assert.Equal(t, []any{"first", "second"}, got.body["input"])
}

func TestEmbeddings_NoTexts(t *testing.T) {
	e := newEmbeddings(t, "https://unused.example.com")
	vecs, err := e.CreateEmbedding(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestEmbeddings_Errors(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"object":"list","model":"m","data":[],"usage":{"prompt_tokens":0,"total_tokens":0}}`, nil)
	_, err := newEmbeddings(t, srv.URL).CreateEmbedding(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, azure.ErrEmptyResponse)

	srv = newServer(t, http.StatusOK, `{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[1]}],"usage":{"prompt_tokens":0,"total_tokens":0}}`, nil)
	_, err = newEmbeddings(t, srv.URL).CreateEmbedding(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, azure.ErrUnexpectedResponseLength)

	srv = newServer(t, http.StatusUnauthorized, `{"error":{"code":"401","message":"Access denied"}}`, nil)
	_, err = newEmbeddings(t, srv.URL).CreateEmbedding(context.Background(), []string{"a"})
	assert.Error(t, err)
}
