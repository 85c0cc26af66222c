package azure

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/azurellm/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/openai/openai-go/v3"
)

// Embeddings is an embedding client bound to a deployment.
type Embeddings struct {
	client     openai.Client
	deployment string
	model      string
}

var _ llms.Embedder = (*Embeddings)(nil)

// NewEmbeddings returns an embedding client.
// Endpoint, API key and deployment are required.
func NewEmbeddings(opts ...Option) (*Embeddings, error) {
	o := newOptions(opts)
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &Embeddings{
		client:     newClient(o),
		deployment: o.deployment,
		model:      o.model,
	}, nil
}

// GetName returns the deployment name.
func (e *Embeddings) GetName() string {
	return e.deployment
}

// ModelName returns the model name behind the deployment.
func (e *Embeddings) ModelName() string {
	return e.model
}

// CreateEmbedding returns one vector per text, in the order of texts.
func (e *Embeddings) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.deployment),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG, "reason", "embeddings", "deployment", e.deployment, "err", err.Error())
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, ErrEmptyResponse
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Wrapf(ErrUnexpectedResponseLength, "expected %d vectors, got %d", len(texts), len(resp.Data))
	}

	res := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(res) {
			idx = i
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		res[idx] = vec
	}
	return res, nil
}
