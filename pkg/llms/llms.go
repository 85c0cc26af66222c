package llms

import (
	"context"
)

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderAzure is Azure OpenAI authenticated with an API key.
	ProviderAzure ProviderType = "AZURE"
	// ProviderFake is used by tests and local stubs.
	ProviderFake ProviderType = "FAKE"
)

// Model is an interface chat models implement.
type Model interface {
	// GetName returns the deployment or model name the client is bound to.
	GetName() string
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent asks the model to generate content from a sequence of
	// messages.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// Embedder is an interface embedding models implement.
type Embedder interface {
	// GetName returns the deployment or model name the client is bound to.
	GetName() string
	// CreateEmbedding returns one vector per input text, in input order.
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}
