package llmfactory

import (
	"sync"

	"github.com/effective-security/azurellm/pkg/config"
	"github.com/effective-security/azurellm/pkg/llms"
)

var (
	defaultLock    sync.Mutex
	defaultFactory *Factory
)

// Default returns the process-wide Factory, loading configuration from the
// default .env location on first use.
// A failed construction is not cached, the next call tries again.
func Default() (*Factory, error) {
	return DefaultFrom("")
}

// DefaultFrom is Default with configuration loaded from path.
// The path is used only when the default Factory is not yet constructed.
func DefaultFrom(path string) (*Factory, error) {
	defaultLock.Lock()
	defer defaultLock.Unlock()

	if defaultFactory != nil {
		return defaultFactory, nil
	}

	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	defaultFactory = f
	return f, nil
}

// DefaultConfig returns configuration of the default Factory.
func DefaultConfig() (*config.Config, error) {
	f, err := Default()
	if err != nil {
		return nil, err
	}
	return f.Config(), nil
}

// ChatModel returns a chat handle from the default Factory.
func ChatModel(opts ...llms.CallOption) (*ChatHandle, error) {
	f, err := Default()
	if err != nil {
		return nil, err
	}
	return f.ChatModel(opts...)
}

// Embeddings returns an embedding handle from the default Factory.
func Embeddings() (*EmbeddingHandle, error) {
	f, err := Default()
	if err != nil {
		return nil, err
	}
	return f.Embeddings()
}
