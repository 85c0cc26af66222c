package llmfactory_test

import (
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/effective-security/azurellm/pkg/config"
	"github.com/effective-security/azurellm/pkg/llmfactory"
	"github.com/effective-security/azurellm/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDefault(t *testing.T) {
	for _, k := range config.Keys() {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())
	llmfactory.ResetDefault()
	t.Cleanup(llmfactory.ResetDefault)
}

func TestDefault_SameInstance(t *testing.T) {
	setupDefault(t)
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://x.openai.azure.com")
	t.Setenv("AZURE_OPENAI_API_KEY", "k")
	t.Setenv("OPIK_ENABLED", "false")

	f1, err := llmfactory.Default()
	require.NoError(t, err)
	f2, err := llmfactory.Default()
	require.NoError(t, err)
	assert.Same(t, f1, f2)
	assert.Same(t, f1.Config(), f2.Config())

	cfg, err := llmfactory.DefaultConfig()
	require.NoError(t, err)
	assert.Same(t, f1.Config(), cfg)

	// path is ignored once constructed
	f3, err := llmfactory.DefaultFrom("testdata/not_found.env")
	require.NoError(t, err)
	assert.Same(t, f1, f3)

	chat, err := llmfactory.ChatModel()
	require.NoError(t, err)
	assert.Equal(t, 0.7, chat.Options().Temperature)

	emb, err := llmfactory.Embeddings()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultEmbeddingsDeployment, emb.Embedder().GetName())
}

func TestDefault_FailureNotCached(t *testing.T) {
	setupDefault(t)

	_, err := llmfactory.Default()
	require.Error(t, err)
	assert.True(t, config.IsConfigurationError(err))

	_, err = llmfactory.ChatModel()
	assert.True(t, config.IsConfigurationError(err))
	_, err = llmfactory.Embeddings()
	assert.True(t, config.IsConfigurationError(err))
	_, err = llmfactory.DefaultConfig()
	assert.True(t, config.IsConfigurationError(err))

	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://x.openai.azure.com")
	t.Setenv("AZURE_OPENAI_API_KEY", "k")
	t.Setenv("OPIK_ENABLED", "false")

	f, err := llmfactory.Default()
	require.NoError(t, err)
	assert.Equal(t, "https://x.openai.azure.com", f.Config().Endpoint)
}

func TestDefaultFrom(t *testing.T) {
	for _, k := range config.Keys() {
		t.Setenv(k, "")
	}
	llmfactory.ResetDefault()
	t.Cleanup(llmfactory.ResetDefault)

	f, err := llmfactory.DefaultFrom("testdata/test.env")
	require.NoError(t, err)
	assert.Equal(t, "chat-dep", f.Config().ChatDeployment)

	// explicit construction bypasses the default
	other, err := llmfactory.Load("testdata/test.env")
	require.NoError(t, err)
	assert.NotSame(t, f, other)

	f2, err := llmfactory.Default()
	require.NoError(t, err)
	assert.Same(t, f, f2)
}

func TestDefault_ConcurrentFirstUse(t *testing.T) {
	setupDefault(t)
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://x.openai.azure.com")
	t.Setenv("AZURE_OPENAI_API_KEY", "k")
	t.Setenv("OPIK_ENABLED", "false")

	var created atomic.Int32
	llm := &fakeLLM{name: "chat-dep", reply: "ok"}
	llmfactory.NewChatLLM = func(*config.Config, *http.Client) (llms.Model, error) {
		created.Add(1)
		return llm, nil
	}
	t.Cleanup(func() { llmfactory.NewChatLLM = llmfactory.CreateChatLLM })

	const workers = 16
	factories := make([]*llmfactory.Factory, workers)
	errs := make([]error, workers)

	var start, wg sync.WaitGroup
	start.Add(1)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start.Wait()
			factories[i], errs[i] = llmfactory.Default()
			if errs[i] == nil {
				_, errs[i] = llmfactory.ChatModel()
			}
		}()
	}
	start.Done()
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		assert.Same(t, factories[0], factories[i])
		assert.Same(t, factories[0].Config(), factories[i].Config())
	}
	// one factory means one chat client
	assert.EqualValues(t, 1, created.Load())
}
