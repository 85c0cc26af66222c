package llmfactory_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/azurellm/pkg/callbacks"
	"github.com/effective-security/azurellm/pkg/config"
	"github.com/effective-security/azurellm/pkg/llmfactory"
	"github.com/effective-security/azurellm/pkg/llms"
	"github.com/effective-security/azurellm/pkg/llms/azure"
	"github.com/effective-security/azurellm/pkg/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	name  string
	reply string
	err   error

	lock  sync.Mutex
	calls []llms.CallOptions
}

func (f *fakeLLM) GetName() string { return f.name }
func (f *fakeLLM) GetProviderType() llms.ProviderType { return llms.ProviderFake }

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(options...)
	f.lock.Lock()
	f.calls = append(f.calls, opts)
	f.lock.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:    f.reply,
				StopReason: "stop",
				GenerationInfo: map[string]any{
					"InputTokens":  3,
					"OutputTokens": 2,
					"TotalTokens":  5,
				},
			},
		},
	}, nil
}

type fakeEmbedder struct {
	dims  int
	short bool
}

func (f *fakeEmbedder) GetName() string { return "emb-dep" }

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	res := make([][]float32, 0, len(texts))
	for i := range texts {
		vec := make([]float32, f.dims)
		vec[0] = float32(i)
		res = append(res, vec)
	}
	if f.short && len(res) > 0 {
		res = res[1:]
	}
	return res, nil
}

type recorder struct {
	callbacks.Noop

	lock   sync.Mutex
	ends   []*llms.ContentResponse
	errs   []error
	embeds int
	calls  []*callbacks.Call
}

func (r *recorder) Name() string { return "recorder" }
func (r *recorder) Flush(ctx context.Context) error { return nil }
func (r *recorder) Close(ctx context.Context) error { return nil }

func (r *recorder) OnLLMEnd(ctx context.Context, call *callbacks.Call, messages []llms.Message, resp *llms.ContentResponse) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.ends = append(r.ends, resp)
	r.calls = append(r.calls, call)
}

func (r *recorder) OnLLMError(ctx context.Context, call *callbacks.Call, messages []llms.Message, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) OnEmbeddingEnd(ctx context.Context, call *callbacks.Call, texts []string, vectors [][]float32) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.embeds++
}

func testConfig(t *testing.T, environ map[string]string) *config.Config {
	base := map[string]string{
		"AZURE_OPENAI_ENDPOINT":                   "https://x.openai.azure.com",
		"AZURE_OPENAI_API_KEY":                    "k",
		"AZURE_OPENAI_CHAT_DEPLOYMENT_NAME":       "chat-dep",
		"AZURE_OPENAI_EMBEDDINGS_DEPLOYMENT_NAME": "emb-dep",
	}
	for k, v := range environ {
		base[k] = v
	}
	cfg, err := config.FromEnviron(base)
	require.NoError(t, err)
	return cfg
}

// useFakes replaces the model constructors for the test.
func useFakes(t *testing.T, llm *fakeLLM, embedder *fakeEmbedder) {
	llmfactory.NewChatLLM = func(cfg *config.Config, _ *http.Client) (llms.Model, error) {
		return llm, nil
	}
	llmfactory.NewEmbedder = func(cfg *config.Config, _ *http.Client) (llms.Embedder, error) {
		return embedder, nil
	}
	t.Cleanup(func() {
		llmfactory.NewChatLLM = llmfactory.CreateChatLLM
		llmfactory.NewEmbedder = llmfactory.CreateEmbedder
	})
}

// registerBackend makes the default tracing back-end available for the test.
func registerBackend(t *testing.T, sink tracing.Sink) {
	tracing.Register(tracing.DefaultBackend, func(*config.Config) (tracing.Sink, error) {
		return sink, nil
	})
	t.Cleanup(func() { tracing.Register(tracing.DefaultBackend, nil) })
}

func TestNew_NilConfig(t *testing.T) {
	_, err := llmfactory.New(nil)
	require.Error(t, err)
	assert.True(t, config.IsConfigurationError(err))
}

func TestLoad_Errors(t *testing.T) {
	for _, k := range config.Keys() {
		t.Setenv(k, "")
	}

	_, err := llmfactory.Load("testdata/missing_endpoint.env")
	require.Error(t, err)
	assert.True(t, config.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "AZURE_OPENAI_ENDPOINT (endpoint)")
	assert.NotContains(t, err.Error(), "AZURE_OPENAI_API_KEY")

	t.Chdir(t.TempDir())
	_, err = llmfactory.Load("")
	require.Error(t, err)
	var cerr *config.ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_API_KEY"}, cerr.MissingKeys())

	_, err = llmfactory.Load("testdata/not_found.env")
	assert.True(t, config.IsConfigurationError(err))
}

func TestLoad(t *testing.T) {
	for _, k := range config.Keys() {
		t.Setenv(k, "")
	}

	f, err := llmfactory.Load("testdata/test.env")
	require.NoError(t, err)
	assert.Equal(t, "https://unittest.openai.azure.com", f.Config().Endpoint)
	assert.False(t, f.TracingEnabled())
	assert.Nil(t, f.Tracer())
}

func TestTracingNeverFailsConstruction(t *testing.T) {
	cfg := testConfig(t, nil)
	sink := &recorder{}

	for _, registered := range []bool{false, true} {
		for _, enable := range []bool{false, true} {
			if registered {
				registerBackend(t, sink)
			} else {
				tracing.Register(tracing.DefaultBackend, nil)
			}

			f, err := llmfactory.New(cfg, llmfactory.WithTracing(enable))
			require.NoError(t, err)
			assert.Equal(t, registered && enable, f.TracingEnabled(), "registered=%v enable=%v", registered, enable)
			if f.TracingEnabled() {
				assert.Same(t, sink, f.Tracer())
			} else {
				assert.Nil(t, f.Tracer())
			}
		}
	}

	// failing back-end
	tracing.Register(tracing.DefaultBackend, func(*config.Config) (tracing.Sink, error) {
		return nil, errors.New("connection refused")
	})
	f, err := llmfactory.New(cfg, llmfactory.WithTracing(true))
	require.NoError(t, err)
	assert.False(t, f.TracingEnabled())
}

func TestTracingDisabledByConfig(t *testing.T) {
	registerBackend(t, &recorder{})

	cfg, err := config.FromEnviron(map[string]string{
		"AZURE_OPENAI_ENDPOINT": "https://x",
		"AZURE_OPENAI_API_KEY":  "k",
		"OPIK_ENABLED":          "false",
	})
	require.NoError(t, err)

	f, err := llmfactory.New(cfg)
	require.NoError(t, err)
	assert.False(t, f.TracingEnabled())
	assert.Nil(t, f.Tracer())

	chat, err := f.ChatModel()
	require.NoError(t, err)
	assert.Empty(t, chat.Callbacks())

	// explicit option wins over configuration
	f, err = llmfactory.New(cfg, llmfactory.WithTracing(true))
	require.NoError(t, err)
	assert.True(t, f.TracingEnabled())
}

func TestChatModel_Defaults(t *testing.T) {
	llm := &fakeLLM{name: "chat-dep", reply: "Paris"}
	useFakes(t, llm, &fakeEmbedder{dims: 3})

	f, err := llmfactory.New(testConfig(t, nil), llmfactory.WithTracing(false))
	require.NoError(t, err)

	chat, err := f.ChatModel()
	require.NoError(t, err)
	opts := chat.Options()
	assert.True(t, opts.HasTemperature())
	assert.Equal(t, 0.7, opts.Temperature)
	assert.True(t, opts.HasMaxTokens())
	assert.Equal(t, 1000, opts.MaxTokens)
	assert.Same(t, llm, chat.LLM())

	answer, err := chat.Invoke(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris", answer)

	chat, err = f.ChatModel(llms.WithTemperature(0.1), llms.WithMaxTokens(50))
	require.NoError(t, err)
	_, err = chat.Invoke(context.Background(), "hi", llms.WithTemperature(0))
	require.NoError(t, err)

	require.Len(t, llm.calls, 2)
	assert.Equal(t, 0.7, llm.calls[0].Temperature)
	assert.Equal(t, 1000, llm.calls[0].MaxTokens)
	assert.Equal(t, float64(0), llm.calls[1].Temperature)
	assert.Equal(t, 50, llm.calls[1].MaxTokens)

	// the underlying client is constructed once
	other, err := f.ChatModel()
	require.NoError(t, err)
	assert.Same(t, chat.LLM(), other.LLM())

	w := other.With(llms.WithTopP(0.5))
	assert.True(t, w.Options().HasTopP())
	assert.False(t, other.Options().HasTopP())
}

func TestIdenticalResponsesWithTracing(t *testing.T) {
	llm := &fakeLLM{name: "chat-dep", reply: "same reply"}
	useFakes(t, llm, &fakeEmbedder{dims: 3})
	sink := &recorder{}
	registerBackend(t, sink)
	cfg := testConfig(t, nil)
	ctx := context.Background()
	msgs := []llms.Message{llms.SystemMessage("be brief"), llms.HumanMessage("hi")}

	var results []*llms.ContentResponse
	for _, enable := range []bool{false, true} {
		f, err := llmfactory.New(cfg, llmfactory.WithTracing(enable))
		require.NoError(t, err)
		chat, err := f.ChatModel()
		require.NoError(t, err)
		resp, err := chat.Generate(ctx, msgs)
		require.NoError(t, err)
		results = append(results, resp)
	}
	assert.Equal(t, results[0], results[1])

	require.Len(t, sink.ends, 1)
	assert.Equal(t, results[1], sink.ends[0])
	call := sink.calls[0]
	assert.Equal(t, "chat-dep", call.Name)
	assert.Equal(t, cfg.ChatModel, call.Model)
	assert.Equal(t, 0.7, call.Params["temperature"])
	assert.Equal(t, 1000, call.Params["max_tokens"])
	assert.NotEmpty(t, call.ID)
}

func TestChat_ProviderError(t *testing.T) {
	providerErr := errors.New("429 too many requests")
	llm := &fakeLLM{name: "chat-dep", err: providerErr}
	useFakes(t, llm, &fakeEmbedder{dims: 3})

	cb := &recorder{}
	f, err := llmfactory.New(testConfig(t, nil), llmfactory.WithTracing(false), llmfactory.WithCallbacks(cb))
	require.NoError(t, err)
	chat, err := f.ChatModel()
	require.NoError(t, err)
	require.Len(t, chat.Callbacks(), 1)

	_, err = chat.Invoke(context.Background(), "hi")
	assert.Same(t, providerErr, err)
	require.Len(t, cb.errs, 1)
	assert.Same(t, providerErr, cb.errs[0])
}

func TestChat_Stream(t *testing.T) {
	llm := &fakeLLM{name: "chat-dep", reply: "streamed"}
	useFakes(t, llm, &fakeEmbedder{dims: 3})

	f, err := llmfactory.New(testConfig(t, nil), llmfactory.WithTracing(false))
	require.NoError(t, err)
	chat, err := f.ChatModel()
	require.NoError(t, err)

	resp, err := chat.Stream(context.Background(), []llms.Message{llms.HumanMessage("hi")}, func(context.Context, []byte) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "streamed", resp.Content())
	require.Len(t, llm.calls, 1)
	assert.NotNil(t, llm.calls[0].StreamingFunc)
}

func TestEmbeddings(t *testing.T) {
	emb := &fakeEmbedder{dims: 4}
	useFakes(t, &fakeLLM{name: "chat-dep"}, emb)

	cb := &recorder{}
	f, err := llmfactory.New(testConfig(t, nil), llmfactory.WithTracing(false), llmfactory.WithCallbacks(cb))
	require.NoError(t, err)

	h, err := f.Embeddings()
	require.NoError(t, err)
	assert.Same(t, emb, h.Embedder())
	assert.Len(t, h.Callbacks(), 1)

	ctx := context.Background()
	vec, err := h.EmbedQuery(ctx, "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 4)

	vecs, err := h.EmbedDocuments(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(2), vecs[2][0])
	assert.Equal(t, 2, cb.embeds)

	emb.short = true
	_, err = h.EmbedDocuments(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, azure.ErrUnexpectedResponseLength)
}

func TestDocumentIntelligence(t *testing.T) {
	f, err := llmfactory.New(testConfig(t, nil), llmfactory.WithTracing(false))
	require.NoError(t, err)
	_, _, err = f.DocumentIntelligence()
	assert.True(t, config.IsConfigurationError(err))

	f, err = llmfactory.New(testConfig(t, map[string]string{
		"AZURE_DOCUMENT_INTELLIGENCE_ENDPOINT": "https://di.cognitiveservices.azure.com",
		"AZURE_DOCUMENT_INTELLIGENCE_KEY":      "dikey",
	}), llmfactory.WithTracing(false))
	require.NoError(t, err)
	endpoint, key, err := f.DocumentIntelligence()
	require.NoError(t, err)
	assert.Equal(t, "https://di.cognitiveservices.azure.com", endpoint)
	assert.Equal(t, "dikey", key)
}

func TestFactory_AzureEndToEnd(t *testing.T) {
	var body map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		path = r.URL.Path
		body = map[string]any{}
		_ = json.Unmarshal(b, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4.1-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Paris"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":9,"completion_tokens":1,"total_tokens":10}}`))
	}))
	defer srv.Close()

	cfg := testConfig(t, map[string]string{"AZURE_OPENAI_ENDPOINT": srv.URL})
	f, err := llmfactory.New(cfg, llmfactory.WithTracing(false), llmfactory.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	chat, err := f.ChatModel()
	require.NoError(t, err)
	answer, err := chat.Invoke(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris", answer)

	assert.Contains(t, path, "/deployments/chat-dep/chat/completions")
	assert.Equal(t, 0.7, body["temperature"])
	assert.EqualValues(t, 1000, body["max_tokens"])
}
